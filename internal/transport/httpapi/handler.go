// Package httpapi exposes the receiving end of the plant sync pipeline over
// HTTP. The body is authenticated with an HMAC over the exact request bytes
// before any parsing happens, so a tampered or unsigned batch never reaches
// the application layer.
package httpapi

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/plantops/site-sync-service/internal/app/hq/contracts"
	"github.com/plantops/site-sync-service/internal/app/hq/domain"
	"github.com/plantops/site-sync-service/internal/pkg/signing"
)

const deadLetterPageLimit = 100

// BatchProcessor applies an authenticated, parsed batch and reports per-item
// outcomes.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batch *domain.Batch) domain.Summary
}

// Handler wires the sync routes onto a fiber app.
type Handler struct {
	Processor   BatchProcessor
	DeadLetters contracts.DeadLetterStore
	Keyring     signing.Keyring
	Log         *zerolog.Logger
}

// Router builds the fiber app with all sync routes registered.
func (h *Handler) Router() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/sync/receive", h.Receive)
	app.Get("/sync/deadletters", h.ListDeadLetters)
	app.Get("/healthz", h.Healthz)
	return app
}

// Receive authenticates and applies one batch. Envelope violations reject the
// whole request; payload-level problems are dead-lettered per item and the
// response still reports them in the summary.
func (h *Handler) Receive(c *fiber.Ctx) error {
	body := c.Body()

	if err := h.Keyring.Verify(body, c.Get(signing.HeaderSignature)); err != nil {
		code := "invalid_signature"
		if errors.Is(err, signing.ErrMissingSignature) {
			code = "missing_signature"
		}
		h.Log.Warn().
			Str("kid", c.Get(signing.HeaderKeyID)).
			Str("remote", c.IP()).
			Msg("batch_rejected_" + code)
		return respondError(c, fiber.StatusUnauthorized, code)
	}

	batch, err := domain.ParseBatch(body)
	if err != nil {
		h.Log.Warn().Err(err).Msg("batch_rejected_invalid_payload")
		return respondError(c, fiber.StatusBadRequest, "invalid_payload")
	}

	summary := h.Processor.ProcessBatch(c.UserContext(), batch)
	return c.Status(fiber.StatusOK).JSON(summary)
}

// ListDeadLetters returns the oldest parked items so operators can inspect
// what the replayer will pick up next.
func (h *Handler) ListDeadLetters(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", deadLetterPageLimit)
	if limit <= 0 || limit > deadLetterPageLimit {
		limit = deadLetterPageLimit
	}

	entries, err := h.DeadLetters.ListOldest(c.UserContext(), limit)
	if err != nil {
		h.Log.Error().Err(err).Msg("dead_letter_list_failed")
		return respondError(c, fiber.StatusInternalServerError, "internal_error")
	}
	if entries == nil {
		entries = []*domain.DeadLetterEntry{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"dead_letters": entries})
}

// Healthz reports process liveness only; it deliberately touches no storage.
func (h *Handler) Healthz(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func respondError(c *fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
