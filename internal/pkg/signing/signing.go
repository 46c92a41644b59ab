// Package signing implements HMAC-SHA256 request signing for site-to-HQ
// sync batches, with support for secret rotation via key identifiers.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	// HeaderSignature carries the hex HMAC-SHA256 of the exact request body.
	HeaderSignature = "X-Signature"

	// HeaderKeyID names the secret the sender signed with, so receivers can
	// log which key a batch arrived under during a rotation window.
	HeaderKeyID = "X-Kid"
)

var (
	// ErrMissingSignature indicates the request carried no signature header.
	ErrMissingSignature = errors.New("missing signature")

	// ErrInvalidSignature indicates the signature matched neither the active
	// nor the previous secret.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Sign returns the lowercase hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Keyring holds the active signing secret and, during a rotation window,
// the previous one. The previous secret is retired by leaving it empty.
type Keyring struct {
	ActiveKid      string
	ActiveSecret   string
	PreviousKid    string
	PreviousSecret string
}

// Sign signs body with the active secret and returns the signature and the
// active key id.
func (k Keyring) Sign(body []byte) (sig, kid string) {
	return Sign(k.ActiveSecret, body), k.ActiveKid
}

// Verify checks sig against the active secret first and falls back to the
// previous secret while one is configured. Comparison is constant-time.
func (k Keyring) Verify(body []byte, sig string) error {
	if sig == "" {
		return ErrMissingSignature
	}

	if hmac.Equal([]byte(Sign(k.ActiveSecret, body)), []byte(sig)) {
		return nil
	}

	if k.PreviousSecret != "" && hmac.Equal([]byte(Sign(k.PreviousSecret, body)), []byte(sig)) {
		return nil
	}

	return ErrInvalidSignature
}
