// Package notify delivers operator alerts over SMTP. Alerting is strictly
// best-effort: a mail outage must never stall the sync pipeline, so every
// send failure is logged and swallowed by the caller's contract.
package notify

import (
	"bytes"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantops/site-sync-service/internal/config"
)

// sendFunc matches smtp.SendMail and is swapped out in tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends alert email to the configured IT address.
type Mailer struct {
	host string
	port int
	from string
	to   string
	auth smtp.Auth
	log  *zerolog.Logger
	now  func() time.Time
	send sendFunc
}

// NewMailer builds a mailer from the alert configuration. When no SMTP host
// or recipient is configured it returns nil, and callers treat a nil mailer
// as alerting disabled.
func NewMailer(cfg config.AlertConfig, log *zerolog.Logger) *Mailer {
	if cfg.SMTPHost == "" || cfg.ITEmail == "" {
		log.Warn().Msg("alert_mail_disabled")
		return nil
	}

	m := &Mailer{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		from: cfg.From,
		to:   cfg.ITEmail,
		log:  log,
		now:  time.Now,
		send: smtp.SendMail,
	}
	if cfg.SMTPUser != "" {
		m.auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	return m
}

// SendAlert delivers one queued alert. The error return lets the caller
// leave the alert queued for a later attempt.
func (m *Mailer) SendAlert(severity, subject, body string) error {
	return m.deliver(fmt.Sprintf("[%s] %s", severity, subject), body)
}

// DeadLetterAlert notifies IT that an item was parked at HQ. Failures are
// logged only; the item is already safe in the dead-letter store.
func (m *Mailer) DeadLetterAlert(siteCode, entityType, entityID, correlationID, message string) {
	subject := fmt.Sprintf("[dead letter] %s %s/%s", siteCode, entityType, entityID)
	body := fmt.Sprintf("correlation_id: %s\nerror: %s\n", correlationID, message)
	if err := m.deliver(subject, body); err != nil {
		m.log.Warn().Err(err).Str("correlation_id", correlationID).Msg("dead_letter_mail_failed")
	}
}

func (m *Mailer) deliver(subject, body string) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	if err := m.send(addr, m.auth, m.from, []string{m.to}, buf.Bytes()); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}
