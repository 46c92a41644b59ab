package notify

import (
	"net/smtp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/site-sync-service/internal/config"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func testMailer(t *testing.T, sink *[]sentMail, sendErr error) *Mailer {
	t.Helper()
	log := zerolog.Nop()
	m := NewMailer(config.AlertConfig{
		SMTPHost: "mail.plantops.local",
		SMTPPort: 587,
		From:     "sync@plantops.local",
		ITEmail:  "it@plantops.local",
	}, &log)
	require.NotNil(t, m)
	m.now = func() time.Time { return time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC) }
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if sendErr != nil {
			return sendErr
		}
		*sink = append(*sink, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return m
}

func TestNewMailerDisabledWithoutHost(t *testing.T) {
	t.Parallel()

	log := zerolog.Nop()
	assert.Nil(t, NewMailer(config.AlertConfig{ITEmail: "it@plantops.local"}, &log))
	assert.Nil(t, NewMailer(config.AlertConfig{SMTPHost: "mail.plantops.local"}, &log))
}

func TestSendAlert(t *testing.T) {
	t.Parallel()

	var sent []sentMail
	m := testMailer(t, &sent, nil)

	require.NoError(t, m.SendAlert("critical", "sync failing at PLANT01", "3 consecutive cycle failures"))

	require.Len(t, sent, 1)
	assert.Equal(t, "mail.plantops.local:587", sent[0].addr)
	assert.Equal(t, []string{"it@plantops.local"}, sent[0].to)
	assert.Contains(t, sent[0].msg, "Subject: [critical] sync failing at PLANT01")
	assert.Contains(t, sent[0].msg, "3 consecutive cycle failures")
}

func TestSendAlertPropagatesFailure(t *testing.T) {
	t.Parallel()

	var sent []sentMail
	m := testMailer(t, &sent, assert.AnError)

	require.Error(t, m.SendAlert("critical", "subject", "body"))
	assert.Empty(t, sent)
}

func TestDeadLetterAlertSwallowsFailure(t *testing.T) {
	t.Parallel()

	var sent []sentMail
	m := testMailer(t, &sent, assert.AnError)

	// Must not panic or propagate; the entry is already persisted.
	m.DeadLetterAlert("PLANT01", "ticket", "TCK-1", "ticket_open:TCK-1", "schema_invalid")
	assert.Empty(t, sent)
}

func TestDeadLetterAlertContent(t *testing.T) {
	t.Parallel()

	var sent []sentMail
	m := testMailer(t, &sent, nil)

	m.DeadLetterAlert("PLANT01", "ticket", "TCK-1", "ticket_open:TCK-1", "schema_invalid: missing keys")

	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].msg, "Subject: [dead letter] PLANT01 ticket/TCK-1")
	assert.Contains(t, sent[0].msg, "correlation_id: ticket_open:TCK-1")
}
