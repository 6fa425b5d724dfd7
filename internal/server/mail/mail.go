// Package mail delivers account emails through the Resend API.
package mail

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/resend/resend-go/v2"
)

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

var newEmailSender = func(apiKey string) emailSender {
	return resend.NewClient(apiKey).Emails
}

type ResendMailer struct {
	emails emailSender
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{emails: newEmailSender(apiKey), from: from}
}

func (m *ResendMailer) Send(ctx context.Context, to, subject, body string) error {
	_, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// LogMailer writes emails to the log. Used when no API key is configured.
type LogMailer struct {
	log logging.Logger
}

func NewLogMailer(log logging.Logger) *LogMailer {
	return &LogMailer{log: log.With("module", "mail")}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.log.Info(ctx, "email not sent, no api key", "to", to, "subject", subject, "body", body)
	return nil
}
