// Package mailer wraps the SendGrid client behind the small Sender surface
// the OTP service needs.
package mailer

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGrid struct {
	APIKey string
	From   string
}

func (m *SendGrid) Send(toEmail, subject, body string) error {
	from := mail.NewEmail("GeekZone", m.From)
	to := mail.NewEmail(toEmail, toEmail)
	msg := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(m.APIKey)
	resp, err := client.Send(msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
