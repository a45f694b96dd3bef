package services

import (
	"fmt"

	"github.com/forumkit/forumkit/config"
	"github.com/forumkit/forumkit/utils"
)

// Mailer delivers account lifecycle mail. Implementations must not block the
// request path.
type Mailer interface {
	SendActivationToken(email, username, token string) error
	SendResetToken(email, username, token string) error
}

// SMTPMailer delivers through the configured SMTP relay. Delivery happens in a
// goroutine; failures are logged, never surfaced to the caller, so a broken
// relay cannot block registration.
type SMTPMailer struct{}

// NewSMTPMailer returns the production mailer.
func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

func (m *SMTPMailer) sendAsync(to, subject, body string) {
	go func() {
		if err := utils.SendMail(to, subject, body); err != nil {
			utils.Sugar.Errorw("mail delivery failed", "to", to, "subject", subject, "error", err)
		}
	}()
}

// SendActivationToken mails the account activation link.
func (m *SMTPMailer) SendActivationToken(email, username, token string) error {
	link := fmt.Sprintf("%s/auth/activate/%s", config.Get().BaseURL, token)
	body := fmt.Sprintf(
		"Hello %s,\n\nactivate your account by visiting:\n\n%s\n\nThe link expires after one hour.\n",
		username, link)
	m.sendAsync(email, "Activate your account", body)
	return nil
}

// SendResetToken mails the password reset link.
func (m *SMTPMailer) SendResetToken(email, username, token string) error {
	link := fmt.Sprintf("%s/auth/reset-password/%s", config.Get().BaseURL, token)
	body := fmt.Sprintf(
		"Hello %s,\n\nreset your password by visiting:\n\n%s\n\nIf you did not request this, ignore this mail.\n",
		username, link)
	m.sendAsync(email, "Reset your password", body)
	return nil
}
