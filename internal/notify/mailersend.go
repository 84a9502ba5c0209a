package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

// MailerSendNotifier sends notifications by email for recipients with an
// email on file. Recipients without one fall through to an error the caller
// logs and drops.
type MailerSendNotifier struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSendNotifier(apiKey, fromName, fromEmail string) *MailerSendNotifier {
	m := &MailerSendNotifier{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendNotifier) SendVerificationCode(ctx context.Context, recipient, code string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your EasyTips verification code"
	html := fmt.Sprintf(`
		<h2>Your EasyTips Verification Code</h2>
		<p>Your code is: <strong style="font-size: 24px;">%s</strong></p>
		<p>This code will expire in 5 minutes.</p>
		<p>If you didn't request this code, please ignore this message.</p>
	`, code)

	text := fmt.Sprintf("Your EasyTips verification code is: %s\n\nIt expires in 5 minutes.", code)

	return m.send(ctx, recipient, subject, text, html)
}

func (m *MailerSendNotifier) SendEmployeeInvitation(ctx context.Context, recipient, organizationName string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "You have been added to " + organizationName
	html := fmt.Sprintf(`
		<h2>Welcome to %s on EasyTips</h2>
		<p>You have been added to the organization <strong>%s</strong>.</p>
		<p>Use your phone number to log in and start receiving tips.</p>
	`, organizationName, organizationName)

	text := fmt.Sprintf("You have been added to the organization %s. Use your phone number to log in.", organizationName)

	return m.send(ctx, recipient, subject, text, html)
}

func (m *MailerSendNotifier) send(ctx context.Context, to, subject, text, html string) error {
	// Phone-only identities cannot be reached over email. SMS delivery goes
	// through the NATS notifier and its worker.
	if !strings.Contains(to, "@") {
		return fmt.Errorf("recipient %q has no email address", to)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Email: to}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
