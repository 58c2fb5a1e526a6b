// Package email sends transactional notification emails over SMTP.
package email

import (
	"context"
	"fmt"
	"time"

	"leadrouter_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers notification emails. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendDirectorAlert(ctx context.Context, to, name, alertType, severity, message string) error
	SendTaskAssigned(ctx context.Context, to, name, taskTitle string, dueAt time.Time) error
	SendLeadEscalated(ctx context.Context, to, name, leadName, reason string) error
}

// Config is the subset of application configuration the sender needs.
type Config interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetAppBaseURL() string
}

// SMTPSender sends emails through an SMTP relay.
type SMTPSender struct {
	cfg Config
	log *logger.Logger
}

func NewSMTPSender(cfg Config, log *logger.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log}
}

func (s *SMTPSender) SendDirectorAlert(ctx context.Context, to, name, alertType, severity, message string) error {
	subject := fmt.Sprintf("[%s] Director alert: %s", severity, alertType)
	body := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>%s</p>
		<p><a href="%s/alerts">Open the alert dashboard</a></p>`,
		name, message, s.cfg.GetAppBaseURL())
	return s.send(ctx, to, name, subject, body)
}

func (s *SMTPSender) SendTaskAssigned(ctx context.Context, to, name, taskTitle string, dueAt time.Time) error {
	subject := "New task: " + taskTitle
	body := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>A task was assigned to you: <strong>%s</strong></p>
		<p>Due by %s.</p>
		<p><a href="%s/tasks">Open your tasks</a></p>`,
		name, taskTitle, dueAt.Format("Mon, 02 Jan 2006 15:04 MST"), s.cfg.GetAppBaseURL())
	return s.send(ctx, to, name, subject, body)
}

func (s *SMTPSender) SendLeadEscalated(ctx context.Context, to, name, leadName, reason string) error {
	subject := "Lead escalated: " + leadName
	body := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>The lead <strong>%s</strong> was escalated to you (%s).</p>
		<p><a href="%s/leads">Open the lead pipeline</a></p>`,
		name, leadName, reason, s.cfg.GetAppBaseURL())
	return s.send(ctx, to, name, subject, body)
}

func (s *SMTPSender) send(ctx context.Context, to, toName, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.GetEmailFromName(), s.cfg.GetEmailFromAddress()); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	client, err := gomail.NewClient(s.cfg.GetSMTPHost(),
		gomail.WithPort(s.cfg.GetSMTPPort()),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.GetSMTPUsername()),
		gomail.WithPassword(s.cfg.GetSMTPPassword()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	s.log.Debug("email sent", "to", to, "subject", subject)
	return nil
}

// Noop is the sender used when email delivery is disabled. It logs the
// would-be email at debug level and succeeds.
type Noop struct {
	log *logger.Logger
}

func NewNoop(log *logger.Logger) *Noop {
	return &Noop{log: log}
}

func (n *Noop) SendDirectorAlert(ctx context.Context, to, name, alertType, severity, message string) error {
	n.log.Debug("email disabled, skipping director alert", "to", to, "type", alertType)
	return nil
}

func (n *Noop) SendTaskAssigned(ctx context.Context, to, name, taskTitle string, dueAt time.Time) error {
	n.log.Debug("email disabled, skipping task assignment", "to", to, "task", taskTitle)
	return nil
}

func (n *Noop) SendLeadEscalated(ctx context.Context, to, name, leadName, reason string) error {
	n.log.Debug("email disabled, skipping escalation notice", "to", to, "lead", leadName)
	return nil
}
