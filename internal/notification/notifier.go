// Package notification turns domain events into in-app notifications and
// emails for the commercial team.
package notification

import (
	"context"
	"time"

	"leadrouter_backend/internal/events"
	"leadrouter_backend/internal/notification/email"
	"leadrouter_backend/internal/notification/inapp"
	teamrepo "leadrouter_backend/internal/team/repository"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// emailBurst bounds how many emails a sudden flood of alerts may send before
// the limiter throttles to its steady rate.
const emailBurst = 10

// InAppSender delivers in-app notifications. Satisfied by *inapp.Service.
type InAppSender interface {
	Send(ctx context.Context, p inapp.SendParams) (inapp.Notification, error)
}

// Directory resolves event recipients to team members. Satisfied by the team
// directory.
type Directory interface {
	Member(ctx context.Context, id uuid.UUID) (teamrepo.Member, error)
	Director(ctx context.Context) (teamrepo.Member, error)
}

// Notifier subscribes to domain events and fans them out to in-app and email
// delivery. Delivery failures are logged and swallowed: notification is
// outside the engine's failure domain.
type Notifier struct {
	inapp     InAppSender
	email     email.Sender
	directory Directory
	log       *logger.Logger
	limiter   *rate.Limiter
}

func NewNotifier(inappSender InAppSender, emailSender email.Sender, directory Directory, log *logger.Logger) *Notifier {
	return &Notifier{
		inapp:     inappSender,
		email:     emailSender,
		directory: directory,
		log:       log,
		limiter:   rate.NewLimiter(rate.Every(time.Minute), emailBurst),
	}
}

// Subscribe registers the notifier's handlers on the bus.
func (n *Notifier) Subscribe(bus events.Bus) {
	bus.Subscribe(events.DirectorAlertRaised{}.EventName(), events.HandlerFunc(n.onDirectorAlert))
	bus.Subscribe(events.LeadEscalated{}.EventName(), events.HandlerFunc(n.onLeadEscalated))
	bus.Subscribe(events.LeadRedistributed{}.EventName(), events.HandlerFunc(n.onLeadRedistributed))
	bus.Subscribe(events.TaskCreated{}.EventName(), events.HandlerFunc(n.onTaskCreated))
	bus.Subscribe(events.RuleNotificationRaised{}.EventName(), events.HandlerFunc(n.onRuleNotification))
}

func (n *Notifier) onDirectorAlert(ctx context.Context, e events.Event) error {
	event, ok := e.(events.DirectorAlertRaised)
	if !ok {
		return nil
	}

	director, err := n.directory.Director(ctx)
	if err != nil {
		n.log.NotificationFailure("director_alert", "", err)
		return nil
	}

	alertID := event.AlertID
	resourceType := "alert"
	if _, err := n.inapp.Send(ctx, inapp.SendParams{
		RecipientID:  director.ID,
		Category:     "alert",
		Title:        "Director alert: " + event.Type,
		Content:      event.Message,
		ResourceID:   &alertID,
		ResourceType: &resourceType,
	}); err != nil {
		n.log.NotificationFailure("director_alert", director.ID.String(), err)
	}

	n.sendEmail(director.ID, "director_alert", func() error {
		return n.email.SendDirectorAlert(ctx, director.Email, director.Name, event.Type, event.Severity, event.Message)
	})
	return nil
}

func (n *Notifier) onLeadEscalated(ctx context.Context, e events.Event) error {
	event, ok := e.(events.LeadEscalated)
	if !ok {
		return nil
	}

	director, err := n.directory.Member(ctx, event.DirectorID)
	if err != nil {
		n.log.NotificationFailure("lead_escalated", event.DirectorID.String(), err)
		return nil
	}

	leadID := event.LeadID
	resourceType := "lead"
	if _, err := n.inapp.Send(ctx, inapp.SendParams{
		RecipientID:  director.ID,
		Category:     "escalation",
		Title:        "Lead escalated to you",
		Content:      "A lead was escalated to you: " + event.Reason,
		ResourceID:   &leadID,
		ResourceType: &resourceType,
	}); err != nil {
		n.log.NotificationFailure("lead_escalated", director.ID.String(), err)
	}

	n.sendEmail(director.ID, "lead_escalated", func() error {
		return n.email.SendLeadEscalated(ctx, director.Email, director.Name, event.LeadID.String(), event.Reason)
	})
	return nil
}

func (n *Notifier) onLeadRedistributed(ctx context.Context, e events.Event) error {
	event, ok := e.(events.LeadRedistributed)
	if !ok {
		return nil
	}

	leadID := event.LeadID
	resourceType := "lead"
	if _, err := n.inapp.Send(ctx, inapp.SendParams{
		RecipientID:  event.NewOwnerID,
		Category:     "assignment",
		Title:        "Lead reassigned to you",
		Content:      "A lead was moved to you: " + event.Reason,
		ResourceID:   &leadID,
		ResourceType: &resourceType,
	}); err != nil {
		n.log.NotificationFailure("lead_redistributed", event.NewOwnerID.String(), err)
	}
	return nil
}

func (n *Notifier) onTaskCreated(ctx context.Context, e events.Event) error {
	event, ok := e.(events.TaskCreated)
	if !ok {
		return nil
	}

	taskID := event.TaskID
	resourceType := "task"
	if _, err := n.inapp.Send(ctx, inapp.SendParams{
		RecipientID:  event.AssignedTo,
		Category:     "task",
		Title:        "New task assigned",
		Content:      "A " + event.Kind + " task is due by " + event.DueAt.Format(time.RFC1123),
		ResourceID:   &taskID,
		ResourceType: &resourceType,
	}); err != nil {
		n.log.NotificationFailure("task_created", event.AssignedTo.String(), err)
	}
	return nil
}

func (n *Notifier) onRuleNotification(ctx context.Context, e events.Event) error {
	event, ok := e.(events.RuleNotificationRaised)
	if !ok {
		return nil
	}

	leadID := event.LeadID
	resourceType := "lead"
	if _, err := n.inapp.Send(ctx, inapp.SendParams{
		RecipientID:  event.OwnerID,
		Category:     "rule",
		Title:        "Lead needs attention",
		Content:      event.Message,
		ResourceID:   &leadID,
		ResourceType: &resourceType,
	}); err != nil {
		n.log.NotificationFailure("rule_notification", event.OwnerID.String(), err)
	}
	return nil
}

// sendEmail dispatches one email behind the limiter. Throttled sends are
// dropped; the in-app copy already carries the information.
func (n *Notifier) sendEmail(recipientID uuid.UUID, kind string, send func() error) {
	if !n.limiter.Allow() {
		n.log.Debug("email throttled", "kind", kind, "recipient_id", recipientID.String())
		return
	}
	if err := send(); err != nil {
		n.log.NotificationFailure(kind, recipientID.String(), err)
	}
}
