package inapp

import (
	"context"
	"errors"
	"fmt"

	"leadrouter_backend/platform/apperr"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
)

// Store defines the data access interface needed by the service.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) (Notification, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error)
}

// Service handles in-app notification delivery and reads.
type Service struct {
	store Store
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// SendParams describes a notification to deliver.
type SendParams struct {
	RecipientID  uuid.UUID
	Category     string
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType *string
}

// Send persists the notification for the recipient.
func (s *Service) Send(ctx context.Context, p SendParams) (Notification, error) {
	if p.RecipientID == uuid.Nil {
		return Notification{}, fmt.Errorf("recipient is required")
	}
	if p.Category == "" {
		p.Category = "info"
	}
	return s.store.Create(ctx, CreateParams{
		RecipientID:  p.RecipientID,
		Category:     p.Category,
		Title:        p.Title,
		Content:      p.Content,
		ResourceID:   p.ResourceID,
		ResourceType: p.ResourceType,
	})
}

// List returns the recipient's notifications together with the unread count.
func (s *Service) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]Notification, int, error) {
	notifications, err := s.store.ListForRecipient(ctx, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.store.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, 0, err
	}
	return notifications, unread, nil
}

// MarkRead marks one of the recipient's notifications as read.
func (s *Service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (Notification, error) {
	n, err := s.store.MarkRead(ctx, id, recipientID)
	if errors.Is(err, ErrNotFound) {
		return Notification{}, apperr.NotFound("notification not found")
	}
	return n, err
}

// MarkAllRead marks every unread notification for the recipient.
func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.store.MarkAllRead(ctx, recipientID)
}
