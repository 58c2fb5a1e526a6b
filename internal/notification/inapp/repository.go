// Package inapp persists and serves in-app notifications for team members.
package inapp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("notification not found")

// Notification is one in-app message addressed to a team member.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	RecipientID  uuid.UUID  `json:"recipientId"`
	Category     string     `json:"category"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	ResourceID   *uuid.UUID `json:"resourceId,omitempty"`
	ResourceType *string    `json:"resourceType,omitempty"`
	Read         bool       `json:"read"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type CreateParams struct {
	RecipientID  uuid.UUID
	Category     string
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType *string
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `
	id, recipient_id, category, title, content, resource_id, resource_type, read, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.Category, &n.Title, &n.Content,
		&n.ResourceID, &n.ResourceType, &n.Read, &n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	return n, err
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	return scanNotification(r.pool.QueryRow(ctx, `
		INSERT INTO in_app_notifications (recipient_id, category, title, content, resource_id, resource_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns+`
	`, p.RecipientID, p.Category, p.Title, p.Content, p.ResourceID, p.ResourceType))
}

// ListForRecipient returns the recipient's notifications, newest first.
func (r *Repository) ListForRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM in_app_notifications
		WHERE recipient_id = $1 AND (read = false OR $2 = false)
		ORDER BY created_at DESC
		LIMIT $3
	`, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *Repository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM in_app_notifications
		WHERE recipient_id = $1 AND read = false
	`, recipientID).Scan(&count)
	return count, err
}

// MarkRead flips one notification to read. The recipient guard keeps members
// from touching each other's notifications.
func (r *Repository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (Notification, error) {
	return scanNotification(r.pool.QueryRow(ctx, `
		UPDATE in_app_notifications
		SET read = true
		WHERE id = $1 AND recipient_id = $2
		RETURNING `+notificationColumns+`
	`, id, recipientID))
}

// MarkAllRead flips every unread notification for the recipient.
func (r *Repository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET read = true
		WHERE recipient_id = $1 AND read = false
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
