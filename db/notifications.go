// ABOUTME: Notification feed repository
// ABOUTME: Appends import summaries and lists them for the CLI, MCP tools, and web server
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/dayplan/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository stores user notifications.
type NotificationRepository struct {
	db    *sql.DB
	clock func() time.Time
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db, clock: time.Now}
}

// CreateNotification appends a notification and returns its id. IDs are
// ULIDs so they sort by creation time.
func (r *NotificationRepository) CreateNotification(ctx context.Context, input models.NotificationInput) (string, error) {
	if input.UserID == "" || input.Type == "" {
		return "", fmt.Errorf("notification needs a user and a type")
	}

	metadataJSON, err := json.Marshal(input.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notification metadata: %w", err)
	}

	id := ulid.Make().String()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, metadata, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, id, input.UserID, input.Type, input.Title, input.Message, string(metadataJSON), r.clock().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert notification: %w", err)
	}

	return id, nil
}

// ListNotifications returns the user's newest notifications first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, metadata, read, created_at
		FROM notifications
		WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var metadataJSON sql.NullString

		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &metadataJSON, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal notification metadata: %w", err)
			}
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead marks one notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
