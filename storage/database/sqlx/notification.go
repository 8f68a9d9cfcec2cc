package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/notification"
)

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Kind:      r.Kind,
		Title:     r.Title,
		Body:      r.Body,
		Read:      r.Read,
		CreatedAt: r.CreatedAt,
	}
}

type notificationRepository struct {
	exec core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{exec: exec}
}

func (repo notificationRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	query := `
		INSERT INTO notification (id, user_id, kind, title, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.getExec(exec).ExecContext(ctx, query, n.ID, n.UserID, n.Kind, n.Title, n.Body, n.Read, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo notificationRepository) QueryNotificationsByUser(ctx context.Context, userID string, unreadOnly bool, exec ...core.DBExecutor) ([]notification.Notification, error) {
	query := `
		SELECT id, user_id, kind, title, body, read, created_at
		FROM notification WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC`

	var rows []notificationRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, r.notification())
	}
	return notifs, nil
}

func (repo notificationRepository) MarkNotificationsRead(ctx context.Context, userID string, ids []string, exec ...core.DBExecutor) error {
	query := `UPDATE notification SET read = true WHERE user_id = $1 AND id = ANY($2)`
	if _, err := repo.getExec(exec).ExecContext(ctx, query, userID, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return nil
}

func (repo notificationRepository) MarkAllNotificationsRead(ctx context.Context, userID string, exec ...core.DBExecutor) error {
	query := `UPDATE notification SET read = true WHERE user_id = $1 AND NOT read`
	if _, err := repo.getExec(exec).ExecContext(ctx, query, userID); err != nil {
		return errors.Wrap(err, "marking all notifications read")
	}
	return nil
}
