package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/alert"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var notificationColumns = []string{
	"id", "alert_id", "owner_id", "doc_type", "doc_id", "doc_title", "doc_date",
	"source_or_assignee", "similarity_score", "reason", "is_read", "created_at", "published_at",
}

// NotificationRepo reads notifications and tracks their delivery to the
// event bus. Rows are created by AlertRepo.RecordEvaluation.
type NotificationRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

var _ alert.NotificationRepository = (*NotificationRepo)(nil)

func NewNotificationRepo(conn *postgres.Connection, log logging.Logger) *NotificationRepo {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &NotificationRepo{conn: conn, log: log}
}

func insertNotification(ctx context.Context, q queryExecutor, n *alert.Notification) error {
	query, args, err := psql.Insert("alert_notifications").Columns(notificationColumns...).Values(
		n.ID, n.AlertID, n.OwnerID, n.DocumentType, n.DocumentIdentifier, n.DocumentTitle,
		n.DocumentDate.UTC(), n.SourceOrAssignee, n.SimilarityScore, n.Reason, n.Read,
		n.CreatedAt.UTC(), nullTime(n.PublishedAt),
	).ToSql()
	if err != nil {
		return dbError(err, "failed to build notification insert")
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return dbError(err, "failed to create notification")
	}
	return nil
}

func (r *NotificationRepo) Get(ctx context.Context, id string) (*alert.Notification, error) {
	if !validID(id) {
		return nil, notificationNotFound(id)
	}
	query, args, err := psql.Select(notificationColumns...).From("alert_notifications").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, dbError(err, "failed to build notification query")
	}
	n, err := scanNotification(r.conn.DB().QueryRowContext(ctx, query, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, notificationNotFound(id)
	}
	if err != nil {
		return nil, dbError(err, "failed to get notification")
	}
	return n, nil
}

func (r *NotificationRepo) ListByAlert(ctx context.Context, alertID string, limit int) ([]*alert.Notification, error) {
	return r.list(ctx, psql.Select(notificationColumns...).From("alert_notifications").
		Where(sq.Eq{"alert_id": alertID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(alert.ClampLimit(limit))))
}

func (r *NotificationRepo) ListByOwner(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*alert.Notification, error) {
	b := psql.Select(notificationColumns...).From("alert_notifications").Where(sq.Eq{"owner_id": ownerID})
	if unreadOnly {
		b = b.Where(sq.Eq{"is_read": false})
	}
	return r.list(ctx, b.OrderBy("created_at DESC", "id DESC").Limit(uint64(alert.ClampLimit(limit))))
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id string) error {
	if !validID(id) {
		return notificationNotFound(id)
	}
	res, err := r.conn.DB().ExecContext(ctx, `UPDATE alert_notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return dbError(err, "failed to mark notification read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "failed to mark notification read")
	}
	if n == 0 {
		return notificationNotFound(id)
	}
	return nil
}

// ListUnpublished returns the outbox of alertID, oldest first.
func (r *NotificationRepo) ListUnpublished(ctx context.Context, alertID string, limit int) ([]*alert.Notification, error) {
	if limit <= 0 {
		limit = alert.DefaultNotificationLimit
	}
	return r.list(ctx, psql.Select(notificationColumns...).From("alert_notifications").
		Where(sq.Eq{"alert_id": alertID, "published_at": nil}).
		OrderBy("created_at", "id").
		Limit(uint64(limit)))
}

func (r *NotificationRepo) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn.DB().ExecContext(ctx,
		`UPDATE alert_notifications SET published_at = $1 WHERE id = ANY($2) AND published_at IS NULL`,
		at.UTC(), pq.Array(ids))
	if err != nil {
		return dbError(err, "failed to mark notifications published")
	}
	return nil
}

func (r *NotificationRepo) list(ctx context.Context, b sq.SelectBuilder) ([]*alert.Notification, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, dbError(err, "failed to build notification query")
	}
	rows, err := r.conn.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "failed to list notifications")
	}
	defer rows.Close()

	var out []*alert.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, dbError(err, "failed to scan notification")
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "failed to list notifications")
	}
	return out, nil
}

func scanNotification(s scanner) (*alert.Notification, error) {
	var (
		n         alert.Notification
		published sql.NullTime
	)
	err := s.Scan(&n.ID, &n.AlertID, &n.OwnerID, &n.DocumentType, &n.DocumentIdentifier, &n.DocumentTitle,
		&n.DocumentDate, &n.SourceOrAssignee, &n.SimilarityScore, &n.Reason, &n.Read, &n.CreatedAt, &published)
	if err != nil {
		return nil, err
	}
	n.DocumentDate = n.DocumentDate.UTC()
	n.CreatedAt = n.CreatedAt.UTC()
	n.PublishedAt = timePtr(published)
	return &n, nil
}

func notificationNotFound(id string) error {
	return errors.New(errors.ErrCodeNotificationNotFound, "notification not found").WithDetail(id)
}
