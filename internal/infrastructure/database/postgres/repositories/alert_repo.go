package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/alert"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var alertColumns = []string{
	"id", "owner_id", "title", "abstract", "keywords", "sources", "similarity_threshold",
	"lookback_days", "frequency", "status", "last_evaluated_at", "notification_count",
	"version", "created_at", "updated_at",
}

// dueInterval mirrors alert.Frequency.Interval in SQL.
var dueInterval = fmt.Sprintf(
	"CASE frequency WHEN '%s' THEN INTERVAL '%d hours' WHEN '%s' THEN INTERVAL '%d hours' ELSE INTERVAL '%d hours' END",
	alert.FrequencyDaily, int(alert.FrequencyDaily.Interval().Hours()),
	alert.FrequencyMonthly, int(alert.FrequencyMonthly.Interval().Hours()),
	int(alert.FrequencyWeekly.Interval().Hours()),
)

// AlertRepo stores alerts, their seen sets and the notifications an
// evaluation creates.
type AlertRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

var _ alert.Repository = (*AlertRepo)(nil)

func NewAlertRepo(conn *postgres.Connection, log logging.Logger) *AlertRepo {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &AlertRepo{conn: conn, log: log}
}

func (r *AlertRepo) Create(ctx context.Context, a *alert.Alert) error {
	query, args, err := psql.Insert("alerts").Columns(alertColumns...).Values(
		a.ID, a.OwnerID, a.Profile.Title, a.Profile.Abstract, pq.Array(a.Profile.Keywords),
		pq.Array(sourceStrings(a.Sources)), a.SimilarityThreshold, a.LookbackDays, a.Frequency,
		a.Status, nullTime(a.LastEvaluatedAt), a.NotificationCount, a.Version, a.CreatedAt, a.UpdatedAt,
	).ToSql()
	if err != nil {
		return dbError(err, "failed to build alert insert")
	}
	if _, err := r.conn.DB().ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(err, errors.ErrCodeConflict, "alert already exists")
		}
		return dbError(err, "failed to create alert")
	}
	return nil
}

func (r *AlertRepo) Get(ctx context.Context, id string) (*alert.Alert, error) {
	if !validID(id) {
		return nil, alertNotFound(id)
	}
	query, args, err := psql.Select(alertColumns...).From("alerts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, dbError(err, "failed to build alert query")
	}
	a, err := scanAlert(r.conn.DB().QueryRowContext(ctx, query, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, alertNotFound(id)
	}
	if err != nil {
		return nil, dbError(err, "failed to get alert")
	}
	return a, nil
}

func (r *AlertRepo) ListByOwner(ctx context.Context, ownerID string) ([]*alert.Alert, error) {
	return r.list(ctx, psql.Select(alertColumns...).From("alerts").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC", "id"))
}

// ListDue returns active alerts never evaluated or whose interval has
// elapsed, least recently evaluated first.
func (r *AlertRepo) ListDue(ctx context.Context, now time.Time) ([]*alert.Alert, error) {
	return r.list(ctx, psql.Select(alertColumns...).From("alerts").
		Where(sq.Eq{"status": alert.StatusActive}).
		Where(sq.Or{
			sq.Eq{"last_evaluated_at": nil},
			sq.Expr("last_evaluated_at + "+dueInterval+" <= ?", now.UTC()),
		}).
		OrderBy("last_evaluated_at NULLS FIRST", "created_at"))
}

func (r *AlertRepo) list(ctx context.Context, b sq.SelectBuilder) ([]*alert.Alert, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, dbError(err, "failed to build alert query")
	}
	rows, err := r.conn.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "failed to list alerts")
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, dbError(err, "failed to scan alert")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "failed to list alerts")
	}
	return out, nil
}

// Update writes the user-editable fields guarded by version. Evaluation
// bookkeeping (last_evaluated_at, notification_count) is never touched here.
func (r *AlertRepo) Update(ctx context.Context, a *alert.Alert) error {
	query, args, err := psql.Update("alerts").SetMap(map[string]interface{}{
		"title":                a.Profile.Title,
		"abstract":             a.Profile.Abstract,
		"keywords":             pq.Array(a.Profile.Keywords),
		"sources":              pq.Array(sourceStrings(a.Sources)),
		"similarity_threshold": a.SimilarityThreshold,
		"lookback_days":        a.LookbackDays,
		"frequency":            a.Frequency,
		"status":               a.Status,
		"updated_at":           a.UpdatedAt,
		"version":              sq.Expr("version + 1"),
	}).Where(sq.Eq{"id": a.ID, "version": a.Version}).ToSql()
	if err != nil {
		return dbError(err, "failed to build alert update")
	}
	res, err := r.conn.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return dbError(err, "failed to update alert")
	}
	if n, err := res.RowsAffected(); err != nil {
		return dbError(err, "failed to update alert")
	} else if n == 0 {
		return r.missOrConflict(ctx, r.conn.DB(), a.ID, "alert was modified concurrently")
	}
	a.Version++
	return nil
}

func (r *AlertRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return alertNotFound(id)
	}
	res, err := r.conn.DB().ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return dbError(err, "failed to delete alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "failed to delete alert")
	}
	if n == 0 {
		return alertNotFound(id)
	}
	return nil
}

func (r *AlertRepo) SeenKeys(ctx context.Context, alertID string) (map[priorart.DocumentKey]struct{}, error) {
	rows, err := r.conn.DB().QueryContext(ctx,
		`SELECT doc_type, doc_id FROM alert_seen_documents WHERE alert_id = $1`, alertID)
	if err != nil {
		return nil, dbError(err, "failed to load seen documents")
	}
	defer rows.Close()

	seen := make(map[priorart.DocumentKey]struct{})
	for rows.Next() {
		var k priorart.DocumentKey
		if err := rows.Scan(&k.Type, &k.Identifier); err != nil {
			return nil, dbError(err, "failed to scan seen document")
		}
		seen[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "failed to load seen documents")
	}
	return seen, nil
}

// RecordEvaluation claims the evaluation slot with a compare-and-set on
// last_evaluated_at that also requires the alert to still be active, so a
// pause landing mid-evaluation wins. It then inserts each candidate's seen row. A notification
// is written only when its seen row is new, so a document already claimed by
// an earlier pass is silently skipped.
func (r *AlertRepo) RecordEvaluation(ctx context.Context, e alert.Evaluation) ([]*alert.Notification, error) {
	var created []*alert.Notification
	err := withTx(ctx, r.conn.DB(), r.log, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE alerts SET last_evaluated_at = $2
			WHERE id = $1 AND status = 'active' AND last_evaluated_at IS NOT DISTINCT FROM $3`,
			e.AlertID, e.EvaluatedAt.UTC(), nullTime(e.PreviousEvaluatedAt))
		if err != nil {
			return dbError(err, "failed to claim alert evaluation")
		}
		if n, err := res.RowsAffected(); err != nil {
			return dbError(err, "failed to claim alert evaluation")
		} else if n == 0 {
			return r.missOrConflict(ctx, tx, e.AlertID, "alert evaluated or paused concurrently")
		}

		for _, n := range e.Candidates {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO alert_seen_documents (alert_id, doc_type, doc_id, seen_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT DO NOTHING`,
				e.AlertID, n.DocumentType, n.DocumentIdentifier, e.EvaluatedAt.UTC())
			if err != nil {
				return dbError(err, "failed to record seen document")
			}
			inserted, err := res.RowsAffected()
			if err != nil {
				return dbError(err, "failed to record seen document")
			}
			if inserted == 0 {
				continue
			}
			if err := insertNotification(ctx, tx, n); err != nil {
				return err
			}
			created = append(created, n)
		}

		if len(created) > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE alerts SET notification_count = notification_count + $2 WHERE id = $1`,
				e.AlertID, len(created)); err != nil {
				return dbError(err, "failed to bump notification count")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// missOrConflict distinguishes a vanished alert from a lost race after a
// guarded write matched no row.
func (r *AlertRepo) missOrConflict(ctx context.Context, q queryExecutor, id, msg string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return dbError(err, "failed to check alert existence")
	}
	if !exists {
		return alertNotFound(id)
	}
	return errors.New(errors.ErrCodeConcurrencyConflict, msg).WithDetail(id)
}

func scanAlert(s scanner) (*alert.Alert, error) {
	var (
		a         alert.Alert
		keywords  pq.StringArray
		sources   pq.StringArray
		evaluated sql.NullTime
	)
	err := s.Scan(&a.ID, &a.OwnerID, &a.Profile.Title, &a.Profile.Abstract, &keywords, &sources,
		&a.SimilarityThreshold, &a.LookbackDays, &a.Frequency, &a.Status, &evaluated,
		&a.NotificationCount, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(keywords) > 0 {
		a.Profile.Keywords = []string(keywords)
	}
	for _, s := range sources {
		a.Sources = append(a.Sources, priorart.DocumentType(s))
	}
	a.LastEvaluatedAt = timePtr(evaluated)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func sourceStrings(types []priorart.DocumentType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func alertNotFound(id string) error {
	return errors.New(errors.ErrCodeAlertNotFound, "alert not found").WithDetail(id)
}
