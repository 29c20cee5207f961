package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const jobColumns = `id, owner_id, title, abstract, keywords, status, cause, result,
	created_at, updated_at, started_at, completed_at`

// JobRepo stores analysis jobs in analysis_jobs. Results are kept as JSONB.
type JobRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

var _ analysis.Repository = (*JobRepo)(nil)

func NewJobRepo(conn *postgres.Connection, log logging.Logger) *JobRepo {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &JobRepo{conn: conn, log: log}
}

func (r *JobRepo) Create(ctx context.Context, j *analysis.Job) error {
	result, err := marshalResult(j.Result)
	if err != nil {
		return err
	}
	_, err = r.conn.DB().ExecContext(ctx, `
		INSERT INTO analysis_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		j.ID, j.OwnerID, j.Profile.Title, j.Profile.Abstract, pq.Array(j.Profile.Keywords),
		j.Status, j.Cause, result, j.CreatedAt, j.UpdatedAt, nullTime(j.StartedAt), nullTime(j.CompletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(err, errors.ErrCodeConflict, "analysis job already exists")
		}
		return dbError(err, "failed to create analysis job")
	}
	return nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*analysis.Job, error) {
	if !validID(id) {
		return nil, jobNotFound(id)
	}
	row := r.conn.DB().QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, jobNotFound(id)
	}
	if err != nil {
		return nil, dbError(err, "failed to get analysis job")
	}
	return j, nil
}

// Save is a compare-and-set on status: the row is written only while its
// stored status equals from.
func (r *JobRepo) Save(ctx context.Context, j *analysis.Job, from analysis.Status) error {
	result, err := marshalResult(j.Result)
	if err != nil {
		return err
	}
	res, err := r.conn.DB().ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = $2, cause = $3, result = $4, updated_at = $5, started_at = $6, completed_at = $7
		WHERE id = $1 AND status = $8`,
		j.ID, j.Status, j.Cause, result, j.UpdatedAt, nullTime(j.StartedAt), nullTime(j.CompletedAt), from,
	)
	if err != nil {
		return dbError(err, "failed to save analysis job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "failed to save analysis job")
	}
	if n == 1 {
		return nil
	}

	var current analysis.Status
	err = r.conn.DB().QueryRowContext(ctx, `SELECT status FROM analysis_jobs WHERE id = $1`, j.ID).Scan(&current)
	if stderrors.Is(err, sql.ErrNoRows) {
		return jobNotFound(j.ID)
	}
	if err != nil {
		return dbError(err, "failed to read analysis job status")
	}
	return errors.New(errors.ErrCodeJobInvalidTransition, "analysis job status changed concurrently").
		WithDetail(fmt.Sprintf("job=%s expected=%s actual=%s", j.ID, from, current))
}

func (r *JobRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.conn.DB().ExecContext(ctx, `
		DELETE FROM analysis_jobs
		WHERE status IN ($1, $2) AND completed_at < $3`,
		analysis.StatusCompleted, analysis.StatusFailed, cutoff.UTC(),
	)
	if err != nil {
		return 0, dbError(err, "failed to delete expired analysis jobs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError(err, "failed to delete expired analysis jobs")
	}
	if n > 0 {
		r.log.Info("expired analysis jobs deleted", logging.Int64("count", n))
	}
	return n, nil
}

func scanJob(s scanner) (*analysis.Job, error) {
	var (
		j                      analysis.Job
		keywords               pq.StringArray
		result                 []byte
		startedAt, completedAt sql.NullTime
	)
	err := s.Scan(&j.ID, &j.OwnerID, &j.Profile.Title, &j.Profile.Abstract, &keywords,
		&j.Status, &j.Cause, &result, &j.CreatedAt, &j.UpdatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	j.Profile = priorart.Profile{Title: j.Profile.Title, Abstract: j.Profile.Abstract, Keywords: []string(keywords)}
	if len(keywords) == 0 {
		j.Profile.Keywords = nil
	}
	j.StartedAt = timePtr(startedAt)
	j.CompletedAt = timePtr(completedAt)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if len(result) > 0 {
		j.Result = new(analysis.Result)
		if err := json.Unmarshal(result, j.Result); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt analysis result")
		}
	}
	return &j, nil
}

// marshalResult returns nil for a missing result so the column stays NULL.
func marshalResult(r *analysis.Result) (interface{}, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode analysis result")
	}
	return b, nil
}

func jobNotFound(id string) error {
	return errors.New(errors.ErrCodeJobNotFound, "analysis job not found").WithDetail(id)
}
