package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const anonymousOwner = "anonymous"

// ArchivedResult describes one stored result object.
type ArchivedResult struct {
	Key          string
	JobID        string
	Size         int64
	LastModified time.Time
}

// ResultArchive writes completed analysis results to
// <prefix>/<owner>/<jobID>.json.
type ResultArchive struct {
	client *Client
}

func NewResultArchive(client *Client) *ResultArchive {
	return &ResultArchive{client: client}
}

// Archive stores result under the owner's prefix, overwriting any earlier copy.
func (a *ResultArchive) Archive(ctx context.Context, ownerID string, result *analysis.Result) error {
	if result == nil || result.JobID == "" {
		return errors.New(errors.ErrCodeValidation, "result with a job id is required")
	}
	body, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode result")
	}

	key := a.ObjectKey(ownerID, result.JobID)
	_, err = a.client.api.PutObject(ctx, a.client.config.Bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				"job-id":       result.JobID,
				"generated-at": result.GeneratedAt.UTC().Format(time.RFC3339),
			},
		})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to archive result").WithDetail(key)
	}
	a.client.logger.Debug("result archived", logging.String("key", key), logging.Int("bytes", len(body)))
	return nil
}

// List returns the archived results of one owner.
func (a *ResultArchive) List(ctx context.Context, ownerID string) ([]ArchivedResult, error) {
	prefix := a.ownerPrefix(ownerID) + "/"
	var out []ArchivedResult
	for obj := range a.client.api.ListObjects(ctx, a.client.config.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "failed to list archive")
		}
		out = append(out, ArchivedResult{
			Key:          obj.Key,
			JobID:        strings.TrimSuffix(path.Base(obj.Key), ".json"),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

// Remove deletes one archived result. Removing a missing object succeeds.
func (a *ResultArchive) Remove(ctx context.Context, ownerID, jobID string) error {
	key := a.ObjectKey(ownerID, jobID)
	if err := a.client.api.RemoveObject(ctx, a.client.config.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to remove archived result").WithDetail(key)
	}
	return nil
}

func (a *ResultArchive) ObjectKey(ownerID, jobID string) string {
	return a.ownerPrefix(ownerID) + "/" + jobID + ".json"
}

func (a *ResultArchive) ownerPrefix(ownerID string) string {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		owner = anonymousOwner
	}
	// Keep owner ids from escaping their prefix.
	owner = strings.ReplaceAll(owner, "/", "_")
	return path.Join(a.client.config.ArchivePrefix, owner)
}
