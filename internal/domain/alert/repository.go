package alert

import (
	"context"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

// Evaluation is the atomic outcome of one alert pass.
type Evaluation struct {
	AlertID string
	// PreviousEvaluatedAt is the snapshot read before searching. The write
	// succeeds only if the stored value still equals it.
	PreviousEvaluatedAt *time.Time
	EvaluatedAt         time.Time
	// Candidates are notifications for unseen matches. Only those whose seen
	// row is newly inserted are persisted.
	Candidates []*Notification
}

// Repository persists alerts and their seen sets.
type Repository interface {
	Create(ctx context.Context, a *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Alert, error)
	// Update writes profile, configuration and status, failing with a
	// conflict when a.Version is stale. On success a.Version is incremented.
	Update(ctx context.Context, a *Alert) error
	// Delete removes the alert with its notifications and seen set.
	Delete(ctx context.Context, id string) error

	// ListDue returns active alerts whose next evaluation is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*Alert, error)
	// SeenKeys returns the alert's seen set.
	SeenKeys(ctx context.Context, alertID string) (map[priorart.DocumentKey]struct{}, error)
	// RecordEvaluation applies e in one transaction: compare-and-set of
	// last_evaluated_at, seen-set inserts, one notification per newly seen
	// document and the notification_count bump. It returns the notifications
	// actually created, or ErrCodeConcurrencyConflict when the snapshot is stale.
	RecordEvaluation(ctx context.Context, e Evaluation) ([]*Notification, error)
}

// NotificationRepository reads and updates notifications.
type NotificationRepository interface {
	Get(ctx context.Context, id string) (*Notification, error)
	// ListByAlert and ListByOwner return newest first.
	ListByAlert(ctx context.Context, alertID string, limit int) ([]*Notification, error)
	ListByOwner(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id string) error

	// ListUnpublished returns notifications of alertID whose event has not
	// been delivered, oldest first.
	ListUnpublished(ctx context.Context, alertID string, limit int) ([]*Notification, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}
