package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

const (
	DefaultNotificationLimit = 50
	MaxNotificationLimit     = 200
)

// ClampLimit maps a requested page size onto [1, MaxNotificationLimit];
// non-positive requests get the default.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultNotificationLimit
	case limit > MaxNotificationLimit:
		return MaxNotificationLimit
	default:
		return limit
	}
}

// Notification reports one new high-similarity match for an alert. Exactly
// one exists per (alert, document) pair. Read is the only user-mutable field.
type Notification struct {
	ID                 string                `json:"id"`
	AlertID            string                `json:"alert_id"`
	OwnerID            string                `json:"owner_id"`
	DocumentType       priorart.DocumentType `json:"document_type"`
	DocumentIdentifier string                `json:"document_identifier"`
	DocumentTitle      string                `json:"document_title"`
	DocumentDate       time.Time             `json:"document_date"`
	SourceOrAssignee   string                `json:"source_or_assignee,omitempty"`
	SimilarityScore    float64               `json:"similarity_score"`
	Reason             string                `json:"reason"`
	Read               bool                  `json:"read"`
	CreatedAt          time.Time             `json:"created_at"`

	// PublishedAt marks the notification event as delivered to the bus.
	PublishedAt *time.Time `json:"-"`
}

// Reason renders the human-readable match explanation.
func Reason(score float64) string {
	return fmt.Sprintf("High semantic similarity (%.3f) to research", score)
}

// NewNotification builds a candidate notification for a ranked match.
func NewNotification(a *Alert, sd priorart.ScoredDocument, now time.Time) *Notification {
	return &Notification{
		ID:                 uuid.NewString(),
		AlertID:            a.ID,
		OwnerID:            a.OwnerID,
		DocumentType:       sd.Document.Type,
		DocumentIdentifier: sd.Document.Identifier,
		DocumentTitle:      sd.Document.Title,
		DocumentDate:       sd.Document.Date,
		SourceOrAssignee:   sd.Document.SourceOrAssignee,
		SimilarityScore:    sd.Score,
		Reason:             Reason(sd.Score),
		CreatedAt:          now.UTC(),
	}
}

// DocumentKey returns the seen-set key this notification claims.
func (n *Notification) DocumentKey() priorart.DocumentKey {
	return priorart.DocumentKey{Type: n.DocumentType, Identifier: n.DocumentIdentifier}
}
