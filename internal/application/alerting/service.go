// Package alerting manages standing prior-art alerts and their periodic
// evaluation.
package alerting

import (
	"context"
	"time"

	domainAlert "github.com/turtacn/PriorArt-Intelligence/internal/domain/alert"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Service is the alert management API.
type Service interface {
	CreateAlert(ctx context.Context, ownerID string, in domainAlert.CreateInput) (*domainAlert.Alert, error)
	UpdateAlert(ctx context.Context, id string, patch domainAlert.Patch) (*domainAlert.Alert, error)
	PauseAlert(ctx context.Context, id string) (*domainAlert.Alert, error)
	ResumeAlert(ctx context.Context, id string) (*domainAlert.Alert, error)
	DeleteAlert(ctx context.Context, id string) error
	GetAlert(ctx context.Context, id string) (*domainAlert.Alert, error)
	ListAlerts(ctx context.Context, ownerID string) ([]*domainAlert.Alert, error)

	// ListNotifications returns an alert's notifications, newest first.
	ListNotifications(ctx context.Context, alertID string, limit int) ([]*domainAlert.Notification, error)
	ListOwnerNotifications(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*domainAlert.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
}

type serviceImpl struct {
	alerts        domainAlert.Repository
	notifications domainAlert.NotificationRepository
	logger        logging.Logger
	now           func() time.Time
}

// NewService wires the alert repositories.
func NewService(alerts domainAlert.Repository, notifications domainAlert.NotificationRepository, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{
		alerts:        alerts,
		notifications: notifications,
		logger:        logger.Named("alerting"),
		now:           time.Now,
	}
}

func (s *serviceImpl) CreateAlert(ctx context.Context, ownerID string, in domainAlert.CreateInput) (*domainAlert.Alert, error) {
	a, err := domainAlert.NewAlert(ownerID, in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("alert created",
		logging.String("alert_id", a.ID),
		logging.String("owner_id", a.OwnerID),
		logging.String("frequency", string(a.Frequency)))
	return a, nil
}

func (s *serviceImpl) UpdateAlert(ctx context.Context, id string, patch domainAlert.Patch) (*domainAlert.Alert, error) {
	return s.modify(ctx, id, func(a *domainAlert.Alert) (bool, error) {
		return true, a.ApplyPatch(patch, s.now())
	})
}

func (s *serviceImpl) PauseAlert(ctx context.Context, id string) (*domainAlert.Alert, error) {
	return s.modify(ctx, id, func(a *domainAlert.Alert) (bool, error) {
		if a.Status == domainAlert.StatusPaused {
			return false, nil
		}
		a.Pause(s.now())
		return true, nil
	})
}

func (s *serviceImpl) ResumeAlert(ctx context.Context, id string) (*domainAlert.Alert, error) {
	return s.modify(ctx, id, func(a *domainAlert.Alert) (bool, error) {
		if a.Status == domainAlert.StatusActive {
			return false, nil
		}
		a.Resume(s.now())
		return true, nil
	})
}

// modify is read → mutate → versioned write. Unchanged alerts are not written.
func (s *serviceImpl) modify(ctx context.Context, id string, mutate func(*domainAlert.Alert) (bool, error)) (*domainAlert.Alert, error) {
	a, err := s.alerts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := mutate(a)
	if err != nil {
		return nil, err
	}
	if !changed {
		return a, nil
	}
	if err := s.alerts.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *serviceImpl) DeleteAlert(ctx context.Context, id string) error {
	if err := s.alerts.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("alert deleted", logging.String("alert_id", id))
	return nil
}

func (s *serviceImpl) GetAlert(ctx context.Context, id string) (*domainAlert.Alert, error) {
	return s.alerts.Get(ctx, id)
}

func (s *serviceImpl) ListAlerts(ctx context.Context, ownerID string) ([]*domainAlert.Alert, error) {
	if ownerID == "" {
		return nil, errors.NewValidationError("owner required", []errors.FieldViolation{
			{Field: "owner_id", Message: "is required"},
		})
	}
	return s.alerts.ListByOwner(ctx, ownerID)
}

func (s *serviceImpl) ListNotifications(ctx context.Context, alertID string, limit int) ([]*domainAlert.Notification, error) {
	if _, err := s.alerts.Get(ctx, alertID); err != nil {
		return nil, err
	}
	return s.notifications.ListByAlert(ctx, alertID, domainAlert.ClampLimit(limit))
}

func (s *serviceImpl) ListOwnerNotifications(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*domainAlert.Notification, error) {
	if ownerID == "" {
		return nil, errors.NewValidationError("owner required", []errors.FieldViolation{
			{Field: "owner_id", Message: "is required"},
		})
	}
	return s.notifications.ListByOwner(ctx, ownerID, unreadOnly, domainAlert.ClampLimit(limit))
}

func (s *serviceImpl) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return s.notifications.MarkRead(ctx, notificationID)
}
