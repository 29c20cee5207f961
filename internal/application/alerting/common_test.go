package alerting

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/PriorArt-Intelligence/internal/application/similarity"
	domainAlert "github.com/turtacn/PriorArt-Intelligence/internal/domain/alert"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testProfile() priorart.Profile {
	return priorart.Profile{
		Title:    "Sulfide solid electrolyte",
		Abstract: "A lithium argyrodite solid electrolyte with improved moisture stability.",
	}
}

// memStore implements both alert repositories with the same semantics as
// the SQL store: versioned updates, compare-and-set evaluation of active
// alerts and a seen set that admits each document once.
type memStore struct {
	mu            sync.Mutex
	alerts        map[string]domainAlert.Alert
	seen          map[string]map[priorart.DocumentKey]struct{}
	notifications []domainAlert.Notification

	recordErr error
	// beforeRecord runs inside RecordEvaluation before the compare-and-set.
	beforeRecord func()
}

func newMemStore() *memStore {
	return &memStore{
		alerts: make(map[string]domainAlert.Alert),
		seen:   make(map[string]map[priorart.DocumentKey]struct{}),
	}
}

func cloneAlert(a domainAlert.Alert) *domainAlert.Alert {
	c := a
	c.Profile = a.Profile.Clone()
	c.Sources = append([]priorart.DocumentType(nil), a.Sources...)
	if a.LastEvaluatedAt != nil {
		t := *a.LastEvaluatedAt
		c.LastEvaluatedAt = &t
	}
	return &c
}

func (s *memStore) Create(_ context.Context, a *domainAlert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = *cloneAlert(*a)
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*domainAlert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeAlertNotFound, "alert not found")
	}
	return cloneAlert(a), nil
}

func (s *memStore) ListByOwner(_ context.Context, ownerID string) ([]*domainAlert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domainAlert.Alert{}
	for _, a := range s.alerts {
		if a.OwnerID == ownerID {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) Update(_ context.Context, a *domainAlert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.alerts[a.ID]
	if !ok {
		return errors.New(errors.ErrCodeAlertNotFound, "alert not found")
	}
	if cur.Version != a.Version {
		return errors.New(errors.ErrCodeConcurrencyConflict, "alert modified concurrently")
	}
	a.Version++
	next := *cloneAlert(*a)
	next.LastEvaluatedAt = cur.LastEvaluatedAt
	next.NotificationCount = cur.NotificationCount
	s.alerts[a.ID] = next
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[id]; !ok {
		return errors.New(errors.ErrCodeAlertNotFound, "alert not found")
	}
	delete(s.alerts, id)
	delete(s.seen, id)
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.AlertID != id {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	return nil
}

func (s *memStore) ListDue(_ context.Context, now time.Time) ([]*domainAlert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domainAlert.Alert{}
	for _, a := range s.alerts {
		if a.IsDue(now) {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SeenKeys(_ context.Context, alertID string) (map[priorart.DocumentKey]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[priorart.DocumentKey]struct{}, len(s.seen[alertID]))
	for k := range s.seen[alertID] {
		out[k] = struct{}{}
	}
	return out, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (s *memStore) RecordEvaluation(_ context.Context, e domainAlert.Evaluation) ([]*domainAlert.Notification, error) {
	if s.beforeRecord != nil {
		s.beforeRecord()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	a, ok := s.alerts[e.AlertID]
	if !ok {
		return nil, errors.New(errors.ErrCodeAlertNotFound, "alert not found")
	}
	if a.Status != domainAlert.StatusActive || !sameTime(a.LastEvaluatedAt, e.PreviousEvaluatedAt) {
		return nil, errors.New(errors.ErrCodeConcurrencyConflict, "alert evaluated or paused concurrently")
	}
	if s.seen[e.AlertID] == nil {
		s.seen[e.AlertID] = make(map[priorart.DocumentKey]struct{})
	}
	created := []*domainAlert.Notification{}
	for _, n := range e.Candidates {
		key := n.DocumentKey()
		if _, dup := s.seen[e.AlertID][key]; dup {
			continue
		}
		s.seen[e.AlertID][key] = struct{}{}
		s.notifications = append(s.notifications, *n)
		created = append(created, n)
	}
	t := e.EvaluatedAt
	a.LastEvaluatedAt = &t
	a.NotificationCount += len(created)
	s.alerts[e.AlertID] = a
	return created, nil
}

func (s *memStore) GetNotification(id string) (domainAlert.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			return n, true
		}
	}
	return domainAlert.Notification{}, false
}

// notificationRepo exposes memStore as a NotificationRepository; the method
// sets overlap on Get.
type notificationRepo struct {
	*memStore
}

func (r notificationRepo) Get(_ context.Context, id string) (*domainAlert.Notification, error) {
	n, ok := r.GetNotification(id)
	if !ok {
		return nil, errors.New(errors.ErrCodeNotificationNotFound, "notification not found")
	}
	return &n, nil
}

func (r notificationRepo) list(limit int, keep func(domainAlert.Notification) bool) []*domainAlert.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domainAlert.Notification{}
	for i := len(r.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if n := r.notifications[i]; keep(n) {
			out = append(out, &n)
		}
	}
	return out
}

func (r notificationRepo) ListByAlert(_ context.Context, alertID string, limit int) ([]*domainAlert.Notification, error) {
	return r.list(limit, func(n domainAlert.Notification) bool { return n.AlertID == alertID }), nil
}

func (r notificationRepo) ListByOwner(_ context.Context, ownerID string, unreadOnly bool, limit int) ([]*domainAlert.Notification, error) {
	return r.list(limit, func(n domainAlert.Notification) bool {
		return n.OwnerID == ownerID && (!unreadOnly || !n.Read)
	}), nil
}

func (r notificationRepo) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == id {
			r.notifications[i].Read = true
			return nil
		}
	}
	return errors.New(errors.ErrCodeNotificationNotFound, "notification not found")
}

func (r notificationRepo) ListUnpublished(_ context.Context, alertID string, limit int) ([]*domainAlert.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domainAlert.Notification{}
	for i := range r.notifications {
		n := r.notifications[i]
		if n.AlertID == alertID && n.PublishedAt == nil && len(out) < limit {
			out = append(out, &n)
		}
	}
	return out, nil
}

func (r notificationRepo) MarkPublished(_ context.Context, ids []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range r.notifications {
		if want[r.notifications[i].ID] {
			t := at
			r.notifications[i].PublishedAt = &t
		}
	}
	return nil
}

func (s *memStore) unpublished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, x := range s.notifications {
		if x.PublishedAt == nil {
			n++
		}
	}
	return n
}

// scriptedEmbedder gives the profile the unit vector e1 and each document a
// vector whose cosine with e1 is its scripted score.
type scriptedEmbedder struct {
	profile string
	scores  map[string]float64
}

func (e scriptedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == e.profile {
		return []float32{1, 0}, nil
	}
	s := e.scores[text]
	return []float32{float32(s), float32(math.Sqrt(1 - s*s))}, nil
}

type stubSource struct {
	mu    sync.Mutex
	docs  []priorart.Document
	err   error
	calls int
	// failTitle makes searches for that profile title fail.
	failTitle string
}

func (s *stubSource) SearchCandidates(_ context.Context, q priorart.Profile, _ []priorart.DocumentType, _ int) ([]priorart.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failTitle != "" && q.Title == s.failTitle {
		return nil, errors.New(errors.ErrCodeSearchUnavailable, "search backend down")
	}
	return append([]priorart.Document(nil), s.docs...), s.err
}

func (s *stubSource) set(docs ...priorart.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
}

type doc struct {
	typ   priorart.DocumentType
	id    string
	score float64
	age   int
}

// fixture wires a scheduler over memStore with scripted similarity scores.
type fixture struct {
	store     *memStore
	source    *stubSource
	embedder  *scriptedEmbedder
	clock     time.Time
	scheduler *Scheduler
}

func newFixture(opts ...SchedulerOption) *fixture {
	f := &fixture{
		store:    newMemStore(),
		source:   &stubSource{},
		embedder: &scriptedEmbedder{profile: testProfile().Text(), scores: map[string]float64{}},
		clock:    testNow,
	}
	opts = append([]SchedulerOption{WithClock(func() time.Time { return f.clock })}, opts...)
	f.scheduler = NewScheduler(f.store, notificationRepo{f.store}, f.source,
		similarity.NewEngine(f.embedder), nil, SchedulerConfig{}, nil, opts...)
	return f
}

func (f *fixture) docs(specs ...doc) {
	out := make([]priorart.Document, 0, len(specs))
	for _, s := range specs {
		d := priorart.Document{
			Type:       s.typ,
			Identifier: s.id,
			Title:      "Document " + s.id,
			Date:       f.clock.AddDate(0, 0, -s.age),
		}
		f.embedder.scores[d.Text()] = s.score
		out = append(out, d)
	}
	f.source.set(out...)
}

func (f *fixture) alert(in domainAlert.CreateInput) *domainAlert.Alert {
	if in.Profile.Title == "" {
		in.Profile = testProfile()
	}
	a, err := domainAlert.NewAlert("owner-1", in, f.clock)
	if err != nil {
		panic(err)
	}
	_ = f.store.Create(context.Background(), a)
	return a
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	return m.Called(ctx, topic, key, eventType, payload).Error(0)
}

// denyLocker never grants a lease.
type denyLocker struct{}

func (denyLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, nil
}
func (denyLocker) Refresh(context.Context, string, string, time.Duration) (bool, error) {
	return false, nil
}
func (denyLocker) Unlock(context.Context, string, string) error { return nil }

// losingLocker grants a lease that is gone by the time it is refreshed.
type losingLocker struct{ denyLocker }

func (losingLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "t", true, nil
}
