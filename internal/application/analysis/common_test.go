package analysis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/PriorArt-Intelligence/internal/application/similarity"
	domainAnalysis "github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testProfile() priorart.Profile {
	return priorart.Profile{
		Title:    "Sulfide solid electrolyte",
		Abstract: "A lithium argyrodite solid electrolyte with improved moisture stability.",
		Keywords: []string{"battery", "electrolyte"},
	}
}

// memJobRepo stores copies so callers cannot mutate stored jobs.
type memJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]domainAnalysis.Job
	saveErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]domainAnalysis.Job)}
}

func (r *memJobRepo) Create(_ context.Context, j *domainAnalysis.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = *j
	return nil
}

func (r *memJobRepo) Get(_ context.Context, id string) (*domainAnalysis.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeJobNotFound, "analysis job not found")
	}
	return &j, nil
}

func (r *memJobRepo) Save(_ context.Context, j *domainAnalysis.Job, from domainAnalysis.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cur, ok := r.jobs[j.ID]
	if !ok {
		return errors.New(errors.ErrCodeJobNotFound, "analysis job not found")
	}
	if cur.Status != from {
		return errors.New(errors.ErrCodeJobInvalidTransition, "stale job status")
	}
	r.jobs[j.ID] = *j
	return nil
}

func (r *memJobRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.ExpiredBy(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) status(id string) domainAnalysis.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Status
}

// mapCache round-trips values through JSON like the redis cache does.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "cache miss")
	}
	return json.Unmarshal(b, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

type stubSource struct {
	docs []priorart.Document
	err  error

	mu       sync.Mutex
	lookback []int
}

func (s *stubSource) SearchCandidates(_ context.Context, _ priorart.Profile, _ []priorart.DocumentType, lookbackDays int) ([]priorart.Document, error) {
	s.mu.Lock()
	s.lookback = append(s.lookback, lookbackDays)
	s.mu.Unlock()
	return s.docs, s.err
}

// fixedRanker scores every candidate 0.8.
type fixedRanker struct {
	err error
}

func (r fixedRanker) Rank(_ context.Context, _ priorart.Profile, candidates []priorart.Document, _ ...similarity.RankOption) ([]priorart.ScoredDocument, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]priorart.ScoredDocument, 0, len(candidates))
	for _, d := range candidates {
		out = append(out, priorart.NewScoredDocument(d, 0.8))
	}
	return out, nil
}

type stubScorer struct{}

func (stubScorer) Score(jobID string, _ priorart.Profile, ranked []priorart.ScoredDocument) *domainAnalysis.Result {
	patents, pubs := priorart.SplitByType(ranked)
	return &domainAnalysis.Result{
		JobID:        jobID,
		Patents:      patents,
		Publications: pubs,
		Overall:      domainAnalysis.OverallAssessment{OpportunityScore: 0.42},
		GeneratedAt:  testNow,
	}
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	args := m.Called(ctx, topic, key, eventType, payload)
	return args.Error(0)
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) Archive(ctx context.Context, ownerID string, result *domainAnalysis.Result) error {
	return m.Called(ctx, ownerID, result).Error(0)
}

// syncDispatcher runs the job inline, which makes Submit deterministic.
type syncDispatcher struct {
	p   Processor
	err error
}

func (d *syncDispatcher) Dispatch(ctx context.Context, job *domainAnalysis.Job) error {
	if d.err != nil {
		return d.err
	}
	return d.p.Process(ctx, job.ID)
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job *domainAnalysis.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, job.ID)
	return nil
}

func testDocs() []priorart.Document {
	return []priorart.Document{
		{Type: priorart.DocumentTypePatent, Identifier: "US1", Title: "Argyrodite electrolyte", Date: testNow.AddDate(-1, 0, 0)},
		{Type: priorart.DocumentTypePublication, Identifier: "10.1/x", Title: "Sulfide conductors", Date: testNow.AddDate(0, -2, 0)},
	}
}

func newTestCoordinator(repo *memJobRepo, src *stubSource, opts ...Option) *Coordinator {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewCoordinator(repo, src, fixedRanker{}, stubScorer{}, Config{}, nil, opts...)
}
