package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/internal/app"
	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/alert"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/client"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

func init() { color.NoColor = true }

const (
	testTitle    = "Solid-state battery electrolyte"
	testAbstract = "A sulfide solid electrolyte with a protective interlayer for lithium metal anodes."
)

type mockAnalyses struct{ mock.Mock }

func (m *mockAnalyses) Submit(ctx context.Context, p client.ProfileRequest) (*client.SubmitResponse, error) {
	args := m.Called(ctx, p)
	r, _ := args.Get(0).(*client.SubmitResponse)
	return r, args.Error(1)
}

func (m *mockAnalyses) Get(ctx context.Context, id string) (*client.AnalysisStatus, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*client.AnalysisStatus)
	return r, args.Error(1)
}

func (m *mockAnalyses) Wait(ctx context.Context, id string) (*client.AnalysisStatus, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*client.AnalysisStatus)
	return r, args.Error(1)
}

type mockAlerts struct{ mock.Mock }

func (m *mockAlerts) view(args mock.Arguments) (*client.AlertView, error) {
	r, _ := args.Get(0).(*client.AlertView)
	return r, args.Error(1)
}

func (m *mockAlerts) Create(ctx context.Context, req client.CreateAlertRequest) (*client.AlertView, error) {
	return m.view(m.Called(ctx, req))
}

func (m *mockAlerts) List(ctx context.Context) (*client.AlertList, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*client.AlertList)
	return r, args.Error(1)
}

func (m *mockAlerts) Pause(ctx context.Context, id string) (*client.AlertView, error) {
	return m.view(m.Called(ctx, id))
}

func (m *mockAlerts) Resume(ctx context.Context, id string) (*client.AlertView, error) {
	return m.view(m.Called(ctx, id))
}

func (m *mockAlerts) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAlerts) Notifications(ctx context.Context, id string, limit int) (*client.NotificationList, error) {
	args := m.Called(ctx, id, limit)
	r, _ := args.Get(0).(*client.NotificationList)
	return r, args.Error(1)
}

func (m *mockAlerts) Inbox(ctx context.Context, unread bool, limit int) (*client.NotificationList, error) {
	args := m.Called(ctx, unread, limit)
	r, _ := args.Get(0).(*client.NotificationList)
	return r, args.Error(1)
}

func (m *mockAlerts) MarkRead(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAlerts) Evaluate(ctx context.Context) (*client.EvaluationReport, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*client.EvaluationReport)
	return r, args.Error(1)
}

type fakeMigrator struct {
	version uint
	downs   []int
	err     error
}

func (f *fakeMigrator) Up() error {
	if f.err != nil {
		return f.err
	}
	f.version = 3
	return nil
}

func (f *fakeMigrator) Down(steps int) error {
	f.downs = append(f.downs, steps)
	f.version -= uint(steps)
	return nil
}

func (f *fakeMigrator) Status() (uint, bool, error) { return f.version, false, nil }

type harness struct {
	analyses *mockAnalyses
	alerts   *mockAlerts
	migrator *fakeMigrator
	loaders  []app.DocumentLoader
	closed   bool
	opts     *RootOptions
}

func newHarness() *harness {
	return &harness{analyses: &mockAnalyses{}, alerts: &mockAlerts{}, migrator: &fakeMigrator{}}
}

func (h *harness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand(WithContextFactory(func(opts *RootOptions) (*CLIContext, error) {
		h.opts = opts
		return &CLIContext{
			Config:       config.NewDefaultConfig(),
			Logger:       logging.NewNopLogger(),
			Analyses:     h.analyses,
			Alerts:       h.alerts,
			NewMigrator:  func() Migrator { return h.migrator },
			NewLoaders: func(context.Context) ([]app.DocumentLoader, func() error, error) {
				return h.loaders, func() error { h.closed = true; return nil }, nil
			},
			Owner:        opts.Owner,
			OutputFormat: opts.OutputFormat,
			Timeout:      opts.Timeout,
		}, nil
	}))
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	if err != nil {
		PrintError(root, err)
	}
	return out.String(), errOut.String(), err
}

func completedView() *client.AnalysisStatus {
	done := time.Date(2026, 3, 2, 10, 0, 5, 0, time.UTC)
	return &client.AnalysisStatus{
		JobID:       "job-1",
		Status:      client.StatusCompleted,
		CreatedAt:   done.Add(-5 * time.Second),
		CompletedAt: &done,
		Result: &analysis.Result{
			JobID: "job-1",
			TRL:   analysis.TRLAssessment{Level: 4, Category: "Development"},
			Novelty: analysis.NoveltyAssessment{
				Score: 0.363, Category: "Incremental", Patentability: "Low", PriorArtConflicts: 1,
			},
			Landscape: analysis.Landscape{
				PotentialLicensees: []analysis.Licensee{{
					Name: "Acme Energy", EntityType: "research_institute", Matches: 1, MaxScore: 0.91,
					EstimatedValue: "High ($1M+)", Patents: []string{"US1234567B2"},
				}},
			},
			Patents: []priorart.ScoredDocument{
				priorart.NewScoredDocument(priorart.Document{
					Type: priorart.DocumentTypePatent, Identifier: "US1234567B2", Title: "Sulfide electrolyte stack",
					Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), SourceOrAssignee: "Acme Energy",
				}, 0.91),
			},
			Recommendations: []string{"File a provisional application"},
		},
	}
}

func TestRoot_Commands(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"analyze", "status", "alerts", "evaluate", "migrate"} {
		assert.True(t, names[want], want)
	}
	assert.Equal(t, "priorart", root.Use)
}

func TestRoot_Flags(t *testing.T) {
	h := newHarness()
	h.alerts.On("Evaluate", mock.Anything).Return(&client.EvaluationReport{}, nil)

	_, _, err := h.run(t, "evaluate", "--server", "http://api:9000", "--owner", "o1", "--timeout", "5s", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "http://api:9000", h.opts.ServerAddr)
	assert.Equal(t, "o1", h.opts.Owner)
	assert.Equal(t, 5*time.Second, h.opts.Timeout)
	assert.Equal(t, "json", h.opts.OutputFormat)
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	_, stderr, err := newHarness().run(t, "evaluate", "-o", "yaml")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, stderr, "output: must be text or json")
}

func TestServerAddr(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Server.HTTP.Host = "0.0.0.0"
	cfg.Server.HTTP.Port = 8081
	assert.Equal(t, "http://localhost:8081", serverAddr(cfg, &RootOptions{}))
	cfg.Server.HTTP.Host = "api.internal"
	assert.Equal(t, "http://api.internal:8081", serverAddr(cfg, &RootOptions{}))
	assert.Equal(t, "https://x", serverAddr(cfg, &RootOptions{ServerAddr: "https://x"}))
}

func TestAnalyze_SubmitAndWait(t *testing.T) {
	h := newHarness()
	h.analyses.On("Submit", mock.Anything, client.ProfileRequest{
		Title: testTitle, Abstract: testAbstract, Keywords: []string{"sulfide", "anode"},
	}).Return(&client.SubmitResponse{JobID: "job-1", Status: client.StatusPending}, nil)
	h.analyses.On("Wait", mock.Anything, "job-1").Return(completedView(), nil)

	out, _, err := h.run(t, "analyze", "--title", testTitle, "--abstract", testAbstract, "--keywords", "sulfide,anode")
	require.NoError(t, err)
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "US1234567B2")
	assert.Contains(t, out, "High")
	assert.Contains(t, out, "File a provisional application")
	assert.Contains(t, out, "Novelty: 0.36 Incremental")
	assert.Contains(t, out, "Acme Energy (research_institute): 1 patents")
	h.analyses.AssertExpectations(t)
}

func TestAnalyze_NoWait(t *testing.T) {
	h := newHarness()
	h.analyses.On("Submit", mock.Anything, mock.Anything).
		Return(&client.SubmitResponse{JobID: "job-2", Status: client.StatusPending}, nil)

	out, _, err := h.run(t, "analyze", "--title", testTitle, "--abstract", testAbstract, "--no-wait")
	require.NoError(t, err)
	assert.Equal(t, "Submitted job job-2\n", out)
	h.analyses.AssertNotCalled(t, "Wait", mock.Anything, mock.Anything)
}

func TestAnalyze_WaitTimeout(t *testing.T) {
	h := newHarness()
	h.analyses.On("Submit", mock.Anything, mock.Anything).
		Return(&client.SubmitResponse{JobID: "job-3", Status: client.StatusPending}, nil)
	h.analyses.On("Wait", mock.Anything, "job-3").
		Return(nil, errors.New(errors.ErrCodeTimeout, "timed out waiting for analysis"))

	_, stderr, err := h.run(t, "analyze", "--title", testTitle, "--abstract", testAbstract)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
	assert.Contains(t, stderr, "priorart status job-3")
}

func TestAnalyze_ValidatesProfileLocally(t *testing.T) {
	h := newHarness()
	_, stderr, err := h.run(t, "analyze", "--title", "abc", "--abstract", "short")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, stderr, "title:")
	assert.Contains(t, stderr, "abstract:")
	h.analyses.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestAnalyze_ProfileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"ignored title","abstract":"`+testAbstract+`","keywords":["sulfide"]}`), 0o600))

	h := newHarness()
	h.analyses.On("Submit", mock.Anything, client.ProfileRequest{
		Title: testTitle, Abstract: testAbstract, Keywords: []string{"sulfide"},
	}).Return(&client.SubmitResponse{JobID: "job-4"}, nil)

	_, _, err := h.run(t, "analyze", "--profile", path, "--title", testTitle, "--no-wait")
	require.NoError(t, err)
	h.analyses.AssertExpectations(t)
}

func writeCandidates(t *testing.T) string {
	t.Helper()
	records := []map[string]interface{}{
		{"doc_type": "patent", "identifier": "US1", "title": "Sulfide solid electrolyte interlayer",
			"abstract": testAbstract, "publication_date": "2024-01-10", "assignee": "Acme"},
		{"doc_type": "publication", "identifier": "W2", "title": "Perovskite solar cell texturing",
			"abstract": "Light trapping textures for perovskite silicon tandem cells.", "publication_date": "2023-06-01"},
		{"doc_type": "patent", "identifier": "", "title": "missing identifier"},
	}
	b, err := json.Marshal(records)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestAnalyze_Local(t *testing.T) {
	h := newHarness()
	out, _, err := h.run(t, "analyze", "--local", "--candidates", writeCandidates(t),
		"--title", testTitle, "--abstract", testAbstract, "-o", "json")
	require.NoError(t, err)

	var result analysis.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "local", result.JobID)
	require.Len(t, result.Patents, 1)
	assert.Equal(t, "US1", result.Patents[0].Document.Identifier)
	assert.Greater(t, result.Patents[0].Score, 0.5)
	require.Len(t, result.Publications, 1)
	assert.Less(t, result.Publications[0].Score, result.Patents[0].Score)
	h.analyses.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestAnalyze_LocalRequiresCandidates(t *testing.T) {
	_, _, err := newHarness().run(t, "analyze", "--local", "--title", testTitle, "--abstract", testAbstract)
	require.Error(t, err)
	assert.Equal(t, "candidates", errors.Violations(err)[0].Field)
}

func TestStatus(t *testing.T) {
	h := newHarness()
	h.analyses.On("Get", mock.Anything, "job-9").Return(&client.AnalysisStatus{
		JobID: "job-9", Status: client.StatusFailed, Cause: "no candidate documents found",
	}, nil)

	out, _, err := h.run(t, "status", "job-9")
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "no candidate documents found")

	_, _, err = h.run(t, "status")
	assert.Error(t, err)
}

func testAlertView(status alert.Status) *client.AlertView {
	next := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	return &client.AlertView{
		Alert: &client.Alert{
			ID: "a1", OwnerID: "o1", Profile: priorart.Profile{Title: testTitle},
			Sources:             []priorart.DocumentType{priorart.DocumentTypePatent},
			SimilarityThreshold: 0.75, LookbackDays: 30, Frequency: alert.FrequencyWeekly, Status: status,
		},
		NextEvaluationAt: &next,
	}
}

func TestAlerts_RequireOwner(t *testing.T) {
	h := newHarness()
	t.Setenv("PRIORART_OWNER", "")
	_, stderr, err := h.run(t, "alerts", "list")
	require.Error(t, err)
	assert.Contains(t, stderr, "owner")
	h.alerts.AssertNotCalled(t, "List", mock.Anything)
}

func TestAlerts_Create(t *testing.T) {
	h := newHarness()
	threshold := 0.8
	h.alerts.On("Create", mock.Anything, client.CreateAlertRequest{
		ProfileRequest:      client.ProfileRequest{Title: testTitle, Abstract: testAbstract},
		Sources:             []string{"patent"},
		SimilarityThreshold: &threshold,
		Frequency:           "daily",
	}).Return(testAlertView(alert.StatusActive), nil)

	out, _, err := h.run(t, "alerts", "create", "--owner", "o1", "--title", testTitle, "--abstract", testAbstract,
		"--sources", "patent", "--threshold", "0.8", "--frequency", "daily")
	require.NoError(t, err)
	assert.Contains(t, out, "alert created")
	assert.Contains(t, out, "a1")
	assert.Contains(t, out, "2026-03-09")
	h.alerts.AssertExpectations(t)
}

func TestAlerts_CreateDefaultThresholdIsServerSide(t *testing.T) {
	h := newHarness()
	h.alerts.On("Create", mock.Anything, mock.MatchedBy(func(r client.CreateAlertRequest) bool {
		return r.SimilarityThreshold == nil
	})).Return(testAlertView(alert.StatusActive), nil)

	_, _, err := h.run(t, "alerts", "create", "--owner", "o1", "--title", testTitle, "--abstract", testAbstract)
	require.NoError(t, err)
	h.alerts.AssertExpectations(t)
}

func TestAlerts_ListPauseResumeDelete(t *testing.T) {
	h := newHarness()
	h.alerts.On("List", mock.Anything).Return(&client.AlertList{Alerts: []client.AlertView{*testAlertView(alert.StatusActive)}, Total: 1}, nil)
	h.alerts.On("Pause", mock.Anything, "a1").Return(testAlertView(alert.StatusPaused), nil)
	h.alerts.On("Resume", mock.Anything, "a1").Return(testAlertView(alert.StatusActive), nil)
	h.alerts.On("Delete", mock.Anything, "a1").Return(nil)

	out, _, err := h.run(t, "alerts", "list", "--owner", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "a1")
	assert.Contains(t, out, "weekly")

	out, _, err = h.run(t, "alerts", "pause", "a1", "--owner", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "alert a1 is paused")

	out, _, err = h.run(t, "alerts", "resume", "a1", "--owner", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "alert a1 is active")

	out, _, err = h.run(t, "alerts", "delete", "a1", "--owner", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")
	h.alerts.AssertExpectations(t)
}

func TestAlerts_Notifications(t *testing.T) {
	h := newHarness()
	items := []*client.Notification{{
		ID: "n1", AlertID: "a1", DocumentType: priorart.DocumentTypePatent, DocumentIdentifier: "US77",
		DocumentTitle: "Interlayer", SimilarityScore: 0.88,
	}}
	h.alerts.On("Notifications", mock.Anything, "a1", 10).Return(&client.NotificationList{Notifications: items, Total: 1}, nil)
	h.alerts.On("Inbox", mock.Anything, true, 0).Return(&client.NotificationList{Notifications: []*client.Notification{}}, nil)
	h.alerts.On("MarkRead", mock.Anything, "n1").Return(nil)

	out, _, err := h.run(t, "alerts", "notifications", "a1", "--limit", "10", "--owner", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "US77")
	assert.Contains(t, out, "0.880")

	out, _, err = h.run(t, "alerts", "notifications", "--unread", "--owner", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "No notifications.")

	out, _, err = h.run(t, "alerts", "read", "n1", "--owner", "o1")
	require.NoError(t, err)
	assert.Contains(t, out, "marked read")
	h.alerts.AssertExpectations(t)
}

func TestAlerts_APIErrorSurfaced(t *testing.T) {
	h := newHarness()
	h.alerts.On("Pause", mock.Anything, "gone").Return(nil, &client.APIError{StatusCode: 404, Code: "ALT_001", Message: "alert not found"})

	_, stderr, err := h.run(t, "alerts", "pause", "gone", "--owner", "o1")
	require.Error(t, err)
	assert.Contains(t, stderr, "alert not found")
}

func TestEvaluate(t *testing.T) {
	h := newHarness()
	h.alerts.On("Evaluate", mock.Anything).Return(&client.EvaluationReport{Due: 3, Evaluated: 2, Notified: 5, Failed: 1, Duration: 1500 * time.Millisecond}, nil)

	out, _, err := h.run(t, "evaluate")
	require.NoError(t, err)
	assert.Contains(t, out, "Due: 3")
	assert.Contains(t, out, "Notified: 5")
	assert.Contains(t, out, "1.5s")
}

func TestMigrate(t *testing.T) {
	h := newHarness()
	out, _, err := h.run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema at version 3")

	out, _, err = h.run(t, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "schema at version 1")
	assert.Equal(t, []int{2}, h.migrator.downs)

	out, _, err = h.run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "version 1")

	h.migrator.err = errors.New(errors.ErrCodeDatabaseError, "failed to apply migrations")
	_, _, err = h.run(t, "migrate", "up")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

type fakeLoader struct {
	name string
	err  error
	got  []priorart.Document
}

func (f *fakeLoader) Name() string { return f.name }

func (f *fakeLoader) Load(_ context.Context, docs []priorart.Document) (app.LoadResult, error) {
	f.got = docs
	if f.err != nil {
		return app.LoadResult{Failed: len(docs)}, f.err
	}
	return app.LoadResult{Loaded: len(docs)}, nil
}

func TestIndex_LoadsEveryBackend(t *testing.T) {
	h := newHarness()
	search := &fakeLoader{name: "opensearch"}
	vector := &fakeLoader{name: "milvus"}
	h.loaders = []app.DocumentLoader{search, vector}

	out, _, err := h.run(t, "index", writeCandidates(t), "-o", "json")
	require.NoError(t, err)

	var rows []indexRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []indexRow{
		{Backend: "opensearch", Loaded: 2},
		{Backend: "milvus", Loaded: 2},
	}, rows)
	require.Len(t, search.got, 2)
	require.Len(t, vector.got, 2)
	assert.Equal(t, "US1", search.got[0].Identifier)
	assert.True(t, h.closed)
}

func TestIndex_ReportsBackendFailure(t *testing.T) {
	h := newHarness()
	h.loaders = []app.DocumentLoader{
		&fakeLoader{name: "opensearch"},
		&fakeLoader{name: "milvus", err: errors.New(errors.ErrCodeSearchUnavailable, "milvus search failed")},
	}

	out, _, err := h.run(t, "index", writeCandidates(t))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchUnavailable))
	assert.Contains(t, out, "opensearch")
	assert.Contains(t, out, "milvus search failed")
}

func TestIndex_RequiresBackend(t *testing.T) {
	_, _, err := newHarness().run(t, "index", writeCandidates(t))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
