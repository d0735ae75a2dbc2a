package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"feedsync/config"
	"feedsync/feed"
	"feedsync/models"
	"feedsync/scheduler"
	"feedsync/services"
)

type fakeImporter struct {
	err     error
	gotFeed string
	gotURL  string
}

func (f *fakeImporter) Run(ctx context.Context, fc *config.FeedConfig) (*services.Result, error) {
	f.gotFeed = fc.ID
	return &services.Result{Success: f.err == nil, Imported: 3, Stats: &services.Stats{}}, f.err
}

func (f *fakeImporter) RunURL(ctx context.Context, url string) (*services.Result, error) {
	f.gotURL = url
	return &services.Result{Success: f.err == nil, Stats: &services.Stats{}}, f.err
}

type fakeTrigger struct {
	feeds     map[string]*config.FeedConfig
	triggered []string
}

func (f *fakeTrigger) Trigger(feedID string) error {
	if _, ok := f.feeds[feedID]; !ok {
		return fmt.Errorf("%w: %s", scheduler.ErrUnknownFeed, feedID)
	}
	f.triggered = append(f.triggered, feedID)
	return nil
}

type fakeJobs struct {
	jobs  []models.ImportJob
	limit int
}

func (f *fakeJobs) GetImportJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	for i := range f.jobs {
		if f.jobs[i].ID == id {
			return &f.jobs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeJobs) ListImportJobs(ctx context.Context, limit int) ([]models.ImportJob, error) {
	f.limit = limit
	return f.jobs, nil
}

func testFeeds() map[string]*config.FeedConfig {
	return map[string]*config.FeedConfig{
		"agency": config.DefaultFeed("agency", "http://feed.local/list.xml"),
	}
}

func newTestRouter(imp *fakeImporter, jobs *fakeJobs) http.Handler {
	return newTestRouterWithTrigger(imp, &fakeTrigger{feeds: testFeeds()}, jobs)
}

func newTestRouterWithTrigger(imp *fakeImporter, trigger *fakeTrigger, jobs *fakeJobs) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(NewHandlers(imp, trigger, jobs, testFeeds(), logger), logger)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateImport(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"known feed", `{"feed_id":"agency"}`, nil, http.StatusOK},
		{"ad-hoc url", `{"feed_url":"http://other.local/feed.json"}`, nil, http.StatusOK},
		{"unknown feed", `{"feed_id":"nope"}`, nil, http.StatusNotFound},
		{"missing target", `{}`, nil, http.StatusBadRequest},
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"already running", `{"feed_id":"agency"}`, fmt.Errorf("%w: agency", services.ErrImportRunning), http.StatusConflict},
		{"fetch failure", `{"feed_id":"agency"}`, &feed.FetchError{URL: "x", StatusCode: 500}, http.StatusBadGateway},
		{"parse failure", `{"feed_id":"agency"}`, &feed.ParseError{Reason: "missing list element"}, http.StatusBadGateway},
		{"database failure", `{"feed_id":"agency"}`, fmt.Errorf("create import job: boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := &fakeImporter{err: tt.err}
			rec := do(t, newTestRouter(imp, &fakeJobs{}), http.MethodPost, "/api/v1/imports", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateImport_ReturnsResult(t *testing.T) {
	imp := &fakeImporter{}
	rec := do(t, newTestRouter(imp, &fakeJobs{}), http.MethodPost, "/api/v1/imports", `{"feed_id":"agency"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var res services.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Imported != 3 || imp.gotFeed != "agency" {
		t.Fatalf("unexpected result %+v (feed %q)", res, imp.gotFeed)
	}
}

func TestTriggerFeed(t *testing.T) {
	trigger := &fakeTrigger{feeds: testFeeds()}
	imp := &fakeImporter{}
	router := newTestRouterWithTrigger(imp, trigger, &fakeJobs{})

	rec := do(t, router, http.MethodPost, "/api/v1/feeds/agency/trigger", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(trigger.triggered) != 1 || trigger.triggered[0] != "agency" {
		t.Fatalf("expected agency to be triggered, got %v", trigger.triggered)
	}
	if imp.gotFeed != "" {
		t.Fatal("triggering must not run the import inline")
	}

	if rec := do(t, router, http.MethodPost, "/api/v1/feeds/nope/trigger", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown feed, got %d", rec.Code)
	}
}

func TestImportJobs(t *testing.T) {
	job := models.ImportJob{ID: uuid.New(), FeedID: "agency", Status: models.JobStatusCompleted}
	jobs := &fakeJobs{jobs: []models.ImportJob{job}}
	router := newTestRouter(&fakeImporter{}, jobs)

	rec := do(t, router, http.MethodGet, "/api/v1/imports?limit=5", "")
	if rec.Code != http.StatusOK || jobs.limit != 5 {
		t.Fatalf("unexpected list response %d (limit %d)", rec.Code, jobs.limit)
	}
	if rec := do(t, router, http.MethodGet, "/api/v1/imports?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/api/v1/imports/"+job.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got models.ImportJob
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.ID != job.ID {
		t.Fatalf("unexpected job %+v (%v)", got, err)
	}

	if rec := do(t, router, http.MethodGet, "/api/v1/imports/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/api/v1/imports/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(&fakeImporter{}, &fakeJobs{}), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}
