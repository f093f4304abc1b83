package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Recipe-Chain/internal/action/basic"
	"Recipe-Chain/internal/auth"
	"Recipe-Chain/internal/bot"
	"Recipe-Chain/internal/engine"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/trigger/builtin"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000000a0")

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveHTTPRequest(handler, method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, handler+" "+method+" "+http.StatusText(status))
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.New(ledger.NewMemoryStore(), owner)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Bootstrap(ctx, engine.Genesis{}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	triggers := []model.ID{model.NameID(builtin.BalanceTriggerName)}
	for _, name := range []string{"first", "second", "third"} {
		_, err := eng.CreateStrategy(ctx, owner, name, triggers,
			[]model.ID{model.NameID(basic.SendTokenName)}, [][]uint8{nil}, true)
		if err != nil {
			t.Fatalf("create strategy %s: %v", name, err)
		}
	}
	if _, err := eng.CreateBundle(ctx, owner, []uint64{0, 1}); err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	return eng
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func TestStrategyRoutes(t *testing.T) {
	handler := NewServer(":0", newEngine(t)).Handler()

	rec := get(t, handler, "/api/v1/strategies?page=1&per_page=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var page []model.Strategy
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode strategies: %v", err)
	}
	if len(page) != 1 || page[0].Name != "third" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	rec = get(t, handler, "/api/v1/strategies/1")
	var strategy model.Strategy
	if err := json.Unmarshal(rec.Body.Bytes(), &strategy); err != nil {
		t.Fatalf("decode strategy: %v", err)
	}
	if strategy.Name != "second" || strategy.Creator != owner {
		t.Fatalf("unexpected strategy: %+v", strategy)
	}

	rec = get(t, handler, "/api/v1/bundles/0")
	var bundle model.Bundle
	if err := json.Unmarshal(rec.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if len(bundle.StrategyIDs) != 2 {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}
}

func TestReadErrors(t *testing.T) {
	handler := NewServer(":0", newEngine(t)).Handler()

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/strategies/0", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		rec := get(t, handler, "/api/v1/strategies/abc")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("bad per_page", func(t *testing.T) {
		rec := get(t, handler, "/api/v1/bundles?per_page=0")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("strategy not found", func(t *testing.T) {
		rec := get(t, handler, "/api/v1/strategies/42")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
		if code := decodeError(t, rec); code != "STRATEGY_NOT_FOUND" {
			t.Fatalf("unexpected error code: %s", code)
		}
	})

	t.Run("sub not found", func(t *testing.T) {
		rec := get(t, handler, "/api/v1/subs/0")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("unknown registry entry", func(t *testing.T) {
		rec := get(t, handler, "/api/v1/registry/NoSuchAction")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestRegistryAndCounts(t *testing.T) {
	handler := NewServer(":0", newEngine(t)).Handler()

	rec := get(t, handler, "/api/v1/registry/"+basic.PullTokenName)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d body %s", rec.Code, rec.Body.String())
	}
	var view struct {
		ID    string      `json:"id"`
		Entry model.Entry `json:"entry"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode registry view: %v", err)
	}
	if view.ID != model.NameID(basic.PullTokenName).String() || !view.Entry.Exists {
		t.Fatalf("unexpected registry view: %+v", view)
	}

	rec = get(t, handler, "/api/v1/counts")
	var counts engine.Counts
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if counts != (engine.Counts{Strategies: 3, Bundles: 1}) {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestJobsRequireToken(t *testing.T) {
	service := bot.NewService(bot.NewMemoryStore(), bot.NewMemoryQueue(8), 3)
	authenticator := auth.NewTokenAuthenticator([]auth.TokenConfig{
		{Token: "writer", Subject: "keeper", Permissions: []string{auth.PermissionJobsWrite, auth.PermissionJobsRead}},
		{Token: "reader", Subject: "dashboard", Permissions: []string{auth.PermissionJobsRead}},
	})
	handler := NewServer(":0", newEngine(t), WithJobs(service), WithAuthenticator(authenticator)).Handler()

	submit := func(token string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(bot.JobRequest{ID: "job-1", SubID: 0})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := submit(""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if rec := submit("reader"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
	rec := submit("writer")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil)
	req.Header.Set("Authorization", "Bearer reader")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var job bot.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID != "job-1" || job.Status != bot.StatusPending {
		t.Fatalf("unexpected job: %+v", job)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	req.Header.Set("Authorization", "Bearer reader")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestJobsDisabled(t *testing.T) {
	handler := NewServer(":0", newEngine(t)).Handler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	observer := &recordingObserver{}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("recipechain_up 1\n"))
	})
	handler := NewServer(":0", newEngine(t), WithMetrics(observer, metricsHandler)).Handler()

	if rec := get(t, handler, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if rec := get(t, handler, "/metrics"); rec.Body.String() != "recipechain_up 1\n" {
		t.Fatalf("unexpected metrics body: %q", rec.Body.String())
	}
	get(t, handler, "/api/v1/counts")
	get(t, handler, "/api/v1/strategies/99")

	observer.mu.Lock()
	defer observer.mu.Unlock()
	want := []string{"counts GET OK", "strategy GET Not Found"}
	if len(observer.calls) != len(want) {
		t.Fatalf("unexpected observations: %v", observer.calls)
	}
	for i := range want {
		if observer.calls[i] != want[i] {
			t.Fatalf("observation %d: got %q want %q", i, observer.calls[i], want[i])
		}
	}
}
