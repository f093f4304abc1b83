package recipechain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Recipe-Chain/internal/action/basic"
	"Recipe-Chain/internal/api"
	"Recipe-Chain/internal/auth"
	"Recipe-Chain/internal/bot"
	"Recipe-Chain/internal/engine"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/trigger/builtin"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a0")
	eng, err := engine.New(ledger.NewMemoryStore(), owner)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Bootstrap(ctx, engine.Genesis{}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := eng.CreateStrategy(ctx, owner, "repay",
		[]model.ID{model.NameID(builtin.BalanceTriggerName)},
		[]model.ID{model.NameID(basic.SendTokenName)}, [][]uint8{{128, 0, 0}}, false); err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	service := bot.NewService(bot.NewMemoryStore(), bot.NewMemoryQueue(4), 2)
	authenticator := auth.NewTokenAuthenticator([]auth.TokenConfig{{
		Token:       "token",
		Subject:     "sdk",
		Permissions: []string{auth.PermissionJobsRead, auth.PermissionJobsWrite},
	}})
	srv := httptest.NewServer(api.NewServer("", eng,
		api.WithJobs(service), api.WithAuthenticator(authenticator)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestReadsAgainstServer(t *testing.T) {
	srv := newServer(t)
	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if err := client.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	strategies, err := client.Strategies(ctx, 0, 10)
	if err != nil {
		t.Fatalf("strategies: %v", err)
	}
	if len(strategies) != 1 || strategies[0].Name != "repay" || strategies[0].Continuous {
		t.Fatalf("unexpected strategies: %+v", strategies)
	}
	if len(strategies[0].ParamMapping) != 1 || strategies[0].ParamMapping[0][0] != 128 {
		t.Fatalf("unexpected param mapping: %v", strategies[0].ParamMapping)
	}
	if strategies[0].ActionIDs[0] != model.NameID(basic.SendTokenName).String() {
		t.Fatalf("unexpected action id: %s", strategies[0].ActionIDs[0])
	}

	entry, err := client.Registry(ctx, basic.SendTokenName)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if !entry.Entry.Exists {
		t.Fatalf("expected registered entry: %+v", entry)
	}

	counts, err := client.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Strategies != 1 || counts.Subs != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	_, err = client.Sub(ctx, 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "SUB_NOT_FOUND" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestSubmitJobRequiresToken(t *testing.T) {
	srv := newServer(t)
	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.SubmitJob(ctx, JobSubmission{SubID: 0}); err == nil {
		t.Fatal("expected missing token error")
	}

	client.SetAccessToken("token")
	job, err := client.SubmitJob(ctx, JobSubmission{
		ID:              "job-7",
		SubID:           0,
		TriggerCallData: []string{"0x"},
		ActionsCallData: []string{"0x01"},
	})
	if err != nil {
		t.Fatalf("submit job: %v", err)
	}
	if job.ID != "job-7" || job.Status != "pending" || job.Done() {
		t.Fatalf("unexpected job: %+v", job)
	}

	got, err := client.GetJob(ctx, "job-7")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.MaxRetries != 2 {
		t.Fatalf("unexpected max retries: %d", got.MaxRetries)
	}

	client.SetAccessToken("wrong")
	_, err = client.GetJob(ctx, "job-7")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestWaitForJob(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/job-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		calls++
		status := "running"
		if calls >= 3 {
			status = "skipped"
		}
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: status, ErrorCode: "TRIGGER_NOT_ACTIVE"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("token")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := client.WaitForJob(ctx, "job-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if job.Status != "skipped" || calls != 3 {
		t.Fatalf("unexpected job %+v after %d calls", job, calls)
	}
}

func TestFlatErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Counts(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Message != "upstream down" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}
