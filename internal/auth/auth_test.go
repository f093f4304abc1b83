package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/wallet"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	botAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	user     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	executor = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func TestBotAuthOwnerGated(t *testing.T) {
	store := ledger.NewMemoryStore()
	bots := NewBotAuth(owner)
	ctx := context.Background()

	err := store.Update(ctx, func(tx ledger.Tx) error {
		return bots.AddCaller(tx, user, botAddr)
	})
	if xerrors.CodeOf(err) != CodeSenderNotOwner {
		t.Fatalf("expected owner check, got %v", err)
	}
	if err := store.Update(ctx, func(tx ledger.Tx) error {
		return bots.AddCaller(tx, owner, botAddr)
	}); err != nil {
		t.Fatalf("add caller: %v", err)
	}
	_ = store.View(ctx, func(tx ledger.Tx) error {
		ok, _ := bots.IsApproved(tx, botAddr)
		if !ok {
			t.Fatalf("bot should be approved")
		}
		return nil
	})
	if err := store.Update(ctx, func(tx ledger.Tx) error {
		return bots.RemoveCaller(tx, owner, botAddr)
	}); err != nil {
		t.Fatalf("remove caller: %v", err)
	}
	_ = store.View(ctx, func(tx ledger.Tx) error {
		if ok, _ := bots.IsApproved(tx, botAddr); ok {
			t.Fatalf("bot should be removed")
		}
		return nil
	})
}

func TestProxyAuthOnlyExecutorWithPermission(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	factory := wallet.NewFactory(common.HexToAddress("0xf0"))
	proxyAuth := NewProxyAuth(common.HexToAddress("0xaa"), factory)
	reg := registry.New(owner)

	var proxy model.Proxy
	if err := store.Update(ctx, func(tx ledger.Tx) error {
		if err := reg.AddNewContract(tx, owner, registry.StrategyExecutorID, executor, 0); err != nil {
			return err
		}
		var err error
		proxy, err = factory.Build(tx, user)
		return err
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	called := false
	call := func(_ context.Context, frame wallet.Frame) error {
		called = frame.Proxy == proxy.Address && frame.Owner == user
		return nil
	}

	err := store.Update(ctx, func(tx ledger.Tx) error {
		return proxyAuth.CallExecute(ctx, tx, botAddr, proxy.Address, executor, call)
	})
	if xerrors.CodeOf(err) != CodeSenderNotExecutor {
		t.Fatalf("expected executor check, got %v", err)
	}
	err = store.Update(ctx, func(tx ledger.Tx) error {
		return proxyAuth.CallExecute(ctx, tx, executor, proxy.Address, executor, call)
	})
	if xerrors.CodeOf(err) != CodeProxyPermissionMissing {
		t.Fatalf("expected permission check, got %v", err)
	}
	err = store.Update(ctx, func(tx ledger.Tx) error {
		if err := factory.Grant(tx, user, proxy.Address, proxyAuth.Address()); err != nil {
			return err
		}
		return proxyAuth.CallExecute(ctx, tx, executor, proxy.Address, executor, call)
	})
	if err != nil || !called {
		t.Fatalf("expected call through proxy, err=%v called=%v", err, called)
	}
}

func TestMiddlewareChecksTokenAndPermission(t *testing.T) {
	authenticator := NewTokenAuthenticator([]TokenConfig{
		{Token: "reader", Subject: "dashboard", Permissions: []string{PermissionJobsRead}},
		{Token: "bot", Subject: "keeper", Permissions: []string{PermissionJobsRead, PermissionJobsWrite}},
	})
	var seen *Subject
	handler := authenticator.Middleware(MiddlewareConfig{
		RequiredPermissions: map[string][]string{
			http.MethodGet:  {PermissionJobsRead},
			http.MethodPost: {PermissionJobsWrite},
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	cases := []struct {
		method string
		token  string
		status int
	}{
		{http.MethodGet, "", http.StatusUnauthorized},
		{http.MethodGet, "Bearer nope", http.StatusUnauthorized},
		{http.MethodPost, "Bearer reader", http.StatusForbidden},
		{http.MethodPost, "bearer bot", http.StatusAccepted},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/api/v1/jobs", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", tc.token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s %q: expected %d, got %d", tc.method, tc.token, tc.status, rec.Code)
		}
	}
	if seen == nil || seen.Name != "keeper" {
		t.Fatalf("subject not propagated: %+v", seen)
	}
}

func TestMiddlewareDisabledWithoutTokens(t *testing.T) {
	authenticator := NewTokenAuthenticator([]TokenConfig{{Token: "  "}})
	if authenticator.Enabled() {
		t.Fatalf("blank tokens must not enable auth")
	}
	handler := authenticator.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass through, got %d", rec.Code)
	}
}

func TestDeniedResponsesCarryErrorCode(t *testing.T) {
	authenticator := NewTokenAuthenticator([]TokenConfig{{Token: "reader", Subject: "dashboard", Permissions: []string{PermissionJobsRead}}})
	handler := authenticator.Middleware(MiddlewareConfig{
		RequiredPermissions: map[string][]string{http.MethodPost: {PermissionJobsWrite}},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	cases := []struct {
		token  string
		status int
		code   string
	}{
		{"", http.StatusUnauthorized, CodeUnauthenticated},
		{"Bearer reader", http.StatusForbidden, CodePermissionDenied},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", tc.token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if rec.Code != tc.status || body.Error.Code != tc.code {
			t.Fatalf("token %q: got %d %q", tc.token, rec.Code, body.Error.Code)
		}
	}
}

func TestSubjectName(t *testing.T) {
	if got := SubjectName(context.Background()); got != Anonymous {
		t.Fatalf("expected anonymous, got %q", got)
	}
	ctx := WithSubject(context.Background(), &Subject{Name: "keeper"})
	if got := SubjectName(ctx); got != "keeper" {
		t.Fatalf("expected keeper, got %q", got)
	}
}
