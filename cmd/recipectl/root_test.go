package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Recipe-Chain/sdk/go/recipechain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"strategies", "bundles", "sub", "registry", "counts", "jobs", "health"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	submit, _, err := cmd.Find([]string{"jobs", "submit"})
	require.NoError(t, err)
	assert.NotNil(t, submit.Flags().Lookup("wait"))
}

func TestStrategiesListUsesPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/strategies", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "5", r.URL.Query().Get("per_page"))
		_ = json.NewEncoder(w).Encode([]recipechain.Strategy{{Name: "repay"}})
	}))
	defer srv.Close()

	out, err := execute(t, "--server", srv.URL, "strategies", "--page", "2", "--per-page", "5")
	require.NoError(t, err)
	var got []recipechain.Strategy
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "repay", got[0].Name)
}

func TestJobsSubmitSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req recipechain.JobSubmission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint64(4), req.SubID)
		assert.Equal(t, []string{"0x01", "0x02"}, req.ActionsCallData)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(recipechain.Job{ID: "job-1", SubID: req.SubID, Status: "pending"})
	}))
	defer srv.Close()

	out, err := execute(t, "--server", srv.URL, "--token", "secret",
		"jobs", "submit", "--sub", "4", "--action", "0x01", "--action", "0x02")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "job-1"`)
}

func TestSubRejectsBadID(t *testing.T) {
	_, err := execute(t, "--server", "http://127.0.0.1:1", "sub", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abc")
}

func TestAPIErrorsPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"STRATEGY_NOT_FOUND","message":"strategy 9 not found"}}`))
	}))
	defer srv.Close()

	_, err := execute(t, "--server", srv.URL, "strategies", "9")
	var apiErr *recipechain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "STRATEGY_NOT_FOUND", apiErr.Code)
}
