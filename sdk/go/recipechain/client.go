// Package recipechain is a Go client for the recipechain HTTP API.
package recipechain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the recipechain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Strategy mirrors a stored strategy. Identifiers are 0x-prefixed 4-byte ids.
type Strategy struct {
	Name         string   `json:"name"`
	Creator      string   `json:"creator"`
	TriggerIDs   []string `json:"trigger_ids"`
	ActionIDs    []string `json:"action_ids"`
	ParamMapping [][]byte `json:"param_mapping"`
	Continuous   bool     `json:"continuous"`
}

// Bundle groups alternative strategies sharing one trigger list.
type Bundle struct {
	Creator     string   `json:"creator"`
	StrategyIDs []uint64 `json:"strategy_ids"`
}

// Sub is the on-ledger part of a subscription.
type Sub struct {
	WalletAddr      string `json:"wallet_addr"`
	IsEnabled       bool   `json:"is_enabled"`
	StrategySubHash string `json:"strategy_sub_hash"`
}

// RegistryEntry is one timelocked registry record.
type RegistryEntry struct {
	ID    string `json:"id"`
	Entry struct {
		ContractAddr        string `json:"contract_addr"`
		WaitPeriod          uint64 `json:"wait_period"`
		ChangeStartTime     int64  `json:"change_start_time"`
		InContractChange    bool   `json:"in_contract_change"`
		InWaitPeriodChange  bool   `json:"in_wait_period_change"`
		PendingContractAddr string `json:"pending_contract_addr"`
		PendingWaitPeriod   uint64 `json:"pending_wait_period"`
		PreviousAddr        string `json:"previous_addr"`
		Exists              bool   `json:"exists"`
	} `json:"entry"`
}

// Counts summarises the ledger.
type Counts struct {
	Strategies uint64 `json:"strategies"`
	Bundles    uint64 `json:"bundles"`
	Subs       uint64 `json:"subs"`
}

// JobSubmission asks the bot to execute one subscription. Call data entries
// are 0x-prefixed hex strings.
type JobSubmission struct {
	ID              string   `json:"id,omitempty"`
	SubID           uint64   `json:"sub_id"`
	StrategyIndex   int      `json:"strategy_index"`
	TriggerCallData []string `json:"trigger_call_data"`
	ActionsCallData []string `json:"actions_call_data"`
}

// Job reports the state of a bot job.
type Job struct {
	ID            string `json:"id"`
	SubID         uint64 `json:"sub_id"`
	StrategyIndex int    `json:"strategy_index"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	MaxRetries    int    `json:"max_retries"`
	LastError     string `json:"last_error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Done reports whether the job reached a terminal status.
func (j Job) Done() bool {
	switch j.Status {
	case "succeeded", "failed", "skipped":
		return true
	default:
		return false
	}
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("recipechain api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("recipechain api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the recipechain API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the bearer token used for job endpoints.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored bearer token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// Strategies lists one page of strategies. page starts at 0.
func (c *Client) Strategies(ctx context.Context, page, perPage uint64) ([]Strategy, error) {
	var out []Strategy
	err := c.get(ctx, "/api/v1/strategies", pageQuery(page, perPage), &out, false)
	return out, err
}

// Strategy fetches a strategy by id.
func (c *Client) Strategy(ctx context.Context, id uint64) (Strategy, error) {
	var out Strategy
	err := c.get(ctx, "/api/v1/strategies/"+strconv.FormatUint(id, 10), nil, &out, false)
	return out, err
}

// Bundles lists one page of bundles.
func (c *Client) Bundles(ctx context.Context, page, perPage uint64) ([]Bundle, error) {
	var out []Bundle
	err := c.get(ctx, "/api/v1/bundles", pageQuery(page, perPage), &out, false)
	return out, err
}

// Bundle fetches a bundle by id.
func (c *Client) Bundle(ctx context.Context, id uint64) (Bundle, error) {
	var out Bundle
	err := c.get(ctx, "/api/v1/bundles/"+strconv.FormatUint(id, 10), nil, &out, false)
	return out, err
}

// Sub fetches the stored part of a subscription.
func (c *Client) Sub(ctx context.Context, id uint64) (Sub, error) {
	var out Sub
	err := c.get(ctx, "/api/v1/subs/"+strconv.FormatUint(id, 10), nil, &out, false)
	return out, err
}

// Registry looks up a registry entry by name or 0x-prefixed id.
func (c *Client) Registry(ctx context.Context, name string) (RegistryEntry, error) {
	var out RegistryEntry
	err := c.get(ctx, "/api/v1/registry/"+name, nil, &out, false)
	return out, err
}

// Counts returns the number of strategies, bundles and subscriptions.
func (c *Client) Counts(ctx context.Context) (Counts, error) {
	var out Counts
	err := c.get(ctx, "/api/v1/counts", nil, &out, false)
	return out, err
}

// SubmitJob queues a bot job using the stored access token.
func (c *Client) SubmitJob(ctx context.Context, submission JobSubmission) (Job, error) {
	var job Job
	if err := c.post(ctx, "/api/v1/jobs", submission, &job, true); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob fetches a job by identifier.
func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var job Job
	if err := c.get(ctx, "/api/v1/jobs/"+jobID, nil, &job, true); err != nil {
		return Job{}, err
	}
	return job, nil
}

// WaitForJob polls until the job is done or ctx ends.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return Job{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Health calls /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil, false)
}

func pageQuery(page, perPage uint64) url.Values {
	q := url.Values{}
	q.Set("page", strconv.FormatUint(page, 10))
	if perPage > 0 {
		q.Set("per_page", strconv.FormatUint(perPage, 10))
	}
	return q
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any, withAuth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body), withAuth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any, withAuth bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil, withAuth)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, withAuth bool) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if withAuth {
		token := c.AccessToken()
		if token == "" {
			return nil, errors.New("recipechain: access token is not set")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
