// Package backend is the typed client for the edge proxy's contracts: storage
// presign, job run/status, and the billing collaborator's ticket operations.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"genpipe/internal/domain"
	"genpipe/internal/httpexec"
	"genpipe/internal/jobs"
)

// Options configures the client.
type Options struct {
	// BaseURL points at the edge proxy, e.g. http://localhost:8787.
	BaseURL string
	// SessionToken, when set, is forwarded as a bearer credential.
	SessionToken string
	Executor     *httpexec.Executor
	Logger       *zerolog.Logger
}

// Client performs HTTP calls against the edge proxy.
type Client struct {
	baseURL      string
	sessionToken string
	exec         *httpexec.Executor
	logger       zerolog.Logger
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base url is required")
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	exec := opts.Executor
	if exec == nil {
		exec = httpexec.New(httpexec.Options{Logger: &logger})
	}
	return &Client{
		baseURL:      baseURL,
		sessionToken: strings.TrimSpace(opts.SessionToken),
		exec:         exec,
		logger:       logger,
	}, nil
}

type presignRequest struct {
	Intent      string `json:"intent"`
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

type presignResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	PublicURL string `json:"public_url,omitempty"`
}

// Presign obtains a write descriptor for the given key.
func (c *Client) Presign(ctx context.Context, key, contentType string, expiresIn int) (*domain.UploadDescriptor, error) {
	var out presignResponse
	err := c.postJSON(ctx, "/v1/storage/presign", presignRequest{
		Intent:      "upload",
		Key:         key,
		ContentType: contentType,
		ExpiresIn:   expiresIn,
	}, &out, httpexec.ControlPlan)
	if err != nil {
		return nil, fmt.Errorf("backend: presign: %w", err)
	}
	if out.URL == "" {
		return nil, errors.New("backend: presign response missing url")
	}
	if out.Key == "" {
		out.Key = key
	}
	return &domain.UploadDescriptor{Key: out.Key, WriteURL: out.URL, PublicURL: out.PublicURL}, nil
}

// Run submits a generation request to the job runner for its kind and returns
// the raw response map.
func (c *Client) Run(ctx context.Context, req domain.GenerationRequest) (map[string]any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: encode run request: %w", err)
	}
	resp, err := c.exec.Do(ctx, httpexec.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/v1/jobs/%s/run", c.baseURL, req.Kind),
		Header: c.jsonHeaders(),
		Body:   body,
	}, httpexec.ControlPlan)
	if err != nil {
		return nil, fmt.Errorf("backend: run: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("backend: decode run response: %w", err)
	}
	return out, nil
}

type statusResponse struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	State  string         `json:"state"`
	Stage  string         `json:"stage"`
	Result map[string]any `json:"result"`
	Output map[string]any `json:"output"`
	Error  map[string]any `json:"error"`
}

// Status fetches and normalizes a job record.
func (c *Client) Status(ctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error) {
	resp, err := c.exec.Do(ctx, httpexec.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v1/jobs/%s/status/%s", c.baseURL, kind, url.PathEscape(taskID)),
		Header: c.jsonHeaders(),
	}, httpexec.StatusPlan)
	if err != nil {
		return nil, fmt.Errorf("backend: status %s: %w", taskID, err)
	}
	var out statusResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("backend: decode status response: %w", err)
	}
	raw := out.Status
	if raw == "" {
		raw = out.State
	}
	result := out.Result
	if result == nil {
		result = out.Output
	}
	id := out.ID
	if id == "" {
		id = taskID
	}
	return &domain.Job{
		ID:     id,
		Kind:   kind,
		State:  jobs.NormalizeState(raw),
		Stage:  out.Stage,
		Result: result,
		Error:  out.Error,
	}, nil
}

type consumeRequest struct {
	Identity string `json:"identity"`
	Count    int    `json:"count"`
	Reason   string `json:"reason"`
}

type consumeResponse struct {
	UsageID string `json:"usage_id"`
}

// ConsumeTicket spends one admission ticket for the identity. Insufficient
// balance surfaces as domain.ErrInsufficientCredit.
func (c *Client) ConsumeTicket(ctx context.Context, identity string, count int, reason string) (*domain.Receipt, error) {
	var out consumeResponse
	err := c.postJSON(ctx, "/v1/tickets/consume", consumeRequest{
		Identity: identity,
		Count:    count,
		Reason:   reason,
	}, &out, httpexec.ControlPlan)
	if err != nil {
		if code := httpexec.StatusCode(err); code == http.StatusPaymentRequired || code == http.StatusConflict {
			return nil, fmt.Errorf("backend: consume: %w", domain.ErrInsufficientCredit)
		}
		return nil, fmt.Errorf("backend: consume: %w", err)
	}
	if out.UsageID == "" {
		return nil, errors.New("backend: consume response missing usage_id")
	}
	return &domain.Receipt{UsageID: out.UsageID}, nil
}

type refundRequest struct {
	UsageID string `json:"usage_id"`
	Reason  string `json:"reason"`
}

// RefundTicket reverses one consumption by usage id. The backend is the one
// guarding against double refunds; this call is made at most once per attempt
// and is never retried.
func (c *Client) RefundTicket(ctx context.Context, usageID, reason string) error {
	err := c.postJSON(ctx, "/v1/tickets/refund", refundRequest{UsageID: usageID, Reason: reason}, nil,
		httpexec.Plan{MaxAttempts: 1})
	if err != nil {
		return fmt.Errorf("backend: refund %s: %w", usageID, err)
	}
	return nil
}

type balanceResponse struct {
	Tickets            int    `json:"tickets"`
	SubscriptionStatus string `json:"subscription_status,omitempty"`
}

// Balance re-reads the identity's ticket balance. The orchestrator never
// caches it across attempts.
func (c *Client) Balance(ctx context.Context, identity string) (int, error) {
	resp, err := c.exec.Do(ctx, httpexec.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + "/v1/tickets/balance?identity=" + url.QueryEscape(identity),
		Header: c.jsonHeaders(),
	}, httpexec.ControlPlan)
	if err != nil {
		return 0, fmt.Errorf("backend: balance: %w", err)
	}
	var out balanceResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, fmt.Errorf("backend: decode balance response: %w", err)
	}
	return out.Tickets, nil
}

// WarmUp pokes the runner for the kind so a cold worker starts spinning up.
// Only reachability matters; callers ignore the outcome beyond logging.
func (c *Client) WarmUp(ctx context.Context, kind domain.JobKind) error {
	_, err := c.exec.Do(ctx, httpexec.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v1/jobs/%s/health", c.baseURL, kind),
	}, httpexec.Plan{MaxAttempts: 1})
	if err != nil {
		return fmt.Errorf("backend: warmup %s: %w", kind, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, plan httpexec.Plan) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.exec.Do(ctx, httpexec.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + path,
		Header: c.jsonHeaders(),
		Body:   body,
	}, plan)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) jsonHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if c.sessionToken != "" {
		h.Set("Authorization", "Bearer "+c.sessionToken)
	}
	return h
}
