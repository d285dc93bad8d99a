// Package httpexec provides a retrying HTTP executor with deterministic
// linear backoff. Every remote call in the pipeline goes through it.
package httpexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genpipe/internal/domain"
)

// Plan bounds one execution: at most MaxAttempts underlying calls, sleeping
// InitialBackoff*i before retry i (1-indexed). No jitter.
type Plan struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// ControlPlan is the default for one-shot control calls (presign, run,
// consume).
var ControlPlan = Plan{MaxAttempts: 3, InitialBackoff: time.Second}

// StatusPlan is the default for status polls, which have their own outer
// retry loop in the poller.
var StatusPlan = Plan{MaxAttempts: 2, InitialBackoff: 500 * time.Millisecond}

// Request is a buffered HTTP request. The body is held as bytes so each
// attempt can replay it.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully drained HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures the executor.
type Options struct {
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	// Sleep overrides the backoff sleep; tests use it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Executor performs buffered HTTP requests with bounded retries.
type Executor struct {
	client *http.Client
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New constructs an executor with sane defaults.
func New(opts Options) *Executor {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return &Executor{client: client, logger: logger, sleep: sleep}
}

// Do runs the request under the plan. An attempt fails when the transport
// errors or the status is outside the 2xx range. After the final attempt
// fails the last failure is surfaced as a *domain.TransportError.
func (e *Executor) Do(ctx context.Context, req Request, plan Plan) (*Response, error) {
	if plan.MaxAttempts < 1 {
		plan.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= plan.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := plan.InitialBackoff * time.Duration(attempt-1)
			if err := e.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
		resp, err := e.once(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		e.logger.Warn().
			Str("method", req.Method).
			Str("url", req.URL).
			Int("attempt", attempt).
			Err(err).
			Msg("request attempt failed")
	}
	return nil, &domain.TransportError{Attempts: plan.MaxAttempts, Last: lastErr}
}

func (e *Executor) once(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("httpexec: build request: %w", err)
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("httpexec: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpexec: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: raw}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// StatusError reports a non-2xx response. The body is retained so callers can
// decode structured error payloads off the final failure.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	snippet := strings.TrimSpace(string(e.Body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	if snippet == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, snippet)
}

// StatusCode extracts the HTTP status behind err, unwrapping transport
// errors. Returns 0 when no status is attached.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
