package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genpipe/internal/domain"
	"genpipe/internal/jobs"
	"genpipe/internal/staging"
)

type fakeWorld struct {
	mu     sync.Mutex
	events []string

	uploadErr  error
	consumeErr error
	launchOut  *jobs.Outcome
	launchErr  error
	pollJob    *domain.Job
	pollErr    error

	refunds []string
	reasons []string
}

func (w *fakeWorld) record(ev string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
}

func (w *fakeWorld) Upload(ctx context.Context, f staging.File, prefix string) (*domain.UploadDescriptor, error) {
	w.record("upload:" + f.Name)
	if w.uploadErr != nil {
		return nil, w.uploadErr
	}
	return &domain.UploadDescriptor{Key: prefix + "/" + staging.SanitizeFilename(f.Name)}, nil
}

func (w *fakeWorld) Consume(ctx context.Context, identity string) (*domain.Receipt, error) {
	w.record("consume")
	if w.consumeErr != nil {
		return nil, w.consumeErr
	}
	return &domain.Receipt{UsageID: "u1"}, nil
}

func (w *fakeWorld) Refund(ctx context.Context, receipt *domain.Receipt, reason string) {
	w.record("refund")
	w.mu.Lock()
	defer w.mu.Unlock()
	if receipt != nil {
		w.refunds = append(w.refunds, receipt.UsageID)
	}
	w.reasons = append(w.reasons, reason)
}

func (w *fakeWorld) Launch(ctx context.Context, req domain.GenerationRequest) (*jobs.Outcome, error) {
	w.record("launch")
	if w.launchErr != nil {
		return nil, w.launchErr
	}
	if w.launchOut != nil {
		return w.launchOut, nil
	}
	return &jobs.Outcome{TaskID: "t1"}, nil
}

func (w *fakeWorld) Poll(ctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error) {
	w.record("poll")
	if w.pollErr != nil {
		return nil, w.pollErr
	}
	if w.pollJob != nil {
		return w.pollJob, nil
	}
	return &domain.Job{ID: taskID, State: domain.JobStateCompleted, Result: map[string]any{"output_url": "out.mp4"}}, nil
}

func newOrchestrator(w *fakeWorld) *Orchestrator {
	return New(Options{
		Uploads:  w,
		Admitter: w,
		Launcher: w,
		Poller:   w,
		Logger:   zerolog.Nop(),
	})
}

func voiceInputs(balance int) Inputs {
	return Inputs{
		Identity: "user@example.com",
		Balance:  balance,
		Kind:     domain.JobKindVoice,
		Script:   "hello there",
		RefAudio: &staging.File{Name: "ref.wav", ContentType: "audio/wav", Data: []byte("RIFF")},
	}
}

func TestRunHappyPathOrdering(t *testing.T) {
	w := &fakeWorld{}
	o := newOrchestrator(w)

	res, err := o.Run(context.Background(), voiceInputs(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OutputURL != "out.mp4" {
		t.Fatalf("OutputURL = %q", res.OutputURL)
	}
	if res.Request.RefAudioKey == "" {
		t.Fatalf("staged key missing from request: %+v", res.Request)
	}
	if o.Phase() != domain.PhaseSucceeded {
		t.Fatalf("Phase = %q", o.Phase())
	}
	want := []string{"upload:ref.wav", "consume", "launch", "poll"}
	if len(w.events) != len(want) {
		t.Fatalf("events = %v", w.events)
	}
	for i, ev := range want {
		if w.events[i] != ev {
			t.Fatalf("events[%d] = %q, want %q (%v)", i, w.events[i], ev, w.events)
		}
	}
}

func TestRunZeroBalanceFailsFast(t *testing.T) {
	w := &fakeWorld{}
	o := newOrchestrator(w)

	_, err := o.Run(context.Background(), voiceInputs(0))
	if !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
	if len(w.events) != 0 {
		t.Fatalf("no remote calls expected, got %v", w.events)
	}
	if o.Phase() != domain.PhaseFailed {
		t.Fatalf("Phase = %q", o.Phase())
	}
}

func TestRunValidationFailsWithoutRemoteCalls(t *testing.T) {
	w := &fakeWorld{}
	o := newOrchestrator(w)

	_, err := o.Run(context.Background(), Inputs{Identity: "u", Balance: 1, Kind: domain.JobKindFaceswap})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(w.events) != 0 {
		t.Fatalf("no remote calls expected, got %v", w.events)
	}
}

func TestRunJobFailureRefundsOnce(t *testing.T) {
	w := &fakeWorld{pollErr: &domain.JobFailedError{JobID: "t1", Detail: "oom"}}
	o := newOrchestrator(w)

	_, err := o.Run(context.Background(), voiceInputs(2))
	var jfe *domain.JobFailedError
	if !errors.As(err, &jfe) || jfe.Detail != "oom" {
		t.Fatalf("expected JobFailedError(oom), got %v", err)
	}
	if len(w.refunds) != 1 || w.refunds[0] != "u1" {
		t.Fatalf("refund calls = %v", w.refunds)
	}
	if w.reasons[0] != "pipeline_failed" {
		t.Fatalf("reason = %q", w.reasons[0])
	}
	if o.Phase() != domain.PhaseFailed {
		t.Fatalf("Phase = %q", o.Phase())
	}
}

func TestRunPollTimeoutRefunds(t *testing.T) {
	w := &fakeWorld{pollErr: &domain.PollTimeoutError{JobID: "t1", Attempts: 240}}
	o := newOrchestrator(w)

	_, err := o.Run(context.Background(), voiceInputs(2))
	var pte *domain.PollTimeoutError
	if !errors.As(err, &pte) {
		t.Fatalf("expected PollTimeoutError, got %v", err)
	}
	if len(w.refunds) != 1 {
		t.Fatalf("refund calls = %v", w.refunds)
	}
}

func TestRunLaunchErrorRefunds(t *testing.T) {
	w := &fakeWorld{launchErr: &domain.LaunchError{}}
	o := newOrchestrator(w)

	_, err := o.Run(context.Background(), voiceInputs(2))
	var le *domain.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if len(w.refunds) != 1 {
		t.Fatalf("refund calls = %v", w.refunds)
	}
}

func TestRunImmediateResultSkipsPolling(t *testing.T) {
	w := &fakeWorld{launchOut: &jobs.Outcome{Result: map[string]any{"result": map[string]any{"output_url": "https://x/y.mp4"}}}}
	o := newOrchestrator(w)

	res, err := o.Run(context.Background(), voiceInputs(2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OutputURL != "https://x/y.mp4" {
		t.Fatalf("OutputURL = %q", res.OutputURL)
	}
	for _, ev := range w.events {
		if ev == "poll" {
			t.Fatalf("polling should be skipped: %v", w.events)
		}
	}
}

func TestRunCompletedWithoutOutputRefunds(t *testing.T) {
	w := &fakeWorld{pollJob: &domain.Job{ID: "t1", State: domain.JobStateCompleted, Result: map[string]any{"telemetry": "only"}}}
	o := newOrchestrator(w)

	_, err := o.Run(context.Background(), voiceInputs(2))
	var ure *domain.UnresolvedResultError
	if !errors.As(err, &ure) {
		t.Fatalf("expected UnresolvedResultError, got %v", err)
	}
	if len(w.refunds) != 1 {
		t.Fatalf("refund calls = %v", w.refunds)
	}
}

func TestRunUploadFailureNeedsNoCompensation(t *testing.T) {
	w := &fakeWorld{uploadErr: &domain.UploadError{Key: "k", Err: errors.New("denied")}}
	o := newOrchestrator(w)

	_, err := o.Run(context.Background(), voiceInputs(2))
	var ue *domain.UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	for _, ev := range w.events {
		if ev == "consume" || ev == "refund" {
			t.Fatalf("no admission activity expected: %v", w.events)
		}
	}
}

func TestRunConsumeFailureNeedsNoRefund(t *testing.T) {
	w := &fakeWorld{consumeErr: domain.ErrInsufficientCredit}
	o := newOrchestrator(w)

	_, err := o.Run(context.Background(), voiceInputs(2))
	if !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
	if len(w.refunds) != 0 {
		t.Fatalf("refund must not be called: %v", w.refunds)
	}
	for _, ev := range w.events {
		if ev == "launch" {
			t.Fatalf("launch must not happen after failed consume: %v", w.events)
		}
	}
}

func TestRunCancellationAfterConsumeStillRefunds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &fakeWorld{}
	o := New(Options{
		Uploads:  w,
		Admitter: w,
		Launcher: w,
		Poller: pollerFunc(func(pctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error) {
			cancel()
			return nil, pctx.Err()
		}),
		Logger: zerolog.Nop(),
	})

	_, err := o.Run(ctx, voiceInputs(2))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(w.refunds) != 1 || w.refunds[0] != "u1" {
		t.Fatalf("refund expected despite cancellation: %v", w.refunds)
	}
}

type pollerFunc func(ctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error)

func (f pollerFunc) Poll(ctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error) {
	return f(ctx, kind, taskID)
}

func TestRunSingleFlight(t *testing.T) {
	w := &fakeWorld{}
	release := make(chan struct{})
	o := New(Options{
		Uploads:  w,
		Admitter: w,
		Launcher: w,
		Poller: pollerFunc(func(ctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error) {
			<-release
			return &domain.Job{ID: taskID, State: domain.JobStateCompleted, Result: map[string]any{"output_url": "out"}}, nil
		}),
		Logger: zerolog.Nop(),
	})

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), voiceInputs(2))
		done <- err
	}()

	// Wait for the first attempt to reach the poller.
	deadline := time.After(2 * time.Second)
	for o.Phase() != domain.PhaseRunning {
		select {
		case <-deadline:
			t.Fatalf("first attempt never reached running phase")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := o.Run(context.Background(), voiceInputs(2))
	if !errors.Is(err, domain.ErrAttemptInFlight) {
		t.Fatalf("expected ErrAttemptInFlight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}
}
