// Package pipeline composes staging, admission, launch, polling and result
// resolution into the end-to-end generation workflow, and owns the decision
// to reverse a credit charge when an admitted attempt fails.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genpipe/internal/admission"
	"genpipe/internal/domain"
	"genpipe/internal/jobs"
	"genpipe/internal/staging"
)

// Uploader stages one input file into object storage.
type Uploader interface {
	Upload(ctx context.Context, f staging.File, prefix string) (*domain.UploadDescriptor, error)
}

// Admitter consumes one credit per attempt and refunds it best-effort.
type Admitter interface {
	Consume(ctx context.Context, identity string) (*domain.Receipt, error)
	Refund(ctx context.Context, receipt *domain.Receipt, reason string)
}

// Launcher submits a generation request.
type Launcher interface {
	Launch(ctx context.Context, req domain.GenerationRequest) (*jobs.Outcome, error)
}

// Poller drives a deferred job to a terminal state.
type Poller interface {
	Poll(ctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error)
}

// Warmer pokes a job runner so a cold worker starts early. Optional.
type Warmer interface {
	WarmUp(ctx context.Context, kind domain.JobKind) error
}

// Inputs is everything one attempt needs. Balance is the caller's freshly
// read ticket balance; the orchestrator checks it locally so a broke caller
// costs zero remote calls.
type Inputs struct {
	Identity string
	Balance  int
	Kind     domain.JobKind
	Script   string
	Target   *staging.File
	RefAudio *staging.File
	Sources  []staging.File
	Options  map[string]any
}

// Result is a successful attempt's outcome.
type Result struct {
	OutputURL string
	Job       *domain.Job
	Request   domain.GenerationRequest
}

// Orchestrator runs one generation attempt at a time through the phase
// machine Idle → Preparing → Uploading → Admitted → Running →
// {Succeeded, Failed}.
type Orchestrator struct {
	uploads  Uploader
	admitter Admitter
	launcher Launcher
	poller   Poller
	resolver jobs.Resolver
	warmer   Warmer
	logger   zerolog.Logger

	mu       sync.Mutex
	inFlight bool
	phase    domain.Phase
}

// Options wires the orchestrator's collaborators. Warmer may be nil.
type Options struct {
	Uploads  Uploader
	Admitter Admitter
	Launcher Launcher
	Poller   Poller
	Warmer   Warmer
	Logger   zerolog.Logger
}

// New constructs an orchestrator in the Idle phase.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		uploads:  opts.Uploads,
		admitter: opts.Admitter,
		launcher: opts.Launcher,
		poller:   opts.Poller,
		warmer:   opts.Warmer,
		logger:   opts.Logger,
		phase:    domain.PhaseIdle,
	}
}

// Phase reports the current phase of the most recent attempt.
func (o *Orchestrator) Phase() domain.Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p domain.Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Debug().Str("phase", string(p)).Msg("pipeline phase")
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return false
	}
	o.inFlight = true
	return true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

// Run drives one attempt end to end. Failures before a successful consume are
// reported as-is; failures after it trigger a best-effort refund first, and
// the original failure is always what the caller sees.
func (o *Orchestrator) Run(ctx context.Context, in Inputs) (*Result, error) {
	if !o.begin() {
		return nil, domain.ErrAttemptInFlight
	}
	defer o.end()

	o.setPhase(domain.PhasePreparing)
	if err := validate(in); err != nil {
		o.setPhase(domain.PhaseFailed)
		return nil, err
	}
	o.warmup(ctx, in.Kind)

	o.setPhase(domain.PhaseUploading)
	req, err := o.stageInputs(ctx, in)
	if err != nil {
		o.setPhase(domain.PhaseFailed)
		return nil, err
	}

	o.setPhase(domain.PhaseAdmitted)
	receipt, err := o.admitter.Consume(ctx, in.Identity)
	if err != nil {
		// Nothing was consumed; no compensation.
		o.setPhase(domain.PhaseFailed)
		return nil, err
	}

	o.setPhase(domain.PhaseRunning)
	result, err := o.execute(ctx, *req)
	if err != nil {
		return nil, o.fail(ctx, receipt, err)
	}
	result.Request = *req

	o.setPhase(domain.PhaseSucceeded)
	o.logger.Info().
		Str("kind", string(in.Kind)).
		Str("output", result.OutputURL).
		Msg("pipeline attempt succeeded")
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	out, err := o.launcher.Launch(ctx, req)
	if err != nil {
		return nil, err
	}
	if out.Immediate() {
		ref := jobs.FromMap(out.Result)
		if ref == "" {
			return nil, &domain.UnresolvedResultError{JobID: out.TaskID}
		}
		return &Result{OutputURL: ref}, nil
	}
	job, err := o.poller.Poll(ctx, req.Kind, out.TaskID)
	if err != nil {
		return nil, err
	}
	ref := o.resolver.Resolve(job)
	if ref == "" {
		return nil, &domain.UnresolvedResultError{JobID: job.ID}
	}
	return &Result{OutputURL: ref, Job: job}, nil
}

// fail compensates the held receipt and settles the attempt. The refund runs
// on a context detached from the attempt's so a caller-initiated cancel still
// reaches billing.
func (o *Orchestrator) fail(ctx context.Context, receipt *domain.Receipt, cause error) error {
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	o.admitter.Refund(refundCtx, receipt, admission.ReasonPipelineFailed)
	o.setPhase(domain.PhaseFailed)
	return cause
}

func (o *Orchestrator) stageInputs(ctx context.Context, in Inputs) (*domain.GenerationRequest, error) {
	req := &domain.GenerationRequest{
		Kind:    in.Kind,
		Script:  in.Script,
		Options: in.Options,
	}
	if in.Target != nil {
		desc, err := o.uploads.Upload(ctx, *in.Target, "uploads")
		if err != nil {
			return nil, err
		}
		req.TargetKey = desc.Key
	}
	if in.RefAudio != nil {
		desc, err := o.uploads.Upload(ctx, *in.RefAudio, "uploads")
		if err != nil {
			return nil, err
		}
		req.RefAudioKey = desc.Key
	}
	for _, src := range in.Sources {
		desc, err := o.uploads.Upload(ctx, src, "uploads")
		if err != nil {
			return nil, err
		}
		req.SourceKeys = append(req.SourceKeys, desc.Key)
	}
	return req, nil
}

// warmup fires an independent, non-blocking poke at the runner. Its outcome
// never affects the attempt.
func (o *Orchestrator) warmup(ctx context.Context, kind domain.JobKind) {
	if o.warmer == nil {
		return
	}
	warmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	go func() {
		defer cancel()
		if err := o.warmer.WarmUp(warmCtx, kind); err != nil {
			o.logger.Debug().Str("kind", string(kind)).Err(err).Msg("warmup failed")
		}
	}()
}

func validate(in Inputs) error {
	if in.Identity == "" {
		return &domain.ValidationError{Reason: "missing identity"}
	}
	if !in.Kind.Valid() {
		return &domain.ValidationError{Reason: fmt.Sprintf("unsupported job kind %q", in.Kind)}
	}
	if in.Balance <= 0 {
		return fmt.Errorf("pipeline: %w", domain.ErrInsufficientCredit)
	}
	switch in.Kind {
	case domain.JobKindVoice:
		if in.RefAudio == nil {
			return &domain.ValidationError{Reason: "voice generation requires reference audio"}
		}
		if in.Script == "" {
			return &domain.ValidationError{Reason: "voice generation requires script text"}
		}
	case domain.JobKindLipsync:
		if in.Target == nil {
			return &domain.ValidationError{Reason: "lipsync requires a target video"}
		}
		if in.RefAudio == nil && in.Script == "" {
			return &domain.ValidationError{Reason: "lipsync requires reference audio or script text"}
		}
	case domain.JobKindFaceswap:
		if in.Target == nil {
			return &domain.ValidationError{Reason: "faceswap requires a target video"}
		}
		if len(in.Sources) == 0 {
			return &domain.ValidationError{Reason: "faceswap requires at least one source image"}
		}
	}
	return nil
}
