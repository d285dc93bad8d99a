package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"genpipe/internal/domain"
)

// StatusReader fetches one job record by id.
type StatusReader interface {
	Status(ctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error)
}

const (
	defaultPollBase      = 3 * time.Second
	defaultPollIncrement = 250 * time.Millisecond
	defaultPollAttempts  = 240
)

// Poller queries job status until a terminal state or until its attempt
// budget is exhausted. The delay grows a little each round (base + n*increment)
// so the cadence is not a fixed busy-poll; with the defaults the horizon is
// about sixteen minutes.
type Poller struct {
	reader      StatusReader
	logger      zerolog.Logger
	Base        time.Duration
	Increment   time.Duration
	MaxAttempts int

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller constructs a poller with the default schedule.
func NewPoller(reader StatusReader, logger zerolog.Logger) *Poller {
	return &Poller{
		reader:      reader,
		logger:      logger,
		Base:        defaultPollBase,
		Increment:   defaultPollIncrement,
		MaxAttempts: defaultPollAttempts,
		sleep:       sleepCtx,
	}
}

// Poll drives the job to a terminal state. It returns the completed record,
// a *domain.JobFailedError on terminal failure, or a *domain.PollTimeoutError
// when the budget runs out first.
func (p *Poller) Poll(ctx context.Context, kind domain.JobKind, taskID string) (*domain.Job, error) {
	max := p.MaxAttempts
	if max < 1 {
		max = defaultPollAttempts
	}
	for attempt := 1; attempt <= max; attempt++ {
		job, err := p.reader.Status(ctx, kind, taskID)
		if err != nil {
			return nil, fmt.Errorf("poll %s: %w", taskID, err)
		}
		switch job.State {
		case domain.JobStateCompleted:
			return job, nil
		case domain.JobStateFailed:
			return nil, &domain.JobFailedError{JobID: taskID, Detail: errorDetail(job.Error), Raw: job.Error}
		}
		p.logger.Debug().
			Str("task_id", taskID).
			Str("state", string(job.State)).
			Str("stage", job.Stage).
			Int("attempt", attempt).
			Msg("job not terminal yet")
		if attempt == max {
			break
		}
		delay := p.Base + time.Duration(attempt)*p.Increment
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, &domain.PollTimeoutError{JobID: taskID, Attempts: max}
}

func errorDetail(errMap map[string]any) string {
	for _, key := range []string{"detail", "message", "error"} {
		if v, ok := errMap[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
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
