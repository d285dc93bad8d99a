package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"genpipe/internal/domain"
)

// Runner submits a generation request and returns the raw run response.
type Runner interface {
	Run(ctx context.Context, req domain.GenerationRequest) (map[string]any, error)
}

// Outcome is a normalized run response: either an immediate result payload or
// a task id to poll.
type Outcome struct {
	TaskID string
	Result map[string]any
}

// Immediate reports whether the run already produced an output and polling
// can be skipped.
func (o *Outcome) Immediate() bool {
	return o != nil && len(o.Result) > 0
}

// Launcher submits generation requests and normalizes the polymorphic run
// response.
type Launcher struct {
	runner Runner
	logger zerolog.Logger
}

// NewLauncher constructs a launcher around the given runner.
func NewLauncher(runner Runner, logger zerolog.Logger) *Launcher {
	return &Launcher{runner: runner, logger: logger}
}

// Launch submits the request. A response carrying a ready output reference is
// returned as an immediate outcome; otherwise the response must carry a task
// id, and a response with neither is a *domain.LaunchError.
func (l *Launcher) Launch(ctx context.Context, req domain.GenerationRequest) (*Outcome, error) {
	resp, err := l.runner.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", req.Kind, err)
	}
	if ref := FromMap(resp); ref != "" {
		l.logger.Debug().Str("kind", string(req.Kind)).Str("output", ref).Msg("run completed inline")
		return &Outcome{Result: resp}, nil
	}
	if id := taskID(resp); id != "" {
		l.logger.Debug().Str("kind", string(req.Kind)).Str("task_id", id).Msg("run deferred")
		return &Outcome{TaskID: id}, nil
	}
	return nil, &domain.LaunchError{Detail: fmt.Sprintf("run response for %s had no result and no task id", req.Kind)}
}

func taskID(resp map[string]any) string {
	for _, key := range []string{"task_id", "id", "jobId", "job_id"} {
		if v, ok := resp[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
