package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrAttemptInFlight    = errors.New("attempt already in flight")
	ErrNoSession          = errors.New("no session")
)

// ValidationError reports a local precondition failure. It never involves a
// remote call and never requires compensation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// TransportError reports that a request exhausted its retry budget. It carries
// only the last attempt's failure.
type TransportError struct {
	Attempts int
	Last     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %d attempts exhausted: %v", e.Attempts, e.Last)
}

func (e *TransportError) Unwrap() error { return e.Last }

// UploadError reports a failed staging write.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// LaunchError reports a run response that carried neither an output reference
// nor a job identifier.
type LaunchError struct {
	Detail string
}

func (e *LaunchError) Error() string {
	if e.Detail == "" {
		return "launch: response had no result and no task id"
	}
	return "launch: " + e.Detail
}

// PollTimeoutError reports that a job never reached a terminal state within
// the polling budget.
type PollTimeoutError struct {
	JobID    string
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("poll: job %s not terminal after %d attempts", e.JobID, e.Attempts)
}

// JobFailedError reports a terminal failed job, with upstream detail when the
// runner supplied any.
type JobFailedError struct {
	JobID  string
	Detail string
	Raw    map[string]any
}

func (e *JobFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Detail)
}

// UnresolvedResultError reports a completed job whose result carried no usable
// output reference.
type UnresolvedResultError struct {
	JobID string
}

func (e *UnresolvedResultError) Error() string {
	return fmt.Sprintf("job %s completed but no usable output", e.JobID)
}
