// Package jobs covers the remote job lifecycle: launching a generation
// request, polling it to a terminal state and resolving the output reference
// out of the heterogeneous result payloads the runners return.
package jobs

import (
	"strings"

	"genpipe/internal/domain"
)

// NormalizeState maps the upstream runner state vocabulary onto the four
// canonical states. Unknown values count as running so the poller keeps
// going until its budget runs out.
func NormalizeState(raw string) domain.JobState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IN_QUEUE", "QUEUED", "PENDING":
		return domain.JobStatePending
	case "COMPLETED", "COMPLETED_SUCCESS", "SUCCEEDED", "SUCCESS", "DONE":
		return domain.JobStateCompleted
	case "FAILED", "FAILED_INTERNAL", "CANCELLED", "CANCELED", "ERROR", "TIMED_OUT":
		return domain.JobStateFailed
	default:
		return domain.JobStateRunning
	}
}
