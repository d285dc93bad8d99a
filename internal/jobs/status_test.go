package jobs

import (
	"testing"

	"genpipe/internal/domain"
)

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.JobState
	}{
		{"IN_QUEUE", domain.JobStatePending},
		{"pending", domain.JobStatePending},
		{"IN_PROGRESS", domain.JobStateRunning},
		{"running", domain.JobStateRunning},
		{"COMPLETED", domain.JobStateCompleted},
		{"succeeded", domain.JobStateCompleted},
		{"FAILED", domain.JobStateFailed},
		{"CANCELLED", domain.JobStateFailed},
		{"TIMED_OUT", domain.JobStateFailed},
		{" completed ", domain.JobStateCompleted},
		{"", domain.JobStateRunning},
		{"warming_up", domain.JobStateRunning},
	}
	for _, tc := range tests {
		if got := NormalizeState(tc.raw); got != tc.want {
			t.Fatalf("NormalizeState(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	if !domain.JobStateCompleted.Terminal() || !domain.JobStateFailed.Terminal() {
		t.Fatalf("completed and failed must be terminal")
	}
	if domain.JobStatePending.Terminal() || domain.JobStateRunning.Terminal() {
		t.Fatalf("pending and running must not be terminal")
	}
}
