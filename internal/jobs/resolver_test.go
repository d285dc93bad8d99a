package jobs

import (
	"testing"

	"genpipe/internal/domain"
)

func TestResolvePrefersKindSpecificField(t *testing.T) {
	job := &domain.Job{
		ID:    "t1",
		State: domain.JobStateCompleted,
		Result: map[string]any{
			"sovits":     map[string]any{"output_url": "A"},
			"output_url": "B",
		},
	}
	if got := (Resolver{}).Resolve(job); got != "A" {
		t.Fatalf("Resolve = %q, want A", got)
	}
}

func TestResolveFallbackChain(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
		want   string
	}{
		{
			name:   "wav2lip before generic",
			result: map[string]any{"wav2lip": map[string]any{"output_url": "lip"}, "url": "generic"},
			want:   "lip",
		},
		{
			name:   "facefusion output",
			result: map[string]any{"facefusion": map[string]any{"output_url": "face"}},
			want:   "face",
		},
		{
			name:   "stage public url",
			result: map[string]any{"wav2lip": map[string]any{"public_url": "pub"}},
			want:   "pub",
		},
		{
			name:   "generic audio url",
			result: map[string]any{"audio_url": "voice.wav"},
			want:   "voice.wav",
		},
		{
			name:   "nested result payload",
			result: map[string]any{"result": map[string]any{"output_url": "nested"}},
			want:   "nested",
		},
		{
			name:   "nested output payload",
			result: map[string]any{"output": map[string]any{"video_url": "deep"}},
			want:   "deep",
		},
		{
			name:   "plain output string",
			result: map[string]any{"output": "plain"},
			want:   "plain",
		},
		{
			name:   "empty result",
			result: nil,
			want:   "",
		},
		{
			name:   "unknown shape",
			result: map[string]any{"telemetry": map[string]any{"frames": 42.0}},
			want:   "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromMap(tc.result); got != tc.want {
				t.Fatalf("FromMap = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveNilJob(t *testing.T) {
	if got := (Resolver{}).Resolve(nil); got != "" {
		t.Fatalf("Resolve(nil) = %q", got)
	}
}
