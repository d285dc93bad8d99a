package jobs

import "genpipe/internal/domain"

// resultPaths is the ordered fallback chain over known result shapes, most
// job-kind-specific first. Each path walks nested maps; the first non-empty
// string wins.
var resultPaths = [][]string{
	{"sovits", "output_url"},
	{"sovits", "audio_url"},
	{"wav2lip", "output_url"},
	{"facefusion", "output_url"},
	{"wav2lip", "public_url"},
	{"facefusion", "public_url"},
	{"output_url"},
	{"audio_url"},
	{"video_url"},
	{"public_url"},
	{"url"},
	{"output"},
}

// Resolver extracts a canonical output reference from a job record.
type Resolver struct{}

// Resolve returns the job's output reference, or "" when no known field is
// present. A completed job resolving to "" is the orchestrator's cue to fail
// the attempt.
func (Resolver) Resolve(job *domain.Job) string {
	if job == nil {
		return ""
	}
	return FromMap(job.Result)
}

// FromMap applies the fallback chain to an arbitrary result payload. The
// launcher uses it to detect immediate results in run responses.
func FromMap(result map[string]any) string {
	if len(result) == 0 {
		return ""
	}
	for _, path := range resultPaths {
		if v := walk(result, path); v != "" {
			return v
		}
	}
	// Run responses sometimes nest the payload one level down.
	if nested, ok := result["result"].(map[string]any); ok {
		return FromMap(nested)
	}
	if nested, ok := result["output"].(map[string]any); ok {
		return FromMap(nested)
	}
	return ""
}

func walk(m map[string]any, path []string) string {
	cur := any(m)
	for _, field := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = node[field]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}
