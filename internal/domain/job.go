package domain

// JobKind enumerates the remote generation job categories.
type JobKind string

const (
	JobKindVoice    JobKind = "voice"
	JobKindLipsync  JobKind = "lipsync"
	JobKindFaceswap JobKind = "faceswap"
)

// Valid reports whether the kind names a known job category.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindVoice, JobKindLipsync, JobKindFaceswap:
		return true
	}
	return false
}

// JobState enumerates the canonical job lifecycle states. Upstream runners
// report a wider vocabulary; see jobs.NormalizeState for the mapping.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether no further transition can occur from the state.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Job is the orchestrator's read-only view of a remote job record. Result and
// Error are kept untyped; their shape varies per job kind and is interpreted
// through the ordered fallback in jobs.Resolver.
type Job struct {
	ID     string         `json:"id"`
	Kind   JobKind        `json:"kind,omitempty"`
	State  JobState       `json:"state"`
	Stage  string         `json:"stage,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Error  map[string]any `json:"error,omitempty"`
}

// UploadDescriptor grants temporary write access to one storage object. Key is
// storage-relative and doubles as the job input reference after the write.
type UploadDescriptor struct {
	Key       string `json:"key"`
	WriteURL  string `json:"write_url"`
	PublicURL string `json:"public_url,omitempty"`
}

// Receipt proves a successful credit consumption. The orchestrator holds at
// most one per active attempt and retires it once the attempt settles.
type Receipt struct {
	UsageID string `json:"usage_id"`
}

// GenerationRequest is the immutable job submission payload: staged input
// keys, free-form script text and per-kind tuning options.
type GenerationRequest struct {
	Kind        JobKind        `json:"kind"`
	TargetKey   string         `json:"target_key,omitempty"`
	RefAudioKey string         `json:"reference_audio_key,omitempty"`
	SourceKeys  []string       `json:"source_keys,omitempty"`
	Script      string         `json:"script,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// Phase tracks the orchestrator's own progress through one attempt.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePreparing Phase = "preparing"
	PhaseUploading Phase = "uploading"
	PhaseAdmitted  Phase = "admitted"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)
