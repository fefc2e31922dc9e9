package core

import (
	"time"

	"github.com/google/uuid"
)

// PhaseErrorEntry records a single failure of a phase attempt.
type PhaseErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
}

// PhaseOutputs holds the artifacts a completed phase reports.
type PhaseOutputs struct {
	Files       []string `json:"files,omitempty"`
	Directories []string `json:"directories,omitempty"`
}

// PhaseState is the persisted per-phase progress record.
type PhaseState struct {
	Status      PhaseStatus            `json:"status"`
	StartTime   *time.Time             `json:"start_time,omitempty"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
	Duration    time.Duration          `json:"duration,omitempty"`
	Attempts    int                    `json:"attempts"`
	Outputs     *PhaseOutputs          `json:"outputs,omitempty"`
	Errors      []PhaseErrorEntry      `json:"errors,omitempty"`
	Metrics     map[string]interface{} `json:"metrics,omitempty"`
	ContextHash string                 `json:"context_hash,omitempty"`
}

// PipelineContext identifies the content unit the pipeline is working on.
type PipelineContext struct {
	BookID       string `json:"book_id,omitempty"`
	MetadataFile string `json:"metadata_file,omitempty"`
	WorkflowMode string `json:"workflow_mode,omitempty"`
}

// CheckpointSummary is the state-file record of a created checkpoint.
// The full manifest lives inside the checkpoint directory.
type CheckpointSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Label     string    `json:"label,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Size      int64     `json:"size"`
}

// PipelineMetrics aggregates timing across the run.
type PipelineMetrics struct {
	TotalTime  time.Duration            `json:"total_time"`
	PhaseTimes map[string]time.Duration `json:"phase_times,omitempty"`
}

// PipelineState is the mutable, persisted record of pipeline progress.
// It is owned by a single orchestrator instance; the only process-wide
// surface is the persisted file, mediated by the Locker.
type PipelineState struct {
	SessionID    string                 `json:"session_id"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	CurrentPhase string                 `json:"current_phase,omitempty"`
	Phases       map[string]*PhaseState `json:"phases"`
	Context      PipelineContext        `json:"context"`
	Checkpoints  []CheckpointSummary    `json:"checkpoints,omitempty"`
	Metrics      PipelineMetrics        `json:"metrics"`

	// Set only when the state was replaced from a checkpoint snapshot.
	RestoredFrom string     `json:"restored_from,omitempty"`
	RestoredAt   *time.Time `json:"restored_at,omitempty"`
}

// NewPipelineState creates a fresh state with a generated session id
// and every named phase seeded at pending.
func NewPipelineState(phaseNames []string) *PipelineState {
	now := time.Now().UTC()
	phases := make(map[string]*PhaseState, len(phaseNames))
	for _, name := range phaseNames {
		phases[name] = &PhaseState{Status: PhaseStatusPending}
	}
	return &PipelineState{
		SessionID: uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Phases:    phases,
		Metrics:   PipelineMetrics{PhaseTimes: make(map[string]time.Duration)},
	}
}

// Phase returns the state record for name, creating a pending record
// if none exists yet.
func (s *PipelineState) Phase(name string) *PhaseState {
	if s.Phases == nil {
		s.Phases = make(map[string]*PhaseState)
	}
	ps, ok := s.Phases[name]
	if !ok {
		ps = &PhaseState{Status: PhaseStatusPending}
		s.Phases[name] = ps
	}
	return ps
}

// PhaseStatusOf returns the status of name, or pending when the phase
// has no record yet.
func (s *PipelineState) PhaseStatusOf(name string) PhaseStatus {
	if ps, ok := s.Phases[name]; ok {
		return ps.Status
	}
	return PhaseStatusPending
}

// InProgressPhase returns the name of the phase currently in progress,
// or empty string if none.
func (s *PipelineState) InProgressPhase() string {
	for name, ps := range s.Phases {
		if ps.Status == PhaseStatusInProgress {
			return name
		}
	}
	return ""
}

// Touch bumps the updated_at timestamp.
func (s *PipelineState) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the state. Checkpoint snapshots and
// restore previews operate on clones so callers can never alias the
// live state by accident.
func (s *PipelineState) Clone() *PipelineState {
	out := *s
	out.Phases = make(map[string]*PhaseState, len(s.Phases))
	for name, ps := range s.Phases {
		cp := *ps
		if ps.StartTime != nil {
			t := *ps.StartTime
			cp.StartTime = &t
		}
		if ps.EndTime != nil {
			t := *ps.EndTime
			cp.EndTime = &t
		}
		if ps.Outputs != nil {
			o := PhaseOutputs{
				Files:       append([]string(nil), ps.Outputs.Files...),
				Directories: append([]string(nil), ps.Outputs.Directories...),
			}
			cp.Outputs = &o
		}
		cp.Errors = append([]PhaseErrorEntry(nil), ps.Errors...)
		if ps.Metrics != nil {
			cp.Metrics = make(map[string]interface{}, len(ps.Metrics))
			for k, v := range ps.Metrics {
				cp.Metrics[k] = v
			}
		}
		out.Phases[name] = &cp
	}
	out.Checkpoints = append([]CheckpointSummary(nil), s.Checkpoints...)
	if s.Metrics.PhaseTimes != nil {
		out.Metrics.PhaseTimes = make(map[string]time.Duration, len(s.Metrics.PhaseTimes))
		for k, v := range s.Metrics.PhaseTimes {
			out.Metrics.PhaseTimes[k] = v
		}
	}
	if s.RestoredAt != nil {
		t := *s.RestoredAt
		out.RestoredAt = &t
	}
	return &out
}
