package core

import "context"

// =============================================================================
// Locker Port
// =============================================================================

// Locker provides scoped mutual exclusion over the persisted state
// file. WithLock acquires exclusive access, runs fn, and guarantees
// release on both normal return and error. No state-file write may
// happen outside a WithLock scope.
type Locker interface {
	WithLock(ctx context.Context, fn func() error) error
}

// =============================================================================
// StateStore Port
// =============================================================================

// StateStore persists PipelineState. Implementations must write
// atomically; callers are responsible for holding the lock.
type StateStore interface {
	// Load reads the persisted state. Returns (nil, nil) when no
	// state file exists yet.
	Load(ctx context.Context) (*PipelineState, error)

	// Save persists the state.
	Save(ctx context.Context, state *PipelineState) error

	// Exists reports whether a state file is present.
	Exists() bool
}

// =============================================================================
// CommandRunner Port
// =============================================================================

// RunResult contains the output of a spawned command.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner executes external commands for pre-checks, post-hooks
// and tool lookups. Injecting it keeps the orchestrator free of direct
// process-spawning concerns and testable with a fake.
type CommandRunner interface {
	Run(ctx context.Context, command string) (*RunResult, error)
}

// =============================================================================
// Trash Port
// =============================================================================

// Trash moves paths aside instead of deleting them. Best-effort:
// callers log failures as warnings and continue.
type Trash interface {
	MoveToTrash(path string) error
}
