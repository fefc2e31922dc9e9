// Package pipeline is the orchestrator of the phase state machine. It
// owns the persisted PipelineState: every operation loads the state,
// mutates it, and persists it inside a single lock scope, so two
// processes sharing a state file interleave safely.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/inkwell-press/inkwell/internal/checkpoint"
	"github.com/inkwell-press/inkwell/internal/core"
	"github.com/inkwell-press/inkwell/internal/logging"
	"github.com/inkwell-press/inkwell/internal/rules"
	"github.com/inkwell-press/inkwell/internal/validate"
)

// Manager drives phases through their lifecycle according to the
// workflow rules. It never executes phase work itself; callers do the
// work and report start, completion, or failure.
type Manager struct {
	doc         *rules.Document
	store       core.StateStore
	lock        core.Locker
	validator   *validate.Validator
	checkpoints *checkpoint.Manager
	runner      core.CommandRunner
	log         *logging.Logger
	workdir     string
	now         func() time.Time

	// metadataFile tracks the last loaded state's metadata path so
	// the validator's context fingerprint matches completePhase's.
	metadataFile string
}

// New creates an orchestrator. The checkpoint manager must share the
// same workdir; it is called only from inside this manager's lock
// scopes and stays lock-free internally.
func New(doc *rules.Document, store core.StateStore, lock core.Locker, checkpoints *checkpoint.Manager, runner core.CommandRunner, log *logging.Logger, workdir string) *Manager {
	m := &Manager{
		doc:         doc,
		store:       store,
		lock:        lock,
		checkpoints: checkpoints,
		runner:      runner,
		log:         log,
		workdir:     workdir,
		now:         time.Now,
	}
	m.validator = validate.New(doc, runner, log, workdir,
		validate.WithContextHash(m.currentContextHash))
	return m
}

func (m *Manager) currentContextHash() string {
	return ContextHash(m.workdir, m.metadataFile, m.doc.ContextFiles)
}

// load fetches the persisted state; callers must hold the lock. A
// missing state file is an error for every operation except Init.
func (m *Manager) load(ctx context.Context) (*core.PipelineState, error) {
	st, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, core.ErrState("STATE_MISSING", "no pipeline state found, run init first")
	}
	m.metadataFile = st.Context.MetadataFile
	return st, nil
}

// Init loads the existing pipeline state or creates a fresh one seeded
// with every phase of the execution order at pending. The checkpoint
// directory is created either way.
func (m *Manager) Init(ctx context.Context, pctx core.PipelineContext) (*core.PipelineState, error) {
	var st *core.PipelineState
	err := m.lock.WithLock(ctx, func() error {
		if err := m.checkpoints.EnsureDir(); err != nil {
			return fmt.Errorf("ensuring checkpoint directory: %w", err)
		}
		loaded, err := m.store.Load(ctx)
		if err != nil {
			return err
		}
		if loaded != nil {
			st = loaded
			m.metadataFile = st.Context.MetadataFile
			m.log.WithSession(st.SessionID).Debug("resuming existing pipeline state")
			return nil
		}
		st = core.NewPipelineState(m.doc.ExecutionOrder)
		st.Context = pctx
		m.metadataFile = pctx.MetadataFile
		if err := m.store.Save(ctx, st); err != nil {
			return err
		}
		m.log.WithSession(st.SessionID).Info("pipeline initialized",
			"phases", len(m.doc.ExecutionOrder),
			"book", pctx.BookID,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// StartPhase validates and starts a phase. Invalid phases raise one
// aggregated error carrying every reason; skipped optional phases log
// and return without mutating anything. A successful start counts an
// attempt and makes the phase the single in-progress one.
func (m *Manager) StartPhase(ctx context.Context, name string) error {
	return m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}

		res := m.validator.ValidatePhase(ctx, name, st)
		m.logWarnings(name, res.Warnings)
		if res.Skip {
			m.log.WithPhase(name).Info("phase skipped")
			return nil
		}
		if !res.Valid {
			return core.NewValidationError(name, res.Errors, res.Warnings)
		}

		if m.doc.Global.AutoCheckpoint {
			if _, err := m.checkpoints.Create(ctx, st, "before-"+name); err != nil {
				return fmt.Errorf("auto checkpoint before %s: %w", name, err)
			}
		}

		now := m.now().UTC()
		ps := st.Phase(name)
		ps.Status = core.PhaseStatusInProgress
		ps.StartTime = &now
		ps.EndTime = nil
		ps.Duration = 0
		ps.Attempts++
		ps.Outputs = nil
		ps.Errors = nil
		ps.Metrics = nil
		st.CurrentPhase = name

		if err := m.store.Save(ctx, st); err != nil {
			return err
		}
		m.log.WithPhase(name).Info("phase started", "attempt", ps.Attempts)
		return nil
	})
}

// CompletePhase finishes the in-progress phase. Output validation
// failures raise an aggregated error and leave the phase in progress
// with attempts unchanged, so the caller can fix the outputs and
// complete again without being charged an attempt.
func (m *Manager) CompletePhase(ctx context.Context, name string, outputs *core.PhaseOutputs, metrics map[string]interface{}) error {
	return m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}
		ps := st.Phase(name)
		if ps.Status != core.PhaseStatusInProgress {
			return core.ErrState("PHASE_NOT_RUNNING",
				fmt.Sprintf("phase %q is %s, only an in-progress phase can complete", name, ps.Status))
		}

		res := m.validator.ValidatePhaseOutputs(name, outputs)
		m.logWarnings(name, res.Warnings)
		if !res.Valid {
			return core.NewValidationError(name, res.Errors, res.Warnings)
		}

		now := m.now().UTC()
		ps.Status = core.PhaseStatusCompleted
		ps.EndTime = &now
		if ps.StartTime != nil {
			ps.Duration = now.Sub(*ps.StartTime)
		}
		ps.Outputs = outputs
		ps.Metrics = metrics
		ps.ContextHash = m.currentContextHash()

		if st.Metrics.PhaseTimes == nil {
			st.Metrics.PhaseTimes = make(map[string]time.Duration)
		}
		st.Metrics.PhaseTimes[name] = ps.Duration
		st.Metrics.TotalTime += ps.Duration
		st.CurrentPhase = ""

		m.runPostHooks(ctx, name)

		if err := m.store.Save(ctx, st); err != nil {
			return err
		}
		m.log.WithPhase(name).Info("phase completed",
			"duration", ps.Duration,
			"context_hash", ps.ContextHash,
		)
		return nil
	})
}

// FailPhase records a failure of the in-progress phase. The phase
// becomes retryable while attempts remain under the retry budget,
// terminal once the budget is exhausted. Retrying is always the
// caller's move via another StartPhase.
func (m *Manager) FailPhase(ctx context.Context, name, message string) error {
	return m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}
		ps := st.Phase(name)
		if ps.Status != core.PhaseStatusInProgress {
			return core.ErrState("PHASE_NOT_RUNNING",
				fmt.Sprintf("phase %q is %s, only an in-progress phase can fail", name, ps.Status))
		}

		now := m.now().UTC()
		ps.Errors = append(ps.Errors, core.PhaseErrorEntry{
			Timestamp: now,
			Message:   message,
		})
		ps.EndTime = &now
		st.CurrentPhase = ""

		if ps.Attempts < m.doc.RetryCount(name) {
			ps.Status = core.PhaseStatusPendingRetry
		} else {
			ps.Status = core.PhaseStatusFailed
		}

		if err := m.store.Save(ctx, st); err != nil {
			return err
		}
		m.log.WithPhase(name).Warn("phase failed",
			"attempt", ps.Attempts,
			"retry_count", m.doc.RetryCount(name),
			"status", ps.Status,
			"error", message,
		)
		return nil
	})
}

// NextPhases returns the phases eligible to start now, honoring
// dependency order and the allow_parallel switch.
func (m *Manager) NextPhases(ctx context.Context) ([]string, error) {
	var next []string
	err := m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}
		next = m.validator.NextPhases(st)
		return nil
	})
	return next, err
}

// Validate runs the start gate for a phase without mutating anything.
func (m *Manager) Validate(ctx context.Context, name string) (validate.Result, error) {
	var res validate.Result
	err := m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}
		res = m.validator.ValidatePhase(ctx, name, st)
		return nil
	})
	return res, err
}

// CreateCheckpoint snapshots the current state under an optional
// label and persists the updated checkpoint list.
func (m *Manager) CreateCheckpoint(ctx context.Context, label string) (core.CheckpointSummary, error) {
	var summary core.CheckpointSummary
	err := m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}
		summary, err = m.checkpoints.Create(ctx, st, label)
		if err != nil {
			return err
		}
		return m.store.Save(ctx, st)
	})
	return summary, err
}

// RestoreCheckpoint restores a checkpoint into the working tree and,
// when the state component is selected, swaps the live state for the
// snapshot. Dry runs return the preview and persist nothing.
func (m *Manager) RestoreCheckpoint(ctx context.Context, id string, opts checkpoint.RestoreOptions) (*checkpoint.Report, error) {
	var report *checkpoint.Report
	err := m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}
		rep, restored, err := m.checkpoints.Restore(ctx, id, opts, st)
		if err != nil {
			return err
		}
		report = rep
		if opts.DryRun {
			return nil
		}
		if restored != nil {
			st = restored
			m.metadataFile = st.Context.MetadataFile
		}
		return m.store.Save(ctx, st)
	})
	return report, err
}

// PruneCheckpoints applies the retention policy on demand and persists
// the surviving checkpoint list.
func (m *Manager) PruneCheckpoints(ctx context.Context) error {
	return m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}
		if err := m.checkpoints.Prune(st); err != nil {
			return err
		}
		return m.store.Save(ctx, st)
	})
}

// ListCheckpoints returns the on-disk checkpoint manifests, newest
// first.
func (m *Manager) ListCheckpoints() ([]*checkpoint.Manifest, error) {
	return m.checkpoints.List()
}

// CheckpointInfo returns one checkpoint's manifest.
func (m *Manager) CheckpointInfo(id string) (*checkpoint.Manifest, error) {
	return m.checkpoints.Info(id)
}

func (m *Manager) runPostHooks(ctx context.Context, name string) {
	phase := m.doc.Phase(name)
	if phase == nil {
		return
	}
	for _, hook := range phase.PostHooks {
		out, err := m.runner.Run(ctx, hook)
		switch {
		case err != nil:
			m.log.WithPhase(name).Warn("post-hook failed to run", "hook", hook, "error", err)
		case out.ExitCode != 0:
			m.log.WithPhase(name).Warn("post-hook exited non-zero",
				"hook", hook,
				"exit_code", out.ExitCode,
				"stderr", out.Stderr,
			)
		}
	}
}

func (m *Manager) logWarnings(name string, warnings []string) {
	for _, w := range warnings {
		m.log.WithPhase(name).Warn(w)
	}
}

// PhaseRow is one line of the status report, in execution order.
type PhaseRow struct {
	Name     string
	Status   core.PhaseStatus
	Attempts int
	Duration time.Duration
	Optional bool
}

// StatusReport summarizes pipeline progress. Optional phases appear in
// the rows but are excluded from the buckets and the percentage.
type StatusReport struct {
	SessionID    string
	CurrentPhase string
	Completed    []string
	Pending      []string
	Failed       []string
	Progress     int
	Rows         []PhaseRow
	TotalTime    time.Duration
	Checkpoints  int
	RestoredFrom string
}

// Status reads the state and buckets the non-optional phases into
// completed, pending and failed.
func (m *Manager) Status(ctx context.Context) (*StatusReport, error) {
	var report *StatusReport
	err := m.lock.WithLock(ctx, func() error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}
		report = m.buildStatus(st)
		return nil
	})
	return report, err
}

func (m *Manager) buildStatus(st *core.PipelineState) *StatusReport {
	report := &StatusReport{
		SessionID:    st.SessionID,
		CurrentPhase: st.CurrentPhase,
		TotalTime:    st.Metrics.TotalTime,
		Checkpoints:  len(st.Checkpoints),
		RestoredFrom: st.RestoredFrom,
	}

	total := 0
	for _, name := range m.doc.ExecutionOrder {
		phase := m.doc.Phase(name)
		optional := phase != nil && phase.Optional
		ps := st.Phase(name)
		report.Rows = append(report.Rows, PhaseRow{
			Name:     name,
			Status:   ps.Status,
			Attempts: ps.Attempts,
			Duration: ps.Duration,
			Optional: optional,
		})
		if optional {
			continue
		}
		total++
		switch ps.Status {
		case core.PhaseStatusCompleted:
			report.Completed = append(report.Completed, name)
		case core.PhaseStatusFailed:
			report.Failed = append(report.Failed, name)
		default:
			report.Pending = append(report.Pending, name)
		}
	}
	if total > 0 {
		report.Progress = int(math.Round(float64(len(report.Completed)) / float64(total) * 100))
	}
	return report
}
