// Package validate evaluates phase preconditions and completed-phase
// outputs against the workflow rules and current pipeline state.
// Checks are aggregated: a validation pass reports every problem it
// finds, never just the first.
package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkwell-press/inkwell/internal/core"
	"github.com/inkwell-press/inkwell/internal/fsutil"
	"github.com/inkwell-press/inkwell/internal/logging"
	"github.com/inkwell-press/inkwell/internal/rules"
	"github.com/inkwell-press/inkwell/internal/runner"
)

// Result is the outcome of a validation pass.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string

	// Skip is set for optional phases whose skip decision fired;
	// the orchestrator logs and returns without mutating state.
	Skip bool
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator checks phases against the rules document. It holds no
// mutable state of its own; two calls with identical filesystem and
// environment return identical results.
type Validator struct {
	doc     *rules.Document
	runner  core.CommandRunner
	log     *logging.Logger
	workdir string
	getenv  func(string) string
	hashFn  func() string
}

// Option configures optional Validator behavior.
type Option func(*Validator)

// WithGetenv overrides environment lookup (used in tests).
func WithGetenv(fn func(string) string) Option {
	return func(v *Validator) { v.getenv = fn }
}

// WithContextHash supplies the current context fingerprint for the
// context_sync blocking condition. Without it the condition never
// fires.
func WithContextHash(fn func() string) Option {
	return func(v *Validator) { v.hashFn = fn }
}

// New creates a validator rooted at workdir.
func New(doc *rules.Document, runner core.CommandRunner, log *logging.Logger, workdir string, opts ...Option) *Validator {
	v := &Validator{
		doc:     doc,
		runner:  runner,
		log:     log,
		workdir: workdir,
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidatePhase checks whether name may start given the current state.
// Order: skip decision, status gate, dependencies, blocking
// conditions, requirements, pre-checks. All failures are aggregated.
func (v *Validator) ValidatePhase(ctx context.Context, name string, st *core.PipelineState) Result {
	res := Result{Valid: true}

	phase := v.doc.Phase(name)
	if phase == nil {
		res.addError("unknown phase %q", name)
		return res
	}

	if phase.Optional && v.shouldSkip(ctx, phase) {
		res.Skip = true
		return res
	}

	// A phase that is already running, or terminally done, cannot be
	// started again. Retrying an in_progress phase requires an
	// explicit fail first.
	switch status := st.PhaseStatusOf(name); status {
	case core.PhaseStatusInProgress:
		res.addError("phase %q is already in progress", name)
	case core.PhaseStatusCompleted, core.PhaseStatusFailed:
		res.addError("phase %q is %s and cannot be restarted", name, status)
	}

	if running := st.InProgressPhase(); running != "" && running != name && !v.doc.Global.AllowParallel {
		res.addError("phase %q is in progress, complete or fail it before starting %q", running, name)
	}

	for _, pred := range v.doc.Predecessors(name) {
		if st.PhaseStatusOf(pred) != core.PhaseStatusCompleted {
			res.addError("dependency not met: phase %q must complete before %q", pred, name)
		}
	}

	v.checkBlockingConditions(st, &res)
	v.checkRequirements(ctx, phase, &res)
	v.runPreChecks(ctx, phase, &res)

	return res
}

func (v *Validator) shouldSkip(ctx context.Context, phase *rules.Phase) bool {
	if phase.SkipIf == "" {
		return false
	}
	out, err := v.runner.Run(ctx, phase.SkipIf)
	return err == nil && out.ExitCode == 0
}

func (v *Validator) checkBlockingConditions(st *core.PipelineState, res *Result) {
	if desc, ok := v.doc.HasCondition(rules.CondNoSkipPhases); ok {
		if gap := v.findCompletionGap(st); gap != "" {
			res.addError("blocking condition %s: %s (%s)", rules.CondNoSkipPhases, desc, gap)
		}
	}
	if desc, ok := v.doc.HasCondition(rules.CondQAMustPass); ok {
		if reason := v.qaFailureReason(st); reason != "" {
			res.addError("blocking condition %s: %s (%s)", rules.CondQAMustPass, desc, reason)
		}
	}
	if desc, ok := v.doc.HasCondition(rules.CondContextSync); ok && v.hashFn != nil {
		if drift := v.contextDrift(st); drift != "" {
			res.addError("blocking condition %s: %s (%s)", rules.CondContextSync, desc, drift)
		}
	}
}

// findCompletionGap detects a completed phase that ran ahead of a
// non-optional predecessor which never completed.
func (v *Validator) findCompletionGap(st *core.PipelineState) string {
	for i, earlier := range v.doc.ExecutionOrder {
		p := v.doc.Phase(earlier)
		if p == nil || p.Optional {
			continue
		}
		if st.PhaseStatusOf(earlier) == core.PhaseStatusCompleted {
			continue
		}
		for _, later := range v.doc.ExecutionOrder[i+1:] {
			if st.PhaseStatusOf(later) == core.PhaseStatusCompleted {
				return fmt.Sprintf("phase %q completed while %q never did", later, earlier)
			}
		}
	}
	return ""
}

// qaFailureReason reports a failed or explicitly unpassed QA phase.
func (v *Validator) qaFailureReason(st *core.PipelineState) string {
	qa, ok := st.Phases["qa"]
	if !ok {
		return ""
	}
	if qa.Status == core.PhaseStatusFailed {
		return "qa phase failed"
	}
	if qa.Status == core.PhaseStatusCompleted {
		if passed, ok := qa.Metrics["qa_passed"].(bool); ok && !passed {
			return "qa phase completed without passing"
		}
	}
	return ""
}

// contextDrift compares the most recent completed phase's recorded
// context hash with the current one.
func (v *Validator) contextDrift(st *core.PipelineState) string {
	current := v.hashFn()
	if current == "" {
		return ""
	}
	var lastName, lastHash string
	for i := len(v.doc.ExecutionOrder) - 1; i >= 0; i-- {
		name := v.doc.ExecutionOrder[i]
		if ps, ok := st.Phases[name]; ok && ps.Status == core.PhaseStatusCompleted && ps.ContextHash != "" {
			lastName, lastHash = name, ps.ContextHash
			break
		}
	}
	if lastHash != "" && lastHash != current {
		return fmt.Sprintf("context changed since phase %q completed (%s -> %s)", lastName, lastHash, current)
	}
	return ""
}

func (v *Validator) checkRequirements(ctx context.Context, phase *rules.Phase, res *Result) {
	for _, file := range phase.Requires.Files {
		if !fsutil.Exists(v.abs(file)) {
			res.addError("required file missing: %s", file)
		}
	}
	for _, dir := range phase.Requires.Directories {
		if !fsutil.IsDir(v.abs(dir)) {
			res.addError("required directory missing: %s", dir)
		}
	}
	for _, entry := range phase.Requires.Environment {
		if !v.envSatisfied(entry) {
			res.addError("required environment variable not set: %s", entry)
		}
	}
	for _, entry := range phase.Requires.Tools {
		if !runner.ToolAvailable(ctx, v.runner, entry) {
			res.addError("required tool not found: %s", entry)
		}
	}
}

// envSatisfied reports whether at least one alternative in an "A|B"
// entry is set to a non-empty value.
func (v *Validator) envSatisfied(entry string) bool {
	for _, name := range rules.SplitAlternatives(entry) {
		if v.getenv(name) != "" {
			return true
		}
	}
	return false
}

func (v *Validator) runPreChecks(ctx context.Context, phase *rules.Phase, res *Result) {
	for _, check := range phase.PreChecks {
		command := check.CommandLine()
		if command == "" {
			continue
		}
		out, err := v.runner.Run(ctx, command)
		if err != nil {
			res.addError("pre-check %q failed to run: %v", check.Name, err)
			continue
		}
		stderr := strings.TrimSpace(out.Stderr)
		switch {
		case out.ExitCode != 0:
			res.addError("pre-check %q exited %d: %s", check.Name, out.ExitCode, stderr)
		case stderr == "":
		case strings.Contains(stderr, "Warning"):
			res.addWarning("pre-check %q: %s", check.Name, stderr)
		default:
			res.addError("pre-check %q: %s", check.Name, stderr)
		}
	}
}

// NextPhases returns the phases eligible to start: not completed, not
// running, not terminally failed, with every non-optional predecessor
// completed. When parallelism is off only the first eligible phase is
// returned, and nothing is eligible while a phase is running.
func (v *Validator) NextPhases(st *core.PipelineState) []string {
	if st.InProgressPhase() != "" && !v.doc.Global.AllowParallel {
		return nil
	}
	var eligible []string
	for _, name := range v.doc.ExecutionOrder {
		switch st.PhaseStatusOf(name) {
		case core.PhaseStatusCompleted, core.PhaseStatusInProgress, core.PhaseStatusFailed:
			continue
		}
		ready := true
		for _, pred := range v.doc.Predecessors(name) {
			if st.PhaseStatusOf(pred) != core.PhaseStatusCompleted {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		if !v.doc.Global.AllowParallel {
			return []string{name}
		}
		eligible = append(eligible, name)
	}
	return eligible
}

func (v *Validator) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(v.workdir, path)
}

// relToWorkdir normalizes a reported output path for glob matching:
// cleaned, made relative to the workdir when possible, slash-separated.
func (v *Validator) relToWorkdir(path string) string {
	p := filepath.Clean(path)
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(v.workdir, p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}
