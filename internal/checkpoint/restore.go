package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/inkwell-press/inkwell/internal/core"
	"github.com/inkwell-press/inkwell/internal/fsutil"
)

// Conflict resolution strategies for restore.
const (
	ConflictOverwrite = "overwrite"
	ConflictBackup    = "backup"
	ConflictSkip      = "skip"
)

// RestoreOptions configures a restore.
type RestoreOptions struct {
	// Components selects what to bring back; empty means everything.
	Components []string

	// DryRun previews the changes without mutating anything.
	DryRun bool

	// ConflictResolution decides what happens to existing
	// destinations: backup (move to trash first), skip, or the
	// default overwrite.
	ConflictResolution string
}

// PathResult is the per-path outcome of a restore.
type PathResult struct {
	Path   string `json:"path"`
	Action string `json:"action"` // create, overwrite, skip
	Files  int    `json:"files"`
	Size   int64  `json:"size"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the path restored cleanly.
func (r PathResult) OK() bool { return r.Error == "" }

// Report summarizes a restore. One path's failure never aborts the
// others; each failure is recorded on its own entry.
type Report struct {
	CheckpointID  string       `json:"checkpoint_id"`
	DryRun        bool         `json:"dry_run"`
	RestoredAt    time.Time    `json:"restored_at"`
	StateRestored bool         `json:"state_restored"`
	Paths         []PathResult `json:"paths"`
}

// Failed returns the entries that did not restore.
func (r *Report) Failed() []PathResult {
	var failed []PathResult
	for _, p := range r.Paths {
		if !p.OK() {
			failed = append(failed, p)
		}
	}
	return failed
}

// Restore brings back the selected components of a checkpoint.
//
// With DryRun the returned report previews every change and nothing is
// mutated. Otherwise file components are copied back with per-path
// conflict handling, and when the state component is selected the
// returned PipelineState is the checkpoint snapshot tagged with
// restored_from/restored_at; the caller swaps it in and persists. The
// report is also written into the checkpoint directory.
func (m *Manager) Restore(ctx context.Context, id string, opts RestoreOptions, live *core.PipelineState) (*Report, *core.PipelineState, error) {
	manifest, err := m.Info(id)
	if err != nil {
		return nil, nil, err
	}

	selected := componentSet(opts.Components)
	report := &Report{
		CheckpointID: id,
		DryRun:       opts.DryRun,
		RestoredAt:   m.now().UTC(),
	}

	if opts.DryRun {
		for _, entry := range manifest.Includes {
			if !selected[componentOf(entry)] {
				continue
			}
			action := "create"
			if fsutil.Exists(m.destOf(entry.Path)) {
				action = "overwrite"
			}
			report.Paths = append(report.Paths, PathResult{
				Path:   entry.Path,
				Action: action,
				Files:  entry.Files,
				Size:   entry.Size,
			})
		}
		report.StateRestored = selected[ComponentState]
		return report, nil, nil
	}

	var safety *core.CheckpointSummary
	if opts.ConflictResolution == ConflictBackup && live != nil {
		summary, err := m.Create(ctx, live, "before-restore")
		if err != nil {
			return nil, nil, fmt.Errorf("creating before-restore checkpoint: %w", err)
		}
		safety = &summary
	}

	var restored *core.PipelineState
	if selected[ComponentState] {
		snapshot, err := m.Snapshot(id)
		if err != nil {
			return nil, nil, err
		}
		now := m.now().UTC()
		snapshot.RestoredFrom = id
		snapshot.RestoredAt = &now
		// The safety checkpoint was recorded on the live state, which
		// the snapshot is about to replace. Carry it over so the
		// restored state still knows the checkpoint exists and the
		// retention policy can see it.
		if safety != nil {
			snapshot.Checkpoints = append(snapshot.Checkpoints, *safety)
		}
		restored = snapshot
		report.StateRestored = true
	}

	for _, entry := range manifest.Includes {
		if !selected[componentOf(entry)] {
			continue
		}
		report.Paths = append(report.Paths, m.restorePath(id, entry, opts.ConflictResolution))
	}

	if err := writeJSON(filepath.Join(m.dir, id, reportFile), report); err != nil {
		m.log.Warn("failed to persist restore report", "id", id, "error", err)
	}

	m.log.WithCheckpoint(id).Info("checkpoint restored",
		"paths", len(report.Paths),
		"failed", len(report.Failed()),
		"state", report.StateRestored,
	)
	return report, restored, nil
}

// restorePath copies one manifest entry back, isolating failures.
func (m *Manager) restorePath(id string, entry ManifestEntry, conflict string) PathResult {
	result := PathResult{Path: entry.Path, Action: "create"}

	src := filepath.Join(m.dir, id, filesSubdir, entry.Path)
	dest := m.destOf(entry.Path)

	if fsutil.Exists(dest) {
		switch conflict {
		case ConflictSkip:
			result.Action = "skip"
			return result
		case ConflictBackup:
			result.Action = "overwrite"
			if err := m.trash.MoveToTrash(dest); err != nil {
				result.Error = fmt.Sprintf("backing up existing path: %v", err)
				return result
			}
		default:
			result.Action = "overwrite"
		}
	}

	info, err := os.Stat(src)
	if err != nil {
		result.Error = fmt.Sprintf("checkpoint copy missing: %v", err)
		return result
	}
	if info.IsDir() {
		stats, err := fsutil.CopyTree(src, dest, nil)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Files = stats.Files
		result.Size = stats.Size
	} else {
		if err := fsutil.CopyFile(src, dest); err != nil {
			result.Error = err.Error()
			return result
		}
		result.Files = 1
		result.Size = info.Size()
	}
	return result
}

func (m *Manager) destOf(include string) string {
	if filepath.IsAbs(include) {
		return include
	}
	return filepath.Join(m.workdir, include)
}

// componentOf maps a manifest entry's recorded type onto a restore
// component. Generic entries fall under "files".
func componentOf(entry ManifestEntry) string {
	switch entry.Type {
	case ComponentLogs, ComponentTrash, ComponentContext:
		return entry.Type
	default:
		return ComponentFiles
	}
}

func componentSet(components []string) map[string]bool {
	set := make(map[string]bool)
	if len(components) == 0 {
		for _, c := range []string{ComponentState, ComponentFiles, ComponentLogs, ComponentTrash, ComponentContext} {
			set[c] = true
		}
		return set
	}
	for _, c := range components {
		set[c] = true
	}
	return set
}
