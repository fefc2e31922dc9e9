package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-press/inkwell/internal/core"
	"github.com/inkwell-press/inkwell/internal/logging"
	"github.com/inkwell-press/inkwell/internal/rules"
	"github.com/inkwell-press/inkwell/internal/trash"
)

func testManager(t *testing.T, cfg rules.Checkpoints) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	workdir := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(workdir, 0o755))
	bin := trash.New(filepath.Join(root, "trash"))
	m := NewManager(filepath.Join(root, "checkpoints"), workdir, cfg, bin, logging.NewNop())
	require.NoError(t, m.EnsureDir())
	return m, workdir
}

// steppingClock hands out strictly increasing times so every
// checkpoint gets a distinct id.
func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func writeWorkFile(t *testing.T, workdir, rel, content string) {
	t.Helper()
	path := filepath.Join(workdir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCreateWritesSnapshotAndManifest(t *testing.T) {
	cfg := rules.Checkpoints{Includes: []string{"manuscript", "logs", "missing-dir"}}
	m, workdir := testManager(t, cfg)
	m.now = steppingClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	writeWorkFile(t, workdir, "manuscript/ch1.md", "# Chapter One")
	writeWorkFile(t, workdir, "logs/run.log", "started")

	st := core.NewPipelineState([]string{"outlining", "drafting"})
	st.CurrentPhase = "drafting"

	summary, err := m.Create(context.Background(), st, "before-drafting")
	require.NoError(t, err)

	assert.Contains(t, summary.ID, "before-drafting")
	assert.Equal(t, "drafting", summary.Phase)
	require.Len(t, st.Checkpoints, 1)
	assert.Equal(t, summary.ID, st.Checkpoints[0].ID)

	manifest, err := m.Info(summary.ID)
	require.NoError(t, err)
	// missing-dir is absent on disk and silently skipped
	require.Len(t, manifest.Includes, 2)
	byPath := map[string]ManifestEntry{}
	for _, e := range manifest.Includes {
		byPath[e.Path] = e
	}
	assert.Equal(t, ComponentFiles, byPath["manuscript"].Type)
	assert.Equal(t, ComponentLogs, byPath["logs"].Type)
	assert.Equal(t, 1, byPath["manuscript"].Files)
	assert.Equal(t, summary.Size, manifest.TotalSize())
	// snapshot and manifest files count toward the measured footprint
	assert.Greater(t, manifest.DiskUsage, manifest.TotalSize())

	snapshot, err := m.Snapshot(summary.ID)
	require.NoError(t, err)
	assert.Equal(t, st.SessionID, snapshot.SessionID)
	assert.Equal(t, "drafting", snapshot.CurrentPhase)
}

func TestCreateAppliesLogFilter(t *testing.T) {
	cfg := rules.Checkpoints{
		Includes: []string{"logs"},
		InclusionRules: rules.InclusionRules{
			Logs: &rules.LogsRule{
				MaxFileSize: 10,
				Include:     []string{"*.log"},
				Exclude:     []string{"debug.log"},
			},
		},
	}
	m, workdir := testManager(t, cfg)

	writeWorkFile(t, workdir, "logs/run.log", "short")
	writeWorkFile(t, workdir, "logs/debug.log", "short")
	writeWorkFile(t, workdir, "logs/huge.log", "this one is over the size limit")
	writeWorkFile(t, workdir, "logs/notes.txt", "short")

	st := core.NewPipelineState([]string{"outlining"})
	summary, err := m.Create(context.Background(), st, "")
	require.NoError(t, err)

	copied := filepath.Join(m.dir, summary.ID, filesSubdir, "logs")
	entries, err := os.ReadDir(copied)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run.log", entries[0].Name())
}

func TestPruneRetention(t *testing.T) {
	cfg := rules.Checkpoints{
		Retention: rules.RetentionPolicy{
			MaxCheckpoints:       3,
			KeepMinimum:          1,
			KeepPhaseCompletions: true,
		},
	}
	m, _ := testManager(t, cfg)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := core.NewPipelineState([]string{"outlining"})
	mk := func(i int, label string) core.CheckpointSummary {
		cp := core.CheckpointSummary{
			ID:        idReplacer.Replace(base.Add(time.Duration(i)*time.Minute).Format("2006-01-02T15:04:05.000Z")) + "-" + label,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Label:     label,
		}
		require.NoError(t, os.MkdirAll(filepath.Join(m.dir, cp.ID), 0o755))
		st.Checkpoints = append(st.Checkpoints, cp)
		return cp
	}

	var regulars []core.CheckpointSummary
	for i := 0; i < 5; i++ {
		regulars = append(regulars, mk(i, "manual"))
	}
	completion := mk(5, "after-outlining")

	require.NoError(t, m.Prune(st))

	// completion survives plus the two newest regulars
	require.Len(t, st.Checkpoints, 3)
	ids := map[string]bool{}
	for _, cp := range st.Checkpoints {
		ids[cp.ID] = true
	}
	assert.True(t, ids[completion.ID])
	assert.True(t, ids[regulars[4].ID])
	assert.True(t, ids[regulars[3].ID])

	// pruned directories moved out, kept ones still on disk
	for _, cp := range regulars[:3] {
		assert.NoDirExists(t, filepath.Join(m.dir, cp.ID))
	}
	assert.DirExists(t, filepath.Join(m.dir, completion.ID))
}

func TestPruneKeepMinimumWins(t *testing.T) {
	cfg := rules.Checkpoints{
		Retention: rules.RetentionPolicy{
			MaxCheckpoints:       2,
			KeepMinimum:          2,
			KeepPhaseCompletions: true,
		},
	}
	m, _ := testManager(t, cfg)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := core.NewPipelineState([]string{"outlining"})
	for i, label := range []string{"after-outlining", "after-drafting", "manual", "manual"} {
		cp := core.CheckpointSummary{
			ID:        idReplacer.Replace(base.Add(time.Duration(i)*time.Minute).Format("2006-01-02T15:04:05.000Z")) + "-" + label,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Label:     label,
		}
		require.NoError(t, os.MkdirAll(filepath.Join(m.dir, cp.ID), 0o755))
		st.Checkpoints = append(st.Checkpoints, cp)
	}

	require.NoError(t, m.Prune(st))

	// both completions plus keep_minimum regulars even though the
	// completions already exhaust max_checkpoints
	assert.Len(t, st.Checkpoints, 4)
}

func setupRestorable(t *testing.T) (*Manager, string, core.CheckpointSummary, *core.PipelineState) {
	t.Helper()
	cfg := rules.Checkpoints{Includes: []string{"manuscript", "logs"}}
	m, workdir := testManager(t, cfg)
	m.now = steppingClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	writeWorkFile(t, workdir, "manuscript/ch1.md", "original chapter")
	writeWorkFile(t, workdir, "logs/run.log", "original log")

	st := core.NewPipelineState([]string{"outlining", "drafting"})
	st.Phase("outlining").Status = core.PhaseStatusCompleted

	summary, err := m.Create(context.Background(), st, "after-outlining")
	require.NoError(t, err)
	return m, workdir, summary, st
}

func TestRestoreDryRunMutatesNothing(t *testing.T) {
	m, workdir, summary, st := setupRestorable(t)

	// diverge the working tree after the checkpoint
	writeWorkFile(t, workdir, "manuscript/ch1.md", "rewritten chapter")
	require.NoError(t, os.RemoveAll(filepath.Join(workdir, "logs")))

	report, restored, err := m.Restore(context.Background(), summary.ID, RestoreOptions{DryRun: true}, st)
	require.NoError(t, err)
	assert.Nil(t, restored)
	assert.True(t, report.DryRun)
	assert.True(t, report.StateRestored)

	actions := map[string]string{}
	for _, p := range report.Paths {
		actions[p.Path] = p.Action
	}
	assert.Equal(t, "overwrite", actions["manuscript"])
	assert.Equal(t, "create", actions["logs"])

	// nothing on disk changed
	data, err := os.ReadFile(filepath.Join(workdir, "manuscript/ch1.md"))
	require.NoError(t, err)
	assert.Equal(t, "rewritten chapter", string(data))
	assert.NoDirExists(t, filepath.Join(workdir, "logs"))
}

func TestRestoreRoundTrip(t *testing.T) {
	m, workdir, summary, st := setupRestorable(t)

	writeWorkFile(t, workdir, "manuscript/ch1.md", "rewritten chapter")
	st.Phase("drafting").Status = core.PhaseStatusFailed

	report, restored, err := m.Restore(context.Background(), summary.ID, RestoreOptions{}, st)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Empty(t, report.Failed())

	// file content rolled back
	data, err := os.ReadFile(filepath.Join(workdir, "manuscript/ch1.md"))
	require.NoError(t, err)
	assert.Equal(t, "original chapter", string(data))

	// state is the snapshot, tagged with its provenance
	assert.Equal(t, summary.ID, restored.RestoredFrom)
	require.NotNil(t, restored.RestoredAt)
	assert.Equal(t, core.PhaseStatusPending, restored.PhaseStatusOf("drafting"))
	assert.Equal(t, core.PhaseStatusCompleted, restored.PhaseStatusOf("outlining"))

	// report persisted alongside the checkpoint
	assert.FileExists(t, filepath.Join(m.dir, summary.ID, reportFile))
}

func TestRestoreComponentSelection(t *testing.T) {
	m, workdir, summary, st := setupRestorable(t)

	writeWorkFile(t, workdir, "manuscript/ch1.md", "rewritten chapter")
	writeWorkFile(t, workdir, "logs/run.log", "new log")

	report, restored, err := m.Restore(context.Background(), summary.ID,
		RestoreOptions{Components: []string{ComponentLogs}}, st)
	require.NoError(t, err)
	assert.Nil(t, restored)
	assert.False(t, report.StateRestored)
	require.Len(t, report.Paths, 1)
	assert.Equal(t, "logs", report.Paths[0].Path)

	// untouched component keeps its newer content
	data, err := os.ReadFile(filepath.Join(workdir, "manuscript/ch1.md"))
	require.NoError(t, err)
	assert.Equal(t, "rewritten chapter", string(data))

	data, err = os.ReadFile(filepath.Join(workdir, "logs/run.log"))
	require.NoError(t, err)
	assert.Equal(t, "original log", string(data))
}

func TestRestoreConflictSkip(t *testing.T) {
	m, workdir, summary, st := setupRestorable(t)

	writeWorkFile(t, workdir, "manuscript/ch1.md", "rewritten chapter")

	report, _, err := m.Restore(context.Background(), summary.ID,
		RestoreOptions{Components: []string{ComponentFiles}, ConflictResolution: ConflictSkip}, st)
	require.NoError(t, err)
	require.Len(t, report.Paths, 1)
	assert.Equal(t, "skip", report.Paths[0].Action)

	data, err := os.ReadFile(filepath.Join(workdir, "manuscript/ch1.md"))
	require.NoError(t, err)
	assert.Equal(t, "rewritten chapter", string(data))
}

func TestRestoreConflictBackupCreatesSafetyCheckpoint(t *testing.T) {
	m, workdir, summary, st := setupRestorable(t)

	writeWorkFile(t, workdir, "manuscript/ch1.md", "rewritten chapter")

	report, _, err := m.Restore(context.Background(), summary.ID,
		RestoreOptions{Components: []string{ComponentFiles}, ConflictResolution: ConflictBackup}, st)
	require.NoError(t, err)
	assert.Empty(t, report.Failed())

	// the pre-restore safety checkpoint was appended to state
	found := false
	for _, cp := range st.Checkpoints {
		if cp.Label == "before-restore" {
			found = true
		}
	}
	assert.True(t, found)

	data, err := os.ReadFile(filepath.Join(workdir, "manuscript/ch1.md"))
	require.NoError(t, err)
	assert.Equal(t, "original chapter", string(data))
}

func TestRestoreStateKeepsSafetyCheckpoint(t *testing.T) {
	m, workdir, summary, st := setupRestorable(t)

	writeWorkFile(t, workdir, "manuscript/ch1.md", "rewritten chapter")
	st.Phase("drafting").Status = core.PhaseStatusFailed

	// full restore replaces the live state, so the safety record must
	// survive the swap
	_, restored, err := m.Restore(context.Background(), summary.ID,
		RestoreOptions{ConflictResolution: ConflictBackup}, st)
	require.NoError(t, err)
	require.NotNil(t, restored)

	var safety *core.CheckpointSummary
	for i, cp := range restored.Checkpoints {
		if cp.Label == "before-restore" {
			safety = &restored.Checkpoints[i]
		}
	}
	require.NotNil(t, safety, "restored state must list the safety checkpoint")

	// and the record points at a real checkpoint directory
	manifest, err := m.Info(safety.ID)
	require.NoError(t, err)
	assert.Equal(t, "before-restore", manifest.Label)
}

func TestRestorePerPathIsolation(t *testing.T) {
	m, workdir, summary, st := setupRestorable(t)

	// sabotage one copy inside the checkpoint; the other path must
	// still restore
	require.NoError(t, os.RemoveAll(filepath.Join(m.dir, summary.ID, filesSubdir, "logs")))
	writeWorkFile(t, workdir, "manuscript/ch1.md", "rewritten chapter")

	report, _, err := m.Restore(context.Background(), summary.ID, RestoreOptions{}, st)
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "logs", failed[0].Path)

	data, err := os.ReadFile(filepath.Join(workdir, "manuscript/ch1.md"))
	require.NoError(t, err)
	assert.Equal(t, "original chapter", string(data))
}

func TestRestoreUnknownCheckpoint(t *testing.T) {
	m, _ := testManager(t, rules.Checkpoints{})
	_, _, err := m.Restore(context.Background(), "nope", RestoreOptions{}, nil)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestListNewestFirst(t *testing.T) {
	m, _ := testManager(t, rules.Checkpoints{})
	m.now = steppingClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	st := core.NewPipelineState([]string{"outlining"})
	first, err := m.Create(context.Background(), st, "one")
	require.NoError(t, err)
	second, err := m.Create(context.Background(), st, "two")
	require.NoError(t, err)

	manifests, err := m.List()
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, second.ID, manifests[0].ID)
	assert.Equal(t, first.ID, manifests[1].ID)
}
