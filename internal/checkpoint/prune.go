package checkpoint

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/inkwell-press/inkwell/internal/core"
)

// Phase-completion checkpoints carry an "after-" label and get
// preferential retention.
func isPhaseCompletion(cp core.CheckpointSummary) bool {
	return strings.Contains(cp.Label, "after-")
}

// Prune applies the retention policy to st.Checkpoints. Checkpoints
// that fall out of the keep-set are moved to trash, never deleted.
func (m *Manager) Prune(st *core.PipelineState) error {
	policy := m.cfg.Retention
	if policy.MaxCheckpoints <= 0 && policy.MaxAgeDays <= 0 {
		return nil
	}

	var cutoff time.Time
	if policy.MaxAgeDays > 0 {
		cutoff = m.now().Add(-time.Duration(policy.MaxAgeDays) * 24 * time.Hour)
	}
	tooOld := func(cp core.CheckpointSummary) bool {
		return !cutoff.IsZero() && cp.CreatedAt.Before(cutoff)
	}

	var completions, regular []core.CheckpointSummary
	for _, cp := range st.Checkpoints {
		if isPhaseCompletion(cp) {
			completions = append(completions, cp)
		} else {
			regular = append(regular, cp)
		}
	}

	keep := make(map[string]bool)
	kept := 0
	for _, cp := range completions {
		if policy.KeepPhaseCompletions || !tooOld(cp) {
			keep[cp.ID] = true
			kept++
		}
	}

	var liveRegular []core.CheckpointSummary
	for _, cp := range regular {
		if !tooOld(cp) {
			liveRegular = append(liveRegular, cp)
		}
	}
	sort.Slice(liveRegular, func(i, j int) bool {
		return liveRegular[i].CreatedAt.After(liveRegular[j].CreatedAt)
	})

	limit := policy.MaxCheckpoints - kept
	if limit < policy.KeepMinimum {
		limit = policy.KeepMinimum
	}
	if policy.MaxCheckpoints <= 0 {
		limit = len(liveRegular)
	}
	for i, cp := range liveRegular {
		if i < limit {
			keep[cp.ID] = true
		}
	}

	var retained []core.CheckpointSummary
	for _, cp := range st.Checkpoints {
		if keep[cp.ID] {
			retained = append(retained, cp)
			continue
		}
		path := filepath.Join(m.dir, cp.ID)
		if err := m.trash.MoveToTrash(path); err != nil {
			m.log.Warn("failed to trash pruned checkpoint", "id", cp.ID, "error", err)
		} else {
			m.log.Info("checkpoint pruned", "id", cp.ID, "label", cp.Label)
		}
	}
	st.Checkpoints = retained
	return nil
}
