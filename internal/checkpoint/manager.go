// Package checkpoint snapshots PipelineState together with configured
// filesystem subtrees, prunes old snapshots by retention policy, and
// restores them with per-path failure isolation.
//
// The manager takes no locks of its own: callers already hold the
// state lock for the logical operation, so every routine here is
// lock-free internally.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/inkwell-press/inkwell/internal/core"
	"github.com/inkwell-press/inkwell/internal/fsutil"
	"github.com/inkwell-press/inkwell/internal/logging"
	"github.com/inkwell-press/inkwell/internal/rules"
)

var idReplacer = strings.NewReplacer(":", "-", ".", "-")

// Manager creates, prunes and restores checkpoints under a single
// checkpoint directory.
type Manager struct {
	dir     string
	workdir string
	cfg     rules.Checkpoints
	trash   core.Trash
	log     *logging.Logger
	now     func() time.Time
}

// NewManager creates a checkpoint manager. dir holds the checkpoints;
// workdir is the root that include paths are relative to.
func NewManager(dir, workdir string, cfg rules.Checkpoints, trash core.Trash, log *logging.Logger) *Manager {
	return &Manager{
		dir:     dir,
		workdir: workdir,
		cfg:     cfg,
		trash:   trash,
		log:     log,
		now:     time.Now,
	}
}

// Dir returns the checkpoint directory.
func (m *Manager) Dir() string { return m.dir }

// EnsureDir creates the checkpoint directory if needed.
func (m *Manager) EnsureDir() error {
	return os.MkdirAll(m.dir, 0o755)
}

// Create snapshots st and the configured include paths into a new
// checkpoint, appends its summary to st.Checkpoints, and prunes. The
// caller persists st afterwards.
func (m *Manager) Create(ctx context.Context, st *core.PipelineState, label string) (core.CheckpointSummary, error) {
	createdAt := m.now().UTC()
	id := idReplacer.Replace(createdAt.Format("2006-01-02T15:04:05.000Z"))
	if label != "" {
		id += "-" + label
	}

	cpDir := filepath.Join(m.dir, id)
	if err := os.MkdirAll(cpDir, 0o755); err != nil {
		return core.CheckpointSummary{}, fmt.Errorf("creating checkpoint directory: %w", err)
	}

	snapshot := st.Clone()
	if err := writeJSON(filepath.Join(cpDir, snapshotFile), snapshot); err != nil {
		return core.CheckpointSummary{}, fmt.Errorf("writing state snapshot: %w", err)
	}

	manifest := &Manifest{
		ID:        id,
		CreatedAt: createdAt,
		Label:     label,
		Phase:     st.CurrentPhase,
	}
	for _, include := range m.cfg.Includes {
		entry, err := m.copyInclude(ctx, include, cpDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue // absent include paths are fine
			}
			return core.CheckpointSummary{}, fmt.Errorf("including %s: %w", include, err)
		}
		manifest.Includes = append(manifest.Includes, entry)
	}
	if err := writeJSON(filepath.Join(cpDir, manifestFile), manifest); err != nil {
		return core.CheckpointSummary{}, fmt.Errorf("writing manifest: %w", err)
	}

	summary := core.CheckpointSummary{
		ID:        id,
		CreatedAt: createdAt,
		Label:     label,
		Phase:     st.CurrentPhase,
		Size:      manifest.TotalSize(),
	}
	st.Checkpoints = append(st.Checkpoints, summary)

	m.log.WithCheckpoint(id).Info("checkpoint created",
		"label", label,
		"includes", len(manifest.Includes),
		"size", summary.Size,
	)

	if err := m.Prune(st); err != nil {
		m.log.Warn("checkpoint pruning failed", "error", err)
	}
	return summary, nil
}

// copyInclude copies one include path into the checkpoint, applying
// the per-category inclusion rule.
func (m *Manager) copyInclude(_ context.Context, include, cpDir string) (ManifestEntry, error) {
	src := include
	if !filepath.IsAbs(src) {
		src = filepath.Join(m.workdir, include)
	}
	dst := filepath.Join(cpDir, filesSubdir, include)

	category := categorize(include)
	info, err := os.Stat(src)
	if err != nil {
		return ManifestEntry{}, err
	}

	var stats fsutil.CopyStats
	if info.IsDir() {
		stats, err = fsutil.CopyTree(src, dst, m.filterFor(category))
	} else {
		err = fsutil.CopyFile(src, dst)
		stats = fsutil.CopyStats{Files: 1, Size: info.Size()}
	}
	if err != nil {
		return ManifestEntry{}, err
	}

	return ManifestEntry{
		Path:  include,
		Type:  category,
		Files: stats.Files,
		Size:  stats.Size,
	}, nil
}

// filterFor returns the copy filter for an include category. Generic
// recursive copy by default; logs filter by size and glob patterns;
// trash filters by an age window. The trash compress flag is declared
// in the rules schema but not implemented.
func (m *Manager) filterFor(category string) fsutil.CopyFilter {
	switch category {
	case ComponentLogs:
		rule := m.cfg.InclusionRules.Logs
		if rule == nil {
			return nil
		}
		return func(rel string, info fs.FileInfo) bool {
			if rule.MaxFileSize > 0 && info.Size() > rule.MaxFileSize {
				return false
			}
			name := filepath.Base(rel)
			if len(rule.Include) > 0 && !rules.MatchAnyGlob(rule.Include, name) {
				return false
			}
			if rules.MatchAnyGlob(rule.Exclude, name) {
				return false
			}
			return true
		}
	case ComponentTrash:
		rule := m.cfg.InclusionRules.Trash
		if rule == nil {
			return nil
		}
		cutoff := m.now().Add(-time.Duration(rule.MaxAgeDays) * 24 * time.Hour)
		return func(_ string, info fs.FileInfo) bool {
			return rule.MaxAgeDays <= 0 || info.ModTime().After(cutoff)
		}
	default:
		return nil
	}
}

// categorize derives the component type of an include path from its
// name.
func categorize(include string) string {
	base := strings.ToLower(filepath.Base(strings.TrimSuffix(include, "/")))
	switch {
	case strings.Contains(base, "log"):
		return ComponentLogs
	case strings.Contains(base, "trash"):
		return ComponentTrash
	case strings.Contains(base, "context"):
		return ComponentContext
	default:
		return ComponentFiles
	}
}

// List returns the manifests of every checkpoint on disk, newest
// first.
func (m *Manager) List() ([]*Manifest, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}
	var manifests []*Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifest, err := m.Info(e.Name())
		if err != nil {
			m.log.Warn("skipping unreadable checkpoint", "id", e.Name(), "error", err)
			continue
		}
		manifests = append(manifests, manifest)
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})
	return manifests, nil
}

// Info loads the manifest of one checkpoint.
func (m *Manager) Info(id string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, id, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrNotFound("CHECKPOINT_NOT_FOUND", fmt.Sprintf("checkpoint %q", id))
		}
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest of %s: %w", id, err)
	}
	if stats, err := fsutil.TreeStats(filepath.Join(m.dir, id)); err == nil {
		manifest.DiskUsage = stats.Size
	}
	return &manifest, nil
}

// Snapshot loads the PipelineState captured by a checkpoint.
func (m *Manager) Snapshot(id string) (*core.PipelineState, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, id, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrNotFound("CHECKPOINT_NOT_FOUND", fmt.Sprintf("checkpoint %q", id))
		}
		return nil, err
	}
	var st core.PipelineState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing snapshot of %s: %w", id, err)
	}
	return &st, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
