package checkpoint

import "time"

// Component names a restorable slice of a checkpoint.
const (
	ComponentState   = "state"
	ComponentFiles   = "files"
	ComponentLogs    = "logs"
	ComponentTrash   = "trash"
	ComponentContext = "context"
)

// Files stored inside every checkpoint directory.
const (
	snapshotFile = "state.json"
	manifestFile = "manifest.json"
	reportFile   = "restore-report.json"
	filesSubdir  = "files"
)

// ManifestEntry indexes one included path.
type ManifestEntry struct {
	Path  string `json:"path"`
	Type  string `json:"type"`
	Files int    `json:"files"`
	Size  int64  `json:"size"`
}

// Manifest is the per-checkpoint index written next to the state
// snapshot.
type Manifest struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Label     string          `json:"label,omitempty"`
	Phase     string          `json:"phase,omitempty"`
	Includes  []ManifestEntry `json:"includes"`

	// DiskUsage is the measured on-disk size of the checkpoint
	// directory, filled in when the manifest is loaded. It covers the
	// snapshot and manifest themselves, so it runs a little larger
	// than TotalSize.
	DiskUsage int64 `json:"-"`
}

// TotalSize sums the sizes of every include.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, e := range m.Includes {
		total += e.Size
	}
	return total
}
