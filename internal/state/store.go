// Package state persists PipelineState as a single JSON document with
// a checksummed envelope, atomic writes and flock-based locking.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/inkwell-press/inkwell/internal/core"
)

// Store implements core.StateStore with JSON file storage. Writes are
// atomic; callers are responsible for holding the lock around
// read-modify-write cycles.
type Store struct {
	path       string
	backupPath string
}

// NewStore creates a store for the state file at path.
func NewStore(path string) *Store {
	return &Store{
		path:       path,
		backupPath: path + ".bak",
	}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// envelope wraps state with integrity metadata.
type envelope struct {
	Version   int                 `json:"version"`
	Checksum  string              `json:"checksum"`
	UpdatedAt time.Time           `json:"updated_at"`
	State     *core.PipelineState `json:"state"`
}

// Save persists the state atomically, keeping a backup of the
// previous version.
func (s *Store) Save(_ context.Context, st *core.PipelineState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	if s.Exists() {
		if err := s.createBackup(); err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
	}

	st.Touch()

	stateBytes, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	sum := sha256.Sum256(stateBytes)

	env := envelope{
		Version:   1,
		Checksum:  hex.EncodeToString(sum[:]),
		UpdatedAt: time.Now().UTC(),
		State:     st,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return core.ErrIO("writing state file").WithCause(err)
	}
	return nil
}

// Load reads the persisted state, verifying the envelope checksum.
// When the primary file is corrupt and a readable backup exists, the
// backup wins; the caller gets (nil, nil) when no state exists yet.
func (s *Store) Load(_ context.Context) (*core.PipelineState, error) {
	st, primaryErr := readEnvelope(s.path)
	if primaryErr == nil {
		return st, nil
	}
	if os.IsNotExist(primaryErr) {
		return nil, nil
	}
	if backup, backupErr := readEnvelope(s.backupPath); backupErr == nil {
		return backup, nil
	}
	return nil, fmt.Errorf("loading state: %w", primaryErr)
}

// Exists reports whether a state file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *Store) createBackup() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	return renameio.WriteFile(s.backupPath, data, 0o644)
}

func readEnvelope(path string) (*core.PipelineState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if env.State == nil {
		return nil, core.ErrState("STATE_EMPTY", "envelope has no state").WithCause(fmt.Errorf("file %s", path))
	}

	stateBytes, err := json.Marshal(env.State)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling state: %w", err)
	}
	sum := sha256.Sum256(stateBytes)
	if got := hex.EncodeToString(sum[:]); got != env.Checksum {
		return nil, core.ErrState("STATE_CHECKSUM", fmt.Sprintf("checksum mismatch in %s", filepath.Base(path)))
	}
	return env.State, nil
}
