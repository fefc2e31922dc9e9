// Package trash implements the non-destructive removal collaborator.
// Paths are moved into a dated directory under the trash root instead
// of being deleted; recovery and final deletion are somebody else's
// problem.
package trash

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Bin moves paths into a trash directory.
type Bin struct {
	root string
	now  func() time.Time
}

// New creates a trash bin rooted at root.
func New(root string) *Bin {
	return &Bin{root: root, now: time.Now}
}

// MoveToTrash moves path under <root>/<date>/, suffixing the name on
// collision. It never deletes anything.
func (b *Bin) MoveToTrash(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	day := b.now().UTC().Format("2006-01-02")
	destDir := filepath.Join(b.root, day)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating trash directory: %w", err)
	}

	dest := filepath.Join(destDir, filepath.Base(path))
	for i := 1; exists(dest); i++ {
		dest = filepath.Join(destDir, fmt.Sprintf("%s.%d", filepath.Base(path), i))
	}

	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("moving %s to trash: %w", path, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
