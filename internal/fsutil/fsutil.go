// Package fsutil provides the filesystem helpers shared by the state
// store and checkpoint manager: scoped reads, recursive copies and
// subtree accounting.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ReadFileScoped reads a file by opening a root at the file's directory.
// This scopes access to the intended directory and avoids path traversal.
func ReadFileScoped(path string) ([]byte, error) {
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// Exists reports whether path exists at all.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CopyFile copies a regular file, creating parent directories of dst
// as needed and preserving the source mode.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("copy source %q is not a regular file", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CopyFilter decides whether a file is copied. It receives the path
// relative to the copy root and the file info. Directories are always
// descended into; filters apply to regular files only.
type CopyFilter func(rel string, info fs.FileInfo) bool

// CopyStats summarizes a completed copy.
type CopyStats struct {
	Files int
	Size  int64
}

// CopyTree recursively copies src into dst, applying filter when non-nil.
// Symlinks and other irregular files are skipped.
func CopyTree(src, dst string, filter CopyFilter) (CopyStats, error) {
	var stats CopyStats
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if filter != nil && !filter(rel, info) {
			return nil
		}
		if err := CopyFile(path, filepath.Join(dst, rel)); err != nil {
			return err
		}
		stats.Files++
		stats.Size += info.Size()
		return nil
	})
	return stats, err
}

// TreeStats returns the file count and total size of a subtree. A
// single regular file counts as a tree of one.
func TreeStats(path string) (CopyStats, error) {
	var stats CopyStats
	info, err := os.Stat(path)
	if err != nil {
		return stats, err
	}
	if !info.IsDir() {
		return CopyStats{Files: 1, Size: info.Size()}, nil
	}
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		stats.Files++
		stats.Size += fi.Size()
		return nil
	})
	return stats, err
}
