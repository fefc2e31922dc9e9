package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/inkwell-press/inkwell/internal/fsutil"
)

// ContextHash fingerprints the fixed context file set: the book
// metadata file followed by the rules-declared context files, in that
// order. Missing files are skipped so the hash stays computable on a
// partially populated workdir. The short form is enough to detect
// drift between phases.
func ContextHash(workdir, metadataFile string, contextFiles []string) string {
	h := sha256.New()
	paths := make([]string, 0, len(contextFiles)+1)
	if metadataFile != "" {
		paths = append(paths, metadataFile)
	}
	paths = append(paths, contextFiles...)
	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(workdir, p)
		}
		data, err := fsutil.ReadFileScoped(abs)
		if err != nil {
			continue
		}
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}
