// Package runner implements the command-runner port used for
// pre-checks, post-hooks and tool lookups. The orchestrator only sees
// the core.CommandRunner interface, so tests swap in the Fake.
package runner

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/inkwell-press/inkwell/internal/core"
	"github.com/inkwell-press/inkwell/internal/rules"
)

// Shell runs commands through "sh -c" in a fixed working directory.
type Shell struct {
	Dir string
}

// NewShell creates a shell runner rooted at dir.
func NewShell(dir string) *Shell {
	return &Shell{Dir: dir}
}

// Run executes command and captures its output. A non-zero exit is
// reported through RunResult.ExitCode, not as an error; errors are
// reserved for failures to spawn at all.
func (s *Shell) Run(ctx context.Context, command string) (*core.RunResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.Dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &core.RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, err
	}
	return result, nil
}

// ToolAvailable reports whether at least one of the pipe-separated
// alternatives in entry resolves to an executable on PATH.
func ToolAvailable(ctx context.Context, r core.CommandRunner, entry string) bool {
	for _, tool := range rules.SplitAlternatives(entry) {
		res, err := r.Run(ctx, "command -v "+tool)
		if err == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stdout) != "" {
			return true
		}
	}
	return false
}
