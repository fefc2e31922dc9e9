package runner

import (
	"context"
	"sync"

	"github.com/inkwell-press/inkwell/internal/core"
)

// Fake is a scripted command runner for tests. Commands are matched
// exactly; unscripted commands succeed with empty output unless
// DefaultResult is set.
type Fake struct {
	mu            sync.Mutex
	results       map[string]core.RunResult
	errs          map[string]error
	DefaultResult *core.RunResult
	Calls         []string
}

// NewFake creates an empty fake runner.
func NewFake() *Fake {
	return &Fake{
		results: make(map[string]core.RunResult),
		errs:    make(map[string]error),
	}
}

// Script sets the result returned for an exact command string.
func (f *Fake) Script(command string, result core.RunResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[command] = result
}

// ScriptErr makes a command fail to spawn.
func (f *Fake) ScriptErr(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[command] = err
}

// Run implements core.CommandRunner.
func (f *Fake) Run(_ context.Context, command string) (*core.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, command)
	if err, ok := f.errs[command]; ok {
		return nil, err
	}
	if res, ok := f.results[command]; ok {
		out := res
		return &out, nil
	}
	if f.DefaultResult != nil {
		out := *f.DefaultResult
		return &out, nil
	}
	return &core.RunResult{}, nil
}

// CallCount returns how many times command was run.
func (f *Fake) CallCount(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == command {
			n++
		}
	}
	return n
}
