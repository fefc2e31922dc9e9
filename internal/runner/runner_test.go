package runner

import (
	"context"
	"strings"
	"testing"

	"github.com/inkwell-press/inkwell/internal/core"
)

func TestShellRun(t *testing.T) {
	sh := NewShell(t.TempDir())

	res, err := sh.Run(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("result = %+v", res)
	}
}

func TestShellRunNonZeroExit(t *testing.T) {
	sh := NewShell(t.TempDir())

	res, err := sh.Run(context.Background(), "echo oops >&2; exit 3")
	if err != nil {
		t.Fatalf("non-zero exit must not be a spawn error, got %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("Stderr = %q", res.Stderr)
	}
}

func TestShellRunUsesWorkDir(t *testing.T) {
	dir := t.TempDir()
	sh := NewShell(dir)

	res, err := sh.Run(context.Background(), "pwd")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(res.Stdout) == "" {
		t.Fatal("pwd printed nothing")
	}
}

func TestToolAvailable(t *testing.T) {
	fake := NewFake()
	fake.Script("command -v pandoc", core.RunResult{ExitCode: 1})
	fake.Script("command -v tectonic", core.RunResult{Stdout: "/usr/bin/tectonic\n"})

	ctx := context.Background()
	if ToolAvailable(ctx, fake, "pandoc") {
		t.Error("pandoc should be unavailable")
	}
	if !ToolAvailable(ctx, fake, "pandoc|tectonic") {
		t.Error("alternation should pass via tectonic")
	}
}

func TestFakeScripting(t *testing.T) {
	fake := NewFake()
	fake.Script("scripts/check.sh", core.RunResult{Stderr: "Warning: low disk"})

	res, err := fake.Run(context.Background(), "scripts/check.sh")
	if err != nil {
		t.Fatal(err)
	}
	if res.Stderr != "Warning: low disk" {
		t.Errorf("Stderr = %q", res.Stderr)
	}
	if fake.CallCount("scripts/check.sh") != 1 {
		t.Error("call not recorded")
	}
}
