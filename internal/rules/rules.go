// Package rules loads and validates the declarative workflow rules
// document: phase definitions, execution order, blocking conditions,
// and checkpoint policy. The document is loaded once at init and is
// read-only for the rest of the run.
package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Known blocking condition names.
const (
	CondNoSkipPhases = "no_skip_phases"
	CondQAMustPass   = "qa_must_pass"
	CondContextSync  = "context_sync"
)

// Requirements declares what must exist before a phase may start.
// Environment entries support "A|B" OR-groups: at least one of the
// pipe-separated variables must be set. Tool entries support the same
// alternation.
type Requirements struct {
	Files       []string `yaml:"files"`
	Directories []string `yaml:"directories"`
	Environment []string `yaml:"environment"`
	Tools       []string `yaml:"tools"`
}

// Produces declares the outputs a completed phase must account for.
// Entries are patterns supporting *, ? and {a,b} alternation.
type Produces struct {
	Files       []string `yaml:"files"`
	Directories []string `yaml:"directories"`
}

// PreCheck is an external command run during phase validation.
// Script and Command are alternatives; Script wins when both are set.
type PreCheck struct {
	Name    string `yaml:"name"`
	Script  string `yaml:"script"`
	Command string `yaml:"command"`
}

// CommandLine returns the command to execute for the pre-check.
func (p PreCheck) CommandLine() string {
	if p.Script != "" {
		return p.Script
	}
	return p.Command
}

// ErrorHandling holds the per-phase failure policy.
type ErrorHandling struct {
	RetryCount int `yaml:"retry_count"`
}

// Phase is the declarative description of one pipeline phase.
type Phase struct {
	Requires      Requirements   `yaml:"requires"`
	Produces      Produces       `yaml:"produces"`
	Validation    []string       `yaml:"validation"`
	QAChecks      map[string]int `yaml:"qa_checks"`
	Optional      bool           `yaml:"optional"`
	SkipIf        string         `yaml:"skip_if"`
	PreChecks     []PreCheck     `yaml:"pre_checks"`
	PostHooks     []string       `yaml:"post_hooks"`
	ErrorHandling ErrorHandling  `yaml:"error_handling"`

	// Rules is the parsed form of Validation, populated at load time.
	Rules []Rule `yaml:"-"`
}

// BlockingCondition is a named, globally evaluated veto.
type BlockingCondition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Global holds workflow-wide switches.
type Global struct {
	AutoCheckpoint bool `yaml:"auto_checkpoint"`
	AllowParallel  bool `yaml:"allow_parallel"`
}

// RetentionPolicy governs which checkpoints survive pruning.
type RetentionPolicy struct {
	MaxAgeDays           int  `yaml:"max_age_days"`
	MaxCheckpoints       int  `yaml:"max_checkpoints"`
	KeepMinimum          int  `yaml:"keep_minimum"`
	KeepPhaseCompletions bool `yaml:"keep_phase_completions"`
}

// LogsRule filters log files copied into a checkpoint.
type LogsRule struct {
	MaxFileSize int64    `yaml:"max_file_size"`
	Include     []string `yaml:"include"`
	Exclude     []string `yaml:"exclude"`
}

// TrashRule filters trash entries copied into a checkpoint. Compress
// is declared for forward compatibility and not yet implemented.
type TrashRule struct {
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// InclusionRules maps include-path categories to their copy filters.
type InclusionRules struct {
	Logs  *LogsRule  `yaml:"logs"`
	Trash *TrashRule `yaml:"trash"`
}

// Checkpoints holds the checkpoint/retention configuration.
type Checkpoints struct {
	Includes       []string        `yaml:"checkpoint_includes"`
	Retention      RetentionPolicy `yaml:"retention_policy"`
	InclusionRules InclusionRules  `yaml:"inclusion_rules"`
}

// Document is the full workflow rules document.
type Document struct {
	Phases             map[string]*Phase   `yaml:"phases"`
	ExecutionOrder     []string            `yaml:"execution_order"`
	BlockingConditions []BlockingCondition `yaml:"blocking_conditions"`
	Global             Global              `yaml:"global"`
	Checkpoints        Checkpoints         `yaml:"checkpoints"`
	ContextFiles       []string            `yaml:"context_files"`
}

// Load reads, parses and validates a rules document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules document: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a rules document from raw YAML.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rules document: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	for name, phase := range doc.Phases {
		phase.Rules = make([]Rule, 0, len(phase.Validation))
		for _, raw := range phase.Validation {
			rule, err := ParseRule(raw)
			if err != nil {
				return nil, fmt.Errorf("phase %q: %w", name, err)
			}
			phase.Rules = append(phase.Rules, rule)
		}
	}
	return &doc, nil
}

func (d *Document) validate() error {
	if len(d.Phases) == 0 {
		return fmt.Errorf("rules document declares no phases")
	}
	for _, name := range d.ExecutionOrder {
		if _, ok := d.Phases[name]; !ok {
			return fmt.Errorf("execution_order references undeclared phase %q", name)
		}
	}
	for name, phase := range d.Phases {
		if phase.ErrorHandling.RetryCount < 0 {
			return fmt.Errorf("phase %q: retry_count must not be negative", name)
		}
	}
	for _, cond := range d.BlockingConditions {
		switch cond.Name {
		case CondNoSkipPhases, CondQAMustPass, CondContextSync:
		default:
			return fmt.Errorf("unknown blocking condition %q", cond.Name)
		}
	}
	if r := d.Checkpoints.Retention; r.MaxCheckpoints < 0 || r.KeepMinimum < 0 || r.MaxAgeDays < 0 {
		return fmt.Errorf("retention_policy values must not be negative")
	}
	return nil
}

// Phase returns the rule for name, or nil if undeclared.
func (d *Document) Phase(name string) *Phase {
	return d.Phases[name]
}

// RetryCount returns the retry budget for name, zero when undeclared.
func (d *Document) RetryCount(name string) int {
	if p := d.Phases[name]; p != nil {
		return p.ErrorHandling.RetryCount
	}
	return 0
}

// Predecessors returns every non-optional phase that precedes name in
// execution_order. Returns nil when name is not in the order.
func (d *Document) Predecessors(name string) []string {
	var preds []string
	for _, n := range d.ExecutionOrder {
		if n == name {
			return preds
		}
		if p := d.Phases[n]; p != nil && !p.Optional {
			preds = append(preds, n)
		}
	}
	return nil
}

// HasCondition reports whether the named blocking condition is active,
// and returns its description when it is.
func (d *Document) HasCondition(name string) (string, bool) {
	for _, cond := range d.BlockingConditions {
		if cond.Name == name {
			return cond.Description, true
		}
	}
	return "", false
}

// SplitAlternatives splits an "A|B|C" requirement entry into its
// alternatives, trimming whitespace around each.
func SplitAlternatives(entry string) []string {
	parts := strings.Split(entry, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
