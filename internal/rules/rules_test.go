package rules

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDoc = `
phases:
  content:
    requires:
      files: [book.yaml]
      environment: ["OPENAI_API_KEY|ANTHROPIC_API_KEY"]
      tools: [pandoc]
    produces:
      files: ["chapters/*.md"]
    validation:
      - "min_words_per_chapter: 300"
      - "all_chapters_have_frontmatter: true"
      - "reticulate_splines: true"
    error_handling:
      retry_count: 2
  images:
    optional: true
    skip_if: "test -f .skip-images"
    produces:
      files: ["images/cover.{png,jpg}"]
  qa:
    validation:
      - "qa_passed: true"
    qa_checks:
      max_orphans: 2
      max_widows: 2
    post_hooks:
      - "scripts/notify-qa.sh"
execution_order: [content, images, qa]
blocking_conditions:
  - name: no_skip_phases
    description: phases must complete in declared order
  - name: qa_must_pass
    description: publishing is blocked until QA passes
global:
  auto_checkpoint: true
  allow_parallel: false
checkpoints:
  checkpoint_includes: [chapters, logs]
  retention_policy:
    max_age_days: 14
    max_checkpoints: 5
    keep_minimum: 2
    keep_phase_completions: true
  inclusion_rules:
    logs:
      max_file_size: 1048576
      include: ["*.log"]
      exclude: ["debug-*.log"]
context_files: [book.yaml, outline.md]
`

func TestParseDocument(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(doc.ExecutionOrder) != 3 {
		t.Fatalf("ExecutionOrder = %v, want 3 entries", doc.ExecutionOrder)
	}

	content := doc.Phase("content")
	if content == nil {
		t.Fatal("phase content missing")
	}
	if got := content.ErrorHandling.RetryCount; got != 2 {
		t.Errorf("retry_count = %d, want 2", got)
	}
	if len(content.Rules) != 3 {
		t.Fatalf("parsed rules = %d, want 3", len(content.Rules))
	}
	if content.Rules[0].Kind != RuleMinWordsPerChapter || content.Rules[0].IntValue != 300 {
		t.Errorf("rule[0] = %+v, want min_words_per_chapter 300", content.Rules[0])
	}
	if content.Rules[2].Kind != RuleUnknown || content.Rules[2].Key != "reticulate_splines" {
		t.Errorf("rule[2] = %+v, want unknown kind preserved", content.Rules[2])
	}

	if !doc.Phase("images").Optional {
		t.Error("images should be optional")
	}
	if doc.Phase("qa").QAChecks["max_orphans"] != 2 {
		t.Error("qa_checks not parsed")
	}
	if !doc.Global.AutoCheckpoint || doc.Global.AllowParallel {
		t.Errorf("global = %+v", doc.Global)
	}
	if doc.Checkpoints.Retention.MaxCheckpoints != 5 {
		t.Errorf("retention = %+v", doc.Checkpoints.Retention)
	}
	if doc.Checkpoints.InclusionRules.Logs == nil {
		t.Fatal("logs inclusion rule missing")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(path, []byte(sampleDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"no phases":       `execution_order: [a]`,
		"undeclared name": "phases:\n  a: {}\nexecution_order: [a, b]\n",
		"negative retry":  "phases:\n  a:\n    error_handling: {retry_count: -1}\n",
		"bad condition":   "phases:\n  a: {}\nblocking_conditions:\n  - {name: nonsense}\n",
		"bad rule value":  "phases:\n  a:\n    validation: [\"min_words_per_chapter: lots\"]\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestPredecessors(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}

	// images is optional, so qa's predecessors skip it.
	got := doc.Predecessors("qa")
	if len(got) != 1 || got[0] != "content" {
		t.Errorf("Predecessors(qa) = %v, want [content]", got)
	}
	if preds := doc.Predecessors("content"); len(preds) != 0 {
		t.Errorf("Predecessors(content) = %v, want none", preds)
	}
	if preds := doc.Predecessors("missing"); preds != nil {
		t.Errorf("Predecessors(missing) = %v, want nil", preds)
	}
}

func TestSplitAlternatives(t *testing.T) {
	got := SplitAlternatives("OPENAI_API_KEY | ANTHROPIC_API_KEY")
	if len(got) != 2 || got[0] != "OPENAI_API_KEY" || got[1] != "ANTHROPIC_API_KEY" {
		t.Errorf("SplitAlternatives = %v", got)
	}
	if got := SplitAlternatives("single"); len(got) != 1 || got[0] != "single" {
		t.Errorf("SplitAlternatives(single) = %v", got)
	}
}

func TestParseRuleBooleans(t *testing.T) {
	r, err := ParseRule("qa_passed: true")
	if err != nil || r.Kind != RuleQAPassed || !r.BoolValue {
		t.Errorf("qa_passed: true => %+v, err=%v", r, err)
	}
	r, err = ParseRule("all_placeholders_resolved")
	if err != nil || !r.BoolValue {
		t.Errorf("bare rule should default true: %+v, err=%v", r, err)
	}
	if _, err := ParseRule("qa_passed: maybe"); err == nil {
		t.Error("expected error for non-boolean value")
	}
}
