package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inkwell-press/inkwell/internal/core"
	"github.com/inkwell-press/inkwell/internal/logging"
	"github.com/inkwell-press/inkwell/internal/rules"
	"github.com/inkwell-press/inkwell/internal/runner"
)

const outputsDoc = `
phases:
  content:
    produces:
      files: ["chapters/*.md"]
      directories: [chapters]
    validation:
      - "min_words_per_chapter: 4"
      - "all_chapters_have_frontmatter: true"
      - "all_placeholders_resolved: true"
      - "count_semicolons: 7"
  pdf:
    produces:
      files: ["dist/book.{pdf,epub}"]
  qa:
    validation:
      - "qa_passed: true"
    qa_checks:
      max_orphans: 1
execution_order: [content, pdf, qa]
`

func newOutputsValidator(t *testing.T) (*Validator, string) {
	t.Helper()
	doc, err := rules.Parse([]byte(outputsDoc))
	if err != nil {
		t.Fatal(err)
	}
	work := t.TempDir()
	return New(doc, runner.NewFake(), logging.NewNop(), work), work
}

func TestValidatePhaseOutputsHappyPath(t *testing.T) {
	v, work := newOutputsValidator(t)
	writeFile(t, filepath.Join(work, "chapters", "ch-01.md"), "---\ntitle: one\n---\nfour words of prose here")

	res := v.ValidatePhaseOutputs("content", &core.PhaseOutputs{
		Files:       []string{"chapters/ch-01.md"},
		Directories: []string{"chapters"},
	})
	if !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	// The unrecognized count_semicolons rule degrades to a warning.
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "count_semicolons") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unknown-rule warning, got %v", res.Warnings)
	}
}

func TestValidatePhaseOutputsMissingFiles(t *testing.T) {
	v, _ := newOutputsValidator(t)
	res := v.ValidatePhaseOutputs("content", &core.PhaseOutputs{})
	if res.Valid {
		t.Fatal("missing outputs must fail")
	}
}

func TestValidatePhaseOutputsGlobAgainstReportedFiles(t *testing.T) {
	v, _ := newOutputsValidator(t)
	// Nothing on disk, but the reported output matches the pattern.
	res := v.ValidatePhaseOutputs("pdf", &core.PhaseOutputs{Files: []string{"dist/book.epub"}})
	if !res.Valid {
		t.Fatalf("expected valid via reported output, got %v", res.Errors)
	}

	res = v.ValidatePhaseOutputs("pdf", &core.PhaseOutputs{Files: []string{"dist/book.mobi"}})
	if res.Valid {
		t.Fatal("non-matching reported output must fail")
	}
}

func TestFrontmatterRuleAcceptsByteOrderMark(t *testing.T) {
	v, work := newOutputsValidator(t)
	writeFile(t, filepath.Join(work, "chapters", "ch-01.md"),
		"\ufeff---\ntitle: one\n---\nfour words of prose here")

	res := v.ValidatePhaseOutputs("content", &core.PhaseOutputs{
		Files:       []string{"chapters/ch-01.md"},
		Directories: []string{"chapters"},
	})
	for _, e := range res.Errors {
		if strings.Contains(e, "frontmatter") {
			t.Fatalf("byte order mark must not hide frontmatter: %v", res.Errors)
		}
	}
}

func TestOutputFileMatchesFullPathNotBasename(t *testing.T) {
	v, work := newOutputsValidator(t)
	writeFile(t, filepath.Join(work, "drafts", "ch-01.md"),
		"---\ntitle: one\n---\nfour words of prose here")

	// A file reported from another directory shares the basename but
	// does not satisfy the chapters pattern.
	res := v.ValidatePhaseOutputs("content", &core.PhaseOutputs{
		Files:       []string{"drafts/ch-01.md"},
		Directories: []string{"chapters"},
	})
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "chapters/*.md") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors %v missing unmet produces pattern", res.Errors)
	}

	// An absolute reported path inside the workdir is normalized
	// before matching.
	res = v.ValidatePhaseOutputs("pdf", &core.PhaseOutputs{
		Files: []string{filepath.Join(work, "dist", "book.epub")},
	})
	if !res.Valid {
		t.Errorf("absolute path inside the workdir must satisfy the pattern: %v", res.Errors)
	}
}

func TestValidatePhaseOutputsDisciplineRules(t *testing.T) {
	v, work := newOutputsValidator(t)
	writeFile(t, filepath.Join(work, "chapters", "ch-01.md"), "too short")
	writeFile(t, filepath.Join(work, "chapters", "ch-02.md"), "no frontmatter but plenty of words here {{placeholder}}")

	res := v.ValidatePhaseOutputs("content", &core.PhaseOutputs{
		Files:       []string{"chapters/ch-01.md", "chapters/ch-02.md"},
		Directories: []string{"chapters"},
	})
	if res.Valid {
		t.Fatal("expected failures")
	}
	wantSubstrings := []string{"min_words_per_chapter", "frontmatter", "placeholders"}
	for _, want := range wantSubstrings {
		found := false
		for _, e := range res.Errors {
			if strings.Contains(e, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("errors %v missing %q", res.Errors, want)
		}
	}
}

func TestValidatePhaseOutputsQAMarker(t *testing.T) {
	v, work := newOutputsValidator(t)

	res := v.ValidatePhaseOutputs("qa", nil)
	if res.Valid {
		t.Fatal("qa_passed must fail without the marker")
	}

	writeFile(t, filepath.Join(work, ".qa-passed"), "")
	res = v.ValidatePhaseOutputs("qa", nil)
	if !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
}

func TestValidatePhaseOutputsQAChecks(t *testing.T) {
	v, work := newOutputsValidator(t)
	writeFile(t, filepath.Join(work, ".qa-passed"), "")
	writeFile(t, filepath.Join(work, "qa", "typography.json"), `{"orphans": 3}`)

	res := v.ValidatePhaseOutputs("qa", nil)
	if res.Valid {
		t.Fatalf("orphans=3 exceeds max_orphans=1, got %+v", res)
	}

	writeFile(t, filepath.Join(work, "qa", "typography.json"), `{"orphans": 1}`)
	res = v.ValidatePhaseOutputs("qa", nil)
	if !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
}

func TestValidatePhaseOutputsMissingReportIsWarning(t *testing.T) {
	v, work := newOutputsValidator(t)
	writeFile(t, filepath.Join(work, ".qa-passed"), "")

	res := v.ValidatePhaseOutputs("qa", nil)
	if !res.Valid {
		t.Fatalf("missing typography report must stay a warning, got %v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning about the missing report")
	}

	if err := os.Remove(filepath.Join(work, ".qa-passed")); err != nil {
		t.Fatal(err)
	}
}
