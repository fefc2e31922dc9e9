package validate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkwell-press/inkwell/internal/core"
	"github.com/inkwell-press/inkwell/internal/fsutil"
	"github.com/inkwell-press/inkwell/internal/rules"
)

// Marker file the QA phase writes when all checks pass; the qa_passed
// rule looks for it.
const qaMarkerFile = ".qa-passed"

// File the QA phase writes with typography counts; qa_checks bounds
// are evaluated against it.
const typographyReport = "qa/typography.json"

// ValidatePhaseOutputs checks a completed phase's declared outputs
// against its produces patterns and validation rules. Unknown rule
// keys degrade to warnings, never errors.
func (v *Validator) ValidatePhaseOutputs(name string, outputs *core.PhaseOutputs) Result {
	res := Result{Valid: true}

	phase := v.doc.Phase(name)
	if phase == nil {
		res.addError("unknown phase %q", name)
		return res
	}
	if outputs == nil {
		outputs = &core.PhaseOutputs{}
	}

	for _, pattern := range phase.Produces.Files {
		if !v.outputFileSatisfied(pattern, outputs) {
			res.addError("expected output file not produced: %s", pattern)
		}
	}
	for _, dir := range phase.Produces.Directories {
		if !v.outputDirSatisfied(dir, outputs) {
			res.addError("expected output directory not produced: %s", dir)
		}
	}

	chapterFiles := v.chapterCandidates(phase, outputs)
	for _, rule := range phase.Rules {
		v.applyRule(rule, chapterFiles, &res)
	}
	v.applyQAChecks(phase, &res)

	return res
}

// outputFileSatisfied reports whether a produces pattern is covered:
// either a reported output matches it, or a matching file exists on
// disk.
func (v *Validator) outputFileSatisfied(pattern string, outputs *core.PhaseOutputs) bool {
	for _, f := range outputs.Files {
		if ok, err := rules.MatchGlob(pattern, v.relToWorkdir(f)); err == nil && ok {
			return true
		}
	}
	if !strings.ContainsAny(pattern, "*?{") {
		return fsutil.Exists(v.abs(pattern))
	}
	// Pattern with a literal directory prefix: scan that directory.
	dir, base := filepath.Split(pattern)
	if strings.ContainsAny(dir, "*?{") {
		return false
	}
	entries, err := os.ReadDir(v.abs(filepath.Clean(dir)))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, err := rules.MatchGlob(base, e.Name()); err == nil && ok {
			return true
		}
	}
	return false
}

func (v *Validator) outputDirSatisfied(dir string, outputs *core.PhaseOutputs) bool {
	for _, d := range outputs.Directories {
		if d == dir {
			return true
		}
	}
	return fsutil.IsDir(v.abs(dir))
}

// chapterCandidates returns the files content rules operate on:
// reported outputs that exist on disk, or failing that, disk files
// matching the produces patterns.
func (v *Validator) chapterCandidates(phase *rules.Phase, outputs *core.PhaseOutputs) []string {
	var files []string
	for _, f := range outputs.Files {
		if fsutil.Exists(v.abs(f)) {
			files = append(files, v.abs(f))
		}
	}
	if len(files) > 0 {
		return files
	}
	for _, pattern := range phase.Produces.Files {
		dir, base := filepath.Split(pattern)
		if strings.ContainsAny(dir, "*?{") {
			continue
		}
		entries, err := os.ReadDir(v.abs(filepath.Clean(dir)))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if ok, err := rules.MatchGlob(base, e.Name()); err == nil && ok {
				files = append(files, v.abs(filepath.Join(filepath.Clean(dir), e.Name())))
			}
		}
	}
	return files
}

func (v *Validator) applyRule(rule rules.Rule, chapterFiles []string, res *Result) {
	switch rule.Kind {
	case rules.RuleMinWordsPerChapter:
		for _, file := range chapterFiles {
			if !strings.HasSuffix(file, ".md") {
				continue
			}
			words, err := countWords(file)
			if err != nil {
				res.addWarning("rule %s: cannot read %s: %v", rule.Key, filepath.Base(file), err)
				continue
			}
			if words < rule.IntValue {
				res.addError("rule %s: %s has %d words, need %d", rule.Key, filepath.Base(file), words, rule.IntValue)
			}
		}
	case rules.RuleAllChaptersHaveFrontmatter:
		if !rule.BoolValue {
			return
		}
		for _, file := range chapterFiles {
			if !strings.HasSuffix(file, ".md") {
				continue
			}
			ok, err := hasFrontmatter(file)
			if err != nil {
				res.addWarning("rule %s: cannot read %s: %v", rule.Key, filepath.Base(file), err)
				continue
			}
			if !ok {
				res.addError("rule %s: %s is missing frontmatter", rule.Key, filepath.Base(file))
			}
		}
	case rules.RuleQAPassed:
		if rule.BoolValue && !fsutil.Exists(v.abs(qaMarkerFile)) {
			res.addError("rule %s: QA pass marker %s not found", rule.Key, qaMarkerFile)
		}
	case rules.RuleAllPlaceholdersResolved:
		if !rule.BoolValue {
			return
		}
		for _, file := range chapterFiles {
			data, err := os.ReadFile(file)
			if err != nil {
				res.addWarning("rule %s: cannot read %s: %v", rule.Key, filepath.Base(file), err)
				continue
			}
			if strings.Contains(string(data), "{{") {
				res.addError("rule %s: %s contains unresolved placeholders", rule.Key, filepath.Base(file))
			}
		}
	default:
		res.addWarning("unrecognized validation rule %q ignored", rule.Raw)
	}
}

// applyQAChecks evaluates typography bounds against the QA report.
// A missing or unreadable report is a warning; the QA phase may not
// have produced one yet.
func (v *Validator) applyQAChecks(phase *rules.Phase, res *Result) {
	if len(phase.QAChecks) == 0 {
		return
	}
	data, err := os.ReadFile(v.abs(typographyReport))
	if err != nil {
		res.addWarning("qa_checks: typography report %s unavailable", typographyReport)
		return
	}
	var counts map[string]int
	if err := json.Unmarshal(data, &counts); err != nil {
		res.addWarning("qa_checks: typography report unreadable: %v", err)
		return
	}
	for key, bound := range phase.QAChecks {
		metric := strings.TrimPrefix(key, "max_")
		count, ok := counts[metric]
		if !ok {
			res.addWarning("qa_checks: report has no %q metric", metric)
			continue
		}
		if count > bound {
			res.addError("qa_checks: %s = %d exceeds limit %d", metric, count, bound)
		}
	}
}

func countWords(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return len(strings.Fields(string(data))), nil
}

func hasFrontmatter(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.TrimLeft(string(data), "\uFEFF\n\r "), "---"), nil
}
