package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleKind identifies one of the closed set of named output checks.
type RuleKind int

const (
	// RuleUnknown preserves rule strings with an unrecognized key.
	// Validators downgrade these to warnings, never errors.
	RuleUnknown RuleKind = iota
	RuleMinWordsPerChapter
	RuleAllChaptersHaveFrontmatter
	RuleQAPassed
	RuleAllPlaceholdersResolved
)

// String returns the canonical rule key.
func (k RuleKind) String() string {
	switch k {
	case RuleMinWordsPerChapter:
		return "min_words_per_chapter"
	case RuleAllChaptersHaveFrontmatter:
		return "all_chapters_have_frontmatter"
	case RuleQAPassed:
		return "qa_passed"
	case RuleAllPlaceholdersResolved:
		return "all_placeholders_resolved"
	default:
		return "unknown"
	}
}

// Rule is the typed form of a "key: value" validation rule string.
// String-typed rules are resolved into this tagged union at load time
// so validators never re-parse them.
type Rule struct {
	Kind RuleKind

	// Key and Raw preserve the source string for unknown rules and
	// for diagnostics.
	Key string
	Raw string

	IntValue  int
	BoolValue bool
}

// ParseRule parses a single "key: value" rule string. Unrecognized
// keys yield a RuleUnknown rule rather than an error; malformed values
// for recognized keys are errors.
func ParseRule(raw string) (Rule, error) {
	key, value := splitRule(raw)
	if key == "" {
		return Rule{}, fmt.Errorf("malformed validation rule %q", raw)
	}

	rule := Rule{Key: key, Raw: raw}
	switch key {
	case "min_words_per_chapter":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return Rule{}, fmt.Errorf("rule %q: expected non-negative integer, got %q", key, value)
		}
		rule.Kind = RuleMinWordsPerChapter
		rule.IntValue = n
	case "all_chapters_have_frontmatter":
		b, err := parseRuleBool(value)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", key, err)
		}
		rule.Kind = RuleAllChaptersHaveFrontmatter
		rule.BoolValue = b
	case "qa_passed":
		b, err := parseRuleBool(value)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", key, err)
		}
		rule.Kind = RuleQAPassed
		rule.BoolValue = b
	case "all_placeholders_resolved":
		b, err := parseRuleBool(value)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", key, err)
		}
		rule.Kind = RuleAllPlaceholdersResolved
		rule.BoolValue = b
	default:
		rule.Kind = RuleUnknown
	}
	return rule, nil
}

func splitRule(raw string) (key, value string) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return strings.TrimSpace(raw), ""
	}
	return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx+1:])
}

func parseRuleBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "yes", "":
		return true, nil
	case "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %q", value)
	}
}
