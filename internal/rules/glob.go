package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Glob matching limited to exactly three metacharacters:
//
//	*       any run of characters (including none)
//	?       exactly one character
//	{a,b}   alternation between literal-ish branches
//
// Everything else matches literally. Patterns are anchored at both
// ends. Braces do not nest.

// MatchGlob reports whether name matches pattern.
func MatchGlob(pattern, name string) (bool, error) {
	re, err := CompileGlob(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(name), nil
}

// CompileGlob translates a glob pattern into an anchored regexp.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	expr, err := translateGlob(pattern)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return nil, fmt.Errorf("glob pattern %q: %w", pattern, err)
	}
	return re, nil
}

func translateGlob(pattern string) (string, error) {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '{':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '{' {
					return "", fmt.Errorf("glob pattern %q: nested braces", pattern)
				}
				if runes[j] == '}' {
					end = j
					break
				}
			}
			if end < 0 {
				return "", fmt.Errorf("glob pattern %q: unclosed brace", pattern)
			}
			branches := strings.Split(string(runes[i+1:end]), ",")
			quoted := make([]string, len(branches))
			for k, br := range branches {
				quoted[k] = regexp.QuoteMeta(br)
			}
			b.WriteString("(?:" + strings.Join(quoted, "|") + ")")
			i = end
		case '}':
			return "", fmt.Errorf("glob pattern %q: unmatched closing brace", pattern)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String(), nil
}

// MatchAnyGlob reports whether name matches at least one pattern.
// Invalid patterns are treated as non-matching.
func MatchAnyGlob(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := MatchGlob(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
