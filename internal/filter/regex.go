package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// CaseInsensitive is the inline modifier marking a case-insensitive pattern.
const CaseInsensitive = "(?i)"

const literalFlags = "gimsuy"

// NormalizePattern converts a like/nlike operand into a pattern string.
// Operands may be a *regexp.Regexp, a "/body/flags" literal or a plain pattern;
// options holds extra flags. An "i" flag becomes the (?i) prefix.
func NormalizePattern(v any, options string) string {
	var pattern, flags string
	switch p := v.(type) {
	case *regexp.Regexp:
		pattern = p.String()
	case string:
		pattern, flags = splitLiteral(p)
	case nil:
		pattern = ""
	default:
		pattern = fmt.Sprint(p)
	}

	flags += options
	if strings.ContainsRune(flags, 'i') && !strings.HasPrefix(pattern, CaseInsensitive) {
		pattern = CaseInsensitive + pattern
	}
	return pattern
}

// SplitCaseInsensitive strips a leading (?i) and reports whether it was present.
func SplitCaseInsensitive(pattern string) (string, bool) {
	if strings.HasPrefix(pattern, CaseInsensitive) {
		return strings.TrimPrefix(pattern, CaseInsensitive), true
	}
	return pattern, false
}

func splitLiteral(s string) (string, string) {
	if len(s) < 2 || s[0] != '/' {
		return s, ""
	}
	end := strings.LastIndex(s, "/")
	if end == 0 {
		return s, ""
	}
	flags := s[end+1:]
	for _, r := range flags {
		if !strings.ContainsRune(literalFlags, r) {
			return s, ""
		}
	}
	return s[1:end], flags
}

var patternCache sync.Map // string -> *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}
