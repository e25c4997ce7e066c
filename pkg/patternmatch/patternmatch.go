// Package patternmatch matches cache keys against exact, wildcard, and
// regex patterns (spec.md §4.5's invalidateByPattern / invalidateMatching).
//
// Grounded on invalidation/patterns.go's PatternMatcher: the same three-tier
// dispatch (exact / wildcard / regex) and sync.Map regex cache, restructured
// around a single Matcher type used by cachemanager's invalidation.
package patternmatch

import (
	"errors"
	"regexp"
	"strings"
	"sync"
)

// maxPatternLength bounds how long a pattern can be before ValidatePattern
// rejects it, a cheap guard against pathological regex compilation.
const maxPatternLength = 1000

// Matcher matches keys against patterns, caching compiled regexes so a
// repeated pattern (the common case — the same invalidation pattern fires
// on every write to a resource) only compiles once.
type Matcher struct {
	regexCache sync.Map // pattern string -> *regexp.Regexp
}

// New constructs an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// IsWildcard reports whether pattern contains a glob wildcard.
func IsWildcard(pattern string) bool {
	return strings.Contains(pattern, "*")
}

// IsRegex reports whether pattern contains a regex metacharacter outside
// of the plain wildcard case.
func IsRegex(pattern string) bool {
	return strings.ContainsAny(pattern, "[]()^$+?{}|")
}

// ValidatePattern rejects patterns too long to be worth compiling, or
// regex patterns that fail to compile at all.
func (m *Matcher) ValidatePattern(pattern string) error {
	if pattern == "" {
		return nil
	}
	if len(pattern) > maxPatternLength {
		return errors.New("patternmatch: pattern exceeds maximum length")
	}
	if IsRegex(pattern) {
		_, err := regexp.Compile(pattern)
		return err
	}
	return nil
}

// Match returns every key in keys that pattern selects.
func (m *Matcher) Match(pattern string, keys []string) []string {
	switch {
	case pattern == "":
		return nil
	case IsWildcard(pattern):
		return m.matchWildcard(pattern, keys)
	case IsRegex(pattern):
		return m.matchRegex(pattern, keys)
	default:
		for _, k := range keys {
			if k == pattern {
				return []string{k}
			}
		}
		return nil
	}
}

// MatchCount returns len(Match(pattern, keys)), for callers that only need
// the count (e.g. metrics).
func (m *Matcher) MatchCount(pattern string, keys []string) int {
	return len(m.Match(pattern, keys))
}

func (m *Matcher) matchWildcard(pattern string, keys []string) []string {
	if pattern == "*" {
		return keys
	}

	wantSuffix, hasLeadingStar := strings.CutPrefix(pattern, "*")
	wantPrefix, hasTrailingStar := strings.CutSuffix(pattern, "*")

	switch {
	case hasLeadingStar && hasTrailingStar:
		// *substring*
		substr := strings.Trim(pattern, "*")
		var out []string
		for _, k := range keys {
			if strings.Contains(k, substr) {
				out = append(out, k)
			}
		}
		return out

	case hasLeadingStar:
		// *suffix
		var out []string
		for _, k := range keys {
			if strings.HasSuffix(k, wantSuffix) {
				out = append(out, k)
			}
		}
		return out

	case hasTrailingStar:
		// prefix*
		var out []string
		for _, k := range keys {
			if strings.HasPrefix(k, wantPrefix) {
				out = append(out, k)
			}
		}
		return out

	default:
		// A wildcard in the middle of the pattern (e.g. "user:*:profile"):
		// fall back to a regex built from it.
		return m.matchRegex(wildcardToRegex(pattern), keys)
	}
}

func (m *Matcher) matchRegex(pattern string, keys []string) []string {
	re, ok := m.regexCache.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil
		}
		m.regexCache.Store(pattern, compiled)
		re = compiled
	}

	var out []string
	for _, k := range keys {
		if re.(*regexp.Regexp).MatchString(k) {
			out = append(out, k)
		}
	}
	return out
}

func wildcardToRegex(pattern string) string {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, "\\*", ".*")
	return "^" + escaped + "$"
}

// ClearCache drops every cached compiled regex.
func (m *Matcher) ClearCache() {
	m.regexCache = sync.Map{}
}

// CacheSize reports how many compiled regexes are currently cached.
func (m *Matcher) CacheSize() int {
	n := 0
	m.regexCache.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
