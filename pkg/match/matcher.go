// Package match selects files from a listing by glob pattern and by
// size or modification-time bounds.
package match

import (
	"errors"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// Errors returned by New.
var (
	ErrNoIncludes     = errors.New("at least one include pattern is required")
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError names the pattern that failed to compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Config configures a Matcher.
type Config struct {
	// Includes are doublestar patterns; a name must match at least one.
	Includes []string

	// Excludes are doublestar patterns; a name must match none.
	Excludes []string

	// IncludeHidden admits names with a path segment starting with '.'.
	IncludeHidden bool

	// Filter applies size and time bounds after pattern matching.
	Filter *Filter
}

// Matcher evaluates file names against include and exclude patterns.
// It is safe for concurrent use.
type Matcher struct {
	includes      []string
	excludes      []string
	prefix        string
	includeHidden bool
	filter        *Filter
}

// New compiles cfg.
func New(cfg Config) (*Matcher, error) {
	if len(cfg.Includes) == 0 {
		return nil, ErrNoIncludes
	}
	for _, p := range append(append([]string(nil), cfg.Includes...), cfg.Excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
	}
	return &Matcher{
		includes:      cfg.Includes,
		excludes:      cfg.Excludes,
		prefix:        CommonPrefix(cfg.Includes),
		includeHidden: cfg.IncludeHidden,
		filter:        cfg.Filter,
	}, nil
}

// Prefix is the listing prefix that covers every include pattern.
// Empty means the whole container has to be listed.
func (m *Matcher) Prefix() string {
	return m.prefix
}

// MatchName reports whether name passes the patterns.
func (m *Matcher) MatchName(name string) bool {
	if !m.includeHidden && IsHidden(name) {
		return false
	}
	if !anyMatch(m.includes, name) {
		return false
	}
	return !anyMatch(m.excludes, name)
}

// Match reports whether f passes the patterns and the filter.
func (m *Matcher) Match(f *storage.File) bool {
	return m.MatchName(f.Name) && m.filter.Match(f)
}

// Select returns the files of a page that match, preserving order.
func (m *Matcher) Select(files []*storage.File) []*storage.File {
	out := files[:0:0]
	for _, f := range files {
		if m.Match(f) {
			out = append(out, f)
		}
	}
	return out
}

// IsHidden reports whether any path segment of name starts with '.'.
func IsHidden(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

func anyMatch(patterns []string, name string) bool {
	for _, p := range patterns {
		// Patterns are validated in New.
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// CommonPrefix returns the longest listing prefix shared by the static
// prefixes of all patterns, truncated to a path segment boundary.
func CommonPrefix(patterns []string) string {
	if len(patterns) == 0 {
		return ""
	}
	prefixes := make([]string, len(patterns))
	for i, p := range patterns {
		prefixes[i] = DerivePrefix(p)
	}
	sort.Strings(prefixes)

	first, last := prefixes[0], prefixes[len(prefixes)-1]
	n := 0
	for n < len(first) && n < len(last) && first[n] == last[n] {
		n++
	}
	common := first[:n]
	if len(prefixes) > 1 && common != first {
		common = common[:strings.LastIndex(common, "/")+1]
	}
	return common
}
