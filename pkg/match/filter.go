package match

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// ErrInvalidFilter is returned for unparseable or inconsistent bounds.
var ErrInvalidFilter = errors.New("invalid filter")

// FilterConfig holds the textual bounds given on the command line.
type FilterConfig struct {
	// MinSize and MaxSize are inclusive; they accept "10MB", "1 GiB", "512".
	MinSize string
	MaxSize string

	// After is inclusive and Before is exclusive. They accept RFC 3339
	// timestamps or dates (2006-01-02).
	After  string
	Before string
}

// Filter bounds files by size and modification time. A nil Filter matches
// every file.
type Filter struct {
	minSize, maxSize int64 // -1 when unbounded
	after, before    time.Time
}

// NewFilter parses cfg. It returns nil when cfg sets no bound.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if cfg == (FilterConfig{}) {
		return nil, nil
	}
	f := &Filter{minSize: -1, maxSize: -1}

	var err error
	if f.minSize, err = parseSize(cfg.MinSize); err != nil {
		return nil, fmt.Errorf("%w: min size: %v", ErrInvalidFilter, err)
	}
	if f.maxSize, err = parseSize(cfg.MaxSize); err != nil {
		return nil, fmt.Errorf("%w: max size: %v", ErrInvalidFilter, err)
	}
	if f.minSize >= 0 && f.maxSize >= 0 && f.minSize > f.maxSize {
		return nil, fmt.Errorf("%w: min size %s exceeds max size %s", ErrInvalidFilter,
			humanize.IBytes(uint64(f.minSize)), humanize.IBytes(uint64(f.maxSize)))
	}

	if f.after, err = parseTime(cfg.After); err != nil {
		return nil, fmt.Errorf("%w: after: %v", ErrInvalidFilter, err)
	}
	if f.before, err = parseTime(cfg.Before); err != nil {
		return nil, fmt.Errorf("%w: before: %v", ErrInvalidFilter, err)
	}
	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after must be earlier than before", ErrInvalidFilter)
	}
	return f, nil
}

// Match reports whether file is within the bounds.
func (f *Filter) Match(file *storage.File) bool {
	if f == nil {
		return true
	}
	if f.minSize >= 0 && file.Size < f.minSize {
		return false
	}
	if f.maxSize >= 0 && file.Size > f.maxSize {
		return false
	}
	if !f.after.IsZero() && file.LastModified.Before(f.after) {
		return false
	}
	if !f.before.IsZero() && !file.LastModified.Before(f.before) {
		return false
	}
	return true
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return -1, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
