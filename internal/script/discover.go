// discover.go expands hook glob patterns into the ordered list of scripts
// to run. Zero matches is a legitimate outcome (no hooks installed), while
// an unreadable path component aborts the whole expansion.
package script

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// DiscoveryError reports a failed glob expansion. Zero matches is not a
// discovery error; only engine failures (an unreadable path component, a
// malformed pattern) are. The wrapped error carries the offending path for
// I/O failures and doublestar.ErrBadPattern for syntax errors.
type DiscoveryError struct {
	Pattern string
	Err     error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover scripts %q: %v", e.Pattern, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Discover expands pattern into the ordered list of matching paths.
//
// An empty pattern means "no hooks configured" and yields nil, nil.
// Zero matches yields an empty list, nil. Matches are returned in the
// glob engine's natural (lexicographic) order and are never reordered.
func Discover(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, nil
	}

	// WithFailOnIOErrors aborts the expansion on the first unreadable path
	// component instead of silently skipping it. A single unreadable
	// directory invalidates the whole discovery.
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, &DiscoveryError{Pattern: pattern, Err: err}
	}

	return matches, nil
}
