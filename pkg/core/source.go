package core

import (
	"context"
	"time"
)

// RawEntry is a single line as reported by a kernel log source, before
// continuation lines have been folded into their owning entry.
type RawEntry struct {
	Facility  string        // "" when the line carries no facility marker
	Level     string        // "" when unreported
	SinceBoot time.Duration // 0 when the source reported no timestamp
	Message   string
}

// HasMarker reports whether the line opens a new logical entry. Lines
// without a facility marker continue the previous entry.
func (r RawEntry) HasMarker() bool {
	return r.Facility != ""
}

// RawResult is one item of a source stream: either an entry or the
// error produced while parsing a line.
type RawResult struct {
	Entry RawEntry
	Err   error
}

// KernelSource is the interface all kernel log backends implement.
type KernelSource interface {
	// Name returns the backend identifier (e.g., "kmsg", "klog").
	Name() string

	// Open starts reading the kernel log. The channel is closed when the
	// stream ends or ctx is cancelled; callers reopen to continue.
	Open(ctx context.Context) (<-chan RawResult, error)
}
