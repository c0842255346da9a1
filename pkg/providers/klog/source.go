package klog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modoterra/linux2rest/pkg/core"
)

// DefaultPollInterval is how often the ring buffer is re-read.
const DefaultPollInterval = time.Second

// Source implements core.KernelSource by polling syslog(2).
type Source struct {
	interval time.Duration
	logger   *slog.Logger
	read     func() ([]byte, error)

	// lines emitted so far from the last read, carried across reopens
	prev []string
}

// New creates a syslog(2) source polled every interval.
func New(interval time.Duration, logger *slog.Logger) *Source {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Source{interval: interval, logger: logger, read: readAll}
}

func (s *Source) Name() string { return "klog" }

// Open reads the ring buffer once, failing if it is not readable, then
// keeps polling for new lines. The stream ends on the first read error.
func (s *Source) Open(ctx context.Context) (<-chan core.RawResult, error) {
	buf, err := s.read()
	if err != nil {
		return nil, fmt.Errorf("read kernel ring buffer: %w", err)
	}

	out := make(chan core.RawResult, 64)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			if !s.emit(ctx, out, buf) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			buf, err = s.read()
			if err != nil {
				s.logger.Warn("read kernel ring buffer", "err", err)
				return
			}
		}
	}()
	return out, nil
}

func (s *Source) emit(ctx context.Context, out chan<- core.RawResult, buf []byte) bool {
	lines := splitLines(buf)
	start := unseen(lines, s.prev)
	s.prev = lines[:start]
	for i := start; i < len(lines); i++ {
		line := lines[i]
		s.prev = lines[:i+1]
		if line == "" {
			continue
		}
		entry, err := ParseLine(line)
		select {
		case out <- core.RawResult{Entry: entry, Err: err}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
