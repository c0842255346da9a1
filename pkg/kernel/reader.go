package kernel

import (
	"context"
	"log/slog"
	"time"

	"github.com/modoterra/linux2rest/pkg/core"
)

// Reader tails a kernel log source and feeds normalized entries into a
// Service. It keeps its sequence state across stream reopens.
type Reader struct {
	source  core.KernelSource
	service *Service
	logger  *slog.Logger

	// Backoff returns the delay before reopening after the given number of
	// consecutive empty or failed streams.
	Backoff func(failures int) time.Duration

	seq     uint64
	current *core.RawEntry
}

// NewReader creates a reader for source.
func NewReader(source core.KernelSource, service *Service, logger *slog.Logger) *Reader {
	return &Reader{
		source:  source,
		service: service,
		logger:  logger,
		Backoff: backoff,
	}
}

// Run reads until ctx is cancelled, reopening the source whenever its
// stream ends.
func (r *Reader) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stream, err := r.source.Open(ctx)
		if err != nil {
			failures++
			delay := r.Backoff(failures)
			r.logger.Error("open kernel source", "backend", r.source.Name(), "err", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		n := r.consume(ctx, stream)
		if err := ctx.Err(); err != nil {
			return err
		}
		if n > 0 {
			failures = 0
			r.logger.Debug("kernel source ended, reopening", "backend", r.source.Name(), "results", n)
			continue
		}
		failures++
		if !sleep(ctx, r.Backoff(failures)) {
			return ctx.Err()
		}
	}
}

func (r *Reader) consume(ctx context.Context, stream <-chan core.RawResult) int {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case res, ok := <-stream:
			if !ok {
				return n
			}
			n++
			r.handle(res)
		}
	}
}

func (r *Reader) handle(res core.RawResult) {
	if res.Err != nil {
		r.logger.Warn("kernel log parse error", "backend", r.source.Name(), "err", res.Err)
		return
	}

	raw := res.Entry
	if raw.HasMarker() {
		if r.current != nil {
			r.seq++
		}
		r.current = &raw
	}
	if r.current == nil {
		return
	}

	if !raw.HasMarker() {
		if _, ok := r.service.Continue(raw.Message); !ok {
			r.logger.Debug("continuation without entry", "message", raw.Message)
		}
		return
	}

	r.service.Append(core.LogEntry{
		Facility:       r.current.Facility,
		Level:          r.current.Level,
		SequenceNumber: r.seq,
		TimestampNs:    nanos(r.current.SinceBoot),
		Message:        r.current.Message,
	})
}

func nanos(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d)
}

// backoff returns exponential delay: 1s, 2s, 4s, 8s, ... max 30s.
func backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if failures > 6 {
		return 30 * time.Second
	}
	d := time.Duration(1<<uint(failures-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
