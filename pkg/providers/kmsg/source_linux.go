//go:build linux

package kmsg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/euank/go-kmsg-parser/kmsgparser"
	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sys/unix"

	"github.com/modoterra/linux2rest/pkg/core"
)

// parser is the subset of kmsgparser.Parser the source uses.
type parser interface {
	Parse() <-chan kmsgparser.Message
	SetLogger(kmsgparser.Logger)
	Close() error
}

// Source implements core.KernelSource over /dev/kmsg.
type Source struct {
	logger    *slog.Logger
	newParser func() (parser, error)
	bootTime  func() (time.Time, error)

	// highest kernel sequence number emitted; guards against replaying the
	// ring buffer on reopen
	lastSeq int
}

// New creates a /dev/kmsg source.
func New(logger *slog.Logger) *Source {
	return &Source{
		logger: logger,
		newParser: func() (parser, error) {
			return kmsgparser.NewParser()
		},
		bootTime: bootTime,
		lastSeq:  -1,
	}
}

func (s *Source) Name() string { return "kmsg" }

// Open starts a parser over /dev/kmsg. The stream begins with the existing
// ring buffer, minus records already emitted by a previous stream.
func (s *Source) Open(ctx context.Context) (<-chan core.RawResult, error) {
	boot, err := s.bootTime()
	if err != nil {
		return nil, fmt.Errorf("boot time: %w", err)
	}
	p, err := s.newParser()
	if err != nil {
		return nil, fmt.Errorf("open /dev/kmsg: %w", err)
	}
	p.SetLogger(parserLogger{logger: s.logger})

	out := make(chan core.RawResult, 64)
	go func() {
		defer close(out)
		defer p.Close()

		msgs := p.Parse()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.SequenceNumber <= s.lastSeq {
					continue
				}
				s.lastSeq = msg.SequenceNumber
				for _, raw := range splitRecord(msg.Priority, msg.Timestamp, msg.Message, boot) {
					select {
					case out <- core.RawResult{Entry: raw}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// bootTime derives the wall-clock boot instant from CLOCK_BOOTTIME, falling
// back to the host boot time in whole seconds.
func bootTime() (time.Time, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err == nil {
		return time.Now().Add(-time.Duration(ts.Nano())), nil
	}
	secs, err := host.BootTime()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0), nil
}

// parserLogger routes kmsgparser diagnostics to slog.
type parserLogger struct {
	logger *slog.Logger
}

func (l parserLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "kmsgparser")
}

func (l parserLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "kmsgparser")
}

func (l parserLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "kmsgparser")
}
