package journald

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/modoterra/linux2rest/pkg/core"
)

// startFunc runs journalctl with args and returns its stdout and a wait
// function that reaps the process.
type startFunc func(ctx context.Context, args []string) (io.ReadCloser, func() error, error)

// Source implements core.KernelSource by following journalctl -k.
type Source struct {
	logger *slog.Logger
	start  startFunc

	// cursor of the last record read, carried across reopens
	cursor string
}

// New creates a journal source.
func New(logger *slog.Logger) *Source {
	return &Source{logger: logger, start: startJournalctl}
}

func (s *Source) Name() string { return "journal" }

// Open starts journalctl. The first open replays the kernel messages of
// the current boot; later opens resume after the last record seen.
func (s *Source) Open(ctx context.Context) (<-chan core.RawResult, error) {
	rc, wait, err := s.start(ctx, s.args())
	if err != nil {
		return nil, err
	}

	out := make(chan core.RawResult, 64)
	go func() {
		defer close(out)
		defer func() {
			rc.Close()
			if err := wait(); err != nil && ctx.Err() == nil {
				s.logger.Warn("journalctl exited", "err", err)
			}
		}()

		scanLines(rc, func(line []byte) bool {
			cursor, entries, err := parseRecord(line)
			if cursor != "" {
				s.cursor = cursor
			}
			if err != nil {
				return send(ctx, out, core.RawResult{Err: err})
			}
			for _, e := range entries {
				if !send(ctx, out, core.RawResult{Entry: e}) {
					return false
				}
			}
			return true
		})
	}()
	return out, nil
}

func (s *Source) args() []string {
	args := []string{"--dmesg", "--follow", "--output=json", "--no-pager", "--quiet"}
	if s.cursor != "" {
		return append(args, "--after-cursor="+s.cursor)
	}
	return append(args, "--lines=all")
}

func send(ctx context.Context, out chan<- core.RawResult, res core.RawResult) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

// scanLines reads lines from r and calls fn for each until fn returns false.
func scanLines(r io.Reader, fn func([]byte) bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !fn(scanner.Bytes()) {
			return
		}
	}
}

func startJournalctl(ctx context.Context, args []string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, "journalctl", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("journalctl pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("journalctl start: %w", err)
	}
	return stdout, cmd.Wait, nil
}
