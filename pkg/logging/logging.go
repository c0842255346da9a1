// Package logging builds the daemon's slog logger: console output, an
// hourly rolling JSON file and, optionally, the systemd journal.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures New.
type Options struct {
	Verbose  bool      // console at DEBUG instead of INFO
	LogPath  string    // directory for rolling files, "" disables file output
	Journald bool      // also send records to the journal when it is reachable
	Console  io.Writer // defaults to os.Stderr
}

// New returns the logger and a closer for its file output.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
	}

	var closer io.Closer = nopCloser{}
	if opts.LogPath != "" {
		w, err := NewHourlyWriter(opts.LogPath, "linux2rest")
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		closer = w
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if opts.Journald {
		if h, ok := NewJournalHandler(level); ok {
			handlers = append(handlers, h)
		}
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
