package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/google/go-cmp/cmp"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

func TestHourlyWriterRolls(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 9, 59, 0, 0, time.UTC)
	w, err := NewHourlyWriter(dir, "linux2rest", rotatelogs.WithClock(clockFunc(func() time.Time { return now })))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.Write([]byte("first\n"))
	w.Write([]byte("second\n"))
	now = now.Add(2 * time.Minute)
	w.Write([]byte("third\n"))

	got, err := os.ReadFile(filepath.Join(dir, "linux2rest.2024-05-01-09.log"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "first\nsecond\n" {
		t.Errorf("09 file = %q", got)
	}
	got, err = os.ReadFile(filepath.Join(dir, "linux2rest.2024-05-01-10.log"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "third\n" {
		t.Errorf("10 file = %q", got)
	}
}

func TestNewWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger, closer, err := New(Options{LogPath: dir, Console: &console})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("hidden on console")
	logger.Info("started", "port", 6030)
	closer.Close()

	if strings.Contains(console.String(), "hidden on console") {
		t.Error("debug record reached the console without verbose")
	}
	if !strings.Contains(console.String(), "port=6030") {
		t.Errorf("console = %q", console.String())
	}

	files, _ := filepath.Glob(filepath.Join(dir, "linux2rest.*.log"))
	if len(files) != 1 {
		t.Fatalf("log files = %v", files)
	}
	data, _ := os.ReadFile(files[0])
	if !strings.Contains(string(data), `"msg":"hidden on console"`) {
		t.Error("file should receive debug records")
	}
	if !strings.Contains(string(data), `"port":6030`) {
		t.Errorf("file = %s", data)
	}
}

func TestNewVerboseConsole(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := New(Options{Verbose: true, Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.With("component", "reader").Debug("reopen")
	if !strings.Contains(console.String(), "component=reader") {
		t.Errorf("console = %q", console.String())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("verbose logger should accept debug records")
	}
}

func TestJournalHandlerFields(t *testing.T) {
	var gotMsg string
	var gotPri journal.Priority
	var gotVars map[string]string
	h := &journalHandler{
		level: slog.LevelDebug,
		attrs: map[string]string{},
		send: func(msg string, p journal.Priority, vars map[string]string) error {
			gotMsg, gotPri, gotVars = msg, p, vars
			return nil
		},
	}

	logger := slog.New(h).With("backend", "kmsg").WithGroup("http")
	logger.Warn("slow", "remote-addr", "127.0.0.1", slog.Group("req", "path", "/x"))

	if gotMsg != "slow" || gotPri != journal.PriWarning {
		t.Errorf("msg=%q pri=%v", gotMsg, gotPri)
	}
	want := map[string]string{
		"BACKEND":          "kmsg",
		"HTTP_REMOTE_ADDR": "127.0.0.1",
		"HTTP_REQ_PATH":    "/x",
	}
	if diff := cmp.Diff(want, gotVars); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldName(t *testing.T) {
	tests := map[string]string{
		"err":      "ERR",
		"retry_in": "RETRY_IN",
		"_hidden":  "HIDDEN",
		"9lives":   "F_9LIVES",
		"a.b":      "A_B",
	}
	for in, want := range tests {
		if got := fieldName(in); got != want {
			t.Errorf("fieldName(%q) = %q, want %q", in, got, want)
		}
	}
}
