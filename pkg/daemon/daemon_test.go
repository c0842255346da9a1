package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/modoterra/linux2rest/pkg/config"
	"github.com/modoterra/linux2rest/pkg/core"
	"github.com/modoterra/linux2rest/pkg/transport/uds"
)

// chanSource hands out the same channel on every Open.
type chanSource struct {
	ch chan core.RawResult
}

func (s *chanSource) Name() string { return "chan" }

func (s *chanSource) Open(ctx context.Context) (<-chan core.RawResult, error) {
	return s.ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func raw(facility, msg string) core.RawResult {
	return core.RawResult{Entry: core.RawEntry{Facility: facility, Level: "info", Message: msg}}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Socket = filepath.Join(t.TempDir(), "linux2rest.sock")
	cfg.Listen = "127.0.0.1:0"
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *chanSource, chan string) {
	t.Helper()

	src := &chanSource{ch: make(chan core.RawResult, 16)}
	d := New(cfg, src, testLogger())
	states := make(chan string, 4)
	d.notify = func(state string) (bool, error) {
		states <- state
		return false, nil
	}
	return d, src, states
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleKernelBuffer(t *testing.T) {
	d, _, _ := newTestDaemon(t, testConfig(t))
	for i := 0; i < 4; i++ {
		d.Service().Append(core.LogEntry{SequenceNumber: uint64(i)})
	}

	intp := func(n int) *int { return &n }
	tests := []struct {
		name string
		req  *uds.KernelBufferRequest
		want int
	}{
		{"no payload", nil, 4},
		{"window", &uds.KernelBufferRequest{Start: intp(1), Size: intp(2)}, 2},
		{"start only", &uds.KernelBufferRequest{Start: intp(3)}, 1},
		{"negative ignored", &uds.KernelBufferRequest{Start: intp(-1), Size: intp(-5)}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg uds.Message
			if tt.req != nil {
				data, _ := json.Marshal(tt.req)
				msg.Data = data
			}
			got, err := d.handleKernelBuffer(context.Background(), msg)
			if err != nil {
				t.Fatal(err)
			}
			if n := len(got.([]core.LogEntry)); n != tt.want {
				t.Errorf("got %d entries, want %d", n, tt.want)
			}
		})
	}

	if _, err := d.handleKernelBuffer(context.Background(), uds.Message{Data: []byte("{")}); err == nil {
		t.Error("expected error for invalid payload")
	}
}

func TestDaemonEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	d, src, states := newTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	select {
	case s := <-states:
		if s != "READY=1" {
			t.Fatalf("first notify = %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon never became ready")
	}

	src.ch <- raw("kern", "A")
	src.ch <- raw("", "more")
	src.ch <- raw("kern", "C")
	waitFor(t, "entries", func() bool {
		entries := d.Service().Read(0, -1)
		return len(entries) == 2 && entries[1].Message == "C"
	})

	client, err := uds.Dial(cfg.Socket)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	events := make(chan uds.Message, 8)
	client.OnEvent(func(msg uds.Message) { events <- msg })

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	resp, err := client.Request(reqCtx, uds.MethodKernelSubscribe, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var snapshot []core.LogEntry
	if err := resp.UnmarshalData(&snapshot); err != nil {
		t.Fatal(err)
	}
	want := []core.LogEntry{
		{Facility: "kern", Level: "info", SequenceNumber: 0, Message: "A\nmore"},
		{Facility: "kern", Level: "info", SequenceNumber: 1, Message: "C"},
	}
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	src.ch <- raw("kern", "D")
	select {
	case evt := <-events:
		var got []core.LogEntry
		if evt.Method != uds.EventKernelEntry || evt.UnmarshalData(&got) != nil {
			t.Fatalf("event = %+v", evt)
		}
		wantD := core.LogEntry{Facility: "kern", Level: "info", SequenceNumber: 2, Message: "D"}
		if diff := cmp.Diff([]core.LogEntry{wantD}, got); diff != "" {
			t.Errorf("event mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no kernel.entry event")
	}

	resp, err = client.Request(reqCtx, uds.MethodStats, nil)
	if err != nil {
		t.Fatal(err)
	}
	var stats uds.StatsResponse
	resp.UnmarshalData(&stats)
	if stats.Entries != 3 || stats.Subscribers != 1 || stats.Backend != "chan" {
		t.Errorf("stats = %+v", stats)
	}

	httpResp, err := http.Get("http://" + d.HTTPAddr() + "/kernel_buffer?start=2")
	if err != nil {
		t.Fatal(err)
	}
	var tail []core.LogEntry
	json.NewDecoder(httpResp.Body).Decode(&tail)
	httpResp.Body.Close()
	if len(tail) != 1 || tail[0].Message != "D" {
		t.Errorf("http tail = %+v", tail)
	}

	cancel()
	select {
	case evt := <-events:
		if evt.Method != uds.EventDaemonShutdown {
			t.Errorf("event = %s, want %s", evt.Method, uds.EventDaemonShutdown)
		}
	case <-time.After(2 * time.Second):
		t.Error("no shutdown event")
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if s := <-states; s != "STOPPING=1" {
		t.Errorf("final notify = %q", s)
	}
}

func TestRunFailsWhenPortTaken(t *testing.T) {
	first, _, states := newTestDaemon(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go first.Run(ctx)
	<-states

	cfg := testConfig(t)
	cfg.Listen = first.HTTPAddr()
	second, _, _ := newTestDaemon(t, cfg)

	if err := second.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
	if _, err := os.Stat(cfg.Socket); !os.IsNotExist(err) {
		t.Error("control socket should be removed after a failed start")
	}
}
