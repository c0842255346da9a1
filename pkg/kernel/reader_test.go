package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/modoterra/linux2rest/pkg/core"
)

// scriptedSource yields one prepared stream per Open call.
type scriptedSource struct {
	mu      sync.Mutex
	streams [][]core.RawResult
	opens   int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Open(ctx context.Context) (<-chan core.RawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if len(s.streams) == 0 {
		return nil, errors.New("no more streams")
	}
	batch := s.streams[0]
	s.streams = s.streams[1:]

	ch := make(chan core.RawResult, len(batch))
	for _, r := range batch {
		ch <- r
	}
	close(ch)
	return ch, nil
}

func marker(msg string) core.RawResult {
	return core.RawResult{Entry: core.RawEntry{Facility: "kern", Level: "info", Message: msg}}
}

func continuation(msg string) core.RawResult {
	return core.RawResult{Entry: core.RawEntry{Message: msg}}
}

func runReader(t *testing.T, src *scriptedSource, svc *Service, wantLen int) {
	t.Helper()
	r := NewReader(src, svc, testLogger())
	r.Backoff = func(int) time.Duration { return time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for svc.Len() < wantLen {
		select {
		case <-deadline:
			t.Fatalf("store has %d entries, want %d", svc.Len(), wantLen)
		case <-time.After(time.Millisecond):
		}
	}
	// let trailing continuations land
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReaderScenario(t *testing.T) {
	svc := NewService(0, testLogger())
	src := &scriptedSource{streams: [][]core.RawResult{{
		marker("A"),
		continuation("more"),
		marker("C"),
	}}}
	runReader(t, src, svc, 2)

	want := []core.LogEntry{
		{Facility: "kern", Level: "info", SequenceNumber: 0, Message: "A\nmore"},
		{Facility: "kern", Level: "info", SequenceNumber: 1, Message: "C"},
	}
	snapshot, sub := svc.Subscribe()
	defer svc.Unsubscribe(sub)
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	d := core.LogEntry{Facility: "kern", Level: "info", SequenceNumber: 2, Message: "D"}
	svc.Append(d)
	if got := recv(t, sub); got != d {
		t.Errorf("live entry %+v, want %+v", got, d)
	}
}

func TestReaderSkipsErrorsAndLeadingContinuations(t *testing.T) {
	svc := NewService(0, testLogger())
	src := &scriptedSource{streams: [][]core.RawResult{{
		continuation("orphan"),
		{Err: errors.New("bad line")},
		marker("first"),
		{Err: errors.New("bad line")},
		continuation("x"),
		continuation("y"),
		marker("second"),
	}}}
	runReader(t, src, svc, 2)

	got := svc.Read(0, -1)
	if got[0].Message != "first\nx\ny" || got[0].SequenceNumber != 0 {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].Message != "second" || got[1].SequenceNumber != 1 {
		t.Errorf("second entry = %+v", got[1])
	}
}

func TestReaderKeepsSequenceAcrossReopen(t *testing.T) {
	svc := NewService(0, testLogger())
	src := &scriptedSource{streams: [][]core.RawResult{
		{marker("a"), marker("b")},
		{marker("c")},
	}}
	runReader(t, src, svc, 3)

	if diff := cmp.Diff([]uint64{0, 1, 2}, seqs(svc.Read(0, -1))); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}
	src.mu.Lock()
	opens := src.opens
	src.mu.Unlock()
	if opens < 2 {
		t.Errorf("opens = %d, want at least 2", opens)
	}
}

func TestReaderTimestamp(t *testing.T) {
	svc := NewService(0, testLogger())
	src := &scriptedSource{streams: [][]core.RawResult{{
		{Entry: core.RawEntry{Facility: "kern", SinceBoot: 1500 * time.Millisecond, Message: "t"}},
		{Entry: core.RawEntry{Facility: "kern", SinceBoot: -time.Second, Message: "neg"}},
	}}}
	runReader(t, src, svc, 2)

	got := svc.Read(0, -1)
	if got[0].TimestampNs != 1_500_000_000 {
		t.Errorf("timestamp = %d", got[0].TimestampNs)
	}
	if got[1].TimestampNs != 0 {
		t.Errorf("negative timestamp should clamp to 0, got %d", got[1].TimestampNs)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		got := backoff(tt.failures)
		if got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}
