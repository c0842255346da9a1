package kernel

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/modoterra/linux2rest/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func recv(t *testing.T, sub *Subscriber) core.LogEntry {
	t.Helper()
	select {
	case e := <-sub.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for entry")
		return core.LogEntry{}
	}
}

func TestServiceContinueMergesIntoLast(t *testing.T) {
	svc := NewService(0, testLogger())
	if _, ok := svc.Continue("orphan"); ok {
		t.Fatal("Continue on empty store should report false")
	}

	svc.Append(core.LogEntry{Facility: "kern", SequenceNumber: 0, Message: "A"})
	_, sub := svc.Subscribe()
	defer svc.Unsubscribe(sub)

	updated, ok := svc.Continue("more")
	if !ok {
		t.Fatal("Continue should report true")
	}
	if updated.Message != "A\nmore" || updated.SequenceNumber != 0 {
		t.Errorf("updated = %+v", updated)
	}
	if got := recv(t, sub); got != updated {
		t.Errorf("broadcast %+v, want %+v", got, updated)
	}
}

func TestServiceSubscribeSnapshotThenLive(t *testing.T) {
	svc := NewService(0, testLogger())
	for i := 0; i < 3; i++ {
		svc.Append(core.LogEntry{Facility: "kern", SequenceNumber: uint64(i)})
	}

	snapshot, sub := svc.Subscribe()
	defer svc.Unsubscribe(sub)
	if diff := cmp.Diff([]uint64{0, 1, 2}, seqs(snapshot)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	svc.Append(core.LogEntry{Facility: "kern", SequenceNumber: 3})
	if got := recv(t, sub); got.SequenceNumber != 3 {
		t.Errorf("live seq = %d, want 3", got.SequenceNumber)
	}
}

// Entries appended concurrently with Subscribe appear exactly once across
// the snapshot and the live stream.
func TestServiceSubscribeNoGapNoDuplicate(t *testing.T) {
	const total = 2000
	svc := NewService(total, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			svc.Append(core.LogEntry{SequenceNumber: uint64(i)})
		}
	}()

	time.Sleep(time.Millisecond)
	snapshot, sub := svc.Subscribe()
	defer svc.Unsubscribe(sub)
	wg.Wait()

	got := seqs(snapshot)
	for len(got) < total {
		got = append(got, recv(t, sub).SequenceNumber)
	}
	for i, seq := range got {
		if seq != uint64(i) {
			t.Fatalf("position %d has seq %d", i, seq)
		}
	}
	select {
	case e := <-sub.Events():
		t.Errorf("unexpected extra entry %+v", e)
	default:
	}
}

func TestServiceDropsSlowSubscriber(t *testing.T) {
	svc := NewService(2, testLogger())
	_, slow := svc.Subscribe()
	_, fast := svc.Subscribe()
	defer svc.Unsubscribe(fast)

	for i := 0; i < 3; i++ {
		svc.Append(core.LogEntry{SequenceNumber: uint64(i)})
		recv(t, fast)
	}

	select {
	case <-slow.Evicted():
	case <-time.After(2 * time.Second):
		t.Fatal("slow subscriber was not evicted")
	}
	if !slow.Overrun() {
		t.Error("slow subscriber should be marked overrun")
	}
	if svc.Subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", svc.Subscribers())
	}
}

func TestServiceUnsubscribeIdempotent(t *testing.T) {
	svc := NewService(0, testLogger())
	_, a := svc.Subscribe()
	_, b := svc.Subscribe()

	svc.Unsubscribe(a)
	svc.Unsubscribe(a)
	svc.Unsubscribe(nil)

	svc.Append(core.LogEntry{Message: "after"})
	if got := recv(t, b); got.Message != "after" {
		t.Errorf("remaining subscriber got %q", got.Message)
	}
	if svc.Subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", svc.Subscribers())
	}
}
