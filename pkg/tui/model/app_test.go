package model

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"

	"github.com/modoterra/linux2rest/pkg/core"
)

func entry(seq uint64, level, msg string) core.LogEntry {
	return core.LogEntry{Facility: "kern", Level: level, SequenceNumber: seq, Message: msg}
}

func seqs(entries []core.LogEntry) []uint64 {
	out := make([]uint64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.SequenceNumber)
	}
	return out
}

func TestMergeOrdersAndReplaces(t *testing.T) {
	got := merge(nil, []core.LogEntry{entry(2, "info", "b"), entry(0, "info", "a")})
	got = merge(got, []core.LogEntry{entry(1, "info", "mid"), entry(2, "info", "b\nmore")})

	if diff := cmp.Diff([]uint64{0, 1, 2}, seqs(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if got[2].Message != "b\nmore" {
		t.Errorf("entry 2 = %q, want the continued message", got[2].Message)
	}
}

func TestMergeCaps(t *testing.T) {
	var incoming []core.LogEntry
	for i := 0; i < maxEntries+10; i++ {
		incoming = append(incoming, entry(uint64(i), "info", "x"))
	}
	got := merge(nil, incoming)
	if len(got) != maxEntries {
		t.Fatalf("len = %d, want %d", len(got), maxEntries)
	}
	if got[0].SequenceNumber != 10 {
		t.Errorf("oldest kept = %d, want 10", got[0].SequenceNumber)
	}
}

func TestVisibleEntriesFilters(t *testing.T) {
	a := New("/nonexistent")
	a.entries = []core.LogEntry{
		entry(0, "err", "disk failure"),
		entry(1, "info", "usb connected"),
		entry(2, "debug", "usb enumerate"),
	}

	if diff := cmp.Diff([]uint64{0, 1, 2}, seqs(a.visibleEntries())); diff != "" {
		t.Errorf("unfiltered mismatch (-want +got):\n%s", diff)
	}

	a.search.SetValue("USB")
	if diff := cmp.Diff([]uint64{1, 2}, seqs(a.visibleEntries())); diff != "" {
		t.Errorf("search mismatch (-want +got):\n%s", diff)
	}

	a.maxLevel = 6
	if diff := cmp.Diff([]uint64{1}, seqs(a.visibleEntries())); diff != "" {
		t.Errorf("level mismatch (-want +got):\n%s", diff)
	}
}

func TestPauseBuffersEntries(t *testing.T) {
	a := New("/nonexistent")
	a.entries = []core.LogEntry{entry(0, "info", "a")}

	m, _ := a.handleKey(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	a = m.(App)
	if !a.paused {
		t.Fatal("space should pause")
	}

	// Feed entries as Update would while paused.
	a.pending = append(a.pending, entry(1, "info", "b"))
	if len(a.entries) != 1 {
		t.Fatalf("paused view changed: %d entries", len(a.entries))
	}

	m, _ = a.handleKey(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	a = m.(App)
	if a.paused || len(a.pending) != 0 {
		t.Fatal("space should resume and flush pending entries")
	}
	if diff := cmp.Diff([]uint64{0, 1}, seqs(a.entries)); diff != "" {
		t.Errorf("resume mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectedEntryFollowsCursor(t *testing.T) {
	a := New("/nonexistent")
	a.entries = []core.LogEntry{entry(0, "info", "a"), entry(1, "info", "b")}

	if e := a.selectedEntry(); e == nil || e.SequenceNumber != 1 {
		t.Fatalf("tail selection = %+v, want seq 1", e)
	}
	m, _ := a.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	a = m.(App)
	if e := a.selectedEntry(); e == nil || e.SequenceNumber != 0 {
		t.Fatalf("after k = %+v, want seq 0", e)
	}
	m, _ = a.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	a = m.(App)
	if a.cursor != 1 {
		t.Errorf("cursor = %d, should clamp at oldest entry", a.cursor)
	}
}

func TestLevelRank(t *testing.T) {
	for i := 0; i < 8; i++ {
		if got := levelRank(core.LevelName(i)); got != i {
			t.Errorf("levelRank(%q) = %d, want %d", core.LevelName(i), got, i)
		}
	}
	if got := levelRank("bogus"); got != 7 {
		t.Errorf("levelRank(bogus) = %d, want 7", got)
	}
}

func TestFormatEntryFlattensContinuations(t *testing.T) {
	e := core.LogEntry{Facility: "kern", Level: "info", TimestampNs: 1_500_000_000, Message: "a\nb"}
	got := FormatEntry(e)
	want := "[    1.500000] kern.info: a b"
	if got != want {
		t.Errorf("FormatEntry() = %q, want %q", got, want)
	}
}
