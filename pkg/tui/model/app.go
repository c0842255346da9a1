// Package model implements the linux2rest kernel log viewer.
package model

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/linux2rest/pkg/core"
	"github.com/modoterra/linux2rest/pkg/transport/uds"
)

// maxEntries bounds the viewer's local copy of the kernel buffer.
const maxEntries = 5000

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneLog Pane = iota
	PaneDetail
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
)

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	events     chan tea.Msg
	socketPath string
	connected  bool

	// State
	entries  []core.LogEntry
	pending  []core.LogEntry
	paused   bool
	maxLevel int
	stats    uds.StatsResponse

	// Cursor counts rows up from the newest visible entry; 0 follows the tail.
	cursor int

	// UI
	activePane Pane
	mode       Mode
	search     textinput.Model
	width      int
	height     int

	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	si := textinput.New()
	si.Placeholder = "filter..."
	si.CharLimit = 64

	return App{
		socketPath: socketPath,
		search:     si,
		activePane: PaneLog,
		mode:       ModeNormal,
		maxLevel:   7,
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tea.SetWindowTitle("linux2rest"),
	)
}

// tickMsg triggers a stats refresh.
type tickMsg time.Time

// connectedMsg carries the subscription snapshot once connected.
type connectedMsg struct {
	client   *uds.Client
	events   chan tea.Msg
	snapshot []core.LogEntry
}

// entriesMsg carries live kernel entries.
type entriesMsg []core.LogEntry

// statsMsg carries daemon counters.
type statsMsg uds.StatsResponse

// droppedMsg reports that the daemon ended the subscription.
type droppedMsg struct{ reason string }

// disconnectedMsg reports that the control connection closed.
type disconnectedMsg struct{}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}

		events := make(chan tea.Msg, 256)
		client.OnEvent(func(m uds.Message) {
			var msg tea.Msg
			switch m.Method {
			case uds.EventKernelEntry:
				var entries []core.LogEntry
				if err := m.UnmarshalData(&entries); err != nil {
					return
				}
				msg = entriesMsg(entries)
			case uds.EventKernelDropped:
				var d uds.KernelDropped
				_ = m.UnmarshalData(&d)
				msg = droppedMsg{reason: d.Reason}
			case uds.EventDaemonShutdown:
				msg = droppedMsg{reason: "daemon shutting down"}
			default:
				return
			}
			select {
			case events <- msg:
			case <-client.Closed():
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodKernelSubscribe, nil)
		if err != nil {
			client.Close()
			return errorMsg{err}
		}
		var snapshot []core.LogEntry
		if err := resp.UnmarshalData(&snapshot); err != nil {
			client.Close()
			return errorMsg{err}
		}
		return connectedMsg{client: client, events: events, snapshot: snapshot}
	}
}

func waitEventCmd(client *uds.Client, events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-client.Closed():
			return disconnectedMsg{}
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchStatsCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodStats, nil)
		if err != nil {
			return errorMsg{err}
		}
		var stats uds.StatsResponse
		if err := resp.UnmarshalData(&stats); err != nil {
			return errorMsg{err}
		}
		return statsMsg(stats)
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.events = msg.events
		a.connected = true
		a.statusMsg = "connected"
		a.entries = merge(nil, msg.snapshot)
		return a, tea.Batch(
			waitEventCmd(a.client, a.events),
			fetchStatsCmd(a.client),
			tickCmd(),
		)

	case entriesMsg:
		if a.paused {
			a.pending = append(a.pending, msg...)
		} else {
			a.entries = merge(a.entries, msg)
		}
		return a, waitEventCmd(a.client, a.events)

	case droppedMsg:
		a.connected = false
		a.statusMsg = "stream ended: " + msg.reason
		a.client.Close()
		return a, nil

	case disconnectedMsg:
		a.connected = false
		if a.statusMsg == "connected" {
			a.statusMsg = "disconnected"
		}
		return a, nil

	case tickMsg:
		if a.client != nil && a.connected {
			return a, tea.Batch(tickCmd(), fetchStatsCmd(a.client))
		}
		return a, nil

	case statsMsg:
		a.stats = uds.StatsResponse(msg)
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			return a, nil
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			a.cursor = 0
			return a, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		if a.client != nil {
			a.client.Close()
		}
		return a, tea.Quit

	case "k", "up":
		a.cursor = min(a.cursor+1, max(0, len(a.visibleEntries())-1))
	case "j", "down":
		if a.cursor > 0 {
			a.cursor--
		}
	case "g", "home":
		a.cursor = max(0, len(a.visibleEntries())-1)
	case "G", "end":
		a.cursor = 0

	case "tab":
		a.activePane = (a.activePane + 1) % 2

	case "/":
		a.mode = ModeSearch
		a.search.Focus()
		return a, textinput.Blink

	case " ":
		a.paused = !a.paused
		if !a.paused {
			a.entries = merge(a.entries, a.pending)
			a.pending = nil
		}

	case "+":
		a.maxLevel = min(a.maxLevel+1, 7)
		a.cursor = 0
	case "-":
		a.maxLevel = max(a.maxLevel-1, 0)
		a.cursor = 0

	case "c":
		a.entries = nil
		a.pending = nil
		a.cursor = 0
	}

	return a, nil
}

// merge folds incoming entries into the sorted slice. An entry whose
// sequence number is already present replaces it, so continuation
// updates overwrite the earlier partial message.
func merge(entries, incoming []core.LogEntry) []core.LogEntry {
	for _, e := range incoming {
		i := sort.Search(len(entries), func(i int) bool {
			return entries[i].SequenceNumber >= e.SequenceNumber
		})
		switch {
		case i < len(entries) && entries[i].SequenceNumber == e.SequenceNumber:
			entries[i] = e
		case i == len(entries):
			entries = append(entries, e)
		default:
			entries = append(entries, core.LogEntry{})
			copy(entries[i+1:], entries[i:])
			entries[i] = e
		}
	}
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	return entries
}

func (a App) visibleEntries() []core.LogEntry {
	q := strings.ToLower(a.search.Value())
	var out []core.LogEntry
	for _, e := range a.entries {
		if levelRank(e.Level) > a.maxLevel {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Message), q) &&
			!strings.Contains(strings.ToLower(e.Facility), q) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (a App) selectedEntry() *core.LogEntry {
	entries := a.visibleEntries()
	i := len(entries) - 1 - a.cursor
	if i < 0 || i >= len(entries) {
		return nil
	}
	return &entries[i]
}

// levelRank maps a level name back to its syslog severity. Unknown
// names rank as debug.
func levelRank(level string) int {
	for i := 0; i < 8; i++ {
		if core.LevelName(i) == level {
			return i
		}
	}
	return 7
}
