package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/linux2rest/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	levelStyles = map[string]lipgloss.Style{
		"emerg":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		"alert":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		"crit":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"err":     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		"warning": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"notice":  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"info":    lipgloss.NewStyle(),
		"debug":   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

// LevelStyle returns the style used to render entries of the given level.
func LevelStyle(level string) lipgloss.Style {
	if s, ok := levelStyles[level]; ok {
		return s
	}
	return dimStyle
}

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	statusBarH := 2
	detailH := 6
	logH := a.height - detailH - statusBarH - 4
	w := a.width - 4

	logs := a.renderLog(w, logH)
	logPane := a.paneBox(PaneLog, a.logTitle(), logs, w, logH)

	detail := a.renderDetail(w)
	detailPane := a.paneBox(PaneDetail, " Entry ", detail, w, detailH)

	return lipgloss.JoinVertical(lipgloss.Left, logPane, detailPane, a.renderStatusBar())
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderLog(w, h int) string {
	entries := a.visibleEntries()
	if len(entries) == 0 {
		return dimStyle.Render("no kernel messages")
	}

	maxVisible := max(h-2, 1)
	if a.mode == ModeSearch {
		maxVisible = max(maxVisible-2, 1)
	}
	selected := len(entries) - 1 - a.cursor
	end := len(entries)
	if selected < end-maxVisible {
		end = selected + 1
	}
	start := max(0, end-maxVisible)

	var b strings.Builder
	for i := start; i < end; i++ {
		line := truncate(FormatEntry(entries[i]), w)
		if i == selected && a.cursor > 0 {
			line = selectedStyle.Width(w).Render(line)
		} else {
			line = LevelStyle(entries[i].Level).Render(line)
		}
		b.WriteString(line + "\n")
	}

	if a.mode == ModeSearch {
		b.WriteString("\n" + a.search.View())
	}
	return b.String()
}

func (a App) renderDetail(w int) string {
	e := a.selectedEntry()
	if e == nil {
		return dimStyle.Render("no entry selected")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Seq:       %d\n", e.SequenceNumber)
	fmt.Fprintf(&b, "Priority:  %s.%s\n", e.Facility, LevelStyle(e.Level).Render(e.Level))
	fmt.Fprintf(&b, "Boot:      %s\n", formatSinceBoot(e.TimestampNs))
	msg := strings.ReplaceAll(e.Message, "\n", " ⏎ ")
	fmt.Fprintf(&b, "Message:   %s\n", truncate(msg, max(w-11, 4)))
	return b.String()
}

func (a App) logTitle() string {
	title := " Kernel "
	if a.maxLevel < 7 {
		title += dimStyle.Render("[<= "+core.LevelName(a.maxLevel)+"]") + " "
	}
	if a.paused {
		title += dimStyle.Render(fmt.Sprintf("[PAUSED +%d]", len(a.pending))) + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	if a.connected {
		left = fmt.Sprintf("%s | %d entries | %d subscribers | %s | up %s",
			a.statusMsg, a.stats.Entries, a.stats.Subscribers, a.stats.Backend,
			formatDuration(uint64(max(a.stats.UptimeSec, 0))))
	}
	right := "j/k:scroll G:tail /:filter space:pause +/-:level c:clear q:quit"
	if a.mode == ModeSearch {
		right = "enter:apply esc:cancel"
	}

	gap := a.width - lipgloss.Width(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

// FormatEntry renders an entry as a single dmesg-style line.
func FormatEntry(e core.LogEntry) string {
	return strings.ReplaceAll(e.String(), "\n", " ")
}

func formatSinceBoot(ns uint64) string {
	return time.Duration(ns).Truncate(time.Microsecond).String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(sec uint64) string {
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	if sec < 3600 {
		return fmt.Sprintf("%dm%ds", sec/60, sec%60)
	}
	return fmt.Sprintf("%dh%dm", sec/3600, (sec%3600)/60)
}
