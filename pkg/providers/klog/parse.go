// Package klog reads the kernel ring buffer through syslog(2).
package klog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modoterra/linux2rest/pkg/core"
)

// ParseLine parses one line of the ring buffer as returned by
// SYSLOG_ACTION_READ_ALL: "<P>[sec.usec] text". Lines without a priority
// prefix are continuation lines.
func ParseLine(line string) (core.RawEntry, error) {
	if !strings.HasPrefix(line, "<") {
		return core.RawEntry{Message: line}, nil
	}

	end := strings.IndexByte(line, '>')
	if end < 0 {
		return core.RawEntry{}, fmt.Errorf("unterminated priority: %q", line)
	}
	prio, err := strconv.Atoi(line[1:end])
	if err != nil || prio < 0 {
		return core.RawEntry{}, fmt.Errorf("invalid priority %q", line[1:end])
	}
	facility, level := core.SplitPriority(prio)
	rest := line[end+1:]

	var since time.Duration
	if strings.HasPrefix(rest, "[") {
		rb := strings.IndexByte(rest, ']')
		if rb < 0 {
			return core.RawEntry{}, fmt.Errorf("unterminated timestamp: %q", line)
		}
		since, err = parseStamp(strings.TrimSpace(rest[1:rb]))
		if err != nil {
			return core.RawEntry{}, err
		}
		rest = strings.TrimPrefix(rest[rb+1:], " ")
	}

	return core.RawEntry{
		Facility:  facility,
		Level:     level,
		SinceBoot: since,
		Message:   rest,
	}, nil
}

func parseStamp(s string) (time.Duration, error) {
	secStr, usecStr, ok := strings.Cut(s, ".")
	sec, err := strconv.ParseUint(secStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	d := time.Duration(sec) * time.Second
	if ok {
		usec, err := strconv.ParseUint(usecStr, 10, 64)
		if err != nil || len(usecStr) > 6 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		for i := len(usecStr); i < 6; i++ {
			usec *= 10
		}
		d += time.Duration(usec) * time.Microsecond
	}
	return d, nil
}

func splitLines(buf []byte) []string {
	text := strings.TrimRight(string(buf), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// unseen returns the index of the first line not already emitted. A later
// read is the earlier one with lines dropped from the front and appended
// at the back, so the emitted part is the longest suffix of prev that is a
// prefix of lines. Without any overlap the ring wrapped and every line is
// new.
func unseen(lines, prev []string) int {
	for d := range prev {
		if hasPrefix(lines, prev[d:]) {
			return len(prev) - d
		}
	}
	return 0
}

func hasPrefix(lines, prefix []string) bool {
	if len(prefix) > len(lines) {
		return false
	}
	for i, l := range prefix {
		if lines[i] != l {
			return false
		}
	}
	return true
}
