// Package journald reads kernel messages from the systemd journal by
// following journalctl's JSON output.
package journald

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modoterra/linux2rest/pkg/core"
)

// record holds the journal fields used for kernel messages. journalctl
// encodes every value as a string, except MESSAGE, which is a byte array
// when it is not valid UTF-8.
type record struct {
	Cursor     string          `json:"__CURSOR"`
	Message    json.RawMessage `json:"MESSAGE"`
	Priority   string          `json:"PRIORITY"`
	Facility   string          `json:"SYSLOG_FACILITY"`
	SourceMono string          `json:"_SOURCE_MONOTONIC_TIMESTAMP"`
	Mono       string          `json:"__MONOTONIC_TIMESTAMP"`
}

// parseRecord decodes one line of `journalctl -o json` into raw entries.
// Multi-line messages yield one marker entry followed by continuations.
func parseRecord(line []byte) (string, []core.RawEntry, error) {
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return "", nil, fmt.Errorf("journal record: %w", err)
	}
	msg, err := message(r.Message)
	if err != nil {
		return r.Cursor, nil, err
	}

	fac := 0
	if r.Facility != "" {
		if fac, err = strconv.Atoi(r.Facility); err != nil {
			return r.Cursor, nil, fmt.Errorf("journal record: SYSLOG_FACILITY %q", r.Facility)
		}
	}
	prio := 6
	if r.Priority != "" {
		if prio, err = strconv.Atoi(r.Priority); err != nil {
			return r.Cursor, nil, fmt.Errorf("journal record: PRIORITY %q", r.Priority)
		}
	}
	facility, level := core.SplitPriority(fac<<3 | prio&7)

	lines := strings.Split(strings.TrimRight(msg, "\n"), "\n")
	out := make([]core.RawEntry, 0, len(lines))
	out = append(out, core.RawEntry{
		Facility:  facility,
		Level:     level,
		SinceBoot: monotonic(r.SourceMono, r.Mono),
		Message:   lines[0],
	})
	for _, l := range lines[1:] {
		out = append(out, core.RawEntry{Message: l})
	}
	return r.Cursor, out, nil
}

func message(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return "", fmt.Errorf("journal record: MESSAGE: %w", err)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		b[i] = byte(v)
	}
	return string(b), nil
}

// monotonic returns the first parseable microsecond timestamp.
func monotonic(values ...string) time.Duration {
	for _, v := range values {
		if us, err := strconv.ParseUint(v, 10, 64); err == nil {
			return time.Duration(us) * time.Microsecond
		}
	}
	return 0
}
