// Package kmsg reads the kernel log from /dev/kmsg.
package kmsg

import (
	"strings"
	"time"

	"github.com/modoterra/linux2rest/pkg/core"
)

// splitRecord turns one /dev/kmsg record into raw entries. The first line
// carries the facility marker; embedded newlines, written by the kernel as
// \x0a escapes, become continuation lines. Dictionary lines (prefixed with
// a space) are dropped.
func splitRecord(priority int, ts time.Time, text string, boot time.Time) []core.RawEntry {
	facility, level := core.SplitPriority(priority)

	var since time.Duration
	if !ts.IsZero() && !boot.IsZero() {
		since = ts.Sub(boot)
		if since < 0 {
			since = 0
		}
	}

	if i := strings.Index(text, "\n "); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimRight(text, "\n")

	lines := strings.Split(unescape(text), "\n")
	out := make([]core.RawEntry, 0, len(lines))
	out = append(out, core.RawEntry{
		Facility:  facility,
		Level:     level,
		SinceBoot: since,
		Message:   lines[0],
	})
	for _, l := range lines[1:] {
		out = append(out, core.RawEntry{Message: l})
	}
	return out
}

// unescape decodes the \xNN escapes /dev/kmsg uses for non-printable
// bytes. Malformed escapes are kept verbatim.
func unescape(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) && s[i+1] == 'x' {
			if hi, ok := hexVal(s[i+2]); ok {
				if lo, ok := hexVal(s[i+3]); ok {
					b.WriteByte(hi<<4 | lo)
					i += 3
					continue
				}
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
