package core

import (
	"fmt"
	"strconv"
)

// EventKind identifies a stream that subscribers can register for.
type EventKind string

const (
	EventKernelBuffer EventKind = "kernel_buffer"
)

// LogEntry is one logical kernel log record. Message may span several
// lines once continuation lines have been merged into it.
type LogEntry struct {
	Facility       string `json:"facility"`
	Level          string `json:"level"`
	SequenceNumber uint64 `json:"sequence_number"`
	TimestampNs    uint64 `json:"timestamp_ns"` // since boot, 0 if unknown
	Message        string `json:"message"`
}

// String renders the entry the way dmesg does:
// "[   12.345678] kern.info: message".
func (e LogEntry) String() string {
	sec := e.TimestampNs / 1_000_000_000
	usec := (e.TimestampNs % 1_000_000_000) / 1_000
	tag := e.Facility
	if e.Level != "" {
		tag += "." + e.Level
	}
	return fmt.Sprintf("[%5d.%06d] %s: %s", sec, usec, tag, e.Message)
}

var facilityNames = []string{
	"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
	"uucp", "cron", "authpriv", "ftp", "ntp", "audit", "alert", "clock",
	"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
}

var levelNames = []string{
	"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
}

// FacilityName returns the syslog(3) name of a facility code.
// Unknown codes are rendered as their decimal value.
func FacilityName(code int) string {
	if code >= 0 && code < len(facilityNames) {
		return facilityNames[code]
	}
	return strconv.Itoa(code)
}

// LevelName returns the syslog(3) name of a level code.
func LevelName(code int) string {
	if code >= 0 && code < len(levelNames) {
		return levelNames[code]
	}
	return strconv.Itoa(code)
}

// SplitPriority decodes a kernel priority value (facility<<3 | level).
func SplitPriority(prio int) (facility, level string) {
	return FacilityName(prio >> 3), LevelName(prio & 7)
}
