package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// logRetention is how long rolled files are kept.
const logRetention = 7 * 24 * time.Hour

// NewHourlyWriter returns a writer for <dir>/<prefix>.<YYYY-MM-DD-HH>.log
// that switches files when the hour changes. dir is created if needed.
func NewHourlyWriter(dir, prefix string, opts ...rotatelogs.Option) (*rotatelogs.RotateLogs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	opts = append([]rotatelogs.Option{
		rotatelogs.WithRotationTime(time.Hour),
		rotatelogs.WithMaxAge(logRetention),
	}, opts...)

	w, err := rotatelogs.New(filepath.Join(dir, prefix+".%Y-%m-%d-%H.log"), opts...)
	if err != nil {
		return nil, fmt.Errorf("rolling log: %w", err)
	}
	return w, nil
}
