package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/modoterra/linux2rest/pkg/providers/system"
)

// Recorder periodically logs selected telemetry categories. A category
// with interval N seconds is recorded on every Nth tick, starting with the
// first.
type Recorder struct {
	settings map[string]int
	interval time.Duration
	lookup   func(name string) (system.Category, bool)
	logger   *slog.Logger
}

// NewRecorder creates a recorder for category -> seconds settings.
func NewRecorder(settings map[string]int, logger *slog.Logger) *Recorder {
	return &Recorder{
		settings: settings,
		interval: time.Second,
		lookup:   system.Lookup,
		logger:   logger,
	}
}

// Run records until ctx is cancelled. It returns at once when nothing is
// configured.
func (r *Recorder) Run(ctx context.Context) {
	if len(r.settings) == 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var counter uint64
	for {
		r.tick(ctx, counter)
		counter++
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick records every category due at counter and returns their names.
func (r *Recorder) tick(ctx context.Context, counter uint64) []string {
	names := make([]string, 0, len(r.settings))
	for name := range r.settings {
		names = append(names, name)
	}
	sort.Strings(names)

	var recorded []string
	for _, name := range names {
		every := r.settings[name]
		if every <= 0 || counter%uint64(every) != 0 {
			continue
		}
		c, ok := r.lookup(name)
		if !ok {
			r.logger.Warn("unknown category", "category", name)
			continue
		}
		v, err := c.Collect(ctx)
		if err != nil {
			r.logger.Error("collect", "category", name, "err", err)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			r.logger.Error("encode", "category", name, "err", err)
			continue
		}
		r.logger.Info("record", "category", name, "data", json.RawMessage(data))
		recorded = append(recorded, name)
	}
	return recorded
}
