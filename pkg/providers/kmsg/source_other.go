//go:build !linux

package kmsg

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modoterra/linux2rest/pkg/core"
)

// Source is unavailable outside Linux.
type Source struct{}

// New creates a source whose Open always fails.
func New(logger *slog.Logger) *Source { return &Source{} }

func (s *Source) Name() string { return "kmsg" }

func (s *Source) Open(ctx context.Context) (<-chan core.RawResult, error) {
	return nil, errors.New("/dev/kmsg is only available on linux")
}
