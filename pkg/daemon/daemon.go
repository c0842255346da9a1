package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"

	"github.com/modoterra/linux2rest/internal/buildinfo"
	"github.com/modoterra/linux2rest/pkg/config"
	"github.com/modoterra/linux2rest/pkg/core"
	"github.com/modoterra/linux2rest/pkg/kernel"
	"github.com/modoterra/linux2rest/pkg/transport/httpapi"
	"github.com/modoterra/linux2rest/pkg/transport/uds"
)

// Daemon is the linux2restd process: it tails the kernel log and serves it,
// along with host telemetry, over HTTP and the control socket.
type Daemon struct {
	source   core.KernelSource
	service  *kernel.Service
	reader   *kernel.Reader
	server   *uds.Server
	http     *httpapi.Server
	recorder *Recorder
	logger   *slog.Logger

	// notify reports state to systemd; it is a no-op outside a unit
	notify func(state string) (bool, error)
}

// New creates a daemon reading from source.
func New(cfg *config.Config, source core.KernelSource, logger *slog.Logger) *Daemon {
	svc := kernel.NewService(cfg.Kernel.QueueSize, logger.With("component", "kernel"))
	d := &Daemon{
		source:   source,
		service:  svc,
		reader:   kernel.NewReader(source, svc, logger.With("component", "reader")),
		server:   uds.NewServer(cfg.Socket, logger.With("component", "uds")),
		http:     httpapi.NewServer(cfg.Listen, svc, logger.With("component", "http")),
		recorder: NewRecorder(cfg.LogSettings, logger.With("component", "recorder")),
		logger:   logger,
		notify: func(state string) (bool, error) {
			return sddaemon.SdNotify(false, state)
		},
	}
	d.registerHandlers()
	return d
}

// Service returns the kernel log service.
func (d *Daemon) Service() *kernel.Service {
	return d.service
}

// Server returns the underlying UDS server (for broadcasting events).
func (d *Daemon) Server() *uds.Server {
	return d.server
}

// HTTPAddr returns the HTTP listen address, resolved once bound.
func (d *Daemon) HTTPAddr() string {
	return d.http.Addr()
}

// Run binds both listeners, notifies systemd, and serves until ctx is
// cancelled or a listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.server.Listen(); err != nil {
		return err
	}
	if err := d.http.Listen(); err != nil {
		d.server.Shutdown()
		return err
	}
	if ok, err := d.notify(sddaemon.SdNotifyReady); err != nil {
		d.logger.Warn("sd_notify ready", "err", err)
	} else if ok {
		d.logger.Debug("notified systemd")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		d.reader.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		d.recorder.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		errCh <- d.server.Serve(ctx)
	}()
	go func() {
		defer wg.Done()
		errCh <- d.http.Serve(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			err = fmt.Errorf("listener stopped: %w", err)
		}
	}

	d.notify(sddaemon.SdNotifyStopping)
	if evt, evtErr := uds.NewEvent(uds.EventDaemonShutdown, nil); evtErr == nil {
		d.server.Broadcast(evt)
	}
	cancel()
	d.server.Shutdown()
	wg.Wait()
	return err
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodKernelBuffer, d.handleKernelBuffer)
	d.server.Handle(uds.MethodStats, d.handleStats)
	d.server.HandleStream(uds.MethodKernelSubscribe, d.handleKernelSubscribe)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true}, nil
}

func (d *Daemon) handleKernelBuffer(_ context.Context, msg uds.Message) (any, error) {
	var req uds.KernelBufferRequest
	if len(msg.Data) > 0 {
		if err := msg.UnmarshalData(&req); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
	}
	start, size := 0, -1
	if req.Start != nil && *req.Start >= 0 {
		start = *req.Start
	}
	if req.Size != nil && *req.Size >= 0 {
		size = *req.Size
	}
	return d.service.Read(start, size), nil
}

func (d *Daemon) handleStats(_ context.Context, _ uds.Message) (any, error) {
	return uds.StatsResponse{
		Entries:     d.service.Len(),
		Subscribers: d.service.Subscribers(),
		Backend:     d.source.Name(),
		UptimeSec:   int64(d.service.Uptime() / time.Second),
		Version:     buildinfo.Version,
	}, nil
}

// handleKernelSubscribe answers with the snapshot, then forwards live
// entries as kernel.entry events until the connection closes or the
// subscriber is dropped.
func (d *Daemon) handleKernelSubscribe(ctx context.Context, req uds.Message, conn *uds.Conn) error {
	snapshot, sub := d.service.Subscribe()
	if err := conn.Reply(req, snapshot); err != nil {
		d.service.Unsubscribe(sub)
		return err
	}
	go d.forward(ctx, sub, conn)
	return nil
}

func (d *Daemon) forward(ctx context.Context, sub *kernel.Subscriber, conn *uds.Conn) {
	defer d.service.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-sub.Events():
			evt, err := uds.NewEvent(uds.EventKernelEntry, []core.LogEntry{entry})
			if err != nil {
				d.logger.Error("encode kernel entry", "err", err)
				continue
			}
			if err := conn.Send(evt); err != nil {
				d.logger.Debug("control subscriber gone", "id", sub.ID(), "err", err)
				return
			}
		case <-sub.Evicted():
			reason := "unsubscribed"
			if sub.Overrun() {
				reason = "subscriber too slow"
			}
			if evt, err := uds.NewEvent(uds.EventKernelDropped, uds.KernelDropped{Reason: reason}); err == nil {
				conn.Send(evt)
			}
			return
		}
	}
}
