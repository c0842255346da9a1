package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modoterra/linux2rest/internal/buildinfo"
	"github.com/modoterra/linux2rest/pkg/config"
	"github.com/modoterra/linux2rest/pkg/core"
	"github.com/modoterra/linux2rest/pkg/daemon"
	"github.com/modoterra/linux2rest/pkg/logging"
	"github.com/modoterra/linux2rest/pkg/providers/journald"
	"github.com/modoterra/linux2rest/pkg/providers/klog"
	"github.com/modoterra/linux2rest/pkg/providers/kmsg"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "linux2restd",
	Short:        "Kernel log and host telemetry daemon",
	Long:         "linux2restd reads the kernel log and serves it, with host telemetry, over HTTP, WebSocket and a local control socket.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runDaemon,
}

var flags struct {
	configPath  string
	listen      string
	port        int
	socket      string
	logPath     string
	verbose     bool
	journald    bool
	backend     string
	queueSize   int
	logSettings string
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.configPath, "config", config.DefaultPath(), "path to linux2rest.yaml")
	f.StringVar(&flags.listen, "listen", config.DefaultListen, "HTTP listen address")
	f.IntVar(&flags.port, "port", 0, "HTTP port, overrides the port of --listen")
	f.StringVar(&flags.socket, "socket", config.DefaultSocket, "control socket path")
	f.StringVar(&flags.logPath, "log-path", config.DefaultLogPath, "directory for rolling log files")
	f.BoolVar(&flags.verbose, "verbose", false, "log at debug level on the console")
	f.BoolVar(&flags.journald, "journald", false, "also log to the systemd journal")
	f.StringVar(&flags.backend, "backend", config.DefaultBackend, "kernel log backend: kmsg, klog or journal")
	f.IntVar(&flags.queueSize, "queue-size", config.DefaultQueueSize, "per-subscriber queue size")
	f.StringVar(&flags.logSettings, "log-settings", "", `telemetry to record, e.g. "system-cpu=10,system-disk=30"`)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "linux2restd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(flags.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, cmd.Flags().Changed); err != nil {
		return err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	logger, closer, err := logging.New(logging.Options{
		Verbose:  cfg.Verbose,
		LogPath:  cfg.LogPath,
		Journald: cfg.Journald,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info("starting linux2restd",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"date", buildinfo.Date,
		"cmdline", strings.Join(os.Args, " "),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(cfg, newSource(cfg, logger), logger)
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "err", err)
		return err
	}
	logger.Info("shut down")
	return nil
}

// loadConfig reads the config file. A missing file is only an error when
// the path was given explicitly.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// applyFlags copies flags the user set onto cfg.
func applyFlags(cfg *config.Config, changed func(name string) bool) error {
	if changed("listen") {
		cfg.Listen = flags.listen
	}
	if changed("port") {
		host, _, err := net.SplitHostPort(cfg.Listen)
		if err != nil {
			return fmt.Errorf("--port: listen address %q: %w", cfg.Listen, err)
		}
		cfg.Listen = net.JoinHostPort(host, strconv.Itoa(flags.port))
	}
	if changed("socket") {
		cfg.Socket = flags.socket
	}
	if changed("log-path") {
		cfg.LogPath = flags.logPath
	}
	if changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if changed("journald") {
		cfg.Journald = flags.journald
	}
	if changed("backend") {
		cfg.Kernel.Backend = flags.backend
	}
	if changed("queue-size") {
		cfg.Kernel.QueueSize = flags.queueSize
	}
	if changed("log-settings") {
		settings, err := config.ParseLogSettings(flags.logSettings)
		if err != nil {
			return fmt.Errorf("--log-settings: %w", err)
		}
		cfg.LogSettings = settings
	}
	return nil
}

func newSource(cfg *config.Config, logger *slog.Logger) core.KernelSource {
	switch cfg.Kernel.Backend {
	case "klog":
		return klog.New(cfg.Kernel.PollInterval, logger.With("component", "klog"))
	case "journal":
		return journald.New(logger.With("component", "journal"))
	default:
		return kmsg.New(logger.With("component", "kmsg"))
	}
}
