package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/linux2rest/internal/buildinfo"
	"github.com/modoterra/linux2rest/pkg/config"
	"github.com/modoterra/linux2rest/pkg/core"
	"github.com/modoterra/linux2rest/pkg/daemon/service"
	"github.com/modoterra/linux2rest/pkg/transport/uds"
	tuimodel "github.com/modoterra/linux2rest/pkg/tui/model"
)

var socketPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "linux2rest",
	Short: "Kernel log viewer and client for linux2restd",
	Long:  "linux2rest is a terminal client for linux2restd: a live kernel log viewer plus commands to query the daemon.",
	RunE:  runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.DefaultSocket, "daemon socket path")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dmesgCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serviceCmd)
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	ensureDaemon()
	app := tuimodel.New(socketPath)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func ensureDaemon() {
	if _, err := os.Stat(socketPath); err == nil {
		return
	}
	cmd := exec.Command("linux2restd", "--socket", socketPath)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Start()
	for i := 0; i < 30; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "warning: could not start daemon, continuing anyway")
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socketPath, err)
	}
	return client, nil
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if daemon is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodPing, nil)
		if err != nil {
			return err
		}

		var pong uds.PingResponse
		if err := resp.UnmarshalData(&pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Fprintln(cmd.OutOrStdout(), "pong ✓")
		}
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "linux2rest %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Daemon ---

var daemonCmd = &cobra.Command{
	Use:                "daemon [linux2restd flags]",
	Short:              "Start daemon in foreground (for debugging)",
	Long:               "Normally the TUI auto-spawns the daemon. Use this to run it manually; arguments are passed to linux2restd.",
	DisableFlagParsing: true,
	RunE: func(_ *cobra.Command, args []string) error {
		cmd := exec.Command("linux2restd", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	},
}

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodStats, nil)
		if err != nil {
			return err
		}

		var stats uds.StatsResponse
		if err := resp.UnmarshalData(&stats); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Fprintf(out, "%-12s %s\n", "VERSION", stats.Version)
		fmt.Fprintf(out, "%-12s %s\n", "BACKEND", stats.Backend)
		fmt.Fprintf(out, "%-12s %d\n", "ENTRIES", stats.Entries)
		fmt.Fprintf(out, "%-12s %d\n", "SUBSCRIBERS", stats.Subscribers)
		fmt.Fprintf(out, "%-12s %s\n", "UPTIME", time.Duration(stats.UptimeSec)*time.Second)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

// --- Dmesg ---

var (
	dmesgStart int
	dmesgSize  int
	dmesgJSON  bool
)

var dmesgCmd = &cobra.Command{
	Use:   "dmesg",
	Short: "Print the kernel log buffer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req := uds.KernelBufferRequest{Start: &dmesgStart}
		if dmesgSize >= 0 {
			req.Size = &dmesgSize
		}
		resp, err := client.Request(ctx, uds.MethodKernelBuffer, req)
		if err != nil {
			return err
		}

		var entries []core.LogEntry
		if err := resp.UnmarshalData(&entries); err != nil {
			return err
		}
		return printEntries(cmd.OutOrStdout(), entries, dmesgJSON)
	},
}

func init() {
	dmesgCmd.Flags().IntVar(&dmesgStart, "start", 0, "index of the first entry")
	dmesgCmd.Flags().IntVar(&dmesgSize, "size", -1, "number of entries, -1 for all")
	dmesgCmd.Flags().BoolVar(&dmesgJSON, "json", false, "output as JSON")
}

// printEntries writes entries one per line, as dmesg-style text or as
// JSON objects.
func printEntries(w io.Writer, entries []core.LogEntry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	for _, e := range entries {
		line := tuimodel.LevelStyle(e.Level).Render(tuimodel.FormatEntry(e))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// --- Follow ---

var followJSON bool

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Print the kernel log and wait for new messages",
	Long: `Print the kernel log and wait for new messages.

Continuation lines appended to the last message are printed indented below
it. With --json every update is printed as the full entry, so a continued
message repeats with the same sequence_number.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return follow(ctx, client, cmd.OutOrStdout(), followJSON)
	},
}

func init() {
	followCmd.Flags().BoolVar(&followJSON, "json", false, "output as JSON")
}

var errStreamEnded = errors.New("stream ended")

// follow subscribes, prints the snapshot and then every live entry until
// ctx is done or the daemon ends the stream. Events that arrive before the
// snapshot reply is read are held back so output stays in order.
func follow(ctx context.Context, client *uds.Client, w io.Writer, asJSON bool) error {
	events := make(chan uds.Message, 256)
	client.OnEvent(func(m uds.Message) {
		select {
		case events <- m:
		case <-client.Closed():
		}
	})

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	resp, err := client.Request(reqCtx, uds.MethodKernelSubscribe, nil)
	cancel()
	if err != nil {
		return err
	}
	var snapshot []core.LogEntry
	if err := resp.UnmarshalData(&snapshot); err != nil {
		return err
	}
	p := &follower{w: w, asJSON: asJSON}
	if err := p.print(snapshot); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-events:
			if err := p.handle(m); err != nil {
				return err
			}
		case <-client.Closed():
			for {
				select {
				case m := <-events:
					if err := p.handle(m); err != nil {
						return err
					}
				default:
					return fmt.Errorf("%w: connection closed", errStreamEnded)
				}
			}
		}
	}
}

// follower prints the entries of a follow session. A continuation arrives
// as the last entry again with its message extended; in text mode only the
// added lines are printed, indented under the entry.
type follower struct {
	w      io.Writer
	asJSON bool

	last core.LogEntry
	seen bool
}

func (f *follower) print(entries []core.LogEntry) error {
	if f.asJSON {
		return printEntries(f.w, entries, true)
	}
	for _, e := range entries {
		added, ok := f.continued(e)
		f.last, f.seen = e, true
		if !ok {
			if err := printEntries(f.w, []core.LogEntry{e}, false); err != nil {
				return err
			}
			continue
		}
		style := tuimodel.LevelStyle(e.Level)
		for _, line := range added {
			if _, err := fmt.Fprintln(f.w, style.Render("    "+line)); err != nil {
				return err
			}
		}
	}
	return nil
}

// continued returns the lines e adds to the last printed entry, if e is
// that entry extended.
func (f *follower) continued(e core.LogEntry) ([]string, bool) {
	if !f.seen || e.SequenceNumber != f.last.SequenceNumber {
		return nil, false
	}
	if e.Message == f.last.Message {
		return nil, true
	}
	rest, ok := strings.CutPrefix(e.Message, f.last.Message+"\n")
	if !ok {
		return nil, false
	}
	return strings.Split(rest, "\n"), true
}

func (f *follower) handle(m uds.Message) error {
	switch m.Method {
	case uds.EventKernelEntry:
		var entries []core.LogEntry
		if err := m.UnmarshalData(&entries); err != nil {
			return err
		}
		return f.print(entries)
	case uds.EventKernelDropped:
		var d uds.KernelDropped
		_ = m.UnmarshalData(&d)
		return fmt.Errorf("%w: %s", errStreamEnded, d.Reason)
	case uds.EventDaemonShutdown:
		return fmt.Errorf("%w: daemon shutting down", errStreamEnded)
	}
	return nil
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage linux2rest.yaml",
}

var configInitOutput string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a linux2rest.yaml with default settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configInitOutput
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a linux2rest.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath()
		if len(args) > 0 {
			path = args[0]
		}

		c, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(c)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
		}
		return fmt.Errorf("%s: invalid configuration", path)
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", config.DefaultPath(), "output file path")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

// --- Service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the linux2restd systemd user service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install, enable and start linux2restd.service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Install(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "linux2restd.service installed ✓")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop, disable and remove linux2restd.service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "linux2restd.service removed ✓")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show socket and unit status",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), service.Status(cmd.Context(), socketPath))
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}
