// Package main is the entrypoint for the MountGuard agent CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MacJediWizard/mountguard/internal/config"
	"github.com/MacJediWizard/mountguard/internal/history"
	"github.com/MacJediWizard/mountguard/internal/mounts"
	"github.com/MacJediWizard/mountguard/internal/netcheck"
	"github.com/MacJediWizard/mountguard/internal/outage"
	"github.com/MacJediWizard/mountguard/internal/reconcile"
	"github.com/MacJediWizard/mountguard/internal/runlock"
	"github.com/MacJediWizard/mountguard/internal/session"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Journal entries older than this are pruned when the daemon starts.
const historyRetention = 30 * 24 * time.Hour

var stdout io.Writer = os.Stdout

// announce prints a significant-event line to stdout, timestamped like the
// diagnostic stream so both logs line up when collected together.
func announce(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mountguard",
		Short: "MountGuard - keeps a network share mounted where it belongs",
		Long: `MountGuard keeps a single network share reachable at one stable local
mount path, picking between local-network endpoints and a VPN fallback,
and self-healing when the OS creates numbered duplicate mount points.

Run 'mountguard config init' to configure the share, then schedule
'mountguard run' externally or start 'mountguard daemon'.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newDaemonCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MountGuard %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation pass",
		Long: `Run one reconciliation pass: observe the current mount state, pick the
best reachable endpoint, and mount, remount or consolidate as needed.

Exits 0 on success or a benign no-op (including when another pass holds
the run lock), 1 on unresolved failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runReconcile(cfg)
		},
	}
}

func newDaemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the reconciler on a fixed interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runDaemon(cfg, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 45*time.Second, "Reconciliation interval")

	return cmd
}

func runDaemon(cfg *config.Config, interval time.Duration) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	fmt.Printf("MountGuard %s starting...\n", Version)
	fmt.Printf("Share:    %s\n", cfg.ShareName)
	fmt.Printf("Mount:    %s\n", cfg.MountPoint)
	fmt.Printf("Interval: %s\n", interval)
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pruneHistory(cfg, logger)

	// First pass right away; pass failures are retried on the next tick.
	if err := runReconcile(cfg); err != nil {
		logger.Error().Err(err).Msg("reconciliation pass failed")
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := runReconcile(cfg); err != nil {
			logger.Error().Err(err).Msg("reconciliation pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconciliation: %w", err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	fmt.Println("MountGuard daemon running. Press Ctrl+C to stop.")

	sig := <-sigChan
	fmt.Printf("\nReceived %s, shutting down...\n", sig)
	return nil
}

// runReconcile performs one lock-guarded reconciliation pass.
func runReconcile(cfg *config.Config) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	lockPath, err := cfg.LockPath()
	if err != nil {
		return fmt.Errorf("resolve lock path: %w", err)
	}

	lock := runlock.New(lockPath, logger)
	ok, err := lock.Acquire(uuid.New())
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		announce("Another reconciliation pass is active; nothing to do.")
		return nil
	}
	defer lock.Release()

	rec, err := buildReconciler(cfg, logger)
	if err != nil {
		return err
	}

	// A pass is bounded by its poll loops; the deadline is a backstop.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res := rec.Run(ctx)
	recordPass(cfg, logger, res)

	switch {
	case res.Success() && res.Outcome == reconcile.OutcomeNoop:
		announce("Share mounted and healthy; nothing to do.")
	case res.Success():
		announce("Reconciled: %s via %s", res.Outcome, res.Endpoint)
	default:
		return fmt.Errorf("reconciliation failed (%s): %w", res.Outcome, res.Err)
	}
	return nil
}

func buildReconciler(cfg *config.Config, logger zerolog.Logger) (*reconcile.Reconciler, error) {
	markerPath, err := cfg.OutageMarkerPath()
	if err != nil {
		return nil, fmt.Errorf("resolve outage marker path: %w", err)
	}

	observer := mounts.NewObserver(cfg.ShareName, logger)
	mounter := mounts.NewOSMounter(logger)
	cleaner := mounts.NewCleaner(logger)
	executor := mounts.NewExecutor(mounter, observer, cleaner, cfg.ShareName, cfg.MountPoint, logger)
	prober := netcheck.NewProber(cfg.ServicePort(), logger)

	var resolver netcheck.PeerResolver
	if cfg.VPNPeer != "" {
		resolver = netcheck.NewTailscaleResolver(logger)
	}

	opts := reconcile.Options{
		MountPoint:  cfg.MountPoint,
		Share:       cfg.ShareName,
		LocalHosts:  cfg.LocalHosts,
		VPNPeer:     cfg.VPNPeer,
		VPNFallback: cfg.VPNFallback,
	}

	deps := reconcile.Deps{
		Observer: observer,
		Executor: executor,
		Cleaner:  cleaner,
		Selector: netcheck.NewSelector(prober, logger),
		Resolver: resolver,
		Sessions: session.New(logger),
		Notifier: outage.New(markerPath, logger),
	}

	return reconcile.New(opts, deps, logger), nil
}

// recordPass journals the pass outcome. Journal problems are logged and
// swallowed; they never change the pass result.
func recordPass(cfg *config.Config, logger zerolog.Logger, res reconcile.Result) {
	dir, err := cfg.HistoryDir()
	if err != nil {
		logger.Warn().Err(err).Msg("resolve history directory failed")
		return
	}

	store, err := history.NewStore(dir, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("open pass journal failed")
		return
	}
	defer store.Close()

	detail := ""
	if res.Err != nil {
		detail = res.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = store.RecordPass(ctx, &history.Pass{
		ID:         res.RunID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Outcome:    string(res.Outcome),
		Endpoint:   res.Endpoint,
		Detail:     detail,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("record pass failed")
	}
}

// pruneHistory trims old journal entries. Like recordPass, problems are
// logged and swallowed.
func pruneHistory(cfg *config.Config, logger zerolog.Logger) {
	dir, err := cfg.HistoryDir()
	if err != nil {
		logger.Warn().Err(err).Msg("resolve history directory failed")
		return
	}

	store, err := history.NewStore(dir, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("open pass journal failed")
		return
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	removed, err := store.Prune(ctx, historyRetention)
	if err != nil {
		logger.Warn().Err(err).Msg("prune pass journal failed")
		return
	}
	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("pruned old journal entries")
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the share's current mount state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)

			fmt.Printf("Share:  %s\n", cfg.ShareName)
			fmt.Printf("Mount:  %s\n", cfg.MountPoint)
			fmt.Println()

			observer := mounts.NewObserver(cfg.ShareName, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			set, err := observer.Observe(ctx)
			if err != nil {
				return fmt.Errorf("observe mounts: %w", err)
			}

			switch {
			case len(set) == 0:
				fmt.Println("State: not mounted")
			case len(set) == 1 && set[0].Path == cfg.MountPoint:
				fmt.Printf("State: mounted at canonical path via %s\n", mounts.RemoteHost(set[0].Source))
			default:
				fmt.Println("State: misplaced")
				for _, m := range set {
					fmt.Printf("  %s  (%s)\n", m.Path, m.Source)
				}
			}

			if dir, err := cfg.HistoryDir(); err == nil {
				if store, err := history.NewStore(dir, logger); err == nil {
					defer store.Close()
					if last, err := store.LastPass(ctx); err == nil && last != nil {
						fmt.Println()
						fmt.Printf("Last pass: %s at %s", last.Outcome, last.StartedAt.Format(time.RFC3339))
						if last.Endpoint != "" {
							fmt.Printf(" via %s", last.Endpoint)
						}
						fmt.Println()
						if last.Detail != "" {
							fmt.Printf("  %s\n", last.Detail)
						}
					}
				}
			}

			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent reconciliation passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dir, err := cfg.HistoryDir()
			if err != nil {
				return fmt.Errorf("resolve history directory: %w", err)
			}

			logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
			store, err := history.NewStore(dir, logger)
			if err != nil {
				return fmt.Errorf("open pass journal: %w", err)
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			passes, err := store.ListRecent(ctx, limit)
			if err != nil {
				return fmt.Errorf("list passes: %w", err)
			}

			if len(passes) == 0 {
				fmt.Println("No passes recorded yet.")
				return nil
			}

			for _, p := range passes {
				fmt.Printf("%s  %-13s", p.StartedAt.Format(time.RFC3339), p.Outcome)
				if p.Endpoint != "" {
					fmt.Printf("  via %s", p.Endpoint)
				}
				if p.Detail != "" {
					fmt.Printf("  (%s)", p.Detail)
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of passes to show")

	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage MountGuard configuration",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			path, _ := config.DefaultConfigPath()
			fmt.Printf("Config file:  %s\n", path)
			fmt.Printf("Mount point:  %s\n", cfg.MountPoint)
			fmt.Printf("Share name:   %s\n", cfg.ShareName)
			fmt.Printf("Local hosts:  %v\n", cfg.LocalHosts)
			fmt.Printf("VPN peer:     %s\n", cfg.VPNPeer)
			fmt.Printf("VPN fallback: %s\n", cfg.VPNFallback)
			fmt.Printf("Port:         %d\n", cfg.ServicePort())
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		mountPoint  string
		shareName   string
		localHosts  []string
		vpnPeer     string
		vpnFallback string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{
				MountPoint:  mountPoint,
				ShareName:   shareName,
				LocalHosts:  localHosts,
				VPNPeer:     vpnPeer,
				VPNFallback: vpnFallback,
				Port:        port,
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if err := cfg.SaveDefault(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			path, _ := config.DefaultConfigPath()
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&mountPoint, "mount-point", "", "Canonical local mount path (required)")
	cmd.Flags().StringVar(&shareName, "share", "", "Share name (required)")
	cmd.Flags().StringArrayVar(&localHosts, "local-host", nil, "Local endpoint hostname (repeatable, in preference order)")
	cmd.Flags().StringVar(&vpnPeer, "vpn-peer", "", "VPN peer name to resolve at run time")
	cmd.Flags().StringVar(&vpnFallback, "vpn-fallback", "", "Last-known VPN address")
	cmd.Flags().IntVar(&port, "port", 0, "Share service port (default 445)")

	return cmd
}

// loadConfig loads and validates the default configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("not configured: %w (run 'mountguard config init')", err)
	}
	return cfg, nil
}
