package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rookeryhq/rookery/pkg/config"
	"github.com/rookeryhq/rookery/pkg/deploy"
	"github.com/rookeryhq/rookery/pkg/log"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/metrics"
	"github.com/rookeryhq/rookery/pkg/mqtt"
	"github.com/rookeryhq/rookery/pkg/reconciler"
	"github.com/rookeryhq/rookery/pkg/scheduler"
	"github.com/rookeryhq/rookery/pkg/upgrade"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a Rookery manager",
	Long: `Run a Rookery manager on this machine.

The first member of a cluster bootstraps itself and becomes leader.
Further members set join_addr in their configuration, start as followers,
and wait for the leader to add them as voters.

All members subscribe to the agent broker, but only the leader acts on
acknowledgements and heartbeats, so a leadership change needs no broker
reconfiguration.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringP("config", "c", "", "YAML configuration file (defaults apply when omitted)")
	serverCmd.Flags().StringP("manifest", "m", "", "Fleet manifest to apply once elected")

	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	manifestPath, _ := cmd.Flags().GetString("manifest")

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel)})

	fmt.Println("Starting Rookery manager...")
	fmt.Printf("  Node ID: %s\n", cfg.NodeID)
	fmt.Printf("  Raft Address: %s\n", cfg.RaftBind)
	fmt.Printf("  Data Directory: %s\n", cfg.DataDir)
	fmt.Printf("  Broker: %s\n", cfg.Broker.URL)
	fmt.Printf("  Metrics Address: %s\n", cfg.MetricsAddr)
	fmt.Println()

	metrics.SetVersion(Version)

	// Create manager
	mgr, err := manager.NewManager(&manager.Config{
		NodeID:    cfg.NodeID,
		BindAddr:  cfg.RaftBind,
		DataDir:   cfg.DataDir,
		MACPrefix: cfg.MACPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to create manager: %v", err)
	}

	if cfg.JoinAddr == "" {
		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %v", err)
		}
		if err := mgr.WaitForLeader(10 * time.Second); err != nil {
			return fmt.Errorf("failed to elect leader: %v", err)
		}
		fmt.Println("✓ Cluster bootstrapped")
	} else {
		if err := mgr.Join(); err != nil {
			return fmt.Errorf("failed to join cluster: %v", err)
		}
		fmt.Printf("✓ Raft started; waiting for the leader at %s to add this member\n", cfg.JoinAddr)
	}
	metrics.RegisterComponent("raft", true, "")

	// Connect the deployment pipeline: scheduler picks hosts, the tracker
	// drives deployments, the bridge carries them over MQTT.
	client := mqtt.NewClient(mqtt.Config{
		BrokerURL: cfg.Broker.URL,
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
		ClientID:  cfg.Broker.ClientID,
	})
	bridge := mqtt.NewBridge(client, mgr)
	sched := scheduler.NewScheduler(mgr)
	tracker := deploy.NewTracker(mgr, sched, bridge, deploy.Config{
		AckTimeout:    cfg.AckTimeout,
		SweepInterval: cfg.SweepInterval,
		MaxResends:    cfg.MaxResends,
	})
	bridge.AttachTracker(tracker)
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("failed to connect to broker: %v", err)
	}
	metrics.RegisterComponent("broker", true, "")
	fmt.Println("✓ Broker connected")

	tracker.Start()
	fmt.Println("✓ Deployment tracker started")

	selector := upgrade.NewSelector(mgr, tracker, upgrade.Config{
		Interval: cfg.ScanInterval,
		GroupID:  cfg.UpgradeGroup,
	})
	selector.Start()
	fmt.Println("✓ Upgrade selector started")

	recon := reconciler.NewReconciler(mgr, reconciler.Config{
		Interval:     cfg.LivenessInterval,
		OfflineAfter: cfg.OfflineAfter,
	})
	recon.Start()
	fmt.Println("✓ Reconciler started")

	collector := metrics.NewCollector(mgr)
	collector.Start()

	// Start metrics server in background
	metricsServer := metrics.NewServer(mgr)
	errCh := make(chan error, 1)
	go func() {
		if err := metricsServer.Start(cfg.MetricsAddr); err != nil {
			errCh <- fmt.Errorf("metrics server error: %v", err)
		}
	}()
	fmt.Printf("✓ Metrics server listening on %s\n", cfg.MetricsAddr)

	if manifestPath != "" {
		m, err := config.LoadManifest(manifestPath)
		if err != nil {
			return fmt.Errorf("failed to load manifest: %v", err)
		}
		if mgr.IsLeader() {
			fmt.Println()
			if err := applyManifest(mgr, m); err != nil {
				return fmt.Errorf("failed to apply manifest: %v", err)
			}
		} else {
			fmt.Println("Not the leader; skipping manifest apply")
		}
	}

	fmt.Println()
	fmt.Println("Manager is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal or metrics server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	// Shutdown
	selector.Stop()
	recon.Stop()
	tracker.Stop()
	bridge.Stop()
	collector.Stop()
	_ = metricsServer.Stop()
	if err := mgr.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown: %v", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
