package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rookery",
	Short: "Rookery - Control plane for remotely operated blockchain nodes",
	Long: `Rookery is the control plane for a fleet of remotely operated
blockchain nodes. It places workloads onto registered hosts, leases MAC
addresses for their network identities, drives deployments to host agents
over MQTT, and keeps running nodes on the latest published version.

Cluster state is replicated across managers with Raft, so any single
member can fail without losing the fleet.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Rookery version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
