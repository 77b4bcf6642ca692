package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "uniradar",
		Short: "Track universe engagement metrics and surface breakout trends",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(snapshotCmd())
	root.AddCommand(liveCacheCmd())
	root.AddCommand(metadataCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(trackCmd())
	root.AddCommand(untrackCmd())
	root.AddCommand(breakoutsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Run one hourly snapshot pass over all tracked universes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot()
		},
	}
}

func liveCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "livecache",
		Short: "Refresh the live metrics cache once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLiveCache()
		},
	}
}

func metadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata",
		Short: "Refresh display metadata and creator attribution once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetadata()
		},
	}
}

func discoverCmd() *cobra.Command {
	var max int

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover and track universes from the platform charts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(max)
		},
	}

	cmd.Flags().IntVar(&max, "max", 0, "max universes to add (default: from config)")
	return cmd
}

func trackCmd() *cobra.Command {
	var placeID int64

	cmd := &cobra.Command{
		Use:   "track [universeId]",
		Short: "Start tracking a universe",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) > 0 {
				arg = args[0]
			}
			return runTrack(arg, placeID)
		},
	}

	cmd.Flags().Int64Var(&placeID, "place", 0, "resolve universe from a place id")
	return cmd
}

func untrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "untrack <universeId>",
		Short: "Stop tracking a universe (history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntrack(args[0])
		},
	}
}

func breakoutsCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
		minVotes   int64
	)

	cmd := &cobra.Command{
		Use:   "breakouts",
		Short: "Show universes ranked by their latest dz score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBreakouts(jsonOutput, limit, minVotes)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "max universes to show")
	cmd.Flags().Int64Var(&minVotes, "min-votes", 0, "minimum total votes")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with job scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
