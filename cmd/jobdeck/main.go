package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "jobdeck",
	Short: "Job posting aggregator with cache-first fetching",
	Long: `jobdeck aggregates job postings from zhaopin and linkedin into a local
SQLite cache. Searches answer from the cache whenever it is fresh enough;
everything else goes through a metered scraping gateway, governed by a
monthly fetch quota.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the jobdeck version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("jobdeck " + version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(
		searchCmd, listCmd, showCmd, refreshCmd,
		statsCmd, sourcesCmd, pruneCmd, pingCmd,
		serveCmd, stopCmd, statusCmd, versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
