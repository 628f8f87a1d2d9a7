package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkstone/inkstone/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one bidirectional sync pass against the server",
	Long: `Reconcile the local store against the sync server:

  1. Propagate local project deletions
  2. Upload projects that are newer locally
  3. Download projects that are newer remotely
  4. Skip remote projects deleted locally since the last run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger("[sync] ")
		database, err := openStore(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer database.Close()

		engine, err := newSyncEngine(database, logger)
		if err != nil {
			return err
		}

		result := engine.Run(cmd.Context())
		printResult(result)
		if !result.Success {
			os.Exit(1)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Download every project from the server",
	Long: `Fetch the full snapshot of every remote project and write it into the
local store. Projects deleted locally since the last sync are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger("[sync] ")
		database, err := openStore(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer database.Close()

		engine, err := newSyncEngine(database, logger)
		if err != nil {
			return err
		}

		result := engine.RestoreAll(cmd.Context())
		printResult(result)
		if !result.Success {
			os.Exit(1)
		}
		return nil
	},
}

func printResult(result *sync.Result) {
	fmt.Printf("Uploaded:   %d\n", result.Uploaded)
	fmt.Printf("Downloaded: %d\n", result.Downloaded)
	fmt.Printf("Deleted:    %d\n", result.Deleted)
	if result.SkippedDeleted > 0 {
		fmt.Printf("Skipped (deleted locally): %d\n", result.SkippedDeleted)
	}
	if result.Conflicts > 0 {
		fmt.Printf("Conflicts:  %d\n", result.Conflicts)
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(restoreCmd)
}
