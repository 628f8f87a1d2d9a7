package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkstone/inkstone/internal/db"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show local projects and pending sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger("[info] ")
		database, err := openStore(ctx, logger)
		if err != nil {
			return err
		}
		defer database.Close()

		lastSync, err := database.GetSetting(ctx, db.SettingLastSyncAt)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
		if lastSync == "" {
			lastSync = "never"
		}
		fmt.Printf("Last sync: %s\n", lastSync)

		projects, err := database.ListProjects(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Projects: %d\n", len(projects))
		for _, p := range projects {
			synced := "never"
			if p.SyncedAt != nil {
				synced = p.SyncedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("  %-36s  v%-4d  %-30q  synced: %s\n", p.ID, p.Version, p.Title, synced)
		}

		tombstones, err := database.ListUnsyncedTombstones(ctx)
		if err != nil {
			return err
		}
		if len(tombstones) > 0 {
			fmt.Printf("Pending deletions: %d\n", len(tombstones))
			for _, t := range tombstones {
				fmt.Printf("  %-36s  %q deleted %s\n", t.ID, t.Title,
					t.DeletedAt.Local().Format("2006-01-02 15:04"))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
