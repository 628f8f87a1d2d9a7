package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inkstone/inkstone/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the auto-sync daemon",
	Long: `Watch the local database for writes and sync after each burst of
editing settles, plus a periodic fallback run. Stops on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger("[daemon] ")
		database, err := openStore(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer database.Close()

		engine, err := newSyncEngine(database, logger)
		if err != nil {
			return err
		}

		config := daemon.DefaultConfig()
		config.Logger = logger
		if d := viper.GetDuration("daemon.debounce"); d > 0 {
			config.DebounceInterval = d
		}
		if d := viper.GetDuration("daemon.interval"); d > 0 {
			config.SyncInterval = d
		}

		d, err := daemon.New(engine, database.Path(), config)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return d.Start(ctx)
	},
}

func init() {
	viper.SetDefault("daemon.debounce", 30*time.Second)
	viper.SetDefault("daemon.interval", 15*time.Minute)
	rootCmd.AddCommand(daemonCmd)
}
