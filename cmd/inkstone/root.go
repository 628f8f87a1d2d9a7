package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/inkstone/inkstone/internal/db"
	"github.com/inkstone/inkstone/internal/sync"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "inkstone",
	Short: "Local-first novel project store with cloud sync",
	Long: `Inkstone keeps a writer's projects (volumes, chapters, characters) in a
local SQLite database and reconciles them against the sync server so work
is available across devices while remaining fully usable offline.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.inkstone/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "database file path")
	rootCmd.PersistentFlags().String("server", "", "sync server base URL")
	_ = viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
}

func initConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	baseDir := filepath.Join(home, ".inkstone")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(baseDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("db.path", filepath.Join(baseDir, "inkstone.db"))
	// Pre-1.0 releases kept the database under the old name.
	viper.SetDefault("db.legacy_path", filepath.Join(baseDir, "novel.db"))
	viper.SetDefault("server.url", "")
	viper.SetDefault("server.token", "")
	viper.SetDefault("server.timeout", sync.DefaultRequestTimeout.String())
	viper.SetDefault("log.file", "")

	viper.SetEnvPrefix("INKSTONE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config: %s\n", viper.ConfigFileUsed())
	}
}

// newLogger returns the application logger. With log.file configured the
// output goes to a size-rotated file; otherwise to stderr.
func newLogger(prefix string) *log.Logger {
	if file := viper.GetString("log.file"); file != "" {
		return log.New(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}, prefix, log.LstdFlags)
	}
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// openStore migrates any legacy database file into place, opens the store
// and brings the schema up to date.
func openStore(ctx context.Context, logger *log.Logger) (*db.DB, error) {
	path := viper.GetString("db.path")
	db.MigrateLegacyPath(viper.GetString("db.legacy_path"), path, logger)

	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.InitSchema(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// newSyncEngine wires the store and API client into a sync engine.
func newSyncEngine(database *db.DB, logger *log.Logger) (*sync.Engine, error) {
	serverURL := viper.GetString("server.url")
	if serverURL == "" {
		return nil, fmt.Errorf("no sync server configured (set server.url or INKSTONE_SERVER_URL)")
	}

	timeout, err := time.ParseDuration(viper.GetString("server.timeout"))
	if err != nil || timeout <= 0 {
		timeout = sync.DefaultRequestTimeout
	}
	client := sync.NewClient(serverURL, viper.GetString("server.token"),
		&http.Client{Timeout: timeout})
	return sync.NewEngine(database, client, logger), nil
}
