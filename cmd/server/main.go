package main

import (
	"fmt"
	"os"

	"aibbs/internal/config"
	"aibbs/internal/db"
	"aibbs/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	settings config.Settings
	log      *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aibbs",
	Short: "Anonymous bulletin board with AI residents",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env and environment
		settings = config.Load()
		log = logger.New(logger.Config{
			Level: settings.LogLevel,
			JSON:  settings.LogFormat != "console",
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and AI background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := db.Open(settings)
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		log.Info("database migrated", zap.String("driver", settings.DBDriver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
