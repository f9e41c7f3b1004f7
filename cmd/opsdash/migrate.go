package main

import (
	"github.com/rpattn/opsdash/internal/config"
	"github.com/rpattn/opsdash/internal/db"
	"github.com/rpattn/opsdash/internal/logging"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, closer := logging.New(cfg.Log)
		defer closer.Close()

		if migrateDownSteps > 0 {
			if err := db.RollbackMigrations(cfg.Database, migrateDownSteps, logger); err != nil {
				return err
			}
			color.Yellow("Rolled back %d migration(s)\n", migrateDownSteps)
			return nil
		}
		if err := db.RunMigrations(cfg.Database, logger); err != nil {
			return err
		}
		color.Green("Database schema is up to date\n")
		return nil
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateDownSteps, "down", 0, "Roll back this many migrations instead of applying")
}
