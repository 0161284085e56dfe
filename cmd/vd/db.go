package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/voicedesk/internal/config"
	"github.com/zulandar/voicedesk/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the voicedesk tables",
		Long:  "Creates the MySQL database if needed and migrates the users, conversations and messages tables. SQLite files are created on first use.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			return runDBMigrate(cmd, cfg.Storage)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBMigrate(cmd *cobra.Command, cfg config.StorageConfig) error {
	out := cmd.OutOrStdout()
	if !cfg.Relational() {
		return fmt.Errorf("storage driver %q has no schema to migrate", cfg.Driver)
	}

	if cfg.Driver == config.DriverMySQL {
		adminDB, err := db.ConnectAdmin(cfg)
		if err != nil {
			return err
		}
		err = db.CreateDatabase(adminDB, cfg.Database)
		db.Close(adminDB)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database)
	}

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), cfg.Driver)
	return nil
}
