package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, then initializes the database and runs migrations.
// With --rollback it reverts the newest applied migration instead.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		configPath = r.configPath
	}

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			r.writePlain("✓ Config written to %s\n", configPath)
		}
	}
	if err := shared.ApplyEnv(config); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)
	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if cmd.Bool("rollback") {
		m, err := shared.RollbackMigration(db, r.logger)
		if err != nil {
			return err
		}
		r.writePlain("✓ Rolled back migration %s\n", m)
		return nil
	}

	ran, err := shared.ApplyMigrations(db, r.logger)
	if err != nil {
		return err
	}
	for _, m := range ran {
		r.writePlain("✓ Applied migration %s\n", m)
	}
	if len(ran) == 0 {
		r.writePlain("✓ Schema up to date\n")
	}
	r.writePlain("✓ Database ready at %s\n", config.Database.Path)

	if config.Storage.Backend == "file" {
		if err := os.MkdirAll(config.Storage.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		r.writePlain("✓ Data directory ready at %s\n", config.Storage.DataDir)
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return nil
}

// setupCommand handles first-run initialization.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file, initialize the database and run migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
			},
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Revert the most recently applied migration",
			},
		},
		Action: r.Setup,
	}
}
