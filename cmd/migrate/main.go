// Package main provides a CLI tool for running database migrations.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/moment-tracker/internal/config"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "migrate",
		Usage: "manage the moment tracker database schemas",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Value: "postgres",
				Usage: "database to migrate: postgres or clickhouse",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
			c.App.Metadata = map[string]interface{}{"config": cfg}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "apply all pending migrations",
				Action: up,
			},
			{
				Name:   "down",
				Usage:  "roll back the most recent Postgres migration",
				Action: down,
			},
			{
				Name:   "version",
				Usage:  "print the current Postgres schema version",
				Action: version,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func configOf(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func up(c *cli.Context) error {
	cfg := configOf(c)
	logger := logging.GetGlobalLogger()

	switch db := c.String("db"); db {
	case "postgres":
		logger.Info("Running Postgres migrations...")
		if err := storage.RunMigrations(storage.PostgresURL(&cfg.Database.Postgres)); err != nil {
			return err
		}
	case "clickhouse":
		logger.Info("Running ClickHouse migrations...")
		ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			return err
		}
		defer ch.Close()
		if err := storage.RunClickHouseMigrations(logging.WithLogger(context.Background(), logger), ch); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown database type: %s", db)
	}

	logger.Info("Migrations completed successfully")
	return nil
}

func down(c *cli.Context) error {
	if db := c.String("db"); db != "postgres" {
		return fmt.Errorf("rollback is only supported for postgres, got %s", db)
	}
	if err := storage.RollbackMigrations(storage.PostgresURL(&configOf(c).Database.Postgres)); err != nil {
		return err
	}
	logging.GetGlobalLogger().Info("Rolled back one migration")
	return nil
}

func version(c *cli.Context) error {
	if db := c.String("db"); db != "postgres" {
		return fmt.Errorf("version is only tracked for postgres, got %s", db)
	}
	v, dirty, err := storage.MigrationVersion(storage.PostgresURL(&configOf(c).Database.Postgres))
	if err != nil {
		return err
	}
	fmt.Printf("version=%d dirty=%t\n", v, dirty)
	return nil
}
