package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/phylo.report/internal/config"
	"github.com/banshee-data/phylo.report/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var configPath, database string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the registry database schema",
		Long: `Runs registry schema migrations against a database file. The in-memory
registry is migrated automatically at startup and needs none of this.`,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to YAML config file")
	cmd.PersistentFlags().StringVar(&database, "database", "", "registry database file (overrides config)")

	open := func(cmd *cobra.Command) (*db.DB, error) {
		path := database
		if !cmd.Flags().Changed("database") {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return nil, err
			}
			path = cfg.GetDatabase()
		}
		if path == "" {
			return nil, fmt.Errorf("migrate needs a database file: set --database or database in %s", configPath)
		}
		return db.OpenDB(path)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := open(cmd)
			if err != nil {
				return err
			}
			defer registry.Close()
			if err := registry.MigrateUp(db.MigrationsFS()); err != nil {
				return err
			}
			return printVersion(cmd, registry)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := open(cmd)
			if err != nil {
				return err
			}
			defer registry.Close()
			if err := registry.MigrateDown(db.MigrationsFS()); err != nil {
				return err
			}
			return printVersion(cmd, registry)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := open(cmd)
			if err != nil {
				return err
			}
			defer registry.Close()
			return printVersion(cmd, registry)
		},
	})
	return cmd
}

func printVersion(cmd *cobra.Command, registry *db.DB) error {
	version, dirty, err := registry.MigrateVersion(db.MigrationsFS())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}
