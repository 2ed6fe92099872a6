package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/waypoints/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the run history database schema",
	Long:  `Operates directly on a run history database file; the daemon does not need to be running.`,
}

func openHistory(cmd *cobra.Command) (*db.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	database, err := db.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return database, nil
}

func printVersion(cmd *cobra.Command, database *db.DB) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d of %d (dirty: %v)\n", version, latest, dirty)
	return nil
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.MigrateUp(); err != nil {
			return err
		}
		return printVersion(cmd, database)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.MigrateDown(); err != nil {
			return err
		}
		return printVersion(cmd, database)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer database.Close()
		return printVersion(cmd, database)
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force VERSION",
	Short: "Mark the schema as VERSION without running migrations (recovers a dirty state)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		database, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.MigrateForce(version); err != nil {
			return err
		}
		return printVersion(cmd, database)
	},
}

func init() {
	migrateCmd.PersistentFlags().String("db", "waypoints.db", "Run history database file")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd, migrateForceCmd)
	rootCmd.AddCommand(migrateCmd)
}
