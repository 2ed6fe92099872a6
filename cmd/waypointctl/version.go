package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/waypoints/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of waypointctl",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "waypointctl %s\n", version.Current())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
