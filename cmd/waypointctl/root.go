package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/waypoints/internal/httputil"
)

// httpClient is replaced in tests.
var httpClient httputil.HTTPClient = &http.Client{Timeout: 10 * time.Second}

var rootCmd = &cobra.Command{
	Use:          "waypointctl",
	Short:        "Control a running waypoint follower",
	Long:         `waypointctl records waypoints, signals path ready/replay/reset and inspects a follow-waypoints daemon over its HTTP API.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Base URL of the follow-waypoints HTTP API")
}

func serverURL(cmd *cobra.Command, path string) string {
	base, _ := cmd.Flags().GetString("server")
	return strings.TrimRight(base, "/") + path
}

func call(cmd *cobra.Command, method, path string, in, out interface{}) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return httputil.DoJSON(ctx, httpClient, method, serverURL(cmd, path), in, out)
}

func main() {
	Execute()
}
