package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/waypoints/internal/db"
	"github.com/banshee-data/waypoints/internal/follower"
	"github.com/banshee-data/waypoints/internal/geom"
)

func printPoses(w io.Writer, poses []geom.Pose) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tX\tY\tZ\tYAW")
	for i, p := range poses {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%.3f\t%.3f\n", i, p.Position.X, p.Position.Y, p.Position.Z, p.Orientation.Yaw())
	}
	tw.Flush()
}

var waypointsCmd = &cobra.Command{
	Use:   "waypoints",
	Short: "Show the waypoints recorded so far",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var arr geom.PoseArray
		if err := call(cmd, "GET", "/api/waypoints", nil, &arr); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d waypoints in %s\n", len(arr.Poses), arr.FrameID)
		printPoses(cmd.OutOrStdout(), arr.Poses)
		return nil
	},
}

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the rows left in the saved path file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			File  string      `json:"file"`
			Poses []geom.Pose `json:"poses"`
		}
		if err := call(cmd, "GET", "/api/path", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", resp.File, len(resp.Poses))
		printPoses(cmd.OutOrStdout(), resp.Poses)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the follower's state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var st follower.Status
		if err := call(cmd, "GET", "/api/status", nil, &st); err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "state:   %s (since %s)\n", st.State, st.Since.Format(time.RFC3339))
		fmt.Fprintf(out, "queue:   %d waypoints (generation %d)\n", st.QueueLength, st.Generation)
		if r := st.LastRun; r != nil {
			fmt.Fprintf(out, "last run: %s %s %s, %d goals\n", r.RunID, r.Mode, r.Outcome, len(r.Goals))
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent path runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		var runs []db.PathRun
		if err := call(cmd, "GET", fmt.Sprintf("/api/runs?limit=%d", limit), nil, &runs); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tMODE\tOUTCOME\tGOALS\tSTARTED\tDURATION")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", r.RunID, r.Mode, r.Outcome, r.GoalCount,
				r.Started.Local().Format(time.DateTime), r.Finished.Sub(r.Started).Round(time.Millisecond))
		}
		return tw.Flush()
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the raw status JSON")
	runsCmd.Flags().Int("limit", 20, "Number of runs to list")
	rootCmd.AddCommand(waypointsCmd, pathCmd, statusCmd, runsCmd)
}
