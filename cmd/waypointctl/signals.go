package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/waypoints/internal/geom"
)

var addCmd = &cobra.Command{
	Use:   "add X Y [YAW_DEG]",
	Short: "Append a waypoint to the path being recorded",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var vals [3]float64
		for i, a := range args {
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", a)
			}
			vals[i] = v
		}
		frame, _ := cmd.Flags().GetString("frame")
		pose := geom.StampedPose{
			FrameID: frame,
			Pose: geom.Pose{
				Position:    geom.Point{X: vals[0], Y: vals[1]},
				Orientation: geom.FromYaw(vals[2] * math.Pi / 180),
			},
		}
		if err := call(cmd, "POST", "/api/waypoints", pose, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added waypoint %s\n", pose.Pose)
		return nil
	},
}

func signalCmd(name, path, short, done string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := call(cmd, "POST", path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), done)
			return nil
		},
	}
}

func init() {
	addCmd.Flags().String("frame", "", "Frame the coordinates are in (default: the follower's goal frame)")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(signalCmd("ready", "/api/path/ready", "Persist the recorded path and start following it", "path ready sent"))
	rootCmd.AddCommand(signalCmd("replay", "/api/path/replay", "Follow the saved path file", "replay requested"))
	rootCmd.AddCommand(signalCmd("reset", "/api/path/reset", "Discard the recorded path", "path reset sent"))
}
