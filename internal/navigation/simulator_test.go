package navigation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/waypoints/internal/frames"
	"github.com/banshee-data/waypoints/internal/geom"
)

func newTestSimulator(t *testing.T) (*Simulator, *frames.Tree) {
	t.Helper()
	tree := frames.NewTree()
	require.NoError(t, tree.AddStatic("map", "odom", geom.Transform{Translation: geom.Point{X: 1}, Rotation: geom.Identity}))
	sim, err := NewSimulator(SimulatorOptions{
		Tree:       tree,
		OdomFrame:  "odom",
		BaseFrame:  "base_footprint",
		Speed:      20,
		Step:       5 * time.Millisecond,
		Tolerances: Tolerances{XY: 0.1, Yaw: 0.05},
	})
	require.NoError(t, err)
	return sim, tree
}

func TestSimulator_DrivesToGoal(t *testing.T) {
	sim, tree := newTestSimulator(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go sim.Run(ctx)

	target := geom.StampedPose{FrameID: "map", Pose: geom.Pose{Position: geom.Point{X: 3, Y: 2}, Orientation: geom.FromYaw(1)}}
	goal, err := sim.SendGoal(ctx, target)
	require.NoError(t, err)

	status, err := sim.WaitForResult(ctx, goal)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	// odom is offset by 1 in x from map
	pose := sim.Pose()
	assert.InDelta(t, 2, pose.Position.X, 1e-9)
	assert.InDelta(t, 2, pose.Position.Y, 1e-9)

	require.Eventually(t, func() bool {
		tf, err := tree.Lookup("map", "base_footprint")
		return err == nil && math.Abs(tf.Translation.X-3) < 1e-9
	}, time.Second, 5*time.Millisecond)
}

func TestSimulator_Preempts(t *testing.T) {
	sim, _ := newTestSimulator(t)
	ctx := context.Background()

	first, err := sim.SendGoal(ctx, geom.StampedPose{FrameID: "odom", Pose: geom.Pose{Position: geom.Point{X: 100}, Orientation: geom.Identity}})
	require.NoError(t, err)
	_, err = sim.SendGoal(ctx, geom.StampedPose{FrameID: "odom", Pose: geom.Pose{Orientation: geom.Identity}})
	require.NoError(t, err)

	status, err := sim.WaitForResult(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, StatusPreempted, status)
	assert.Equal(t, StatusLost, sim.Status("missing"))
}

func TestSimulator_UnknownFrame(t *testing.T) {
	sim, _ := newTestSimulator(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := sim.SendGoal(ctx, geom.StampedPose{FrameID: "elsewhere"})
	assert.ErrorIs(t, err, frames.ErrNoChain)
}

func TestSimulator_Tolerances(t *testing.T) {
	sim, _ := newTestSimulator(t)
	got, _ := sim.Get(context.Background())
	assert.Equal(t, Tolerances{XY: 0.1, Yaw: 0.05}, got)

	acked := make(chan Tolerances, 1)
	sim.Update(context.Background(), Tolerances{XY: 0.3, Yaw: 3.14}, func(applied Tolerances, err error) {
		acked <- applied
	})
	select {
	case applied := <-acked:
		assert.Equal(t, Tolerances{XY: 0.3, Yaw: 3.14}, applied)
	case <-time.After(time.Second):
		t.Fatal("no ack")
	}
	assert.NoError(t, sim.Flush(context.Background()))
	got, _ = sim.Get(context.Background())
	assert.Equal(t, 0.3, got.XY)
}
