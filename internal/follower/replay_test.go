package follower

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/waypoints/internal/frames"
	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/navigation"
	"github.com/banshee-data/waypoints/internal/testutil"
	"github.com/banshee-data/waypoints/internal/waypoint"
)

func TestGoalReached(t *testing.T) {
	tol := navigation.Tolerances{XY: 0.3, Yaw: 0.5}
	target := geom.Pose{Position: geom.Point{X: 1, Y: 1}, Orientation: geom.FromYaw(0)}

	tests := []struct {
		name  string
		robot geom.Pose
		want  bool
	}{
		{"exact", target, true},
		{"inside xy", geom.Pose{Position: geom.Point{X: 1.2, Y: 1.1}, Orientation: geom.FromYaw(0.1)}, true},
		{"z ignored", geom.Pose{Position: geom.Point{X: 1, Y: 1, Z: 5}, Orientation: geom.Identity}, true},
		{"too far", geom.Pose{Position: geom.Point{X: 1.5, Y: 1}, Orientation: geom.Identity}, false},
		{"wrong heading", geom.Pose{Position: geom.Point{X: 1, Y: 1}, Orientation: geom.FromYaw(1)}, false},
		{"heading wraps", geom.Pose{Position: geom.Point{X: 1, Y: 1}, Orientation: geom.FromYaw(2*math.Pi - 0.2)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GoalReached(tt.robot, target, tol))
		})
	}
}

func writePath(t *testing.T, h *harness, poses ...geom.Pose) {
	t.Helper()
	data, err := waypoint.EncodePath(poses)
	require.NoError(t, err)
	require.NoError(t, h.fs.MkdirAll("saved_path", 0755))
	require.NoError(t, h.fs.WriteFile(testPathFile, data, 0644))
}

func TestReplay_ConsumesRowsOnArrival(t *testing.T) {
	h := newHarness(t)
	a, b, c := pose(1, 0), pose(2, 0), pose(3, 0)
	writePath(t, h, a, b, c)

	var remainingAfterFirst []geom.Pose
	h.nav.onSend = func(n int, _ geom.StampedPose) {
		if n == 2 {
			remainingAfterFirst, _ = h.store.Persisted()
		}
	}

	r, err := NewReplayer(h.opts)
	require.NoError(t, err)
	outcome, results := r.Replay(context.Background())

	assert.Equal(t, OutcomeReplayed, outcome)
	assert.Len(t, results, 3)
	assert.Equal(t, []geom.Pose{a, b, c}, h.nav.sentPoses())
	assert.Equal(t, []geom.Pose{b, c}, remainingAfterFirst)

	left, err := h.store.Persisted()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestReplay_MissingFile(t *testing.T) {
	h := newHarness(t)
	r, err := NewReplayer(h.opts)
	require.NoError(t, err)

	outcome, results := r.Replay(context.Background())
	assert.Equal(t, OutcomeReplayed, outcome)
	assert.Empty(t, results)
	assert.Empty(t, h.nav.sentPoses())
}

func TestReplay_MalformedRowAborts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.fs.WriteFile(testPathFile, []byte("x,y,z,qx,qy,qz,qw\n1,2,three\n"), 0644))

	r, err := NewReplayer(h.opts)
	require.NoError(t, err)
	outcome, _ := r.Replay(context.Background())

	assert.Equal(t, OutcomeAborted, outcome)
	assert.Empty(t, h.nav.sentPoses())
}

func TestReplay_WaitsForArrival(t *testing.T) {
	h := newHarness(t)
	writePath(t, h, pose(5, 0))

	nav := &stuckNavigator{tree: h.tree}
	opts := h.opts
	opts.Navigator = nav
	r, err := NewReplayer(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := r.Replay(ctx)
		done <- outcome
	}()

	testutil.WaitFor(t, time.Second, func() bool { return nav.sent.Load() == 1 })
	h.clock.Advance(time.Second)
	select {
	case <-done:
		t.Fatal("replay finished before the robot arrived")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	assert.Equal(t, OutcomeShutdown, <-done)
	left, err := h.store.Persisted()
	require.NoError(t, err)
	assert.Len(t, left, 1, "unreached row is kept")
}

// stuckNavigator accepts goals but leaves the robot at the origin.
type stuckNavigator struct {
	tree *frames.Tree
	sent atomic.Int32
}

func (s *stuckNavigator) SendGoal(ctx context.Context, target geom.StampedPose) (navigation.Goal, error) {
	origin := geom.Transform{Rotation: geom.Identity}
	if err := s.tree.SetTransform(target.FrameID, "base_footprint", origin, time.Now()); err != nil {
		return navigation.Goal{}, err
	}
	s.sent.Add(1)
	return navigation.Goal{ID: "1", Target: target}, nil
}

func (s *stuckNavigator) WaitForResult(ctx context.Context, goal navigation.Goal) (navigation.GoalStatus, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
