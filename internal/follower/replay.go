package follower

import (
	"context"
	"errors"
	"math"

	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/navigation"
	"github.com/banshee-data/waypoints/internal/waypoint"
)

// GoalReached reports whether robot is within tol of target: planar
// distance at most tol.XY and absolute heading difference at most tol.Yaw.
func GoalReached(robot, target geom.Pose, tol navigation.Tolerances) bool {
	if geom.PlanarDistance(robot.Position, target.Position) > tol.XY {
		return false
	}
	dyaw := math.Abs(geom.AngleDiff(robot.Orientation.Yaw(), target.Orientation.Yaw()))
	return dyaw <= tol.Yaw
}

// Replayer follows the persisted path (state REPLAY_PATH), consuming each row
// once the robot is observed at it.
type Replayer struct {
	opts Options
}

// NewReplayer validates opts and returns a Replayer.
func NewReplayer(opts Options) (*Replayer, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	return &Replayer{opts: opts}, nil
}

// RobotPose looks up the base frame's pose in the goal frame.
func (r *Replayer) RobotPose(ctx context.Context) (geom.Pose, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.opts.ReplayPollInterval)
	defer cancel()
	tf, err := r.opts.Transforms.LookupTransform(lookupCtx, r.opts.GoalFrame, r.opts.BaseFrame)
	if err != nil {
		return geom.Pose{}, err
	}
	return tf.Apply(geom.Pose{Orientation: geom.Identity}), nil
}

// Replay walks the persisted file from its first row until it is exhausted,
// a row cannot be read or consumed, or ctx ends.
func (r *Replayer) Replay(ctx context.Context) (Outcome, []GoalResult) {
	o := r.opts
	var results []GoalResult
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return OutcomeShutdown, results
		}
		w, err := o.Store.RestoreNext()
		if errors.Is(err, waypoint.ErrEndOfPath) {
			logf("Saved path complete")
			return OutcomeReplayed, results
		}
		if err != nil {
			logf("replay stopped, %s needs repair: %v", o.Store.Path(), err)
			return OutcomeAborted, results
		}

		res := GoalResult{Index: i, Target: w.Pose, Started: o.Clock.Now()}
		if _, err := o.Navigator.SendGoal(ctx, w); err != nil {
			if ctx.Err() != nil {
				return OutcomeShutdown, results
			}
			logf("replay stopped, cannot dispatch %s: %v", w.Pose, err)
			return OutcomeAborted, results
		}
		if !r.awaitArrival(ctx, w) {
			return OutcomeShutdown, results
		}
		res.Finished = o.Clock.Now()
		res.Status = navigation.StatusSucceeded
		results = append(results, res)
		monitoring.RecordReplayArrival()

		if err := o.Store.RemoveConsumed(w); err != nil {
			logf("replay stopped, cannot consume row: %v", err)
			return OutcomeAborted, results
		}
		p := w.Pose.Position
		logf("Reached waypoint: x=%f, y=%f, z=%f", p.X, p.Y, p.Z)
	}
}

// awaitArrival polls GoalReached every ReplayPollInterval. It returns false
// if ctx ends first.
func (r *Replayer) awaitArrival(ctx context.Context, w waypoint.Waypoint) bool {
	o := r.opts
	ticker := o.Clock.NewTicker(o.ReplayPollInterval)
	defer ticker.Stop()

	warned := false
	for {
		robot, err := r.RobotPose(ctx)
		switch {
		case err == nil:
			if GoalReached(robot, w.Pose, o.Active) {
				return true
			}
		case ctx.Err() != nil:
			return false
		case !warned:
			logf("robot pose unavailable, still waiting: %v", err)
			warned = true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C():
		}
	}
}
