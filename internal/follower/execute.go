package follower

import (
	"context"

	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/navigation"
	"github.com/banshee-data/waypoints/internal/waypoint"
)

// Executor drives the robot through a live path (state FOLLOW_PATH).
type Executor struct {
	opts Options
}

// NewExecutor validates opts and returns an Executor.
func NewExecutor(opts Options) (*Executor, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	return &Executor{opts: opts}, nil
}

func toleranceAck(verb string) navigation.AckFunc {
	return func(applied navigation.Tolerances, err error) {
		if err != nil {
			logf("navigation tolerance %s failed: %v", verb, err)
			return
		}
		logf("Navigation tolerance %s to [xy_goal:%g, yaw_goal:%g]", verb, applied.XY, applied.Yaw)
	}
}

// Execute dispatches each waypoint of a snapshot taken at generation gen.
// If the store is cleared before a dispatch, the remaining waypoints are
// dropped and OutcomeResetDuringExecution is returned. Goal outcomes other
// than success are logged and traversal continues. Tolerances are restored on
// every return path, and Execute does not return until the service has
// answered the restore or RestoreTimeout has passed.
func (e *Executor) Execute(ctx context.Context, wps []waypoint.Waypoint, gen uint64) (Outcome, []GoalResult) {
	o := e.opts
	o.Reconfigurer.Update(ctx, o.Active, toleranceAck("set"))
	defer e.restore(ctx)

	results := make([]GoalResult, 0, len(wps))
	for i, w := range wps {
		if o.Store.Generation() != gen {
			logf("The waypoint queue has been reset.")
			return OutcomeResetDuringExecution, results
		}

		target := w
		target.FrameID = o.GoalFrame
		logf("Executing goal %d/%d to position (x,y): %g, %g", i+1, len(wps), w.Pose.Position.X, w.Pose.Position.Y)

		res := GoalResult{Index: i, Target: w.Pose, Started: o.Clock.Now()}
		status, err := e.dispatch(ctx, target)
		res.Finished = o.Clock.Now()
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeShutdown, results
			}
			logf("goal %d failed: %v", i+1, err)
			status = navigation.StatusAborted
		} else if status != navigation.StatusSucceeded {
			logf("goal %d ended %s, moving on", i+1, status)
		}
		res.Status = status
		results = append(results, res)
		monitoring.RecordGoal(string(status))

		if o.WaitDuration > 0 {
			logf("Waiting for %v...", o.WaitDuration)
		}
		if err := o.Clock.SleepContext(ctx, o.WaitDuration); err != nil {
			return OutcomeShutdown, results
		}
	}
	return OutcomeSuccess, results
}

// restore outlives ctx so shutdown cannot leave the planner on the active
// tolerances.
func (e *Executor) restore(ctx context.Context) {
	o := e.opts
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.RestoreTimeout)
	defer cancel()

	o.Reconfigurer.Update(ctx, o.Restore, toleranceAck("restored"))
	if err := o.Reconfigurer.Flush(ctx); err != nil {
		logf("navigation tolerance restore unconfirmed: %v", err)
	}
}

func (e *Executor) dispatch(ctx context.Context, target waypoint.Waypoint) (navigation.GoalStatus, error) {
	goal, err := e.opts.Navigator.SendGoal(ctx, target)
	if err != nil {
		return "", err
	}
	return e.opts.Navigator.WaitForResult(ctx, goal)
}
