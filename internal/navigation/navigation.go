// Package navigation is the follower's view of the external navigation
// service: dispatching goals, waiting for their outcome, and reading or
// overriding the planner's goal tolerances.
package navigation

import (
	"context"

	"github.com/banshee-data/waypoints/internal/geom"
)

// GoalStatus is the lifecycle state the navigation service reports.
type GoalStatus string

const (
	StatusPending   GoalStatus = "pending"
	StatusActive    GoalStatus = "active"
	StatusSucceeded GoalStatus = "succeeded"
	StatusAborted   GoalStatus = "aborted"
	StatusRejected  GoalStatus = "rejected"
	StatusPreempted GoalStatus = "preempted"
	StatusLost      GoalStatus = "lost"
)

// Terminal reports whether no further transitions are expected.
func (s GoalStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusAborted, StatusRejected, StatusPreempted, StatusLost:
		return true
	}
	return false
}

// Goal is a dispatched target.
type Goal struct {
	ID     string           `json:"id"`
	Target geom.StampedPose `json:"target"`
}

// Navigator drives the robot to one goal at a time.
type Navigator interface {
	// SendGoal dispatches target and returns without waiting for arrival.
	SendGoal(ctx context.Context, target geom.StampedPose) (Goal, error)
	// WaitForResult blocks until goal reaches a terminal status or ctx ends.
	WaitForResult(ctx context.Context, goal Goal) (GoalStatus, error)
}

// Tolerances are the planner's arrival thresholds.
type Tolerances struct {
	XY  float64 `json:"xy_goal_tolerance"`
	Yaw float64 `json:"yaw_goal_tolerance"`
}

// AckFunc receives the values the service echoed after an update, or the
// error that prevented it.
type AckFunc func(applied Tolerances, err error)

// Reconfigurer reads and overrides the planner's tolerances.
type Reconfigurer interface {
	Get(ctx context.Context) (Tolerances, error)
	// Update requests new tolerances without waiting for the service. ack,
	// if non-nil, runs once the service answers.
	Update(ctx context.Context, t Tolerances, ack AckFunc)
	// Flush blocks until every Update issued so far has been answered or
	// ctx ends.
	Flush(ctx context.Context) error
}
