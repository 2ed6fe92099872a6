// Package follower runs the waypoint follower's control loop: acquiring a
// path from operator signals, driving the robot through it, and replaying a
// persisted path.
package follower

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/waypoints/internal/frames"
	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/navigation"
	"github.com/banshee-data/waypoints/internal/signalmux"
	"github.com/banshee-data/waypoints/internal/timeutil"
	"github.com/banshee-data/waypoints/internal/waypoint"
)

var logf = monitoring.Component("follower")

// Subscriber is the subscribing half of signalmux.Mux.
type Subscriber interface {
	Subscribe(topic string) (string, <-chan signalmux.Message)
	Unsubscribe(id string)
}

// PoseAdapter moves a pose into another frame. frames.Adapter implements it.
type PoseAdapter interface {
	Adapt(ctx context.Context, pose geom.StampedPose, target string) (geom.StampedPose, error)
}

// Topics names the signal topics.
type Topics struct {
	AddPose string // stamped poses to append
	Reset   string
	Ready   string
	Replay  string
}

// DefaultTopics returns the standard topic names.
func DefaultTopics() Topics {
	return Topics{
		AddPose: "/initialpose",
		Reset:   "/path_reset",
		Ready:   "/path_ready",
		Replay:  "/start_journey",
	}
}

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeSuccess              Outcome = "success"
	OutcomeResetDuringExecution Outcome = "reset"
	OutcomeReplayed             Outcome = "replayed"
	OutcomeAborted              Outcome = "aborted" // replay stopped on a file error
	OutcomeShutdown             Outcome = "shutdown"
)

// Mode distinguishes live runs from replays.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeReplay Mode = "replay"
)

// GoalResult records one dispatched waypoint.
type GoalResult struct {
	Index    int                   `json:"index"`
	Target   geom.Pose             `json:"target"`
	Status   navigation.GoalStatus `json:"status"`
	Started  time.Time             `json:"started"`
	Finished time.Time             `json:"finished"`
}

// Report summarises a finished run.
type Report struct {
	RunID    string       `json:"run_id"`
	Mode     Mode         `json:"mode"`
	Outcome  Outcome      `json:"outcome"`
	FrameID  string       `json:"frame_id"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Goals    []GoalResult `json:"goals"`
}

// Poses returns the targets of every goal in the report.
func (r Report) Poses() []geom.Pose {
	out := make([]geom.Pose, len(r.Goals))
	for i, g := range r.Goals {
		out[i] = g.Target
	}
	return out
}

// Options wires the follower's collaborators and parameters. Durations left
// at zero take the documented defaults.
type Options struct {
	Store        *waypoint.Store
	Bus          Subscriber
	Adapter      PoseAdapter
	Transforms   frames.TransformLookup // robot pose lookups during replay
	Navigator    navigation.Navigator
	Reconfigurer navigation.Reconfigurer
	Clock        timeutil.Clock

	Topics    Topics
	GoalFrame string
	BaseFrame string

	Active  navigation.Tolerances // applied while following a path
	Restore navigation.Tolerances // applied afterwards

	WaitDuration       time.Duration // dwell after each goal, default 0
	PollInterval       time.Duration // default 1s
	ResetCooldown      time.Duration // default 3s
	ReplayPollInterval time.Duration // default 100ms
	RestoreTimeout     time.Duration // bound on waiting for the restore ack, default 5s
}

func (o *Options) setDefaults() error {
	if o.Store == nil {
		return fmt.Errorf("follower: store is required")
	}
	if o.Bus == nil {
		return fmt.Errorf("follower: signal bus is required")
	}
	if o.Navigator == nil || o.Reconfigurer == nil {
		return fmt.Errorf("follower: navigator and reconfigurer are required")
	}
	if o.Adapter == nil || o.Transforms == nil {
		return fmt.Errorf("follower: pose adapter and transform lookup are required")
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.Topics == (Topics{}) {
		o.Topics = DefaultTopics()
	}
	if o.GoalFrame == "" {
		o.GoalFrame = o.Store.FrameID()
	}
	if o.BaseFrame == "" {
		o.BaseFrame = "base_footprint"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.ResetCooldown <= 0 {
		o.ResetCooldown = 3 * time.Second
	}
	if o.ReplayPollInterval <= 0 {
		o.ReplayPollInterval = 100 * time.Millisecond
	}
	if o.RestoreTimeout <= 0 {
		o.RestoreTimeout = 5 * time.Second
	}
	return nil
}
