package follower

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/signalmux"
	"github.com/banshee-data/waypoints/internal/waypoint"
)

// AcquireResult says which signal ended acquisition.
type AcquireResult int

const (
	AcquireReady AcquireResult = iota + 1
	AcquireReplay
)

func (r AcquireResult) String() string {
	switch r {
	case AcquireReady:
		return "ready"
	case AcquireReplay:
		return "replay"
	}
	return "unknown"
}

// Acquisition is what GET_PATH hands on. For AcquireReady, Path is the queue
// exactly as persisted and Generation is the store generation it was taken
// at, so a reset arriving before execution starts is still detected.
type Acquisition struct {
	Result     AcquireResult
	Path       []waypoint.Waypoint
	Generation uint64
}

// Acquirer builds up the live path (state GET_PATH).
type Acquirer struct {
	opts Options
}

// NewAcquirer validates opts and returns an Acquirer.
func NewAcquirer(opts Options) (*Acquirer, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	return &Acquirer{opts: opts}, nil
}

// Acquire clears the store and appends every pose received on the add-pose
// topic until a ready or replay signal arrives. On ready the queue is
// persisted before Acquire returns; a failed write is logged and the path is
// still followed. Resets are handled by the machine's long-lived reset
// listener, not here.
//
// The only error returned besides ctx's is an unrecoverable transform
// failure.
func (a *Acquirer) Acquire(ctx context.Context) (Acquisition, error) {
	o := a.opts
	o.Store.Clear()

	// subscribe before announcing so no signal sent after the hints is lost
	poseID, poses := o.Bus.Subscribe(o.Topics.AddPose)
	defer o.Bus.Unsubscribe(poseID)
	readyID, ready := o.Bus.Subscribe(o.Topics.Ready)
	defer o.Bus.Unsubscribe(readyID)
	replayID, replay := o.Bus.Subscribe(o.Topics.Replay)
	defer o.Bus.Unsubscribe(replayID)

	logf("Waiting to receive waypoints via pose messages on topic %s", o.Topics.AddPose)
	logf("To start following waypoints: publish %s", o.Topics.Ready)
	logf("OR")
	logf("To start following saved waypoints: publish %s", o.Topics.Replay)

	// the first of ready/replay to claim the decision wins; the other is ignored
	var claimed atomic.Bool
	decided := make(chan AcquireResult, 1)

	g, gctx := errgroup.WithContext(ctx)
	listenCtx, stopListeners := context.WithCancel(gctx)
	defer stopListeners()

	g.Go(func() error {
		select {
		case _, ok := <-ready:
			if !ok {
				return nil
			}
		case <-listenCtx.Done():
			return nil
		}
		if !claimed.CompareAndSwap(false, true) {
			return nil
		}
		logf("Received path READY message")
		decided <- AcquireReady
		return nil
	})

	g.Go(func() error {
		select {
		case _, ok := <-replay:
			if !ok {
				return nil
			}
		case <-listenCtx.Done():
			return nil
		}
		if !claimed.CompareAndSwap(false, true) {
			return nil
		}
		logf("Received START JOURNEY message")
		decided <- AcquireReplay
		return nil
	})

	var acq Acquisition
	g.Go(func() error {
		defer stopListeners()
		r, err := a.collect(listenCtx, poses, decided)
		acq = r
		return err
	})

	if err := g.Wait(); err != nil {
		return Acquisition{}, err
	}
	if acq.Result == 0 {
		return Acquisition{}, ctx.Err()
	}
	return acq, nil
}

// collect is the main acquisition loop. Each wait is bounded by the poll
// interval so shutdown is observed promptly even without traffic.
func (a *Acquirer) collect(ctx context.Context, poses <-chan signalmux.Message, decided <-chan AcquireResult) (Acquisition, error) {
	o := a.opts
	for {
		select {
		case <-ctx.Done():
			return Acquisition{}, nil
		case r := <-decided:
			if r != AcquireReady {
				return Acquisition{Result: r}, nil
			}
			if err := a.drain(ctx, poses); err != nil {
				return Acquisition{}, err
			}
			path, gen := a.persist()
			return Acquisition{Result: r, Path: path, Generation: gen}, nil
		case <-o.Clock.After(o.PollInterval):
			// no new waypoint within timeout, looping
		case msg, ok := <-poses:
			if !ok {
				return Acquisition{}, nil
			}
			if err := a.admit(ctx, msg); err != nil {
				return Acquisition{}, err
			}
		}
	}
}

// drain admits poses that were already delivered when ready arrived, so a
// path published back to back with its ready signal is complete.
func (a *Acquirer) drain(ctx context.Context, poses <-chan signalmux.Message) error {
	for {
		select {
		case msg, ok := <-poses:
			if !ok {
				return nil
			}
			if err := a.admit(ctx, msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (a *Acquirer) persist() ([]waypoint.Waypoint, uint64) {
	o := a.opts
	path, gen, err := o.Store.PersistSnapshot()
	if err != nil {
		logf("failed to persist path to %s: %v", o.Store.Path(), err)
		return path, gen
	}
	logf("poses written to %s", o.Store.Path())
	return path, gen
}

func (a *Acquirer) admit(ctx context.Context, msg signalmux.Message) error {
	o := a.opts
	var pose geom.StampedPose
	if err := msg.Decode(&pose); err != nil {
		logf("ignoring undecodable waypoint: %v", err)
		return nil
	}
	if pose.FrameID == "" {
		pose.FrameID = o.GoalFrame
	}
	if pose.Pose.Orientation == (geom.Quaternion{}) {
		pose.Pose.Orientation = geom.Identity
	}
	if err := pose.Pose.Validate(); err != nil {
		logf("ignoring invalid waypoint: %v", err)
		return nil
	}
	if pose.Stamp.IsZero() {
		pose.Stamp = msg.Received
	}

	adapted, err := o.Adapter.Adapt(ctx, pose, o.GoalFrame)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if err := o.Store.Append(adapted); err != nil {
		logf("failed to append waypoint: %v", err)
		return nil
	}
	logf("Received new waypoint %s (%d queued)", adapted.Pose, o.Store.Len())
	return nil
}
