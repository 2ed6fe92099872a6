package follower

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/waypoints/internal/frames"
	"github.com/banshee-data/waypoints/internal/fsutil"
	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/navigation"
	"github.com/banshee-data/waypoints/internal/signalmux"
	"github.com/banshee-data/waypoints/internal/testutil"
	"github.com/banshee-data/waypoints/internal/timeutil"
	"github.com/banshee-data/waypoints/internal/waypoint"
)

const testPathFile = "saved_path/pose.csv"

var (
	activeTol  = navigation.Tolerances{XY: 0.3, Yaw: 3.14}
	restoreTol = navigation.Tolerances{XY: 0.1, Yaw: 0.05}
)

// fakeNavigator records goals. By default every goal succeeds immediately and
// the robot is teleported onto it in the transform tree.
type fakeNavigator struct {
	tree *frames.Tree

	mu      sync.Mutex
	sent    []geom.StampedPose
	onSend  func(n int, target geom.StampedPose)
	results map[int]navigation.GoalStatus
	block   map[int]chan struct{}
}

func newFakeNavigator(tree *frames.Tree) *fakeNavigator {
	return &fakeNavigator{
		tree:    tree,
		results: make(map[int]navigation.GoalStatus),
		block:   make(map[int]chan struct{}),
	}
}

func (f *fakeNavigator) SendGoal(ctx context.Context, target geom.StampedPose) (navigation.Goal, error) {
	f.mu.Lock()
	f.sent = append(f.sent, target)
	n := len(f.sent)
	onSend := f.onSend
	f.mu.Unlock()

	if onSend != nil {
		onSend(n, target)
	}
	tf := geom.Transform{Translation: target.Pose.Position, Rotation: target.Pose.Orientation}
	if err := f.tree.SetTransform(target.FrameID, "base_footprint", tf, time.Now()); err != nil {
		return navigation.Goal{}, err
	}
	return navigation.Goal{ID: strconv.Itoa(n), Target: target}, nil
}

func (f *fakeNavigator) WaitForResult(ctx context.Context, goal navigation.Goal) (navigation.GoalStatus, error) {
	n, err := strconv.Atoi(goal.ID)
	if err != nil {
		return navigation.StatusLost, nil
	}
	f.mu.Lock()
	ch := f.block[n]
	status, ok := f.results[n]
	f.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if !ok {
		status = navigation.StatusSucceeded
	}
	return status, nil
}

func (f *fakeNavigator) blockGoal(n int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.block[n] = ch
	return ch
}

func (f *fakeNavigator) sentPoses() []geom.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]geom.Pose, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.Pose
	}
	return out
}

// fakeReconfigurer applies updates synchronously and keeps the history.
type fakeReconfigurer struct {
	mu      sync.Mutex
	current navigation.Tolerances
	updates []navigation.Tolerances
	flushes int
}

func (f *fakeReconfigurer) Get(ctx context.Context) (navigation.Tolerances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeReconfigurer) Update(ctx context.Context, t navigation.Tolerances, ack navigation.AckFunc) {
	f.mu.Lock()
	f.current = t
	f.updates = append(f.updates, t)
	f.mu.Unlock()
	if ack != nil {
		ack(t, nil)
	}
}

func (f *fakeReconfigurer) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeReconfigurer) history() []navigation.Tolerances {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]navigation.Tolerances(nil), f.updates...)
}

type lastArray struct {
	mu  sync.Mutex
	arr *geom.PoseArray
}

func (l *lastArray) PublishPoseArray(arr geom.PoseArray) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.arr = &arr
}

func (l *lastArray) get() *geom.PoseArray {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.arr
}

type harness struct {
	opts   Options
	bus    *signalmux.Bus
	store  *waypoint.Store
	fs     *fsutil.MemoryFileSystem
	tree   *frames.Tree
	nav    *fakeNavigator
	reconf *fakeReconfigurer
	clock  *timeutil.MockClock
	viz    *lastArray
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		bus:    signalmux.NewBus(),
		fs:     fsutil.NewMemoryFileSystem(),
		tree:   frames.NewTree(),
		reconf: &fakeReconfigurer{current: restoreTol},
		clock:  timeutil.NewMockClock(time.Unix(1700000000, 0)),
		viz:    &lastArray{},
	}
	t.Cleanup(func() { h.bus.Close() })
	h.nav = newFakeNavigator(h.tree)

	if err := h.tree.AddStatic("map", "odom", geom.Transform{Translation: geom.Point{X: 10}, Rotation: geom.Identity}); err != nil {
		t.Fatal(err)
	}

	store, err := waypoint.NewStore(waypoint.Options{
		FS:        h.fs,
		Path:      testPathFile,
		FrameID:   "map",
		Publisher: h.viz,
		Clock:     h.clock,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.store = store

	h.opts = Options{
		Store:        store,
		Bus:          h.bus,
		Adapter:      frames.NewAdapter(h.tree, 50*time.Millisecond),
		Transforms:   h.tree,
		Navigator:    h.nav,
		Reconfigurer: h.reconf,
		Clock:        h.clock,
		GoalFrame:    "map",
		BaseFrame:    "base_footprint",
		Active:       activeTol,
		Restore:      restoreTol,
		WaitDuration: 2 * time.Second,
	}
	return h
}

func (h *harness) waitForTopics(t *testing.T, topics ...string) {
	t.Helper()
	testutil.WaitFor(t, 2*time.Second, func() bool {
		have := make(map[string]bool)
		for _, tp := range h.bus.Topics() {
			have[tp] = true
		}
		for _, tp := range topics {
			if !have[tp] {
				return false
			}
		}
		return true
	})
}

func (h *harness) publishPose(t *testing.T, frame string, p geom.Pose) {
	t.Helper()
	if err := h.bus.PublishJSON("/initialpose", geom.StampedPose{FrameID: frame, Pose: p}); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) signal(t *testing.T, topic string) {
	t.Helper()
	if err := h.bus.Publish(topic, json.RawMessage(nil)); err != nil {
		t.Fatal(err)
	}
}

func pose(x, y float64) geom.Pose {
	return geom.Pose{Position: geom.Point{X: x, Y: y}, Orientation: geom.Identity}
}
