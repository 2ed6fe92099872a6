package navigation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/waypoints/internal/frames"
	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/timeutil"
)

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	Tree       *frames.Tree
	OdomFrame  string
	BaseFrame  string
	Speed      float64       // metres per second, default 0.5
	Step       time.Duration // integration step, default 50ms
	Clock      timeutil.Clock
	Tolerances Tolerances // initial planner tolerances
}

type simGoal struct {
	target geom.Pose // in odom
	status GoalStatus
	done   chan struct{}
}

// Simulator stands in for the navigation service in dev mode. It drives a
// point robot in a straight line to each goal and publishes its odometry as
// the odom->base edge of the transform tree.
type Simulator struct {
	opts SimulatorOptions

	mu     sync.Mutex
	pose   geom.Pose
	tol    Tolerances
	goals  map[string]*simGoal
	active string
	nextID int
}

var (
	_ Navigator    = (*Simulator)(nil)
	_ Reconfigurer = (*Simulator)(nil)
)

// NewSimulator places the robot at the odom origin.
func NewSimulator(opts SimulatorOptions) (*Simulator, error) {
	if opts.Tree == nil {
		return nil, fmt.Errorf("simulator: transform tree is required")
	}
	if opts.OdomFrame == "" || opts.BaseFrame == "" {
		return nil, fmt.Errorf("simulator: odom and base frames are required")
	}
	if opts.Speed <= 0 {
		opts.Speed = 0.5
	}
	if opts.Step <= 0 {
		opts.Step = 50 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	s := &Simulator{
		opts:  opts,
		pose:  geom.Pose{Orientation: geom.Identity},
		tol:   opts.Tolerances,
		goals: make(map[string]*simGoal),
	}
	if err := s.publish(); err != nil {
		return nil, err
	}
	return s, nil
}

// Pose returns the robot pose in the odom frame.
func (s *Simulator) Pose() geom.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

func (s *Simulator) publish() error {
	s.mu.Lock()
	tf := geom.Transform{Translation: s.pose.Position, Rotation: s.pose.Orientation}
	s.mu.Unlock()
	return s.opts.Tree.SetTransform(s.opts.OdomFrame, s.opts.BaseFrame, tf, s.opts.Clock.Now())
}

// Run advances the robot every Step until ctx ends.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := s.opts.Clock.NewTicker(s.opts.Step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.advance(s.opts.Speed * s.opts.Step.Seconds())
			if err := s.publish(); err != nil {
				return err
			}
		}
	}
}

// advance moves the robot up to maxStep metres toward the active goal.
func (s *Simulator) advance(maxStep float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[s.active]
	if !ok || g.status != StatusActive {
		return
	}

	dx := g.target.Position.X - s.pose.Position.X
	dy := g.target.Position.Y - s.pose.Position.Y
	dist := math.Hypot(dx, dy)
	if dist <= maxStep {
		s.pose = g.target
		s.finishLocked(g, StatusSucceeded)
		return
	}
	s.pose.Position.X += dx / dist * maxStep
	s.pose.Position.Y += dy / dist * maxStep
	s.pose.Orientation = geom.FromYaw(math.Atan2(dy, dx))
}

func (s *Simulator) finishLocked(g *simGoal, status GoalStatus) {
	g.status = status
	close(g.done)
}

// SendGoal converts target into odom and makes it the active goal. A goal
// still in progress is preempted.
func (s *Simulator) SendGoal(ctx context.Context, target geom.StampedPose) (Goal, error) {
	tf, err := s.opts.Tree.LookupTransform(ctx, s.opts.OdomFrame, target.FrameID)
	if err != nil {
		return Goal{}, fmt.Errorf("send goal: %w", err)
	}
	inOdom := tf.Apply(target.Pose)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.goals[s.active]; ok && prev.status == StatusActive {
		s.finishLocked(prev, StatusPreempted)
	}
	s.nextID++
	id := strconv.Itoa(s.nextID)
	s.goals[id] = &simGoal{target: inOdom, status: StatusActive, done: make(chan struct{})}
	s.active = id
	return Goal{ID: id, Target: target}, nil
}

func (s *Simulator) WaitForResult(ctx context.Context, goal Goal) (GoalStatus, error) {
	s.mu.Lock()
	g, ok := s.goals[goal.ID]
	s.mu.Unlock()
	if !ok {
		return StatusLost, nil
	}

	select {
	case <-g.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return g.status, nil
}

// Status reports a goal's current status.
func (s *Simulator) Status(id string) GoalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.goals[id]; ok {
		return g.status
	}
	return StatusLost
}

func (s *Simulator) Get(ctx context.Context) (Tolerances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tol, nil
}

func (s *Simulator) Update(ctx context.Context, t Tolerances, ack AckFunc) {
	s.mu.Lock()
	s.tol = t
	s.mu.Unlock()
	if ack != nil {
		go ack(t, nil)
	}
}

// Flush returns at once; the simulator applies updates synchronously.
func (s *Simulator) Flush(ctx context.Context) error { return nil }
