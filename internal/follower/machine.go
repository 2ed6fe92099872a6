package follower

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/signalmux"
)

// State is a node of the path state machine.
type State string

const (
	StateGetPath      State = "GET_PATH"
	StateFollowPath   State = "FOLLOW_PATH"
	StateReplayPath   State = "REPLAY_PATH"
	StatePathComplete State = "PATH_COMPLETE"
)

// States lists every state in cycle order.
var States = []State{StateGetPath, StateFollowPath, StateReplayPath, StatePathComplete}

func stateNames() []string {
	out := make([]string, len(States))
	for i, s := range States {
		out[i] = string(s)
	}
	return out
}

// Hook runs after every run, before the machine returns to GET_PATH.
type Hook func(ctx context.Context, r Report) error

// Status is a point-in-time view of the machine.
type Status struct {
	State       State     `json:"state"`
	Since       time.Time `json:"since"`
	QueueLength int       `json:"queue_length"`
	Generation  uint64    `json:"generation"`
	LastRun     *Report   `json:"last_run,omitempty"`
}

// Machine cycles GET_PATH -> FOLLOW_PATH -> PATH_COMPLETE -> GET_PATH, taking
// GET_PATH -> REPLAY_PATH -> PATH_COMPLETE when a replay is requested. A
// reset during FOLLOW_PATH returns straight to GET_PATH.
type Machine struct {
	opts     Options
	acquirer *Acquirer
	executor *Executor
	replayer *Replayer
	hooks    []Hook

	mu        sync.Mutex
	state     State
	since     time.Time
	lastRun   *Report
	observers []func(State)
}

// NewMachine builds the machine and its three stages from opts.
func NewMachine(opts Options, hooks ...Hook) (*Machine, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	m := &Machine{
		opts:     opts,
		acquirer: &Acquirer{opts: opts},
		executor: &Executor{opts: opts},
		replayer: &Replayer{opts: opts},
		hooks:    hooks,
		state:    StateGetPath,
		since:    opts.Clock.Now(),
	}
	return m, nil
}

// OnStateChange registers f to be called with every new state. f must not
// block.
func (m *Machine) OnStateChange(f func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, f)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the current state with queue details and the last report.
func (m *Machine) Status() Status {
	_, gen := m.opts.Store.Snapshot()
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:       m.state,
		Since:       m.since,
		QueueLength: m.opts.Store.Len(),
		Generation:  gen,
	}
	if m.lastRun != nil {
		r := *m.lastRun
		st.LastRun = &r
	}
	return st
}

func (m *Machine) enter(s State) {
	m.mu.Lock()
	m.state = s
	m.since = m.opts.Clock.Now()
	observers := append([]func(State){}, m.observers...)
	m.mu.Unlock()

	monitoring.SetState(string(s), stateNames())
	for _, f := range observers {
		f(s)
	}
}

// Run cycles until ctx ends or an unrecoverable error occurs. Shutdown
// returns nil.
func (m *Machine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// subscribe before the first GET_PATH so an early reset is not missed
	resetID, resets := m.opts.Bus.Subscribe(m.opts.Topics.Reset)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer m.opts.Bus.Unsubscribe(resetID)
		return m.listenReset(gctx, resets)
	})
	g.Go(func() error {
		defer cancel()
		return m.loop(gctx)
	})

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// listenReset clears the store on every reset signal, then ignores further
// resets for the cooldown so a duplicated delivery is not acted on twice.
func (m *Machine) listenReset(ctx context.Context, resets <-chan signalmux.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-resets:
			if !ok {
				return nil
			}
		}
		logf("Received path RESET message")
		m.opts.Store.Clear()

		if err := m.opts.Clock.SleepContext(ctx, m.opts.ResetCooldown); err != nil {
			return nil
		}
	drain:
		for {
			select {
			case <-resets:
			default:
				break drain
			}
		}
	}
}

func (m *Machine) loop(ctx context.Context) error {
	for {
		m.enter(StateGetPath)
		acq, err := m.acquirer.Acquire(ctx)
		if err != nil {
			return err
		}

		report := Report{
			RunID:   uuid.NewString(),
			FrameID: m.opts.GoalFrame,
			Started: m.opts.Clock.Now(),
		}
		switch acq.Result {
		case AcquireReady:
			m.enter(StateFollowPath)
			report.Mode = ModeLive
			report.Outcome, report.Goals = m.executor.Execute(ctx, acq.Path, acq.Generation)
		case AcquireReplay:
			m.enter(StateReplayPath)
			report.Mode = ModeReplay
			report.Outcome, report.Goals = m.replayer.Replay(ctx)
		}
		report.Finished = m.opts.Clock.Now()
		monitoring.RecordPathRun(string(report.Mode), string(report.Outcome), report.Finished.Sub(report.Started))

		if report.Outcome == OutcomeShutdown {
			m.finish(context.WithoutCancel(ctx), report)
			return ctx.Err()
		}
		if report.Outcome != OutcomeResetDuringExecution {
			m.enter(StatePathComplete)
			logf("###############################")
			logf("##### REACHED FINISH GATE #####")
			logf("###############################")
		}
		m.finish(ctx, report)
	}
}

func (m *Machine) finish(ctx context.Context, report Report) {
	m.mu.Lock()
	m.lastRun = &report
	m.mu.Unlock()

	for _, h := range m.hooks {
		if err := h(ctx, report); err != nil {
			logf("run %s hook failed: %v", report.RunID, err)
		}
	}
}
