package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/waypoints/internal/api"
	"github.com/banshee-data/waypoints/internal/config"
	"github.com/banshee-data/waypoints/internal/db"
	"github.com/banshee-data/waypoints/internal/follower"
	"github.com/banshee-data/waypoints/internal/frames"
	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/navigation"
	"github.com/banshee-data/waypoints/internal/signalmux"
	"github.com/banshee-data/waypoints/internal/waypoint"
)

// options are the command-line settings that are not part of the follower
// config file.
type options struct {
	listen     string // HTTP address, empty disables
	grpcListen string // gRPC health address, empty disables
	dbPath     string // run history, empty disables
	plotDir    string // PNG per completed path, empty disables
	navURL     string
	simulate   bool
	simSpeed   float64
	console    string // serial device, empty disables
	baudRate   int
}

type app struct {
	cfg     *config.Config
	opts    options
	bus     *signalmux.Bus
	tree    *frames.Tree
	store   *waypoint.Store
	machine *follower.Machine
	health  *api.Health
	history *db.DB
	sim     *navigation.Simulator
	console *signalmux.Console[serial.Port]
}

// newApp wires every component but starts nothing.
func newApp(ctx context.Context, cfg *config.Config, opts options) (*app, error) {
	a := &app{cfg: cfg, opts: opts, bus: signalmux.NewBus(), tree: frames.NewTree()}

	for _, st := range cfg.StaticTransforms {
		if err := a.tree.AddStatic(st.Parent, st.Child, st.Transform); err != nil {
			return nil, fmt.Errorf("static transform %s->%s: %w", st.Parent, st.Child, err)
		}
	}

	vizTopic := cfg.GetPoseArrayTopic()
	store, err := waypoint.NewStore(waypoint.Options{
		Path:    cfg.GetPathFile(),
		FrameID: cfg.GetGoalFrameID(),
		Publisher: waypoint.PublisherFunc(func(arr geom.PoseArray) {
			if err := a.bus.PublishJSON(vizTopic, arr); err != nil && !errors.Is(err, signalmux.ErrClosed) {
				logf("failed to publish %s: %v", vizTopic, err)
			}
		}),
	})
	if err != nil {
		return nil, err
	}
	a.store = store

	nav, reconf, err := a.navigation()
	if err != nil {
		return nil, err
	}

	active := navigation.Tolerances{XY: cfg.GetXYGoalTolerance(), Yaw: cfg.GetYawGoalTolerance()}
	restore := navigation.Tolerances{XY: cfg.GetRestoreXYTolerance(), Yaw: cfg.GetRestoreYawTolerance()}
	getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if current, err := reconf.Get(getCtx); err != nil {
		logf("could not read navigation tolerances, will restore [xy_goal:%g, yaw_goal:%g]: %v", restore.XY, restore.Yaw, err)
	} else {
		restore = current
	}
	cancel()

	var hooks []follower.Hook
	if opts.dbPath != "" {
		a.history, err = db.NewDB(opts.dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		hooks = append(hooks, a.history.RecordRun)
	}
	if opts.plotDir != "" {
		hooks = append(hooks, plotHook(monitoring.NewPathPlotter(opts.plotDir)))
	}

	topics := follower.DefaultTopics()
	topics.AddPose = cfg.GetAddPoseTopic()
	a.machine, err = follower.NewMachine(follower.Options{
		Store:              store,
		Bus:                a.bus,
		Adapter:            frames.NewAdapter(a.tree, cfg.GetTransformTimeout()),
		Transforms:         a.tree,
		Navigator:          nav,
		Reconfigurer:       reconf,
		Topics:             topics,
		GoalFrame:          cfg.GetGoalFrameID(),
		BaseFrame:          cfg.GetBaseFrameID(),
		Active:             active,
		Restore:            restore,
		WaitDuration:       cfg.GetWaitDuration(),
		PollInterval:       cfg.GetPollInterval(),
		ResetCooldown:      cfg.GetResetCooldown(),
		ReplayPollInterval: cfg.GetReplayPollInterval(),
	}, hooks...)
	if err != nil {
		return nil, err
	}

	a.health = api.NewHealth()
	a.machine.OnStateChange(a.health.Observe)

	if opts.console != "" {
		a.console, err = signalmux.OpenConsole(opts.console, signalmux.PortOptions{BaudRate: opts.baudRate}, a.bus)
		if err != nil {
			return nil, fmt.Errorf("failed to open console %s: %w", opts.console, err)
		}
	}
	return a, nil
}

func (a *app) navigation() (navigation.Navigator, navigation.Reconfigurer, error) {
	if a.opts.simulate {
		sim, err := navigation.NewSimulator(navigation.SimulatorOptions{
			Tree:       a.tree,
			OdomFrame:  a.cfg.GetOdomFrameID(),
			BaseFrame:  a.cfg.GetBaseFrameID(),
			Speed:      a.opts.simSpeed,
			Tolerances: navigation.Tolerances{XY: a.cfg.GetRestoreXYTolerance(), Yaw: a.cfg.GetRestoreYawTolerance()},
		})
		if err != nil {
			return nil, nil, err
		}
		a.sim = sim
		logf("using simulated navigation in frame %s", a.cfg.GetOdomFrameID())
		return sim, sim, nil
	}
	client, err := navigation.NewClient(a.opts.navURL, navigation.ClientOptions{})
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

func plotHook(pp *monitoring.PathPlotter) follower.Hook {
	return func(ctx context.Context, r follower.Report) error {
		if r.Outcome != follower.OutcomeSuccess && r.Outcome != follower.OutcomeReplayed {
			return nil
		}
		out, err := pp.Save(r.RunID, r.FrameID, r.Poses())
		if err != nil {
			return err
		}
		if out != "" {
			logf("path plot written to %s", out)
		}
		return nil
	}
}

// handler builds the HTTP routes, API plus admin pages.
func (a *app) handler() (http.Handler, error) {
	var runs api.RunHistory
	if a.history != nil {
		runs = a.history
	}
	srv := api.NewServer(a.bus, a.store, a.machine, runs, follower.Topics{
		AddPose: a.cfg.GetAddPoseTopic(),
		Reset:   follower.DefaultTopics().Reset,
		Ready:   follower.DefaultTopics().Ready,
		Replay:  follower.DefaultTopics().Replay,
	})
	mux := srv.ServeMux()

	t := follower.DefaultTopics()
	signalmux.AttachAdminRoutes(mux, a.bus, signalmux.AdminOptions{
		Topics:    []string{t.Reset, t.Ready, t.Replay},
		TailTopic: a.cfg.GetPoseArrayTopic(),
	})
	if a.history != nil {
		if err := a.history.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// run starts every component and blocks until ctx ends or the follower
// hits an unrecoverable error.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.sim != nil {
		g.Go(func() error { return ignoreCanceled(a.sim.Run(gctx)) })
	}
	g.Go(func() error {
		err := a.machine.Run(gctx)
		if err != nil {
			return fmt.Errorf("follower stopped: %w", err)
		}
		return nil
	})
	if a.opts.listen != "" {
		h, err := a.handler()
		if err != nil {
			return err
		}
		g.Go(func() error { return api.Start(gctx, a.opts.listen, h) })
	}
	if a.opts.grpcListen != "" {
		g.Go(func() error { return a.health.Serve(gctx, a.opts.grpcListen) })
	}
	if a.console != nil {
		g.Go(func() error { return ignoreCanceled(a.console.Monitor(gctx)) })
		g.Go(func() error { return ignoreCanceled(a.console.Echo(gctx, a.cfg.GetPoseArrayTopic())) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the bus, the console and the database.
func (a *app) Close() error {
	var errs []error
	if a.console != nil {
		errs = append(errs, a.console.Close())
	}
	errs = append(errs, a.bus.Close())
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	return errors.Join(errs...)
}
