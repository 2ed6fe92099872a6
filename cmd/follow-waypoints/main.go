package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/waypoints/internal/config"
	"github.com/banshee-data/waypoints/internal/frames"
	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/version"
)

var logf = monitoring.Component("main")

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Follower config file (JSON); missing means defaults")
	listen      = flag.String("listen", ":8080", "HTTP listen address, empty to disable")
	grpcListen  = flag.String("grpc-listen", ":8081", "gRPC health listen address, empty to disable")
	dbPath      = flag.String("db", "waypoints.db", "Run history database, empty to disable")
	plotDir     = flag.String("plots", "", "Directory for a PNG of each completed path, empty to disable")
	navURL      = flag.String("nav-url", "http://localhost:9090", "Navigation service base URL")
	simulate    = flag.Bool("simulate", false, "Drive a simulated robot instead of the navigation service")
	simSpeed    = flag.Float64("sim-speed", 0.5, "Simulated robot speed in m/s")
	consolePath = flag.String("console", "", "Serial device for the operator console, empty to disable")
	baudRate    = flag.Int("baud", 115200, "Operator console baud rate")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("follow-waypoints %s", version.Current())
		return
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logf("follow-waypoints %s starting, goal frame %s, path file %s", version.Version, cfg.GetGoalFrameID(), cfg.GetPathFile())
	a, err := newApp(ctx, cfg, options{
		listen:     *listen,
		grpcListen: *grpcListen,
		dbPath:     *dbPath,
		plotDir:    *plotDir,
		navURL:     *navURL,
		simulate:   *simulate,
		simSpeed:   *simSpeed,
		console:    *consolePath,
		baudRate:   *baudRate,
	})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	err = a.run(ctx)
	if cerr := a.Close(); cerr != nil {
		logf("shutdown: %v", cerr)
	}
	if err != nil {
		var te *frames.TransformError
		if errors.As(err, &te) {
			log.Printf("%v", te)
		} else {
			log.Printf("%v", err)
		}
		stop()
		os.Exit(1)
	}
	logf("shut down cleanly")
}
