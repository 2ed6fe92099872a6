// Package api serves the follower's HTTP surface: operator signals,
// queue and path inspection, run history and a gRPC health mirror of the
// state machine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/waypoints/internal/db"
	"github.com/banshee-data/waypoints/internal/follower"
	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/httputil"
	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/version"
)

var logf = monitoring.Component("api")

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 * 1024

// Publisher is the publishing half of signalmux.Mux.
type Publisher interface {
	Publish(topic string, payload json.RawMessage) error
}

// Queue exposes the live waypoint queue and the persisted path.
type Queue interface {
	PoseArray() geom.PoseArray
	Persisted() ([]geom.Pose, error)
	Path() string
}

// StatusSource reports the state machine's status.
type StatusSource interface {
	Status() follower.Status
}

// RunHistory reads recorded runs. *db.DB implements it.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]db.PathRun, error)
	Run(ctx context.Context, runID string) (db.PathRun, error)
	RunEvents(ctx context.Context, runID string) ([]db.WaypointEvent, error)
}

type Server struct {
	bus    Publisher
	queue  Queue
	status StatusSource
	runs   RunHistory // nil when history is disabled
	topics follower.Topics
}

// NewServer creates the API server. runs may be nil.
func NewServer(bus Publisher, queue Queue, status StatusSource, runs RunHistory, topics follower.Topics) *Server {
	if topics == (follower.Topics{}) {
		topics = follower.DefaultTopics()
	}
	return &Server{bus: bus, queue: queue, status: status, runs: runs, topics: topics}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Admin and debug routes are attached by
// the caller.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/waypoints", s.handleWaypoints)
	mux.HandleFunc("/api/path", s.showPath)
	mux.HandleFunc("/api/path/reset", s.signalHandler(s.topics.Reset))
	mux.HandleFunc("/api/path/ready", s.signalHandler(s.topics.Ready))
	mux.HandleFunc("/api/path/replay", s.signalHandler(s.topics.Replay))
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.showRun)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/debug/path-chart", s.showPathChart)
	mux.Handle("/metrics", monitoring.MetricsHandler())
	return mux
}

func (s *Server) handleWaypoints(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.queue.PoseArray())
	case http.MethodPost:
		s.addWaypoint(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) addWaypoint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	var pose geom.StampedPose
	if err := json.Unmarshal(body, &pose); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid pose: %v", err))
		return
	}
	if pose.Pose.Orientation != (geom.Quaternion{}) {
		if err := pose.Pose.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	if err := s.bus.Publish(s.topics.AddPose, body); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"topic": s.topics.AddPose})
}

func (s *Server) signalHandler(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		if err := s.bus.Publish(topic, nil); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"topic": topic})
	}
}

func (s *Server) showPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	poses, err := s.queue.Persisted()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if poses == nil {
		poses = []geom.Pose{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"file":  s.queue.Path(),
		"poses": poses,
	})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.status.Status())
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.runs == nil {
		httputil.NotFound(w, "run history is disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []db.PathRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.runs == nil {
		httputil.NotFound(w, "run history is disabled")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "run not found")
		return
	}
	run, err := s.runs.Run(r.Context(), id)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	events, err := s.runs.RunEvents(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"run":    run,
		"events": events,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Current())
}

func (s *Server) showPathChart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := monitoring.RenderPathChart(w, s.queue.PoseArray()); err != nil {
		logf("path chart: %v", err)
	}
}

// Start serves handler on addr until ctx ends, then shuts down gracefully.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logf("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}
