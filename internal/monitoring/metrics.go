package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// WAYPOINT QUEUE METRICS
// =============================================================================

var (
	queueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypoints_queue_length",
			Help: "Number of waypoints currently held in the store",
		},
	)

	signalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypoints_signals_total",
			Help: "Signals received per topic",
		},
		[]string{"topic"},
	)
)

// =============================================================================
// EXECUTION METRICS
// =============================================================================

var (
	goalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypoints_goals_total",
			Help: "Navigation goals by terminal status",
		},
		[]string{"status"}, // succeeded, aborted, preempted, rejected, lost, error
	)

	pathRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypoints_path_runs_total",
			Help: "Completed path runs by mode and outcome",
		},
		[]string{"mode", "outcome"}, // mode: live, replay
	)

	pathRunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waypoints_path_run_duration_seconds",
			Help:    "Wall time spent following a path",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"mode"},
	)

	replayArrivalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypoints_replay_arrivals_total",
			Help: "Waypoints reached and consumed during replay",
		},
	)

	pathFileRewritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypoints_path_file_writes_total",
			Help: "Persisted path writes by result",
		},
		[]string{"result"}, // ok, error
	)

	stateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waypoints_state",
			Help: "1 for the state machine's current state, 0 otherwise",
		},
		[]string{"state"},
	)
)

// SetQueueLength records the store size.
func SetQueueLength(n int) {
	queueLength.Set(float64(n))
}

// RecordSignal counts a received signal.
func RecordSignal(topic string) {
	signalsTotal.WithLabelValues(topic).Inc()
}

// RecordGoal counts a finished navigation goal.
func RecordGoal(status string) {
	goalsTotal.WithLabelValues(status).Inc()
}

// RecordPathRun records a finished traversal.
func RecordPathRun(mode, outcome string, d time.Duration) {
	pathRunsTotal.WithLabelValues(mode, outcome).Inc()
	pathRunDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordReplayArrival counts a consumed replay row.
func RecordReplayArrival() {
	replayArrivalsTotal.Inc()
}

// RecordPathWrite counts a persisted path write.
func RecordPathWrite(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	pathFileRewritesTotal.WithLabelValues(result).Inc()
}

// SetState marks current as the active state among all.
func SetState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		stateGauge.WithLabelValues(s).Set(v)
	}
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
