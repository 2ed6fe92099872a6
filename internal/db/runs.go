package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/waypoints/internal/follower"
	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/navigation"
)

// ErrRunNotFound is returned by Run for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// PathRun is one row of path_runs.
type PathRun struct {
	RunID     string    `json:"run_id"`
	Mode      string    `json:"mode"`
	Outcome   string    `json:"outcome"`
	FrameID   string    `json:"frame_id"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	GoalCount int       `json:"goal_count"`
}

// WaypointEvent is one row of waypoint_events.
type WaypointEvent struct {
	RunID    string    `json:"run_id"`
	Index    int       `json:"index"`
	Target   geom.Pose `json:"target"`
	Status   string    `json:"status"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

func toUnix(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(f float64) time.Time {
	if f == 0 {
		return time.Time{}
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}

// RecordRun stores a finished run and its goals. It has the follower.Hook
// signature so it can be passed straight to follower.NewMachine.
func (db *DB) RecordRun(ctx context.Context, r follower.Report) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO path_runs (run_id, mode, outcome, frame_id, started_unix, finished_unix, goal_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, string(r.Mode), string(r.Outcome), r.FrameID, toUnix(r.Started), toUnix(r.Finished), len(r.Goals),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	for _, g := range r.Goals {
		p := g.Target
		_, err = tx.ExecContext(ctx,
			`INSERT INTO waypoint_events (run_id, goal_index, x, y, z, qx, qy, qz, qw, status, started_unix, finished_unix)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, g.Index,
			p.Position.X, p.Position.Y, p.Position.Z,
			p.Orientation.X, p.Orientation.Y, p.Orientation.Z, p.Orientation.W,
			string(g.Status), toUnix(g.Started), toUnix(g.Finished),
		)
		if err != nil {
			return fmt.Errorf("insert goal %d of run %s: %w", g.Index, r.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", r.RunID, err)
	}
	logf("recorded run %s: %s %s, %d goals", r.RunID, r.Mode, r.Outcome, len(r.Goals))
	return nil
}

const runColumns = `run_id, mode, outcome, frame_id, started_unix, finished_unix, goal_count`

func scanRun(s interface{ Scan(...any) error }) (PathRun, error) {
	var (
		run              PathRun
		started, finished float64
	)
	if err := s.Scan(&run.RunID, &run.Mode, &run.Outcome, &run.FrameID, &started, &finished, &run.GoalCount); err != nil {
		return PathRun{}, err
	}
	run.Started = fromUnix(started)
	run.Finished = fromUnix(finished)
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]PathRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM path_runs ORDER BY started_unix DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []PathRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns a single run by ID.
func (db *DB) Run(ctx context.Context, runID string) (PathRun, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM path_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PathRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// RunEvents returns the goals of a run in dispatch order.
func (db *DB) RunEvents(ctx context.Context, runID string) ([]WaypointEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT goal_index, x, y, z, qx, qy, qz, qw, status, started_unix, finished_unix
		 FROM waypoint_events WHERE run_id = ? ORDER BY goal_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []WaypointEvent
	for rows.Next() {
		var (
			ev                WaypointEvent
			started, finished float64
			p                 = &ev.Target
		)
		if err := rows.Scan(&ev.Index,
			&p.Position.X, &p.Position.Y, &p.Position.Z,
			&p.Orientation.X, &p.Orientation.Y, &p.Orientation.Z, &p.Orientation.W,
			&ev.Status, &started, &finished,
		); err != nil {
			return nil, err
		}
		ev.RunID = runID
		ev.Started = fromUnix(started)
		ev.Finished = fromUnix(finished)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GoalStatusCounts returns how many goals ended in each status across all
// runs.
func (db *DB) GoalStatusCounts(ctx context.Context) (map[navigation.GoalStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM waypoint_events GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[navigation.GoalStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[navigation.GoalStatus(status)] = n
	}
	return counts, rows.Err()
}
