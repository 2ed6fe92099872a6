// Package waypoint holds the recorded path: the in-memory queue an operator
// builds up and the CSV file it is persisted to for later replay.
package waypoint

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/banshee-data/waypoints/internal/fsutil"
	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/timeutil"
)

// Waypoint is a stamped pose. Once admitted to a Store its frame is the
// store's goal frame.
type Waypoint = geom.StampedPose

// PoseArrayPublisher receives the full queue after every mutation.
type PoseArrayPublisher interface {
	PublishPoseArray(geom.PoseArray)
}

// PublisherFunc adapts a function to PoseArrayPublisher.
type PublisherFunc func(geom.PoseArray)

func (f PublisherFunc) PublishPoseArray(arr geom.PoseArray) { f(arr) }

// Options configures a Store.
type Options struct {
	FS        fsutil.FileSystem // defaults to fsutil.OSFileSystem
	Path      string            // persisted path file
	FrameID   string            // goal frame
	Publisher PoseArrayPublisher
	Clock     timeutil.Clock // stamps restored waypoints; defaults to RealClock
}

// Store is the waypoint queue plus its persisted file. Queue methods share
// one mutex; file methods share another so a slow write never blocks
// Append or Clear.
type Store struct {
	fs        fsutil.FileSystem
	path      string
	frameID   string
	publisher PoseArrayPublisher
	clock     timeutil.Clock

	mu         sync.Mutex
	queue      []Waypoint
	generation uint64

	fileMu sync.Mutex
}

// NewStore creates an empty store.
func NewStore(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("waypoint store: path is required")
	}
	if opts.FrameID == "" {
		return nil, fmt.Errorf("waypoint store: frame id is required")
	}
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Publisher == nil {
		opts.Publisher = PublisherFunc(func(geom.PoseArray) {})
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Store{
		fs:        opts.FS,
		path:      opts.Path,
		frameID:   opts.FrameID,
		publisher: opts.Publisher,
		clock:     opts.Clock,
	}, nil
}

// FrameID returns the goal frame waypoints are stored in.
func (s *Store) FrameID() string { return s.frameID }

// Path returns the persisted file location.
func (s *Store) Path() string { return s.path }

// Append adds w to the end of the queue. w must already be in the goal frame.
func (s *Store) Append(w Waypoint) error {
	if w.FrameID != s.frameID {
		return fmt.Errorf("waypoint in frame %q, store holds %q", w.FrameID, s.frameID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, w)
	s.publishLocked()
	return nil
}

// Clear empties the queue and starts a new generation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.generation++
	s.publishLocked()
}

// Snapshot returns a copy of the queue and the generation it belongs to.
func (s *Store) Snapshot() ([]Waypoint, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Waypoint, len(s.queue))
	copy(out, s.queue)
	return out, s.generation
}

// Len returns the queue length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Generation increments on every Clear.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// PoseArray returns the queue as a visualization message.
func (s *Store) PoseArray() geom.PoseArray {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poseArrayLocked()
}

func (s *Store) poseArrayLocked() geom.PoseArray {
	arr := geom.PoseArray{FrameID: s.frameID, Poses: make([]geom.Pose, len(s.queue))}
	for i, w := range s.queue {
		arr.Poses[i] = w.Pose
	}
	return arr
}

func (s *Store) publishLocked() {
	monitoring.SetQueueLength(len(s.queue))
	s.publisher.PublishPoseArray(s.poseArrayLocked())
}

// Persist overwrites the path file with the current queue.
func (s *Store) Persist() error {
	_, _, err := s.PersistSnapshot()
	return err
}

// PersistSnapshot takes a snapshot and writes exactly that snapshot to the
// path file. The snapshot is returned even when the write fails, so the
// caller can follow the path it was shown.
func (s *Store) PersistSnapshot() ([]Waypoint, uint64, error) {
	wps, gen := s.Snapshot()
	poses := make([]geom.Pose, len(wps))
	for i, w := range wps {
		poses[i] = w.Pose
	}
	data, err := EncodePath(poses)
	if err != nil {
		return wps, gen, err
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	err = fsutil.WriteFileAtomic(s.fs, s.path, data, 0644)
	monitoring.RecordPathWrite(err)
	if err != nil {
		return wps, gen, fmt.Errorf("persist path: %w", err)
	}
	return wps, gen, nil
}

// Persisted returns every row of the path file.
func (s *Store) Persisted() ([]geom.Pose, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	data, err := s.readLocked()
	if err != nil {
		if errors.Is(err, ErrEndOfPath) {
			return nil, nil
		}
		return nil, err
	}
	return DecodePath(data)
}

// RestoreNext returns the first row of the path file without removing it.
func (s *Store) RestoreNext() (Waypoint, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return Waypoint{}, err
	}
	records, err := readRecords(data)
	if err != nil {
		return Waypoint{}, err
	}
	if len(records) == 0 {
		return Waypoint{}, ErrEndOfPath
	}
	pose, err := decodeRecord(records[0])
	if err != nil {
		return Waypoint{}, fmt.Errorf("row 1: %w", err)
	}
	return Waypoint{FrameID: s.frameID, Stamp: s.clock.Now(), Pose: pose}, nil
}

// RemoveConsumed rewrites the path file without the first row equal to w.
// The rewrite goes through a temporary file and a rename, so a failure at
// any step leaves the previous file in place.
func (s *Store) RemoveConsumed(w Waypoint) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	records, err := readRecords(data)
	if err != nil {
		return err
	}

	kept := make([][]string, 0, len(records)+1)
	kept = append(kept, header)
	removed := false
	for _, rec := range records {
		if !removed {
			if p, err := decodeRecord(rec); err == nil && p == w.Pose {
				removed = true
				continue
			}
		}
		kept = append(kept, rec)
	}
	if !removed {
		return fmt.Errorf("remove consumed: %s not found in %s", w.Pose, s.path)
	}

	out, err := writeRecords(kept)
	if err != nil {
		return err
	}
	err = fsutil.WriteFileAtomic(s.fs, s.path, out, 0644)
	monitoring.RecordPathWrite(err)
	if err != nil {
		return fmt.Errorf("remove consumed: %w", err)
	}
	return nil
}

func (s *Store) readLocked() ([]byte, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrEndOfPath
		}
		return nil, fmt.Errorf("read path: %w", err)
	}
	return data, nil
}
