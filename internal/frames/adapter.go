package frames

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/waypoints/internal/geom"
)

// ErrTransformUnavailable is matched by every error Adapt returns when the
// pose could not be moved into the target frame in time. Callers treat it as
// unrecoverable.
var ErrTransformUnavailable = errors.New("transform unavailable")

// TransformError describes a failed frame conversion.
type TransformError struct {
	Target string
	Source string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("can't transform pose to %s frame: %v", e.Target, e.Err)
}

// Is makes errors.Is(err, ErrTransformUnavailable) hold.
func (e *TransformError) Is(target error) bool { return target == ErrTransformUnavailable }

func (e *TransformError) Unwrap() error { return e.Err }

// DefaultTimeout bounds a lookup when the adapter is built with zero.
const DefaultTimeout = 3 * time.Second

// Adapter re-expresses stamped poses in another frame.
type Adapter struct {
	lookup  TransformLookup
	timeout time.Duration
}

// NewAdapter returns an adapter that waits at most timeout per lookup.
func NewAdapter(lookup TransformLookup, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{lookup: lookup, timeout: timeout}
}

// Adapt returns pose expressed in target. A pose already in target is
// returned unchanged without consulting the lookup. If ctx itself ends, its
// error is returned unwrapped so shutdown is not mistaken for a transform
// failure.
func (a *Adapter) Adapt(ctx context.Context, pose geom.StampedPose, target string) (geom.StampedPose, error) {
	if pose.FrameID == target {
		return pose, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	tf, err := a.lookup.LookupTransform(lookupCtx, target, pose.FrameID)
	if err != nil {
		if ctx.Err() != nil {
			return geom.StampedPose{}, ctx.Err()
		}
		return geom.StampedPose{}, &TransformError{Target: target, Source: pose.FrameID, Err: err}
	}

	out := pose
	out.FrameID = target
	out.Pose = tf.Apply(pose.Pose)
	return out, nil
}
