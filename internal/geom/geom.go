// Package geom holds the pose types shared by the waypoint follower and the
// small amount of rigid-body math needed to move them between frames.
//
// Coordinate convention follows the navigation stack: X forward, Y left,
// Z up, yaw measured counter-clockwise about +Z.
package geom

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Point is a position in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an orientation. The zero value is not a valid rotation; use
// Identity.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity is the no-rotation quaternion.
var Identity = Quaternion{W: 1}

// Pose is a position and orientation.
type Pose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// StampedPose is a pose expressed in a named frame. Covariance is the
// row-major 6x6 uncertainty carried by pose-with-covariance inputs; it is
// kept for completeness and not interpreted.
type StampedPose struct {
	FrameID    string      `json:"frame_id"`
	Stamp      time.Time   `json:"stamp"`
	Pose       Pose        `json:"pose"`
	Covariance [36]float64 `json:"covariance"`
}

// PoseArray is the visualization message: every pose shares one frame.
type PoseArray struct {
	FrameID string `json:"frame_id"`
	Poses   []Pose `json:"poses"`
}

func (p Point) vec() r3.Vec { return r3.Vec{X: p.X, Y: p.Y, Z: p.Z} }

func pointFromVec(v r3.Vec) Point { return Point{X: v.X, Y: v.Y, Z: v.Z} }

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func quaternionFromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Norm returns the quaternion magnitude.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.number())
}

// Normalized returns q scaled to unit length. A zero quaternion is returned
// as Identity.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return Identity
	}
	return quaternionFromNumber(quat.Scale(1/n, q.number()))
}

// Mul returns the Hamilton product q*o (apply o, then q).
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return quaternionFromNumber(quat.Mul(q.number(), o.number()))
}

// Conj returns the conjugate, which is the inverse of a unit quaternion.
func (q Quaternion) Conj() Quaternion {
	return quaternionFromNumber(quat.Conj(q.number()))
}

// Rotate applies the rotation to p.
func (q Quaternion) Rotate(p Point) Point {
	rot := r3.Rotation(q.Normalized().number())
	return pointFromVec(rot.Rotate(p.vec()))
}

// Yaw returns the heading in radians in (-pi, pi].
func (q Quaternion) Yaw() float64 {
	u := q.Normalized()
	siny := 2 * (u.W*u.Z + u.X*u.Y)
	cosy := 1 - 2*(u.Y*u.Y+u.Z*u.Z)
	return math.Atan2(siny, cosy)
}

// FromYaw builds a planar orientation.
func FromYaw(yaw float64) Quaternion {
	half := yaw / 2
	return Quaternion{Z: math.Sin(half), W: math.Cos(half)}
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return r3.Norm(r3.Sub(a.vec(), b.vec()))
}

// PlanarDistance returns the distance between two points ignoring Z.
func PlanarDistance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// AngleDiff returns the absolute smallest angle between two headings.
func AngleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return math.Abs(d)
}

// Validate reports whether the pose is usable as a goal.
func (p Pose) Validate() error {
	for name, v := range map[string]float64{
		"x": p.Position.X, "y": p.Position.Y, "z": p.Position.Z,
		"qx": p.Orientation.X, "qy": p.Orientation.Y, "qz": p.Orientation.Z, "qw": p.Orientation.W,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	if p.Orientation.Norm() < 1e-9 {
		return fmt.Errorf("orientation quaternion has zero length")
	}
	return nil
}

// String formats the pose for log lines.
func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f) yaw=%.3f", p.Position.X, p.Position.Y, p.Position.Z, p.Orientation.Yaw())
}
