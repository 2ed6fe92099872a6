package geom

import (
	"fmt"
	"math"
)

// Transform is a rigid transform that maps coordinates expressed in a child
// frame into its parent frame: p_parent = Rotation * p_child + Translation.
type Transform struct {
	Translation Point      `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// IdentityTransform leaves poses unchanged.
var IdentityTransform = Transform{Rotation: Identity}

// Apply maps a pose from the child frame into the parent frame.
func (t Transform) Apply(p Pose) Pose {
	rot := t.Rotation.Normalized()
	pos := rot.Rotate(p.Position)
	return Pose{
		Position: Point{
			X: pos.X + t.Translation.X,
			Y: pos.Y + t.Translation.Y,
			Z: pos.Z + t.Translation.Z,
		},
		Orientation: rot.Mul(p.Orientation.Normalized()).Normalized(),
	}
}

// Inverse returns the transform mapping parent coordinates into the child.
func (t Transform) Inverse() Transform {
	inv := t.Rotation.Normalized().Conj()
	tr := inv.Rotate(t.Translation)
	return Transform{
		Translation: Point{X: -tr.X, Y: -tr.Y, Z: -tr.Z},
		Rotation:    inv,
	}
}

// Compose returns the transform equivalent to applying o first, then t.
func (t Transform) Compose(o Transform) Transform {
	p := t.Apply(Pose{Position: o.Translation, Orientation: o.Rotation})
	return Transform{Translation: p.Position, Rotation: p.Orientation}
}

// Matrix returns the transform as a 4x4 row-major homogeneous matrix.
func (t Transform) Matrix() [16]float64 {
	q := t.Rotation.Normalized()
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return [16]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w), t.Translation.X,
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w), t.Translation.Y,
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y), t.Translation.Z,
		0, 0, 0, 1,
	}
}

// matrixTolerance bounds the determinant error accepted by Validate.
const matrixTolerance = 0.01

// Validate checks that the transform describes a proper rigid motion.
func (t Transform) Validate() error {
	if err := (Pose{Position: t.Translation, Orientation: t.Rotation}).Validate(); err != nil {
		return err
	}
	m := t.Matrix()
	r00, r01, r02 := m[0], m[1], m[2]
	r10, r11, r12 := m[4], m[5], m[6]
	r20, r21, r22 := m[8], m[9], m[10]
	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > matrixTolerance {
		return fmt.Errorf("rotation determinant %.4f is not 1", det)
	}
	return nil
}
