package geom

import (
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestYaw_RoundTrip(t *testing.T) {
	tests := []float64{0, 0.5, math.Pi / 2, -math.Pi / 2, 3.0, -3.0}
	for _, yaw := range tests {
		got := FromYaw(yaw).Yaw()
		if !near(got, yaw) {
			t.Errorf("FromYaw(%f).Yaw() = %f", yaw, got)
		}
	}
}

func TestQuaternion_NormalizedZero(t *testing.T) {
	if got := (Quaternion{}).Normalized(); got != Identity {
		t.Errorf("Normalized() of zero = %+v, want identity", got)
	}
}

func TestQuaternion_Rotate(t *testing.T) {
	q := FromYaw(math.Pi / 2)
	got := q.Rotate(Point{X: 1})
	if !near(got.X, 0) || !near(got.Y, 1) || !near(got.Z, 0) {
		t.Errorf("Rotate((1,0,0)) by 90deg = %+v, want (0,1,0)", got)
	}
}

func TestDistance(t *testing.T) {
	a := Point{X: 1, Y: 2, Z: 0}
	b := Point{X: 4, Y: 6, Z: 12}
	if got := Distance(a, b); !near(got, 13) {
		t.Errorf("Distance = %f, want 13", got)
	}
	if got := PlanarDistance(a, b); !near(got, 5) {
		t.Errorf("PlanarDistance = %f, want 5", got)
	}
}

func TestAngleDiff(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{0.1, -0.1, 0.2},
		{math.Pi - 0.1, -math.Pi + 0.1, 0.2},
		{3 * math.Pi, 0, math.Pi},
	}
	for _, tt := range tests {
		if got := AngleDiff(tt.a, tt.b); !near(got, tt.want) {
			t.Errorf("AngleDiff(%f, %f) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPose_Validate(t *testing.T) {
	good := Pose{Orientation: Identity}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := (Pose{}).Validate(); err == nil {
		t.Error("expected error for zero quaternion")
	}
	bad := Pose{Position: Point{X: math.NaN()}, Orientation: Identity}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for NaN position")
	}
}

func TestTransform_ApplyAndInverse(t *testing.T) {
	tf := Transform{Translation: Point{X: 2, Y: 1}, Rotation: FromYaw(math.Pi / 2)}
	p := Pose{Position: Point{X: 1}, Orientation: Identity}

	got := tf.Apply(p)
	if !near(got.Position.X, 2) || !near(got.Position.Y, 2) {
		t.Errorf("Apply position = %+v, want (2,2)", got.Position)
	}
	if !near(got.Orientation.Yaw(), math.Pi/2) {
		t.Errorf("Apply yaw = %f, want pi/2", got.Orientation.Yaw())
	}

	back := tf.Inverse().Apply(got)
	if !near(back.Position.X, 1) || !near(back.Position.Y, 0) || !near(back.Orientation.Yaw(), 0) {
		t.Errorf("Inverse().Apply = %v, want original", back)
	}
}

func TestTransform_Compose(t *testing.T) {
	a := Transform{Translation: Point{X: 1}, Rotation: FromYaw(math.Pi / 2)}
	b := Transform{Translation: Point{Y: 3}, Rotation: FromYaw(-math.Pi / 4)}
	p := Pose{Position: Point{X: 0.5, Y: -0.25, Z: 1}, Orientation: FromYaw(0.3)}

	want := a.Apply(b.Apply(p))
	got := a.Compose(b).Apply(p)
	if Distance(got.Position, want.Position) > 1e-6 || AngleDiff(got.Orientation.Yaw(), want.Orientation.Yaw()) > 1e-6 {
		t.Errorf("Compose = %v, want %v", got, want)
	}
}

func TestTransform_Validate(t *testing.T) {
	if err := IdentityTransform.Validate(); err != nil {
		t.Errorf("identity Validate() = %v", err)
	}
	if err := (Transform{}).Validate(); err == nil {
		t.Error("expected error for zero rotation")
	}
	m := IdentityTransform.Matrix()
	if math.Abs(m[0]-1) > eps || m[15] != 1 {
		t.Errorf("identity matrix = %v", m)
	}
}
