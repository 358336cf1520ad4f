package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("QuatIdentity: got %+v", q)
	}
	if q.ToMat4() != Identity() {
		t.Error("identity quaternion should produce identity matrix")
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{0, 1, 0}, float32(math.Pi/2))
	expected := float32(math.Sqrt(2) / 2)
	if abs(q.Y-expected) > 0.001 || abs(q.W-expected) > 0.001 {
		t.Errorf("QuatFromAxisAngle: got %+v", q)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}.Normalize()
	if abs(q.Length()-1) > 1e-6 {
		t.Errorf("normalized length: got %f", q.Length())
	}
	if (Quat{}).Normalize() != QuatIdentity() {
		t.Error("zero quaternion should normalize to identity")
	}
}

func TestQuatSlerpEndpoints(t *testing.T) {
	a := QuatIdentity()
	b := QuatFromAxisAngle(Vec3{0, 0, 1}, 1.5)

	if got := a.Slerp(b, 0); abs(got.Dot(a)-1) > 1e-5 {
		t.Errorf("Slerp(0): got %+v, want %+v", got, a)
	}
	if got := a.Slerp(b, 1); abs(got.Dot(b)-1) > 1e-5 {
		t.Errorf("Slerp(1): got %+v, want %+v", got, b)
	}
}

func TestQuatSlerpMidpoint(t *testing.T) {
	a := QuatIdentity()
	b := QuatFromAxisAngle(Vec3{0, 1, 0}, float32(math.Pi/2))
	mid := a.Slerp(b, 0.5)
	want := QuatFromAxisAngle(Vec3{0, 1, 0}, float32(math.Pi/4))
	if abs(mid.Dot(want)-1) > 1e-5 {
		t.Errorf("Slerp(0.5): got %+v, want %+v", mid, want)
	}
}

func TestQuatSlerpUnitLength(t *testing.T) {
	pairs := [][2]Quat{
		{QuatIdentity(), QuatFromAxisAngle(Vec3{1, 0, 0}, 3)},
		{QuatFromAxisAngle(Vec3{0, 1, 0}, -2), QuatFromAxisAngle(Vec3{0, 0, 1}, 2.5)},
		{QuatIdentity(), QuatFromAxisAngle(Vec3{0, 1, 0}, 1e-4)},
	}
	for _, p := range pairs {
		for i := 0; i <= 10; i++ {
			q := p[0].Slerp(p[1], float32(i)/10)
			if abs(q.Length()-1) > 1e-5 {
				t.Errorf("Slerp length at %d/10: got %f", i, q.Length())
			}
		}
	}
}

func TestQuatSlerpShortestArc(t *testing.T) {
	a := QuatFromAxisAngle(Vec3{0, 0, 1}, 0.2)
	b := QuatFromAxisAngle(Vec3{0, 0, 1}, 0.4)
	neg := Quat{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}

	got := a.Slerp(neg, 0.5)
	want := QuatFromAxisAngle(Vec3{0, 0, 1}, 0.3)
	if abs(abs(got.Dot(want))-1) > 1e-5 {
		t.Errorf("Slerp should take the short way: got %+v, want %+v", got, want)
	}
}

func TestQuatMul(t *testing.T) {
	a := QuatFromAxisAngle(Vec3{0, 1, 0}, 0.3)
	b := QuatFromAxisAngle(Vec3{0, 1, 0}, 0.5)
	got := a.Mul(b)
	want := QuatFromAxisAngle(Vec3{0, 1, 0}, 0.8)
	if abs(got.Dot(want)-1) > 1e-5 {
		t.Errorf("Mul: got %+v, want %+v", got, want)
	}
}

func TestVec3Lerp(t *testing.T) {
	a := Vec3{0, 0, 0}
	b := Vec3{10, 20, 30}
	if got := a.Lerp(b, 0.25); got != (Vec3{2.5, 5, 7.5}) {
		t.Errorf("Lerp: got %v", got)
	}
}

func TestVec3CrossNormalize(t *testing.T) {
	c := Vec3{1, 0, 0}.Cross(Vec3{0, 1, 0})
	if c != (Vec3{0, 0, 1}) {
		t.Errorf("Cross: got %v", c)
	}
	n := Vec3{3, 0, 4}.Normalize()
	if !vecNear(n, Vec3{0.6, 0, 0.8}, 1e-6) {
		t.Errorf("Normalize: got %v", n)
	}
	if (Vec3{}).Normalize() != (Vec3{}) {
		t.Error("zero vector should stay zero")
	}
}
