package math

import (
	"math"
	"testing"
)

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func vecNear(a, b Vec3, eps float32) bool {
	return abs(a.X-b.X) < eps && abs(a.Y-b.Y) < eps && abs(a.Z-b.Z) < eps
}

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestMulOrder(t *testing.T) {
	// T * S applies the scale first.
	m := Translate(10, 0, 0).Mul(Scale(2, 2, 2))
	got := m.TransformPoint(Vec3{1, 1, 1})
	want := Vec3{12, 2, 2}
	if got != want {
		t.Errorf("T*S point: got %v, want %v", got, want)
	}
}

func TestTransformPoint(t *testing.T) {
	m := Translate(10, 20, 30)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestTransformDirectionIgnoresTranslation(t *testing.T) {
	m := Translate(10, 20, 30)
	d := m.TransformDirection(Vec3{0, 1, 0})
	if d != (Vec3{0, 1, 0}) {
		t.Errorf("TransformDirection: got %v, want (0,1,0)", d)
	}
}

func TestRotateY(t *testing.T) {
	m := RotateY(float32(math.Pi / 2))
	got := m.TransformPoint(Vec3{1, 0, 0})
	if !vecNear(got, Vec3{0, 0, -1}, 1e-5) {
		t.Errorf("RotateY(90) of +X: got %v, want (0,0,-1)", got)
	}
}

func TestInverse(t *testing.T) {
	m := Translate(1, 2, 3).Mul(RotateY(0.5)).Mul(Scale(2, 3, 4))
	got := m.Mul(m.Inverse())
	if !got.ApproxEqual(Identity(), 1e-5) {
		t.Errorf("M * M^-1 should be identity, got %v", got)
	}
}

func TestApproxEqualIsAbsolute(t *testing.T) {
	a := Identity()
	b := a
	b[12] = 2.4e-7
	b[0] = 1 + 5e-6

	if !a.ApproxEqual(b, 1e-5) {
		t.Error("differences below eps around zero should compare equal")
	}
	b[13] = 2e-5
	if a.ApproxEqual(b, 1e-5) {
		t.Error("difference above eps should not compare equal")
	}
}

func TestInverseSingular(t *testing.T) {
	var zero Mat4
	if zero.Inverse() != Identity() {
		t.Error("inverse of a singular matrix should be identity")
	}
}

func TestComposeDecompose(t *testing.T) {
	tests := []struct {
		name string
		t    Vec3
		r    Quat
		s    Vec3
	}{
		{"identity", Vec3{}, QuatIdentity(), Vec3{1, 1, 1}},
		{"translate", Vec3{1, -2, 3}, QuatIdentity(), Vec3{1, 1, 1}},
		{"rotate", Vec3{}, QuatFromAxisAngle(Vec3{0, 0, 1}, 1.2), Vec3{1, 1, 1}},
		{"all", Vec3{4, 5, 6}, QuatFromAxisAngle(Vec3{1, 0, 0}, -0.4), Vec3{2, 3, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compose(tt.t, tt.r, tt.s)
			gt, gr, gs := m.Decompose()
			if !vecNear(gt, tt.t, 1e-5) {
				t.Errorf("translation: got %v, want %v", gt, tt.t)
			}
			if !vecNear(gs, tt.s, 1e-4) {
				t.Errorf("scale: got %v, want %v", gs, tt.s)
			}
			if abs(abs(gr.Dot(tt.r))-1) > 1e-4 {
				t.Errorf("rotation: got %v, want %v", gr, tt.r)
			}
			if back := Compose(gt, gr, gs); !back.ApproxEqual(m, 1e-4) {
				t.Errorf("recompose: got %v, want %v", back, m)
			}
		})
	}
}

func TestDecomposeMirror(t *testing.T) {
	m := Scale(1, -1, 1)
	gt, gr, gs := m.Decompose()
	if back := Compose(gt, gr, gs); !back.ApproxEqual(m, 1e-5) {
		t.Errorf("mirror recompose: got %v, want %v", back, m)
	}
}

func TestAddScaled(t *testing.T) {
	a := Translate(0, 0, 0)
	b := Translate(0, 10, 0)
	m := Mat4{}.AddScaled(a, 0.5).AddScaled(b, 0.5)
	got := m.TransformPoint(Vec3{1, 2, 3})
	if !vecNear(got, Vec3{1, 7, 3}, 1e-6) {
		t.Errorf("blended point: got %v, want (1,7,3)", got)
	}
}

func TestPerspective(t *testing.T) {
	m := Perspective(float32(math.Pi/4), 1, 0.1, 100)
	if m[11] != -1 {
		t.Errorf("Perspective m[11] should be -1, got %f", m[11])
	}
}

func TestLookAt(t *testing.T) {
	m := LookAt(Vec3{0, 0, 5}, Vec3{}, Vec3{0, 1, 0})
	got := m.TransformPoint(Vec3{})
	if !vecNear(got, Vec3{0, 0, -5}, 1e-5) {
		t.Errorf("origin in view space: got %v, want (0,0,-5)", got)
	}
}

func TestFromMat3x3(t *testing.T) {
	m := FromMat3x3([9]float32{2, 0, 0, 0, 3, 0, 0, 0, 4})
	if m != Scale(2, 3, 4) {
		t.Errorf("FromMat3x3: got %v", m)
	}
}

func TestNormalMatrix(t *testing.T) {
	m := Scale(2, 1, 1)
	// The normal of the plane x = y scales inversely.
	n := m.NormalMatrix().TransformDirection(Vec3{1, -1, 0}).Normalize()
	want := Vec3{1, -2, 0}.Normalize()
	if !vecNear(n, want, 1e-5) {
		t.Errorf("NormalMatrix: got %v, want %v", n, want)
	}
}
