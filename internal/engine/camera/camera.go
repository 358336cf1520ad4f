// Package camera provides camera implementations for 3D rendering.
package camera

import (
	gomath "math"

	"github.com/Faultbox/midgard-skel/pkg/math"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	Center math.Vec3

	// Spherical coordinates
	Distance  float32
	RotationX float32 // Pitch (radians)
	RotationY float32 // Yaw (radians)

	FOV       float32 // Vertical field of view (radians)
	Near, Far float32

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32
}

// NewOrbitCamera creates a new orbit camera with default settings: a 45
// degree field of view and a 0.1 to 100 depth range.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        70,
		RotationX:       0.35,
		FOV:             45 * gomath.Pi / 180,
		Near:            0.1,
		Far:             100,
		MinDistance:     5,
		MaxDistance:     500,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// LookFrom places the camera at eye looking at center.
func (c *OrbitCamera) LookFrom(eye, center math.Vec3) {
	c.Center = center
	d := eye.Sub(center)
	c.Distance = d.Length()
	if c.Distance == 0 {
		return
	}
	c.RotationX = float32(gomath.Asin(float64(d.Y / c.Distance)))
	c.RotationY = float32(gomath.Atan2(float64(d.X), float64(d.Z)))
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	cp := gomath.Cos(float64(c.RotationX))
	return c.Center.Add(math.Vec3{
		X: c.Distance * float32(cp*gomath.Sin(float64(c.RotationY))),
		Y: c.Distance * float32(gomath.Sin(float64(c.RotationX))),
		Z: c.Distance * float32(cp*gomath.Cos(float64(c.RotationY))),
	})
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, math.Vec3{Y: 1})
}

// ProjectionMatrix returns the perspective projection for the given
// aspect ratio.
func (c *OrbitCamera) ProjectionMatrix(aspect float32) math.Mat4 {
	return math.Perspective(c.FOV, aspect, c.Near, c.Far)
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX += deltaY * c.DragSensitivity
	c.RotationX = min(max(c.RotationX, c.MinPitch), c.MaxPitch)
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = min(max(c.Distance, c.MinDistance), c.MaxDistance)
}

// FitToBounds centers the camera on a bounding box and backs off far
// enough to see it, widening the far plane if needed.
func (c *OrbitCamera) FitToBounds(center, size math.Vec3) {
	c.Center = center
	extent := max(size.X, size.Y, size.Z)
	half := float64(c.FOV) / 2
	c.Distance = float32(float64(extent) / gomath.Tan(half))
	c.Distance = min(max(c.Distance, c.MinDistance), c.MaxDistance)
	if need := c.Distance + extent*2; need > c.Far {
		c.Far = need
	}
}
