// Package lighting provides lighting utilities for 3D rendering.
package lighting

import (
	gomath "math"

	"github.com/Faultbox/midgard-skel/pkg/math"
)

// Sun is a directional light given by compass angles, the way RO map
// files store it.
type Sun struct {
	Longitude float32 // Degrees around the Y axis
	Latitude  float32 // Degrees of elevation above the horizon
}

// DefaultSun is the light used when a scene does not set one.
var DefaultSun = Sun{Longitude: 45, Latitude: 45}

// Direction returns the unit vector pointing from the scene towards the
// sun.
func (s Sun) Direction() math.Vec3 {
	lon := float64(s.Longitude) * gomath.Pi / 180
	lat := float64(s.Latitude) * gomath.Pi / 180

	return math.Vec3{
		X: float32(gomath.Cos(lat) * gomath.Sin(lon)),
		Y: float32(gomath.Sin(lat)),
		Z: float32(gomath.Cos(lat) * gomath.Cos(lon)),
	}
}

// Travel returns the direction the light travels, the negated Direction.
func (s Sun) Travel() math.Vec3 {
	return s.Direction().Scale(-1)
}
