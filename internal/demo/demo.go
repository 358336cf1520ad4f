// Package demo lays out and draws the four-way skeletal animation demo.
package demo

import (
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-skel/pkg/math"
	"github.com/Faultbox/midgard-skel/pkg/model"
)

// Scene is a renderer that also accepts a per-object transform.
type Scene interface {
	model.Renderer
	SetModelMatrix(m math.Mat4)
}

// Variant selects how one of the demo copies is drawn.
type Variant int

const (
	// VariantStatic draws the bind pose.
	VariantStatic Variant = iota
	// VariantAnimated plays the clip.
	VariantAnimated
	// VariantDeformMesh plays the clip and pushes one mesh along z after
	// skinning.
	VariantDeformMesh
	// VariantBoneOverride plays the clip and swings the head bone about z
	// before skinning.
	VariantBoneOverride
)

var variantNames = [...]string{"static", "animated", "deform-mesh", "bone-override"}

func (v Variant) String() string {
	if int(v) < len(variantNames) {
		return variantNames[v]
	}
	return "unknown"
}

// HeadBoneName is the bone swung by VariantBoneOverride.
const HeadBoneName = "head"

// DeformedMesh is the mesh moved by VariantDeformMesh.
const DeformedMesh = 1

// Demo draws four copies of a model on a turntable, one per Variant.
type Demo struct {
	Clip     int
	Radius   float32 // Distance of each copy from the turntable axis
	TurnRate float32 // Degrees per second

	models [4]*model.AnimatedModel
	head   int

	pose  model.Pose
	frame model.MeshFrame
}

// NewDemo prepares the four copies of m. A nil logger discards output.
func NewDemo(m *model.AnimatedModel, clip int, radius, turnRate float32, log *zap.Logger) *Demo {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Demo{
		Clip:     clip,
		Radius:   radius,
		TurnRate: turnRate,
		head:     -1,
	}
	for i := range d.models {
		d.models[i] = m.Clone()
	}

	if idx, err := m.Skeleton.BoneIndexForName(HeadBoneName); err == nil {
		d.head = idx
	} else {
		log.Info("bone override disabled", zap.Error(err))
	}
	if len(m.Meshes) <= DeformedMesh {
		log.Info("mesh deform disabled", zap.Int("meshes", len(m.Meshes)))
	}
	if clip >= m.Animations.ClipCount() {
		log.Warn("clip out of range, showing bind pose",
			zap.Int("clip", clip),
			zap.Int("clips", m.Animations.ClipCount()),
		)
	}
	return d
}

// Placement returns the world transform of copy v at wall time t:
// a turntable rotation offset by 90 degrees per copy, then a push out
// to the radius.
func (d *Demo) Placement(v Variant, t float64) math.Mat4 {
	deg := float64(d.TurnRate)*t + 90*float64(v)
	angle := float32(deg * gomath.Pi / 180)
	return math.RotateY(angle).Mul(math.Translate(d.Radius, 0, 0))
}

// Draw draws all four copies. wall drives the turntable and animTime the
// clips and effects, so playback speed can differ from wall time.
func (d *Demo) Draw(s Scene, wall, animTime float64) {
	for v := VariantStatic; v <= VariantBoneOverride; v++ {
		s.SetModelMatrix(d.Placement(v, wall))
		d.DrawVariant(s, v, animTime)
	}
}

// DrawVariant draws one copy at animation time t without placing it.
func (d *Demo) DrawVariant(r model.Renderer, v Variant, t float64) {
	m := d.models[v]

	if v == VariantStatic {
		m.Draw(r)
		return
	}

	d.pose = m.CreateFrameInto(d.pose, d.Clip, t)
	if v == VariantBoneOverride && d.head >= 0 {
		d.pose.RotateBone(d.head, math.Vec3{Z: 1}, float32(gomath.Cos(t*10)))
	}

	for i := range m.Meshes {
		m.ComputeMeshFrameInto(&d.frame, i, d.pose)
		if v == VariantDeformMesh && i == DeformedMesh {
			dz := float32(4 * (gomath.Cos(t*10) + 1))
			for k := range d.frame.Positions {
				d.frame.Positions[k].Z += dz
			}
		}
		m.DrawMeshFrame(r, &d.frame)
	}
}
