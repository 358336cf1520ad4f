// Package model holds loaded models and evaluates skeletal animation.
//
// A model is read-only after load. Per-frame state lives in caller-owned
// values: a Pose holds one world transform per bone and a MeshFrame holds
// one skinned copy of a mesh. Overriding a bone is a write to the Pose
// between CreateFrame and MeshFrame; deforming geometry is a write to the
// MeshFrame before it is drawn.
package model

import (
	"github.com/Faultbox/midgard-skel/pkg/formats"
	"github.com/Faultbox/midgard-skel/pkg/math"
)

// Material binds a surface's texture for drawing.
type Material interface {
	HasTexture() bool
	Bind(slot int)
}

// MaterialFactory creates a Material for a decoded material description.
// It may return nil for untextured materials.
type MaterialFactory func(def formats.MaterialDef) Material

// Submission is one indexed triangle list handed to a Renderer.
type Submission struct {
	Positions []math.Vec3
	Normals   []math.Vec3
	TexCoords [][2]float32
	Indices   []uint32
	Material  Material
	Textured  bool // Material was bound to slot 0
}

// Renderer consumes triangle lists.
type Renderer interface {
	Submit(s Submission)
}

// Mesh is bind-pose geometry. Slices are parallel, one entry per vertex.
type Mesh struct {
	Name      string
	Positions []math.Vec3
	Normals   []math.Vec3
	TexCoords [][2]float32
	Bones     [][formats.MaxInfluences]int
	Weights   [][formats.MaxInfluences]float32
	Indices   []uint32
	Material  Material
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

// MeshFrame is a drawable copy of one mesh. Positions and Normals belong
// to the frame and may be edited before drawing; TexCoords and Indices are
// shared with the mesh and must not be modified.
type MeshFrame struct {
	Mesh      int
	Positions []math.Vec3
	Normals   []math.Vec3
	TexCoords [][2]float32
	Indices   []uint32
	Material  Material

	skin []math.Mat4
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min, Max math.Vec3
}

// Center returns the middle of the box.
func (b Bounds) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the extent along each axis.
func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}
