package model

import "github.com/Faultbox/midgard-skel/pkg/math"

// Model is static geometry drawn in its bind pose.
type Model struct {
	Meshes    []*Mesh
	Materials []Material
}

// frameHeader sizes dst for mesh i and points it at the mesh's shared data.
func (m *Model) frameHeader(dst *MeshFrame, i int) {
	src := m.Meshes[i]
	n := len(src.Positions)

	dst.Mesh = i
	dst.TexCoords = src.TexCoords
	dst.Indices = src.Indices
	dst.Material = src.Material
	if cap(dst.Positions) < n {
		dst.Positions = make([]math.Vec3, n)
	}
	if cap(dst.Normals) < n {
		dst.Normals = make([]math.Vec3, n)
	}
	dst.Positions = dst.Positions[:n]
	dst.Normals = dst.Normals[:n]
}

// StaticFrame returns mesh i in its bind pose.
func (m *Model) StaticFrame(i int) MeshFrame {
	var f MeshFrame
	m.frameHeader(&f, i)
	copy(f.Positions, m.Meshes[i].Positions)
	copy(f.Normals, m.Meshes[i].Normals)
	return f
}

// Draw submits every mesh in its bind pose.
func (m *Model) Draw(r Renderer) {
	var b binder
	for _, mesh := range m.Meshes {
		b.submit(r, mesh.Positions, mesh.Normals, mesh.TexCoords, mesh.Indices, mesh.Material)
	}
}

// DrawMeshFrame binds the frame's material, if it has a texture, and
// submits the frame.
func (m *Model) DrawMeshFrame(r Renderer, f *MeshFrame) {
	var b binder
	b.submitFrame(r, f)
}

// binder skips Bind when consecutive submissions of one draw share a
// textured material.
type binder struct {
	bound Material
}

func (b *binder) submitFrame(r Renderer, f *MeshFrame) {
	b.submit(r, f.Positions, f.Normals, f.TexCoords, f.Indices, f.Material)
}

func (b *binder) submit(r Renderer, positions, normals []math.Vec3, uvs [][2]float32, indices []uint32, mat Material) {
	textured := mat != nil && mat.HasTexture()
	if textured && mat != b.bound {
		mat.Bind(0)
		b.bound = mat
	}
	r.Submit(Submission{
		Positions: positions,
		Normals:   normals,
		TexCoords: uvs,
		Indices:   indices,
		Material:  mat,
		Textured:  textured,
	})
}

// Bounds returns the bind-pose bounding box of all meshes.
func (m *Model) Bounds() Bounds {
	var b Bounds
	first := true
	for _, mesh := range m.Meshes {
		for _, p := range mesh.Positions {
			if first {
				b.Min, b.Max = p, p
				first = false
				continue
			}
			b.Min = math.Vec3{X: min(b.Min.X, p.X), Y: min(b.Min.Y, p.Y), Z: min(b.Min.Z, p.Z)}
			b.Max = math.Vec3{X: max(b.Max.X, p.X), Y: max(b.Max.Y, p.Y), Z: max(b.Max.Z, p.Z)}
		}
	}
	return b
}

// AnimatedModel is a model with a skeleton and animation clips. It keeps
// no playback state; callers pass the clip and time on every call.
type AnimatedModel struct {
	Model
	Skeleton   *Hierarchy
	Animations *TrackStore
}

// DrawFrame evaluates clip at time t, skins every mesh and submits it.
func (m *AnimatedModel) DrawFrame(r Renderer, clip int, t float64) {
	pose := m.CreateFrame(clip, t)
	var f MeshFrame
	var b binder
	for i := range m.Meshes {
		m.ComputeMeshFrameInto(&f, i, pose)
		b.submitFrame(r, &f)
	}
}

// Clone returns a model that shares the read-only skeleton, clips, meshes
// and materials but owns its mesh and material lists.
func (m *AnimatedModel) Clone() *AnimatedModel {
	c := *m
	c.Meshes = append([]*Mesh(nil), m.Meshes...)
	c.Materials = append([]Material(nil), m.Materials...)
	return &c
}
