// Package formats decodes model files into a format-neutral Asset.
package formats

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/Faultbox/midgard-skel/pkg/math"
)

// Decoder errors shared by every format.
var (
	ErrUnsupportedFormat = errors.New("unsupported model format")
	ErrMissingData       = errors.New("missing or inconsistent model data")
	ErrNoGeometry        = errors.New("model has no geometry")
)

// MaxInfluences is the number of bone influences stored per vertex.
const MaxInfluences = 4

// Asset is a decoded model: bones, meshes, materials and animation clips.
// Indices between the slices are plain ints; -1 means "none".
type Asset struct {
	Bones     []BoneDef
	Meshes    []MeshDef
	Materials []MaterialDef
	Clips     []ClipDef
}

// BoneDef declares one bone. Parent may reference a later bone; ordering is
// fixed up when the hierarchy is built.
type BoneDef struct {
	Name   string
	Parent int // -1 for roots

	// Bind is the rest transform relative to the parent.
	Bind math.Mat4

	// InverseBind maps model space to bone space at rest. When
	// HasInverseBind is false it is derived from the bind pose.
	InverseBind    math.Mat4
	HasInverseBind bool
}

// VertexDef is a bind-pose vertex with up to MaxInfluences bone weights.
// A zero weight marks an unused slot.
type VertexDef struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       [2]float32
	Bones    [MaxInfluences]int
	Weights  [MaxInfluences]float32
}

// MeshDef is an indexed triangle list.
type MeshDef struct {
	Name     string
	Vertices []VertexDef
	Indices  []uint32
	Material int // index into Asset.Materials, -1 for none
}

// TextureRef points at texture data. Embedded textures carry Data;
// external ones carry a Path resolved against the model's directory.
type TextureRef struct {
	URI      string
	Path     string
	MimeType string
	Data     []byte
}

// MaterialDef describes a surface. Only diffuse textures are kept.
type MaterialDef struct {
	Name     string
	Textures []TextureRef
}

// Vec3Key is a translation or scale keyframe.
type Vec3Key struct {
	Time  float64 // seconds
	Value math.Vec3
}

// QuatKey is a rotation keyframe.
type QuatKey struct {
	Time  float64 // seconds
	Value math.Quat
}

// ChannelDef holds the three independent tracks of one bone.
type ChannelDef struct {
	Bone         int
	Translations []Vec3Key
	Rotations    []QuatKey
	Scales       []Vec3Key
}

// ClipDef is a named animation.
type ClipDef struct {
	Name     string
	Duration float64 // seconds
	Channels []ChannelDef
}

// ParseFile decodes a model file, choosing the decoder by extension.
func ParseFile(path string) (*Asset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		return ParseGLTFFile(path)
	case ".rsm":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "reading RSM file")
		}
		rsm, err := ParseRSM(data)
		if err != nil {
			return nil, err
		}
		return RSMToAsset(rsm, filepath.Dir(path))
	default:
		return nil, pkgerrors.Wrapf(ErrUnsupportedFormat, "extension %q", filepath.Ext(path))
	}
}

// Parse decodes model data already in memory, such as a file read from an
// archive. The name selects the decoder and anchors relative texture paths.
// glTF files must be self-contained (.glb or data URIs).
func Parse(name string, data []byte) (*Asset, error) {
	dir := filepath.Dir(filepath.FromSlash(name))
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gltf", ".glb":
		return ParseGLTF(data, dir)
	case ".rsm":
		rsm, err := ParseRSM(data)
		if err != nil {
			return nil, err
		}
		return RSMToAsset(rsm, dir)
	default:
		return nil, pkgerrors.Wrapf(ErrUnsupportedFormat, "extension %q", filepath.Ext(name))
	}
}

// VertexCount returns the total number of vertices across all meshes.
func (a *Asset) VertexCount() int {
	total := 0
	for i := range a.Meshes {
		total += len(a.Meshes[i].Vertices)
	}
	return total
}

// Validate checks cross references between bones, meshes, materials and clips.
// Hierarchy shape (cycles, ordering) is checked by the model builder.
func (a *Asset) Validate() error {
	n := len(a.Bones)
	for i, b := range a.Bones {
		if b.Parent < -1 || b.Parent >= n {
			return pkgerrors.Wrapf(ErrMissingData, "bone %d: parent %d out of range", i, b.Parent)
		}
	}
	for mi := range a.Meshes {
		m := &a.Meshes[mi]
		if m.Material < -1 || m.Material >= len(a.Materials) {
			return pkgerrors.Wrapf(ErrMissingData, "mesh %q: material %d out of range", m.Name, m.Material)
		}
		for vi := range m.Vertices {
			v := &m.Vertices[vi]
			for k := 0; k < MaxInfluences; k++ {
				if v.Weights[k] == 0 {
					continue
				}
				if v.Bones[k] < 0 || v.Bones[k] >= n {
					return pkgerrors.Wrapf(ErrMissingData, "mesh %q vertex %d: bone %d not declared", m.Name, vi, v.Bones[k])
				}
			}
		}
		for _, idx := range m.Indices {
			if int(idx) >= len(m.Vertices) {
				return pkgerrors.Wrapf(ErrMissingData, "mesh %q: index %d out of range", m.Name, idx)
			}
		}
	}
	for _, c := range a.Clips {
		for _, ch := range c.Channels {
			if ch.Bone < 0 || ch.Bone >= n {
				return pkgerrors.Wrapf(ErrMissingData, "clip %q: channel bone %d not declared", c.Name, ch.Bone)
			}
		}
	}
	return nil
}
