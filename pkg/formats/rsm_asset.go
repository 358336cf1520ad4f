package formats

import (
	"path/filepath"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/Faultbox/midgard-skel/pkg/math"
)

// RSMOriginBone is the synthetic root that carries the RSM to GL axis flip.
const RSMOriginBone = "rsm_origin"

// RSMDefaultClip names the single clip of an animated RSM model.
const RSMDefaultClip = "default"

// RSMToAsset converts a parsed RSM model into an Asset.
//
// Every node becomes a bone parented to its named parent, or to a synthetic
// origin bone that flips Y. Node geometry is pre-transformed into model
// space and rigidly weighted to its bone, one mesh per (node, texture).
// dir is the directory texture names are resolved against.
func RSMToAsset(rsm *RSM, dir string) (*Asset, error) {
	asset := &Asset{}

	asset.Bones = make([]BoneDef, len(rsm.Nodes)+1)
	asset.Bones[0] = BoneDef{
		Name:   RSMOriginBone,
		Parent: -1,
		Bind:   math.Scale(1, -1, 1),
	}
	for i := range rsm.Nodes {
		node := &rsm.Nodes[i]
		parent := 0
		if node.Parent != "" && node.Parent != node.Name {
			if p := rsm.NodeIndex(node.Parent); p >= 0 {
				parent = p + 1
			}
		}
		t, r, s := rsmBindTRS(node)
		asset.Bones[i+1] = BoneDef{
			Name:   node.Name,
			Parent: parent,
			Bind:   math.Compose(t, r, s),
		}
	}

	world, err := WorldBinds(asset.Bones)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "resolving RSM node hierarchy")
	}

	asset.Materials = make([]MaterialDef, len(rsm.Textures))
	for i, name := range rsm.Textures {
		asset.Materials[i] = MaterialDef{
			Name: name,
			Textures: []TextureRef{{
				URI:  name,
				Path: filepath.Join(dir, filepath.FromSlash(name)),
			}},
		}
	}

	smooth := rsm.Shading != RSMShadingFlat
	for i := range rsm.Nodes {
		node := &rsm.Nodes[i]
		m := world[i+1].
			Mul(math.Translate(node.Offset[0], node.Offset[1], node.Offset[2])).
			Mul(math.FromMat3x3(node.Matrix))
		asset.Meshes = append(asset.Meshes, buildRSMNodeMeshes(node, i+1, m, len(rsm.Textures), smooth)...)
	}
	if len(asset.Meshes) == 0 {
		return nil, ErrNoGeometry
	}

	if rsm.HasAnimation() {
		asset.Clips = []ClipDef{buildRSMClip(rsm)}
	}

	return asset, nil
}

// rsmBindTRS returns the node's rest components. The earliest rotation key
// replaces the axis-angle rotation; the earliest scale key multiplies the
// node scale.
func rsmBindTRS(node *RSMNode) (math.Vec3, math.Quat, math.Vec3) {
	t := math.Vec3From(node.Position)

	r := math.QuatIdentity()
	if len(node.RotKeys) > 0 {
		first := node.RotKeys[0]
		for _, k := range node.RotKeys[1:] {
			if k.Frame < first.Frame {
				first = k
			}
		}
		r = math.QuatFrom(first.Quaternion).Normalize()
	} else if node.RotAngle != 0 {
		if axis := math.Vec3From(node.RotAxis); axis.Length() > 1e-6 {
			r = math.QuatFromAxisAngle(axis.Normalize(), node.RotAngle)
		}
	}

	s := math.Vec3From(node.Scale)
	if len(node.ScaleKeys) > 0 {
		first := node.ScaleKeys[0]
		for _, k := range node.ScaleKeys[1:] {
			if k.Frame < first.Frame {
				first = k
			}
		}
		s = s.Mul(math.Vec3From(first.Scale))
	}
	return t, r, s
}

type smoothKey struct {
	pos   [3]int32
	group int32
	back  bool
}

// rsmMeshBuilder accumulates one texture group of a node.
type rsmMeshBuilder struct {
	mesh MeshDef
	keys []smoothKey
}

func buildRSMNodeMeshes(node *RSMNode, bone int, m math.Mat4, textureCount int, smooth bool) []MeshDef {
	var order []int
	groups := make(map[int]*rsmMeshBuilder)

	reverse := mat3Det(m) < 0

	for _, face := range node.Faces {
		valid := true
		for _, vid := range face.VertexIDs {
			if int(vid) >= len(node.Vertices) {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}

		var corners [3]math.Vec3
		var uvs [3][2]float32
		for j := 0; j < 3; j++ {
			corners[j] = m.TransformPoint(math.Vec3From(node.Vertices[face.VertexIDs[j]]))
			if tid := int(face.TexCoordIDs[j]); tid < len(node.TexCoords) {
				uvs[j] = [2]float32{node.TexCoords[tid].U, node.TexCoords[tid].V}
			}
		}
		if reverse {
			corners[0], corners[2] = corners[2], corners[0]
			uvs[0], uvs[2] = uvs[2], uvs[0]
		}

		normal := corners[1].Sub(corners[0]).Cross(corners[2].Sub(corners[0]))
		if normal.Length() < 1e-5 {
			continue
		}
		normal = normal.Normalize()

		texIdx := -1
		if int(face.TextureID) < len(node.TextureIDs) {
			texIdx = int(node.TextureIDs[face.TextureID])
		}
		if texIdx >= textureCount {
			texIdx = -1
		}

		b, ok := groups[texIdx]
		if !ok {
			b = &rsmMeshBuilder{mesh: MeshDef{Name: node.Name, Material: texIdx}}
			groups[texIdx] = b
			order = append(order, texIdx)
		}

		b.addTriangle(corners, uvs, normal, bone, face.SmoothGroup, false)
		if face.TwoSide != 0 {
			b.addTriangle(
				[3]math.Vec3{corners[2], corners[1], corners[0]},
				[3][2]float32{uvs[2], uvs[1], uvs[0]},
				normal.Scale(-1), bone, face.SmoothGroup, true)
		}
	}

	meshes := make([]MeshDef, 0, len(order))
	for _, texIdx := range order {
		b := groups[texIdx]
		if smooth {
			b.smoothNormals()
		}
		meshes = append(meshes, b.mesh)
	}
	return meshes
}

func (b *rsmMeshBuilder) addTriangle(corners [3]math.Vec3, uvs [3][2]float32, normal math.Vec3, bone int, group int32, back bool) {
	const epsilon float32 = 0.001
	for j := 0; j < 3; j++ {
		v := VertexDef{Position: corners[j], Normal: normal, UV: uvs[j]}
		v.Bones[0] = bone
		v.Weights[0] = 1
		b.mesh.Indices = append(b.mesh.Indices, uint32(len(b.mesh.Vertices)))
		b.mesh.Vertices = append(b.mesh.Vertices, v)
		b.keys = append(b.keys, smoothKey{
			pos: [3]int32{
				int32(corners[j].X / epsilon),
				int32(corners[j].Y / epsilon),
				int32(corners[j].Z / epsilon),
			},
			group: group,
			back:  back,
		})
	}
}

// smoothNormals averages normals of corners that share a position, a
// smoothing group and a facing.
func (b *rsmMeshBuilder) smoothNormals() {
	shared := make(map[smoothKey][]int)
	for i, k := range b.keys {
		shared[k] = append(shared[k], i)
	}
	for _, idxs := range shared {
		if len(idxs) < 2 {
			continue
		}
		var sum math.Vec3
		for _, i := range idxs {
			sum = sum.Add(b.mesh.Vertices[i].Normal)
		}
		if sum.Length() < 1e-6 {
			continue
		}
		avg := sum.Normalize()
		for _, i := range idxs {
			b.mesh.Vertices[i].Normal = avg
		}
	}
}

func buildRSMClip(rsm *RSM) ClipDef {
	clip := ClipDef{
		Name:     RSMDefaultClip,
		Duration: float64(rsm.AnimLength) / 1000,
	}

	var last float64
	for i := range rsm.Nodes {
		node := &rsm.Nodes[i]
		if !node.HasKeys() {
			continue
		}
		ch := ChannelDef{Bone: i + 1}

		for _, k := range node.PosKeys {
			ch.Translations = append(ch.Translations, Vec3Key{
				Time:  rsmKeyTime(k.Frame),
				Value: math.Vec3From(k.Position),
			})
		}
		for _, k := range node.RotKeys {
			ch.Rotations = append(ch.Rotations, QuatKey{
				Time:  rsmKeyTime(k.Frame),
				Value: math.QuatFrom(k.Quaternion).Normalize(),
			})
		}
		base := math.Vec3From(node.Scale)
		for _, k := range node.ScaleKeys {
			ch.Scales = append(ch.Scales, Vec3Key{
				Time:  rsmKeyTime(k.Frame),
				Value: base.Mul(math.Vec3From(k.Scale)),
			})
		}

		sort.SliceStable(ch.Translations, func(a, b int) bool { return ch.Translations[a].Time < ch.Translations[b].Time })
		sort.SliceStable(ch.Rotations, func(a, b int) bool { return ch.Rotations[a].Time < ch.Rotations[b].Time })
		sort.SliceStable(ch.Scales, func(a, b int) bool { return ch.Scales[a].Time < ch.Scales[b].Time })

		for _, t := range []float64{lastVec3Time(ch.Translations), lastQuatTime(ch.Rotations), lastVec3Time(ch.Scales)} {
			if t > last {
				last = t
			}
		}
		clip.Channels = append(clip.Channels, ch)
	}

	if clip.Duration <= 0 {
		clip.Duration = last
	}
	return clip
}

func rsmKeyTime(frame int32) float64 {
	return float64(frame) / 1000
}

func lastVec3Time(keys []Vec3Key) float64 {
	if len(keys) == 0 {
		return 0
	}
	return keys[len(keys)-1].Time
}

func lastQuatTime(keys []QuatKey) float64 {
	if len(keys) == 0 {
		return 0
	}
	return keys[len(keys)-1].Time
}

func mat3Det(m math.Mat4) float32 {
	return m[0]*(m[5]*m[10]-m[9]*m[6]) -
		m[4]*(m[1]*m[10]-m[9]*m[2]) +
		m[8]*(m[1]*m[6]-m[5]*m[2])
}
