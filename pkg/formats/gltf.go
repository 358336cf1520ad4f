package formats

import (
	"bytes"
	"fmt"
	"net/url"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/midgard-skel/pkg/math"
)

// ParseGLTFFile decodes a .gltf or .glb file. External buffers are resolved
// relative to the file.
func ParseGLTFFile(path string) (*Asset, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "opening glTF")
	}
	return GLTFToAsset(doc, filepath.Dir(path))
}

// ParseGLTF decodes glTF or GLB data held in memory.
func ParseGLTF(data []byte, dir string) (*Asset, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, pkgerrors.Wrap(err, "decoding glTF")
	}
	return GLTFToAsset(doc, dir)
}

// GLTFToAsset converts a decoded glTF document.
//
// Every node becomes a bone, so animation channels can target any node.
// Skinned primitives keep their bind-space positions and map JOINTS_0
// through the skin's joint list; other primitives are moved into model
// space and rigidly weighted to their node. The first skin that lists a
// joint provides its inverse bind matrix.
func GLTFToAsset(doc *gltf.Document, dir string) (*Asset, error) {
	asset := &Asset{}

	if err := gltfBones(doc, asset); err != nil {
		return nil, err
	}
	world, err := WorldBinds(asset.Bones)
	if err != nil {
		return nil, err
	}

	if err := gltfMaterials(doc, dir, asset); err != nil {
		return nil, err
	}

	for ni, node := range doc.Nodes {
		if node.Mesh == nil {
			continue
		}
		if int(*node.Mesh) >= len(doc.Meshes) {
			return nil, pkgerrors.Wrapf(ErrMissingData, "node %d: mesh %d", ni, *node.Mesh)
		}
		var skin *gltf.Skin
		if node.Skin != nil {
			if int(*node.Skin) >= len(doc.Skins) {
				return nil, pkgerrors.Wrapf(ErrMissingData, "node %d: skin %d", ni, *node.Skin)
			}
			skin = doc.Skins[*node.Skin]
		}

		rigid := world[ni]
		if asset.Bones[ni].HasInverseBind {
			rigid = asset.Bones[ni].InverseBind.Inverse()
		}

		mesh := doc.Meshes[*node.Mesh]
		for pi, prim := range mesh.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				continue
			}
			name := mesh.Name
			if len(mesh.Primitives) > 1 {
				name = fmt.Sprintf("%s_%d", mesh.Name, pi)
			}
			def, err := gltfPrimitive(doc, prim, skin, ni, rigid)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "mesh %q primitive %d", mesh.Name, pi)
			}
			def.Name = name
			asset.Meshes = append(asset.Meshes, def)
		}
	}
	if len(asset.Meshes) == 0 {
		return nil, ErrNoGeometry
	}

	for ai, anim := range doc.Animations {
		clip, err := gltfClip(doc, anim)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "animation %d", ai)
		}
		if clip.Name == "" {
			clip.Name = fmt.Sprintf("clip_%d", ai)
		}
		asset.Clips = append(asset.Clips, clip)
	}

	return asset, nil
}

func gltfBones(doc *gltf.Document, asset *Asset) error {
	n := len(doc.Nodes)
	asset.Bones = make([]BoneDef, n)
	for i, node := range doc.Nodes {
		asset.Bones[i] = BoneDef{Parent: -1, Bind: gltfLocal(node)}
	}
	for i, name := range uniqueNames(doc.Nodes) {
		asset.Bones[i].Name = name
	}

	for i, node := range doc.Nodes {
		for _, c := range node.Children {
			if int(c) >= n || int(c) == i {
				return pkgerrors.Wrapf(ErrMissingData, "node %d: child %d", i, c)
			}
			if asset.Bones[c].Parent != -1 {
				return pkgerrors.Wrapf(ErrMissingData, "node %d has two parents", c)
			}
			asset.Bones[c].Parent = i
		}
	}

	for si, skin := range doc.Skins {
		if skin.InverseBindMatrices == nil {
			continue
		}
		acr, err := gltfAccessor(doc, *skin.InverseBindMatrices)
		if err != nil {
			return pkgerrors.Wrapf(err, "skin %d", si)
		}
		raw, err := modeler.ReadAccessor(doc, acr, nil)
		if err != nil {
			return pkgerrors.Wrapf(err, "skin %d: inverse bind matrices", si)
		}
		mats, ok := raw.([][4][4]float32)
		if !ok || len(mats) < len(skin.Joints) {
			return pkgerrors.Wrapf(ErrMissingData, "skin %d: inverse bind matrices", si)
		}
		for k, j := range skin.Joints {
			if int(j) >= n {
				return pkgerrors.Wrapf(ErrMissingData, "skin %d: joint %d", si, j)
			}
			if asset.Bones[j].HasInverseBind {
				continue
			}
			// Accessor matrices come back indexed [row][col].
			var m math.Mat4
			for c := 0; c < 4; c++ {
				for r := 0; r < 4; r++ {
					m[c*4+r] = mats[k][r][c]
				}
			}
			asset.Bones[j].InverseBind = m
			asset.Bones[j].HasInverseBind = true
		}
	}
	return nil
}

// uniqueNames returns one name per node. Explicit names win; unnamed
// nodes get "bone_<i>" and repeats get the first free ".N" suffix.
func uniqueNames(nodes []*gltf.Node) []string {
	explicit := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		if node.Name != "" {
			explicit[node.Name] = true
		}
	}

	names := make([]string, len(nodes))
	used := make(map[string]bool, len(nodes))
	for i, node := range nodes {
		name := node.Name
		clash := used[name]
		if name == "" {
			name = fmt.Sprintf("bone_%d", i)
			clash = used[name] || explicit[name]
		}
		if clash {
			base := name
			for k := 1; ; k++ {
				name = fmt.Sprintf("%s.%d", base, k)
				if !used[name] && !explicit[name] {
					break
				}
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}

var identityMatrix = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// gltfLocal returns the node's local transform, preferring an explicit
// matrix over TRS.
func gltfLocal(node *gltf.Node) math.Mat4 {
	if node.Matrix != identityMatrix && node.Matrix != [16]float32{} {
		return math.Mat4(node.Matrix)
	}
	s := math.Vec3From(node.Scale)
	if s == (math.Vec3{}) {
		s = math.Vec3{X: 1, Y: 1, Z: 1}
	}
	return math.Compose(math.Vec3From(node.Translation), math.QuatFrom(node.Rotation).Normalize(), s)
}

func gltfAccessor(doc *gltf.Document, idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(doc.Accessors) {
		return nil, pkgerrors.Wrapf(ErrMissingData, "accessor %d", idx)
	}
	return doc.Accessors[idx], nil
}

func gltfPrimitive(doc *gltf.Document, prim *gltf.Primitive, skin *gltf.Skin, node int, rigid math.Mat4) (MeshDef, error) {
	def := MeshDef{Material: -1}
	if prim.Material != nil {
		if int(*prim.Material) >= len(doc.Materials) {
			return def, pkgerrors.Wrapf(ErrMissingData, "material %d", *prim.Material)
		}
		def.Material = int(*prim.Material)
	}

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return def, pkgerrors.Wrap(ErrMissingData, "no POSITION attribute")
	}
	acr, err := gltfAccessor(doc, posIdx)
	if err != nil {
		return def, err
	}
	positions, err := modeler.ReadPosition(doc, acr, nil)
	if err != nil {
		return def, pkgerrors.Wrap(err, "reading positions")
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		if acr, err := gltfAccessor(doc, idx); err == nil {
			normals, _ = modeler.ReadNormal(doc, acr, nil)
		}
	}
	var uvs [][2]float32
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if acr, err := gltfAccessor(doc, idx); err == nil {
			uvs, _ = modeler.ReadTextureCoord(doc, acr, nil)
		}
	}

	if prim.Indices != nil {
		acr, err := gltfAccessor(doc, *prim.Indices)
		if err != nil {
			return def, err
		}
		if def.Indices, err = modeler.ReadIndices(doc, acr, nil); err != nil {
			return def, pkgerrors.Wrap(err, "reading indices")
		}
	} else {
		def.Indices = make([]uint32, len(positions))
		for i := range def.Indices {
			def.Indices[i] = uint32(i)
		}
	}

	def.Vertices = make([]VertexDef, len(positions))
	for i, p := range positions {
		v := &def.Vertices[i]
		v.Position = math.Vec3From(p)
		if i < len(normals) {
			v.Normal = math.Vec3From(normals[i])
		}
		if i < len(uvs) {
			v.UV = uvs[i]
		}
	}
	if len(normals) < len(positions) {
		computeNormals(&def)
	}

	jointsIdx, hasJoints := prim.Attributes[gltf.JOINTS_0]
	weightsIdx, hasWeights := prim.Attributes[gltf.WEIGHTS_0]
	if skin != nil && hasJoints && hasWeights {
		jacr, err := gltfAccessor(doc, jointsIdx)
		if err != nil {
			return def, err
		}
		wacr, err := gltfAccessor(doc, weightsIdx)
		if err != nil {
			return def, err
		}
		joints, err := modeler.ReadJoints(doc, jacr, nil)
		if err != nil {
			return def, pkgerrors.Wrap(err, "reading joints")
		}
		weights, err := modeler.ReadWeights(doc, wacr, nil)
		if err != nil {
			return def, pkgerrors.Wrap(err, "reading weights")
		}
		if len(joints) < len(positions) || len(weights) < len(positions) {
			return def, pkgerrors.Wrap(ErrMissingData, "skin attributes shorter than positions")
		}
		for i := range def.Vertices {
			bones, err := remapJoints(joints[i], weights[i], skin.Joints)
			if err != nil {
				return def, pkgerrors.Wrapf(err, "vertex %d", i)
			}
			def.Vertices[i].Bones = bones
			def.Vertices[i].Weights = weights[i]
		}
		return def, nil
	}

	nm := rigid.NormalMatrix()
	for i := range def.Vertices {
		v := &def.Vertices[i]
		v.Position = rigid.TransformPoint(v.Position)
		v.Normal = nm.TransformDirection(v.Normal).Normalize()
		v.Bones[0] = node
		v.Weights[0] = 1
	}
	return def, nil
}

// remapJoints converts skin-relative joint indices into node indices.
// Slots with zero weight are left at bone 0.
func remapJoints(joints [4]uint16, weights [4]float32, skinJoints []uint32) ([MaxInfluences]int, error) {
	var bones [MaxInfluences]int
	for k := 0; k < MaxInfluences; k++ {
		if weights[k] == 0 {
			continue
		}
		if int(joints[k]) >= len(skinJoints) {
			return bones, pkgerrors.Wrapf(ErrMissingData, "joint %d not in skin", joints[k])
		}
		bones[k] = int(skinJoints[joints[k]])
	}
	return bones, nil
}

// computeNormals fills vertex normals from area-weighted face normals.
func computeNormals(def *MeshDef) {
	sums := make([]math.Vec3, len(def.Vertices))
	for i := 0; i+2 < len(def.Indices); i += 3 {
		a, b, c := def.Indices[i], def.Indices[i+1], def.Indices[i+2]
		if int(a) >= len(sums) || int(b) >= len(sums) || int(c) >= len(sums) {
			continue
		}
		p0 := def.Vertices[a].Position
		n := def.Vertices[b].Position.Sub(p0).Cross(def.Vertices[c].Position.Sub(p0))
		sums[a] = sums[a].Add(n)
		sums[b] = sums[b].Add(n)
		sums[c] = sums[c].Add(n)
	}
	for i := range def.Vertices {
		if def.Vertices[i].Normal == (math.Vec3{}) {
			def.Vertices[i].Normal = sums[i].Normalize()
		}
	}
}

func gltfMaterials(doc *gltf.Document, dir string, asset *Asset) error {
	asset.Materials = make([]MaterialDef, len(doc.Materials))
	for mi, mat := range doc.Materials {
		def := MaterialDef{Name: mat.Name}
		pbr := mat.PBRMetallicRoughness
		if pbr != nil && pbr.BaseColorTexture != nil {
			ref, ok, err := gltfTexture(doc, pbr.BaseColorTexture.Index, dir)
			if err != nil {
				return pkgerrors.Wrapf(err, "material %q", mat.Name)
			}
			if ok {
				def.Textures = append(def.Textures, ref)
			}
		}
		asset.Materials[mi] = def
	}
	return nil
}

func gltfTexture(doc *gltf.Document, texIdx uint32, dir string) (TextureRef, bool, error) {
	var ref TextureRef
	if int(texIdx) >= len(doc.Textures) {
		return ref, false, pkgerrors.Wrapf(ErrMissingData, "texture %d", texIdx)
	}
	tex := doc.Textures[texIdx]
	if tex.Source == nil {
		return ref, false, nil
	}
	if int(*tex.Source) >= len(doc.Images) {
		return ref, false, pkgerrors.Wrapf(ErrMissingData, "image %d", *tex.Source)
	}
	img := doc.Images[*tex.Source]
	ref.MimeType = img.MimeType

	switch {
	case img.BufferView != nil:
		data, err := gltfBufferView(doc, *img.BufferView)
		if err != nil {
			return ref, false, err
		}
		ref.Data = data
	case img.IsEmbeddedResource():
		data, err := img.MarshalData()
		if err != nil {
			return ref, false, pkgerrors.Wrap(err, "decoding embedded image")
		}
		ref.Data = data
	default:
		ref.URI = img.URI
		uri, err := url.PathUnescape(img.URI)
		if err != nil {
			uri = img.URI
		}
		ref.Path = filepath.Join(dir, filepath.FromSlash(uri))
	}
	return ref, true, nil
}

func gltfBufferView(doc *gltf.Document, idx uint32) ([]byte, error) {
	if int(idx) >= len(doc.BufferViews) {
		return nil, pkgerrors.Wrapf(ErrMissingData, "buffer view %d", idx)
	}
	bv := doc.BufferViews[idx]
	if int(bv.Buffer) >= len(doc.Buffers) {
		return nil, pkgerrors.Wrapf(ErrMissingData, "buffer %d", bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := int(bv.ByteOffset) + int(bv.ByteLength)
	if end > len(data) {
		return nil, pkgerrors.Wrapf(ErrMissingData, "buffer view %d exceeds buffer", idx)
	}
	return data[bv.ByteOffset:end], nil
}

func gltfClip(doc *gltf.Document, anim *gltf.Animation) (ClipDef, error) {
	clip := ClipDef{Name: anim.Name}
	byNode := make(map[int]int)

	for ci, ch := range anim.Channels {
		if ch.Target.Node == nil || ch.Sampler == nil {
			continue
		}
		bone := int(*ch.Target.Node)
		if bone >= len(doc.Nodes) {
			return clip, pkgerrors.Wrapf(ErrMissingData, "channel %d: node %d", ci, bone)
		}
		if int(*ch.Sampler) >= len(anim.Samplers) {
			return clip, pkgerrors.Wrapf(ErrMissingData, "channel %d: sampler %d", ci, *ch.Sampler)
		}
		sampler := anim.Samplers[*ch.Sampler]
		if sampler.Input == nil || sampler.Output == nil {
			return clip, pkgerrors.Wrapf(ErrMissingData, "channel %d: sampler without data", ci)
		}

		times, err := gltfTimes(doc, *sampler.Input)
		if err != nil {
			return clip, pkgerrors.Wrapf(err, "channel %d", ci)
		}
		outAcr, err := gltfAccessor(doc, *sampler.Output)
		if err != nil {
			return clip, err
		}
		raw, err := modeler.ReadAccessor(doc, outAcr, nil)
		if err != nil {
			return clip, pkgerrors.Wrapf(err, "channel %d: output", ci)
		}

		slot, ok := byNode[bone]
		if !ok {
			slot = len(clip.Channels)
			byNode[bone] = slot
			clip.Channels = append(clip.Channels, ChannelDef{Bone: bone})
		}
		target := &clip.Channels[slot]

		switch ch.Target.Path {
		case gltf.TRSTranslation, gltf.TRSScale:
			values, ok := raw.([][3]float32)
			if !ok {
				return clip, pkgerrors.Wrapf(ErrMissingData, "channel %d: expected float vec3 output", ci)
			}
			keys, err := vec3Keys(times, values, sampler.Interpolation)
			if err != nil {
				return clip, pkgerrors.Wrapf(err, "channel %d", ci)
			}
			if ch.Target.Path == gltf.TRSTranslation {
				target.Translations = keys
			} else {
				target.Scales = keys
			}
		case gltf.TRSRotation:
			values, ok := raw.([][4]float32)
			if !ok {
				return clip, pkgerrors.Wrapf(ErrMissingData, "channel %d: expected float vec4 output", ci)
			}
			keys, err := quatKeys(times, values, sampler.Interpolation)
			if err != nil {
				return clip, pkgerrors.Wrapf(err, "channel %d", ci)
			}
			target.Rotations = keys
		default:
			// Morph target weights are not animated.
			continue
		}

		if last := float64(times[len(times)-1]); last > clip.Duration {
			clip.Duration = last
		}
	}
	return clip, nil
}

func gltfTimes(doc *gltf.Document, idx uint32) ([]float32, error) {
	acr, err := gltfAccessor(doc, idx)
	if err != nil {
		return nil, err
	}
	raw, err := modeler.ReadAccessor(doc, acr, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading key times")
	}
	times, ok := raw.([]float32)
	if !ok || len(times) == 0 {
		return nil, pkgerrors.Wrap(ErrMissingData, "key times must be a non-empty float scalar accessor")
	}
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return nil, pkgerrors.Wrapf(ErrMissingData, "key time %d decreases", i)
		}
	}
	return times, nil
}

// keyValue picks the value of key i; cubic spline output stores
// (in-tangent, value, out-tangent) triples.
func keyValue[T any](values []T, i int, interp gltf.Interpolation) (T, bool) {
	if interp == gltf.InterpolationCubicSpline {
		i = i*3 + 1
	}
	if i >= len(values) {
		var zero T
		return zero, false
	}
	return values[i], true
}

func vec3Keys(times []float32, values [][3]float32, interp gltf.Interpolation) ([]Vec3Key, error) {
	keys := make([]Vec3Key, 0, len(times))
	for i, t := range times {
		v, ok := keyValue(values, i, interp)
		if !ok {
			return nil, pkgerrors.Wrap(ErrMissingData, "fewer output values than key times")
		}
		keys = append(keys, Vec3Key{Time: float64(t), Value: math.Vec3From(v)})
	}
	if interp == gltf.InterpolationStep {
		keys = stepVec3Keys(keys)
	}
	return keys, nil
}

func quatKeys(times []float32, values [][4]float32, interp gltf.Interpolation) ([]QuatKey, error) {
	keys := make([]QuatKey, 0, len(times))
	for i, t := range times {
		v, ok := keyValue(values, i, interp)
		if !ok {
			return nil, pkgerrors.Wrap(ErrMissingData, "fewer output values than key times")
		}
		keys = append(keys, QuatKey{Time: float64(t), Value: math.QuatFrom(v).Normalize()})
	}
	if interp == gltf.InterpolationStep {
		keys = stepQuatKeys(keys)
	}
	return keys, nil
}

// stepVec3Keys turns a step track into a linear one by holding each value
// until the next key time, where a second key switches to the new value.
func stepVec3Keys(keys []Vec3Key) []Vec3Key {
	if len(keys) < 2 {
		return keys
	}
	out := make([]Vec3Key, 0, len(keys)*2-1)
	out = append(out, keys[0])
	for i := 1; i < len(keys); i++ {
		out = append(out, Vec3Key{Time: keys[i].Time, Value: keys[i-1].Value}, keys[i])
	}
	return out
}

func stepQuatKeys(keys []QuatKey) []QuatKey {
	if len(keys) < 2 {
		return keys
	}
	out := make([]QuatKey, 0, len(keys)*2-1)
	out = append(out, keys[0])
	for i := 1; i < len(keys); i++ {
		out = append(out, QuatKey{Time: keys[i].Time, Value: keys[i-1].Value}, keys[i])
	}
	return out
}
