package model

import "github.com/Faultbox/midgard-skel/pkg/math"

// MeshFrame skins mesh i with pose into a new frame.
func (m *AnimatedModel) MeshFrame(mesh int, pose Pose) MeshFrame {
	var f MeshFrame
	m.ComputeMeshFrameInto(&f, mesh, pose)
	return f
}

// ComputeMeshFrameInto skins mesh i with pose into dst, reusing dst's
// buffers. Each vertex is the weighted sum of pose[b] * InverseBind[b]
// applied to its bind position; normals use the same matrices without
// translation and are renormalized. Weights are used as given. Vertices
// without weights keep their bind data, as do influences on bones the
// pose does not cover.
func (m *AnimatedModel) ComputeMeshFrameInto(dst *MeshFrame, mesh int, pose Pose) {
	src := m.Meshes[mesh]
	m.Model.frameHeader(dst, mesh)

	n := m.Skeleton.Len()
	if cap(dst.skin) < n {
		dst.skin = make([]math.Mat4, n)
	}
	skin := dst.skin[:n]
	for b := 0; b < n; b++ {
		if b < len(pose) {
			skin[b] = pose[b].Mul(m.Skeleton.bones[b].InverseBind)
		} else {
			skin[b] = math.Identity()
		}
	}

	for v := range src.Positions {
		p, nrm := src.Positions[v], src.Normals[v]
		bones, weights := &src.Bones[v], &src.Weights[v]

		var mat math.Mat4
		used := 0
		for k, w := range weights {
			if w == 0 {
				continue
			}
			switch {
			case used == 0 && w == 1:
				mat = skin[bones[k]]
			case used == 0:
				mat = math.Mat4{}.AddScaled(skin[bones[k]], w)
			default:
				mat = mat.AddScaled(skin[bones[k]], w)
			}
			used++
		}

		if used == 0 {
			dst.Positions[v] = p
			dst.Normals[v] = nrm
			continue
		}
		dst.Positions[v] = mat.TransformPoint(p)
		dst.Normals[v] = mat.TransformDirection(nrm).Normalize()
	}
}
