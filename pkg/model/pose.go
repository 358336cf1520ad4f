package model

import "github.com/Faultbox/midgard-skel/pkg/math"

// Pose holds one model-space transform per bone, indexed like the
// hierarchy. Poses are plain values owned by the caller.
type Pose []math.Mat4

// Clone returns a copy of the pose.
func (p Pose) Clone() Pose {
	out := make(Pose, len(p))
	copy(out, p)
	return out
}

// RotateBone rotates bone i about its own origin by angle radians around
// axis, given in model space. Only bone i changes: children keep the
// transforms they were evaluated with.
func (p Pose) RotateBone(i int, axis math.Vec3, angle float32) {
	t, r, s := p[i].Decompose()
	r = math.QuatFromAxisAngle(axis.Normalize(), angle).Mul(r)
	p[i] = math.Compose(t, r, s)
}

// CreateFrame evaluates clip at time t into a new pose.
func (m *AnimatedModel) CreateFrame(clip int, t float64) Pose {
	return m.CreateFrameInto(nil, clip, t)
}

// CreateFrameInto evaluates clip at time t into pose, reusing its storage
// when it is large enough, and returns the filled pose. Bones are visited
// in index order so every parent is final before its children.
func (m *AnimatedModel) CreateFrameInto(pose Pose, clip int, t float64) Pose {
	n := m.Skeleton.Len()
	if cap(pose) < n {
		pose = make(Pose, n)
	}
	pose = pose[:n]

	for i := 0; i < n; i++ {
		tr, rot, sc := m.Animations.Sample(clip, i, t)
		local := math.Compose(tr, rot, sc)
		if parent := m.Skeleton.bones[i].Parent; parent >= 0 {
			pose[i] = pose[parent].Mul(local)
		} else {
			pose[i] = local
		}
	}
	return pose
}

// BindPose returns the rest pose in model space.
func (m *AnimatedModel) BindPose() Pose {
	pose := make(Pose, m.Skeleton.Len())
	for i := range pose {
		pose[i] = m.Skeleton.bones[i].WorldBind
	}
	return pose
}
