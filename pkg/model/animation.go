package model

import (
	gomath "math"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/Faultbox/midgard-skel/pkg/formats"
	"github.com/Faultbox/midgard-skel/pkg/math"
)

// Keyframe types are shared with the decoders.
type (
	Vec3Key = formats.Vec3Key
	QuatKey = formats.QuatKey
)

// Channel holds one bone's tracks within a clip. Each track has its own
// key times, sorted ascending.
type Channel struct {
	Translations []Vec3Key
	Rotations    []QuatKey
	Scales       []Vec3Key
}

// Clip is a named animation. Channels is indexed by bone; a nil entry
// means the bone holds its bind pose.
type Clip struct {
	Name     string
	Duration float64 // seconds
	Channels []*Channel
}

// TrackStore samples keyframed clips against a skeleton.
type TrackStore struct {
	skeleton *Hierarchy
	clips    []Clip
}

// NewTrackStore builds the store, moving channels to hierarchy indices
// using remap (declared index to hierarchy index).
func NewTrackStore(skeleton *Hierarchy, remap []int, defs []formats.ClipDef) (*TrackStore, error) {
	s := &TrackStore{skeleton: skeleton, clips: make([]Clip, len(defs))}

	for ci, def := range defs {
		clip := Clip{
			Name:     def.Name,
			Duration: def.Duration,
			Channels: make([]*Channel, skeleton.Len()),
		}
		if clip.Duration < 0 || gomath.IsNaN(clip.Duration) || gomath.IsInf(clip.Duration, 0) {
			return nil, integrityError(pkgerrors.Wrapf(formats.ErrMissingData, "clip %q: duration %v", def.Name, def.Duration))
		}
		for _, ch := range def.Channels {
			if ch.Bone < 0 || ch.Bone >= len(remap) {
				return nil, integrityError(pkgerrors.Wrapf(formats.ErrMissingData, "clip %q: channel for undeclared bone %d", def.Name, ch.Bone))
			}
			if !vec3KeysSorted(ch.Translations) || !quatKeysSorted(ch.Rotations) || !vec3KeysSorted(ch.Scales) {
				return nil, integrityError(pkgerrors.Wrapf(formats.ErrMissingData, "clip %q bone %d: key times decrease", def.Name, ch.Bone))
			}
			bone := remap[ch.Bone]
			c := clip.Channels[bone]
			if c == nil {
				c = &Channel{}
				clip.Channels[bone] = c
			}
			if len(ch.Translations) > 0 {
				c.Translations = ch.Translations
			}
			if len(ch.Rotations) > 0 {
				c.Rotations = ch.Rotations
			}
			if len(ch.Scales) > 0 {
				c.Scales = ch.Scales
			}
		}
		s.clips[ci] = clip
	}
	return s, nil
}

func vec3KeysSorted(keys []Vec3Key) bool {
	for i := 1; i < len(keys); i++ {
		if keys[i].Time < keys[i-1].Time {
			return false
		}
	}
	return true
}

func quatKeysSorted(keys []QuatKey) bool {
	for i := 1; i < len(keys); i++ {
		if keys[i].Time < keys[i-1].Time {
			return false
		}
	}
	return true
}

// ClipCount returns the number of clips.
func (s *TrackStore) ClipCount() int {
	return len(s.clips)
}

// Clip returns clip i, or nil if i is out of range. The returned value
// must not be modified.
func (s *TrackStore) Clip(i int) *Clip {
	if i < 0 || i >= len(s.clips) {
		return nil
	}
	return &s.clips[i]
}

// ClipIndexForName returns the index of the named clip.
func (s *TrackStore) ClipIndexForName(name string) (int, error) {
	for i := range s.clips {
		if s.clips[i].Name == name {
			return i, nil
		}
	}
	return -1, pkgerrors.Wrapf(ErrNotFound, "clip %q", name)
}

// Sample returns the local translation, rotation and scale of a bone at
// time t (seconds). Time loops over the clip duration. Components without
// keys, and every component for an unknown clip, come from the bind pose.
func (s *TrackStore) Sample(clip, bone int, t float64) (math.Vec3, math.Quat, math.Vec3) {
	if bone < 0 || bone >= s.skeleton.Len() {
		return math.Vec3{}, math.QuatIdentity(), math.Vec3{X: 1, Y: 1, Z: 1}
	}
	bt, br, bs := s.skeleton.bones[bone].BindTRS()
	if clip < 0 || clip >= len(s.clips) {
		return bt, br, bs
	}
	c := &s.clips[clip]
	ch := c.Channels[bone]
	if ch == nil {
		return bt, br, bs
	}

	t = c.wrap(t)
	return sampleVec3(ch.Translations, t, bt),
		sampleQuat(ch.Rotations, t, br),
		sampleVec3(ch.Scales, t, bs)
}

// wrap maps t into [0, Duration). A zero-length clip does not loop.
func (c *Clip) wrap(t float64) float64 {
	if gomath.IsNaN(t) || gomath.IsInf(t, 0) {
		return 0
	}
	if c.Duration <= 0 {
		return t
	}
	t = gomath.Mod(t, c.Duration)
	if t < 0 {
		t += c.Duration
	}
	return t
}

// bracket finds the last key at or before t (prev) and the fraction of the
// way to the following key. ok is false when t is outside the keyed range,
// in which case prev is the key to hold.
func bracket(n int, t float64, time func(int) float64) (prev int, frac float32, ok bool) {
	next := sort.Search(n, func(i int) bool { return time(i) > t })
	if next == 0 {
		return 0, 0, false
	}
	if next == n {
		return n - 1, 0, false
	}
	prev = next - 1
	t0, t1 := time(prev), time(next)
	return prev, float32((t - t0) / (t1 - t0)), true
}

func sampleVec3(keys []Vec3Key, t float64, fallback math.Vec3) math.Vec3 {
	if len(keys) == 0 {
		return fallback
	}
	prev, frac, ok := bracket(len(keys), t, func(i int) float64 { return keys[i].Time })
	if !ok || frac == 0 {
		return keys[prev].Value
	}
	return keys[prev].Value.Lerp(keys[prev+1].Value, frac)
}

func sampleQuat(keys []QuatKey, t float64, fallback math.Quat) math.Quat {
	if len(keys) == 0 {
		return fallback
	}
	prev, frac, ok := bracket(len(keys), t, func(i int) float64 { return keys[i].Time })
	if !ok || frac == 0 {
		return keys[prev].Value
	}
	return keys[prev].Value.Slerp(keys[prev+1].Value, frac)
}
