package model

import (
	"container/heap"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/Faultbox/midgard-skel/pkg/formats"
	"github.com/Faultbox/midgard-skel/pkg/math"
)

// Bone is one node of the skeleton.
type Bone struct {
	Index  int
	Name   string
	Parent int // -1 for roots

	// Bind is the rest transform relative to the parent.
	Bind math.Mat4
	// WorldBind is the rest transform in model space.
	WorldBind math.Mat4
	// InverseBind maps model space to bone space at rest.
	InverseBind math.Mat4

	bindT math.Vec3
	bindR math.Quat
	bindS math.Vec3
}

// BindTRS returns the decomposed bind transform.
func (b *Bone) BindTRS() (math.Vec3, math.Quat, math.Vec3) {
	return b.bindT, b.bindR, b.bindS
}

// Hierarchy is a forest of bones stored parents first, so every bone's
// index is greater than its parent's.
type Hierarchy struct {
	bones    []Bone
	children [][]int
	roots    []int
	byName   map[string]int
}

// NewHierarchy orders the declared bones parents first and builds the
// hierarchy. Bones that are already ordered keep their indices; otherwise
// ready bones are taken in declaration order. It returns the mapping from
// declared index to hierarchy index.
//
// Cycles, self-parenting, out-of-range parents and duplicate names are
// rejected with a KindIntegrity *LoadError. Unnamed bones are named
// "bone_<declared index>", suffixed with ".N" if a named bone took it.
func NewHierarchy(defs []formats.BoneDef) (*Hierarchy, []int, error) {
	n := len(defs)

	names := make([]string, n)
	seen := make(map[string]int, n)
	for i, d := range defs {
		if d.Parent == i {
			return nil, nil, integrityError(pkgerrors.Wrapf(ErrInvalidHierarchy, "bone %d is its own parent", i))
		}
		if d.Parent < -1 || d.Parent >= n {
			return nil, nil, integrityError(pkgerrors.Wrapf(ErrInvalidHierarchy, "bone %d: parent %d out of range", i, d.Parent))
		}
		if d.Name == "" {
			continue
		}
		if prev, dup := seen[d.Name]; dup {
			return nil, nil, integrityError(pkgerrors.Wrapf(ErrInvalidHierarchy, "bones %d and %d are both named %q", prev, i, d.Name))
		}
		seen[d.Name] = i
		names[i] = d.Name
	}
	for i, d := range defs {
		if d.Name != "" {
			continue
		}
		name := fmt.Sprintf("bone_%d", i)
		for k := 1; ; k++ {
			if _, taken := seen[name]; !taken {
				break
			}
			name = fmt.Sprintf("bone_%d.%d", i, k)
		}
		seen[name] = i
		names[i] = name
	}

	order, err := topoOrder(defs)
	if err != nil {
		return nil, nil, err
	}

	remap := make([]int, n)
	for newIdx, oldIdx := range order {
		remap[oldIdx] = newIdx
	}

	h := &Hierarchy{
		bones:    make([]Bone, n),
		children: make([][]int, n),
		byName:   make(map[string]int, n),
	}
	for newIdx, oldIdx := range order {
		d := defs[oldIdx]
		b := &h.bones[newIdx]
		b.Index = newIdx
		b.Name = names[oldIdx]
		b.Parent = -1
		b.Bind = d.Bind
		b.bindT, b.bindR, b.bindS = d.Bind.Decompose()

		if d.Parent >= 0 {
			b.Parent = remap[d.Parent]
			b.WorldBind = h.bones[b.Parent].WorldBind.Mul(d.Bind)
			h.children[b.Parent] = append(h.children[b.Parent], newIdx)
		} else {
			b.WorldBind = d.Bind
			h.roots = append(h.roots, newIdx)
		}

		if d.HasInverseBind {
			b.InverseBind = d.InverseBind
		} else {
			b.InverseBind = b.WorldBind.Inverse()
		}
		h.byName[b.Name] = newIdx
	}

	return h, remap, nil
}

// topoOrder returns declared indices parents first. Among bones whose
// parent is placed, the lowest declared index goes next.
func topoOrder(defs []formats.BoneDef) ([]int, error) {
	n := len(defs)
	children := make([][]int, n)
	ready := &intHeap{}
	for i, d := range defs {
		if d.Parent < 0 {
			heap.Push(ready, i)
		} else {
			children[d.Parent] = append(children[d.Parent], i)
		}
	}

	order := make([]int, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, c := range children[i] {
			heap.Push(ready, c)
		}
	}

	if len(order) != n {
		placed := make([]bool, n)
		for _, i := range order {
			placed[i] = true
		}
		for i := range defs {
			if !placed[i] {
				return nil, integrityError(pkgerrors.Wrapf(ErrInvalidHierarchy, "bone %d is part of a parent cycle", i))
			}
		}
	}
	return order, nil
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// Len returns the number of bones.
func (h *Hierarchy) Len() int {
	return len(h.bones)
}

// Bone returns the bone at index i. The returned value must not be modified.
func (h *Hierarchy) Bone(i int) *Bone {
	return &h.bones[i]
}

// Parent returns the parent index of bone i, or -1 for a root.
func (h *Hierarchy) Parent(i int) int {
	return h.bones[i].Parent
}

// Children returns the direct children of bone i in index order.
func (h *Hierarchy) Children(i int) []int {
	return h.children[i]
}

// Roots returns the indices of all root bones.
func (h *Hierarchy) Roots() []int {
	return h.roots
}

// BoneIndexForName returns the index of the named bone.
func (h *Hierarchy) BoneIndexForName(name string) (int, error) {
	i, ok := h.byName[name]
	if !ok {
		return -1, pkgerrors.Wrapf(ErrNotFound, "bone %q", name)
	}
	return i, nil
}

// WriteTree prints the forest as "index name" lines indented by depth.
func (h *Hierarchy) WriteTree(w io.Writer) error {
	var walk func(i, depth int) error
	walk = func(i, depth int) error {
		if _, err := fmt.Fprintf(w, "%s%d %s\n", strings.Repeat("  ", depth), i, h.bones[i].Name); err != nil {
			return err
		}
		for _, c := range h.children[i] {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range h.roots {
		if err := walk(r, 0); err != nil {
			return err
		}
	}
	return nil
}
