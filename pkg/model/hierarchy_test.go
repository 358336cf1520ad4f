package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/Faultbox/midgard-skel/pkg/formats"
	"github.com/Faultbox/midgard-skel/pkg/math"
)

func bones(parents ...int) []formats.BoneDef {
	defs := make([]formats.BoneDef, len(parents))
	for i, p := range parents {
		defs[i] = formats.BoneDef{Parent: p, Bind: math.Translate(0, float32(i), 0)}
	}
	return defs
}

func TestHierarchyOrdersParentsFirst(t *testing.T) {
	defs := bones(2, -1, 1, 0)
	defs[0].Name, defs[1].Name, defs[2].Name, defs[3].Name = "hand", "root", "arm", "finger"

	h, remap, err := NewHierarchy(defs)
	if err != nil {
		t.Fatalf("NewHierarchy: %v", err)
	}

	wantRemap := []int{2, 0, 1, 3}
	for i, w := range wantRemap {
		if remap[i] != w {
			t.Errorf("remap[%d] = %d, want %d", i, remap[i], w)
		}
	}
	for i := 0; i < h.Len(); i++ {
		if p := h.Parent(i); p >= i {
			t.Errorf("bone %d has parent %d, want parent < child", i, p)
		}
	}
	if i, err := h.BoneIndexForName("hand"); err != nil || i != 2 {
		t.Errorf("BoneIndexForName(hand) = %d, %v", i, err)
	}
	if h.Bone(2).Bind != math.Translate(0, 0, 0) {
		t.Error("bones should keep their declared bind transform")
	}
}

func TestHierarchyKeepsSortedOrder(t *testing.T) {
	h, remap, err := NewHierarchy(bones(-1, 0, -1, 1, 2, 0))
	if err != nil {
		t.Fatalf("NewHierarchy: %v", err)
	}
	for i, r := range remap {
		if r != i {
			t.Errorf("remap[%d] = %d, want identity", i, r)
		}
	}
	if got := h.Roots(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("Roots() = %v, want [0 2]", got)
	}
	if got := h.Children(0); len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Errorf("Children(0) = %v, want [1 5]", got)
	}
}

func TestHierarchyRejectsBadInput(t *testing.T) {
	dup := bones(-1, 0)
	dup[0].Name, dup[1].Name = "a", "a"

	tests := []struct {
		name string
		defs []formats.BoneDef
	}{
		{"cycle", bones(-1, 2, 1)},
		{"self parent", bones(-1, 1)},
		{"parent out of range", bones(-1, 5)},
		{"negative parent", bones(-1, -4)},
		{"duplicate names", dup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewHierarchy(tt.defs)
			if !errors.Is(err, ErrInvalidHierarchy) {
				t.Fatalf("got %v, want ErrInvalidHierarchy", err)
			}
			var le *LoadError
			if !errors.As(err, &le) || le.Kind != KindIntegrity {
				t.Errorf("got %v, want KindIntegrity LoadError", err)
			}
		})
	}
}

func TestHierarchyNamesAndLookup(t *testing.T) {
	h, _, err := NewHierarchy(bones(-1, 0))
	if err != nil {
		t.Fatalf("NewHierarchy: %v", err)
	}
	if h.Bone(1).Name != "bone_1" {
		t.Errorf("unnamed bone = %q, want bone_1", h.Bone(1).Name)
	}
	if _, err := h.BoneIndexForName("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	defs := bones(-1, 0)
	defs[0].Name = "bone_1"
	h, _, err = NewHierarchy(defs)
	if err != nil {
		t.Fatalf("generated name clashing with a declared one: %v", err)
	}
	if h.Bone(0).Name != "bone_1" || h.Bone(1).Name != "bone_1.1" {
		t.Errorf("names = %q, %q; want bone_1, bone_1.1", h.Bone(0).Name, h.Bone(1).Name)
	}
}

func TestHierarchyInverseBind(t *testing.T) {
	defs := bones(-1, 0)
	defs[1].InverseBind = math.Translate(0, -7, 0)
	defs[1].HasInverseBind = true

	h, _, err := NewHierarchy(defs)
	if err != nil {
		t.Fatalf("NewHierarchy: %v", err)
	}
	if h.Bone(1).InverseBind != math.Translate(0, -7, 0) {
		t.Error("declared inverse bind should be kept")
	}
	if h.Bone(1).WorldBind != math.Translate(0, 1, 0) {
		t.Errorf("world bind = %v", h.Bone(1).WorldBind)
	}
	if !h.Bone(0).InverseBind.Mul(h.Bone(0).WorldBind).ApproxEqual(math.Identity(), 1e-6) {
		t.Error("derived inverse bind should invert the world bind")
	}
}

func TestWriteTree(t *testing.T) {
	defs := bones(-1, 0, 1, 0, -1)
	for i, n := range []string{"root", "spine", "head", "tail", "prop"} {
		defs[i].Name = n
	}
	h, _, err := NewHierarchy(defs)
	if err != nil {
		t.Fatalf("NewHierarchy: %v", err)
	}

	var sb strings.Builder
	if err := h.WriteTree(&sb); err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	want := "0 root\n  1 spine\n    2 head\n  3 tail\n4 prop\n"
	if sb.String() != want {
		t.Errorf("WriteTree =\n%s\nwant\n%s", sb.String(), want)
	}
}
