package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	stdmath "math"
	"path/filepath"
	"testing"

	"github.com/Faultbox/midgard-skel/pkg/math"
)

// rsmBuilder writes RSM fixtures field by field.
type rsmBuilder struct {
	buf     bytes.Buffer
	version RSMVersion
}

func newRSMBuilder(major, minor uint8) *rsmBuilder {
	b := &rsmBuilder{version: RSMVersion{major, minor}}
	b.buf.WriteString("GRSM")
	b.put(major, minor)
	return b
}

func (b *rsmBuilder) put(values ...any) *rsmBuilder {
	for _, v := range values {
		binary.Write(&b.buf, binary.LittleEndian, v)
	}
	return b
}

func (b *rsmBuilder) name(s string) *rsmBuilder {
	field := make([]byte, 40)
	copy(field, s)
	b.buf.Write(field)
	return b
}

func (b *rsmBuilder) header(animLen int32, shading RSMShadingType, textures ...string) *rsmBuilder {
	b.put(animLen, int32(shading))
	if b.version.AtLeast(1, 4) {
		b.put(uint8(255))
	}
	b.buf.Write(make([]byte, 16))
	b.put(int32(len(textures)))
	for _, tex := range textures {
		b.name(tex)
	}
	return b
}

type testNode struct {
	name, parent string
	position     [3]float32
	twoSide      bool
	rotKeys      []RSMRotKeyframe
}

var triangle = [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

func (b *rsmBuilder) node(n testNode) *rsmBuilder {
	b.name(n.name).name(n.parent)
	b.put(int32(1), int32(0))
	b.put([9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1})
	b.put([3]float32{}, n.position, float32(0), [3]float32{}, [3]float32{1, 1, 1})

	b.put(int32(len(triangle)))
	for _, v := range triangle {
		b.put(v)
	}
	b.put(int32(3))
	for i := 0; i < 3; i++ {
		if b.version.AtLeast(1, 2) {
			b.put([4]uint8{255, 255, 255, 255})
		}
		b.put(float32(i)/2, float32(0))
	}

	twoSide := int32(0)
	if n.twoSide {
		twoSide = 1
	}
	b.put(int32(1))
	b.put([3]uint16{0, 1, 2}, [3]uint16{0, 1, 2}, uint16(0), uint16(0), twoSide)
	if b.version.AtLeast(1, 2) {
		b.put(int32(0))
	}

	if !b.version.AtLeast(1, 5) {
		b.put(int32(0))
	}
	b.put(int32(len(n.rotKeys)))
	for _, k := range n.rotKeys {
		b.put(k.Frame, k.Quaternion)
	}
	if b.version.AtLeast(1, 5) {
		b.put(int32(0))
	}
	return b
}

func (b *rsmBuilder) bytes() []byte {
	return b.buf.Bytes()
}

func emptyRSM(major, minor uint8) []byte {
	b := newRSMBuilder(major, minor).header(0, RSMShadingSmooth)
	b.name("").put(int32(0), int32(0))
	return b.bytes()
}

func quarterTurnY() [4]float32 {
	s := float32(stdmath.Sin(stdmath.Pi / 4))
	return [4]float32{0, s, 0, s}
}

func twoNodeRSM() []byte {
	b := newRSMBuilder(1, 5).header(1000, RSMShadingSmooth, `tex\a.bmp`)
	b.name("root").put(int32(2))
	b.node(testNode{
		name: "root",
		rotKeys: []RSMRotKeyframe{
			{Frame: 1000, Quaternion: quarterTurnY()},
			{Frame: 0, Quaternion: [4]float32{0, 0, 0, 1}},
		},
	})
	b.node(testNode{name: "arm", parent: "root", position: [3]float32{0, 2, 0}, twoSide: true})
	b.put(int32(0))
	return b.bytes()
}

func TestParseRSM_MagicValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"valid magic", emptyRSM(1, 5), nil},
		{"invalid magic", append([]byte("XXXX"), emptyRSM(1, 5)[4:]...), ErrInvalidRSMMagic},
		{"empty data", []byte{}, ErrTruncatedRSMData},
		{"truncated data", []byte{'G', 'R', 'S'}, ErrTruncatedRSMData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRSM(tt.data)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRSM_VersionSupport(t *testing.T) {
	tests := []struct {
		name    string
		major   uint8
		minor   uint8
		wantErr bool
	}{
		{"v1.1", 1, 1, false},
		{"v1.2", 1, 2, false},
		{"v1.4", 1, 4, false},
		{"v1.5", 1, 5, false},
		{"v2.2", 2, 2, false},
		{"v0.1 unsupported", 0, 1, true},
		{"v3.0 unsupported", 3, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRSM(emptyRSM(tt.major, tt.minor))
			if (err != nil) != tt.wantErr {
				t.Errorf("version %d.%d: got error=%v, wantErr=%v", tt.major, tt.minor, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnsupportedRSMVersion) {
				t.Errorf("error %v should wrap ErrUnsupportedRSMVersion", err)
			}
		})
	}
}

func TestParseRSM_Alpha(t *testing.T) {
	data := emptyRSM(1, 4)
	data[14] = 128

	rsm, err := ParseRSM(data)
	if err != nil {
		t.Fatalf("ParseRSM failed: %v", err)
	}
	expected := float32(128) / 255.0
	if rsm.Alpha < expected-0.01 || rsm.Alpha > expected+0.01 {
		t.Errorf("Alpha = %f, want ~%f", rsm.Alpha, expected)
	}

	rsm, err = ParseRSM(emptyRSM(1, 3))
	if err != nil {
		t.Fatalf("ParseRSM failed: %v", err)
	}
	if rsm.Alpha != 1.0 {
		t.Errorf("Alpha = %f, want 1.0 (default for v1.3)", rsm.Alpha)
	}
}

func TestParseRSM_TruncatedNode(t *testing.T) {
	data := twoNodeRSM()
	_, err := ParseRSM(data[:len(data)-60])
	if !errors.Is(err, ErrTruncatedRSMData) {
		t.Errorf("got %v, want ErrTruncatedRSMData", err)
	}
}

func TestParseRSM_InvalidNodeCount(t *testing.T) {
	b := newRSMBuilder(1, 5).header(0, RSMShadingNone)
	b.name("").put(int32(-3))
	_, err := ParseRSM(b.bytes())
	if !errors.Is(err, ErrInvalidNodeCount) {
		t.Errorf("got %v, want ErrInvalidNodeCount", err)
	}
}

func TestParseRSM_Structure(t *testing.T) {
	rsm, err := ParseRSM(twoNodeRSM())
	if err != nil {
		t.Fatalf("ParseRSM failed: %v", err)
	}

	if rsm.AnimLength != 1000 {
		t.Errorf("AnimLength = %d, want 1000", rsm.AnimLength)
	}
	if len(rsm.Textures) != 1 || rsm.Textures[0] != "tex/a.bmp" {
		t.Errorf("Textures = %q, want [tex/a.bmp]", rsm.Textures)
	}
	if rsm.RootNode != "root" {
		t.Errorf("RootNode = %q, want root", rsm.RootNode)
	}
	if len(rsm.Nodes) != 2 {
		t.Fatalf("node count = %d, want 2", len(rsm.Nodes))
	}

	arm := rsm.NodeByName("arm")
	if arm == nil || arm.Parent != "root" {
		t.Fatalf("arm node = %+v", arm)
	}
	if len(arm.Vertices) != 3 || len(arm.Faces) != 1 || arm.Faces[0].TwoSide != 1 {
		t.Errorf("arm geometry: %d vertices, faces %+v", len(arm.Vertices), arm.Faces)
	}
	if !rsm.HasAnimation() {
		t.Error("HasAnimation() = false, want true")
	}
	if rsm.NodeIndex("missing") != -1 {
		t.Error("NodeIndex of missing node should be -1")
	}
	if rsm.TotalFaceCount() != 2 {
		t.Errorf("TotalFaceCount = %d, want 2", rsm.TotalFaceCount())
	}
}

func TestRSMVersion_AtLeast(t *testing.T) {
	tests := []struct {
		version RSMVersion
		major   uint8
		minor   uint8
		want    bool
	}{
		{RSMVersion{1, 5}, 1, 5, true},
		{RSMVersion{1, 5}, 1, 4, true},
		{RSMVersion{1, 5}, 1, 6, false},
		{RSMVersion{1, 5}, 2, 0, false},
		{RSMVersion{2, 3}, 1, 9, true},
		{RSMVersion{2, 3}, 2, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			if got := tt.version.AtLeast(tt.major, tt.minor); got != tt.want {
				t.Errorf("AtLeast(%d, %d) = %v, want %v", tt.major, tt.minor, got, tt.want)
			}
		})
	}
}

func TestRSMShadingType_String(t *testing.T) {
	if got := RSMShadingType(99).String(); got != "Unknown(99)" {
		t.Errorf("got %q", got)
	}
	if got := RSMShadingSmooth.String(); got != "Smooth" {
		t.Errorf("got %q", got)
	}
}

func TestRSMToAsset(t *testing.T) {
	rsm, err := ParseRSM(twoNodeRSM())
	if err != nil {
		t.Fatalf("ParseRSM failed: %v", err)
	}
	asset, err := RSMToAsset(rsm, "models")
	if err != nil {
		t.Fatalf("RSMToAsset failed: %v", err)
	}
	if err := asset.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	t.Run("bones", func(t *testing.T) {
		if len(asset.Bones) != 3 {
			t.Fatalf("bone count = %d, want 3", len(asset.Bones))
		}
		want := []struct {
			name   string
			parent int
		}{{RSMOriginBone, -1}, {"root", 0}, {"arm", 1}}
		for i, w := range want {
			if asset.Bones[i].Name != w.name || asset.Bones[i].Parent != w.parent {
				t.Errorf("bone %d = %q parent %d, want %q parent %d",
					i, asset.Bones[i].Name, asset.Bones[i].Parent, w.name, w.parent)
			}
		}
	})

	t.Run("meshes", func(t *testing.T) {
		if len(asset.Meshes) != 2 {
			t.Fatalf("mesh count = %d, want 2", len(asset.Meshes))
		}
		root := asset.Meshes[0]
		if len(root.Vertices) != 3 || len(root.Indices) != 3 {
			t.Fatalf("root mesh has %d vertices", len(root.Vertices))
		}
		// Y is flipped and winding reversed.
		wantPos := []math.Vec3{{0, -1, 0}, {1, 0, 0}, {0, 0, 0}}
		for i, v := range root.Vertices {
			if v.Position != wantPos[i] {
				t.Errorf("root vertex %d = %v, want %v", i, v.Position, wantPos[i])
			}
			if v.Normal != (math.Vec3{0, 0, 1}) {
				t.Errorf("root normal %d = %v, want (0,0,1)", i, v.Normal)
			}
			if v.Bones[0] != 1 || v.Weights[0] != 1 {
				t.Errorf("root vertex %d influence = %d/%f", i, v.Bones[0], v.Weights[0])
			}
		}

		arm := asset.Meshes[1]
		if len(arm.Vertices) != 6 {
			t.Fatalf("two-sided arm should have 6 vertices, got %d", len(arm.Vertices))
		}
		if arm.Vertices[0].Position != (math.Vec3{0, -3, 0}) {
			t.Errorf("arm vertex 0 = %v, want (0,-3,0)", arm.Vertices[0].Position)
		}
		if arm.Vertices[3].Normal != (math.Vec3{0, 0, -1}) {
			t.Errorf("back face normal = %v, want (0,0,-1)", arm.Vertices[3].Normal)
		}
		if arm.Material != 0 {
			t.Errorf("arm material = %d, want 0", arm.Material)
		}
	})

	t.Run("materials", func(t *testing.T) {
		if len(asset.Materials) != 1 {
			t.Fatalf("material count = %d", len(asset.Materials))
		}
		tex := asset.Materials[0].Textures[0]
		if tex.Path != filepath.Join("models", "tex", "a.bmp") {
			t.Errorf("texture path = %q", tex.Path)
		}
	})

	t.Run("clip", func(t *testing.T) {
		if len(asset.Clips) != 1 {
			t.Fatalf("clip count = %d, want 1", len(asset.Clips))
		}
		clip := asset.Clips[0]
		if clip.Name != RSMDefaultClip || clip.Duration != 1 {
			t.Errorf("clip = %q duration %f", clip.Name, clip.Duration)
		}
		if len(clip.Channels) != 1 || clip.Channels[0].Bone != 1 {
			t.Fatalf("channels = %+v", clip.Channels)
		}
		keys := clip.Channels[0].Rotations
		if len(keys) != 2 || keys[0].Time != 0 || keys[1].Time != 1 {
			t.Errorf("rotation keys not sorted by time: %+v", keys)
		}
	})
}

func TestRSMToAsset_NoGeometry(t *testing.T) {
	rsm, err := ParseRSM(emptyRSM(1, 5))
	if err != nil {
		t.Fatalf("ParseRSM failed: %v", err)
	}
	if _, err := RSMToAsset(rsm, ""); !errors.Is(err, ErrNoGeometry) {
		t.Errorf("got %v, want ErrNoGeometry", err)
	}
}

func TestWorldBindsCycle(t *testing.T) {
	bones := []BoneDef{
		{Name: "a", Parent: 1, Bind: math.Identity()},
		{Name: "b", Parent: 0, Bind: math.Identity()},
	}
	if _, err := WorldBinds(bones); !errors.Is(err, ErrMissingData) {
		t.Errorf("got %v, want ErrMissingData", err)
	}
}

func TestParseFileUnsupported(t *testing.T) {
	if _, err := ParseFile("model.obj"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseFromMemory(t *testing.T) {
	asset, err := Parse(`data\model\mill.RSM`, twoNodeRSM())
	if err != nil {
		t.Fatalf("Parse RSM: %v", err)
	}
	if len(asset.Bones) != 3 {
		t.Errorf("bone count = %d, want 3", len(asset.Bones))
	}
	tex := asset.Materials[0].Textures[0]
	if tex.URI != "tex/a.bmp" {
		t.Errorf("texture URI = %q", tex.URI)
	}

	if _, err := Parse("model.obj", nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("got %v, want ErrUnsupportedFormat", err)
	}
	if _, err := Parse("model.rsm", []byte("GRSM")); err == nil {
		t.Error("expected error for truncated RSM")
	}
}
