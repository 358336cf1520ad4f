package inspect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Faultbox/midgard-skel/pkg/formats"
	"github.com/Faultbox/midgard-skel/pkg/math"
	"github.com/Faultbox/midgard-skel/pkg/model"
)

func vertex(p math.Vec3, bone int) formats.VertexDef {
	v := formats.VertexDef{Position: p, Normal: math.Vec3{Y: 1}}
	v.Bones[0] = bone
	v.Weights[0] = 1
	return v
}

// liftModel has a "neck" child two units above the root and a clip that
// raises it to four units at t=1.
func liftModel(t *testing.T) *model.AnimatedModel {
	t.Helper()
	m, err := model.FromAsset(&formats.Asset{
		Bones: []formats.BoneDef{
			{Name: "root", Parent: -1, Bind: math.Identity()},
			{Name: "neck", Parent: 0, Bind: math.Translate(0, 2, 0)},
		},
		Meshes: []formats.MeshDef{{
			Name: "body",
			Vertices: []formats.VertexDef{
				vertex(math.Vec3{X: 1}, 0),
				vertex(math.Vec3{Y: 3}, 1),
			},
			Indices: []uint32{0, 1, 0},
		}},
		Materials: []formats.MaterialDef{{Name: "skin"}},
		Clips: []formats.ClipDef{{
			Name:     "lift",
			Duration: 2,
			Channels: []formats.ChannelDef{{
				Bone: 1,
				Translations: []formats.Vec3Key{
					{Time: 0, Value: math.Vec3{Y: 2}},
					{Time: 1, Value: math.Vec3{Y: 4}},
				},
			}},
		}},
	})
	if err != nil {
		t.Fatalf("FromAsset: %v", err)
	}
	return m
}

func get(t *testing.T, h http.Handler, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if v != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
			t.Fatalf("decode %s: %v (body %q)", path, err, rec.Body.String())
		}
	}
	return rec
}

func near(a, b float32) bool {
	d := a - b
	return d < 1e-4 && d > -1e-4
}

func TestModelAndBones(t *testing.T) {
	h := New("lift.glb", liftModel(t), nil).Handler()

	var info ModelInfo
	if rec := get(t, h, "/model", &info); rec.Code != http.StatusOK {
		t.Fatalf("/model status = %d", rec.Code)
	}
	if info.Name != "lift.glb" || info.Meshes != 1 || info.Vertices != 2 || info.Bones != 2 || info.Clips != 1 {
		t.Errorf("unexpected info %+v", info)
	}

	var bones []BoneInfo
	get(t, h, "/bones", &bones)
	if len(bones) != 2 {
		t.Fatalf("got %d bones, want 2", len(bones))
	}
	if bones[1].Name != "neck" || bones[1].Parent != 0 {
		t.Errorf("bone 1 = %+v", bones[1])
	}
	if len(bones[0].Children) != 1 || bones[0].Children[0] != 1 {
		t.Errorf("root children = %v, want [1]", bones[0].Children)
	}

	rec := get(t, h, "/tree", nil)
	if !strings.Contains(rec.Body.String(), "neck") {
		t.Errorf("tree output missing bone name: %q", rec.Body.String())
	}
}

func TestClips(t *testing.T) {
	h := New("lift.glb", liftModel(t), nil).Handler()

	var clips []ClipInfo
	get(t, h, "/clips", &clips)
	if len(clips) != 1 {
		t.Fatalf("got %d clips, want 1", len(clips))
	}
	if clips[0].Name != "lift" || clips[0].Duration != 2 || clips[0].Channels != 1 {
		t.Errorf("clip = %+v", clips[0])
	}
}

func TestPose(t *testing.T) {
	h := New("lift.glb", liftModel(t), nil).Handler()

	tests := []struct {
		path  string
		neckY float32
	}{
		{"/clips/0/pose", 2},
		{"/clips/0/pose?t=0.5", 3},
		{"/clips/lift/pose?t=1", 4},
		{"/clips/lift/pose?t=2.5", 3}, // wraps to 0.5
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var resp PoseResponse
			if rec := get(t, h, tt.path, &resp); rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
			}
			if len(resp.Bones) != 2 {
				t.Fatalf("got %d bones", len(resp.Bones))
			}
			neck := resp.Bones[1]
			if neck.Name != "neck" || !near(neck.Position[1], tt.neckY) {
				t.Errorf("neck = %+v, want y=%v", neck, tt.neckY)
			}
			if !near(neck.Rotation[3], 1) || !near(neck.Scale[0], 1) {
				t.Errorf("neck rotation/scale changed: %+v", neck)
			}
		})
	}
}

func TestMeshFrame(t *testing.T) {
	h := New("lift.glb", liftModel(t), nil).Handler()

	var frame FrameResponse
	if rec := get(t, h, "/clips/lift/meshes/0?t=0.5", &frame); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(frame.Positions) != 2 || len(frame.Normals) != 2 {
		t.Fatalf("frame sizes %d/%d", len(frame.Positions), len(frame.Normals))
	}
	if got := frame.Positions[0]; !near(got[0], 1) || !near(got[1], 0) {
		t.Errorf("root vertex moved to %v", got)
	}
	if got := frame.Positions[1]; !near(got[1], 4) {
		t.Errorf("neck vertex y = %v, want 4", got[1])
	}
}

func TestErrors(t *testing.T) {
	h := New("lift.glb", liftModel(t), nil).Handler()

	tests := []struct {
		path   string
		status int
	}{
		{"/clips/walk/pose", http.StatusBadRequest},
		{"/clips/0/pose?t=soon", http.StatusBadRequest},
		{"/clips/0/pose?t=NaN", http.StatusBadRequest},
		{"/clips/0/pose?t=%2BInf", http.StatusBadRequest},
		{"/clips/lift/meshes/0?t=-Inf", http.StatusBadRequest},
		{"/clips/0/meshes/3", http.StatusNotFound},
		{"/clips/0/meshes/x", http.StatusNotFound},
		{"/nothing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(t, h, tt.path, nil); rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}
