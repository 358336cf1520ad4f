// Package inspect serves a loaded model's skeleton, clips and evaluated
// poses as JSON over HTTP.
package inspect

import (
	"encoding/json"
	gomath "math"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-skel/pkg/math"
	"github.com/Faultbox/midgard-skel/pkg/model"
)

// ModelInfo summarizes a model.
type ModelInfo struct {
	Name      string     `json:"name"`
	Meshes    int        `json:"meshes"`
	Vertices  int        `json:"vertices"`
	Materials int        `json:"materials"`
	Bones     int        `json:"bones"`
	Clips     int        `json:"clips"`
	BoundsMin [3]float32 `json:"bounds_min"`
	BoundsMax [3]float32 `json:"bounds_max"`
}

// BoneInfo describes one bone.
type BoneInfo struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Parent   int    `json:"parent"`
	Children []int  `json:"children"`
}

// ClipInfo describes one clip.
type ClipInfo struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
	Channels int     `json:"channels"`
}

// BonePose is one bone's evaluated world transform.
type BonePose struct {
	Index    int        `json:"index"`
	Name     string     `json:"name"`
	Position [3]float32 `json:"position"`
	Rotation [4]float32 `json:"rotation"` // x, y, z, w
	Scale    [3]float32 `json:"scale"`
}

// PoseResponse is the result of evaluating a clip.
type PoseResponse struct {
	Clip  int        `json:"clip"`
	Time  float64    `json:"time"`
	Bones []BonePose `json:"bones"`
}

// FrameResponse is one skinned mesh.
type FrameResponse struct {
	Clip      int          `json:"clip"`
	Time      float64      `json:"time"`
	Mesh      int          `json:"mesh"`
	Positions [][3]float32 `json:"positions"`
	Normals   [][3]float32 `json:"normals"`
}

// Server answers queries against one model. The model is only read, so
// requests are served concurrently without locking.
type Server struct {
	name  string
	model *model.AnimatedModel
	log   *zap.Logger
}

// New creates a server for m. A nil logger discards output.
func New(name string, m *model.AnimatedModel, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{name: name, model: m, log: log}
}

// Handler returns the routed handler with panic recovery and access
// logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/model", s.handleModel).Methods(http.MethodGet)
	r.HandleFunc("/bones", s.handleBones).Methods(http.MethodGet)
	r.HandleFunc("/tree", s.handleTree).Methods(http.MethodGet)
	r.HandleFunc("/clips", s.handleClips).Methods(http.MethodGet)
	r.HandleFunc("/clips/{clip}/pose", s.handlePose).Methods(http.MethodGet)
	r.HandleFunc("/clips/{clip}/meshes/{mesh}", s.handleFrame).Methods(http.MethodGet)

	access := zap.NewStdLog(s.log.Named("http")).Writer()
	h := handlers.LoggingHandler(access, r)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(s.log)))(h)
}

// ListenAndServe serves on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("inspect server listening", zap.String("addr", addr), zap.String("model", s.name))
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	info := ModelInfo{
		Name:      s.name,
		Meshes:    len(s.model.Meshes),
		Materials: len(s.model.Materials),
		Bones:     s.model.Skeleton.Len(),
		Clips:     s.model.Animations.ClipCount(),
	}
	for _, mesh := range s.model.Meshes {
		info.Vertices += mesh.VertexCount()
	}
	b := s.model.Bounds()
	info.BoundsMin = b.Min.Array()
	info.BoundsMax = b.Max.Array()
	writeJSON(w, info)
}

func (s *Server) handleBones(w http.ResponseWriter, r *http.Request) {
	h := s.model.Skeleton
	bones := make([]BoneInfo, h.Len())
	for i := range bones {
		b := h.Bone(i)
		bones[i] = BoneInfo{
			Index:    b.Index,
			Name:     b.Name,
			Parent:   b.Parent,
			Children: append([]int{}, h.Children(i)...),
		}
	}
	writeJSON(w, bones)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.model.Skeleton.WriteTree(w); err != nil {
		s.log.Warn("writing tree", zap.Error(err))
	}
}

func (s *Server) handleClips(w http.ResponseWriter, r *http.Request) {
	store := s.model.Animations
	clips := make([]ClipInfo, store.ClipCount())
	for i := range clips {
		c := store.Clip(i)
		info := ClipInfo{Index: i, Name: c.Name, Duration: c.Duration}
		for _, ch := range c.Channels {
			if ch != nil {
				info.Channels++
			}
		}
		clips[i] = info
	}
	writeJSON(w, clips)
}

func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	clip, t, err := s.clipAndTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pose := s.model.CreateFrame(clip, t)
	resp := PoseResponse{Clip: clip, Time: t, Bones: make([]BonePose, len(pose))}
	for i, world := range pose {
		pos, rot, scale := world.Decompose()
		resp.Bones[i] = BonePose{
			Index:    i,
			Name:     s.model.Skeleton.Bone(i).Name,
			Position: pos.Array(),
			Rotation: [4]float32{rot.X, rot.Y, rot.Z, rot.W},
			Scale:    scale.Array(),
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	clip, t, err := s.clipAndTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mesh, err := strconv.Atoi(mux.Vars(r)["mesh"])
	if err != nil || mesh < 0 || mesh >= len(s.model.Meshes) {
		writeError(w, http.StatusNotFound, errors.Errorf("mesh %q not found", mux.Vars(r)["mesh"]))
		return
	}

	frame := s.model.MeshFrame(mesh, s.model.CreateFrame(clip, t))
	writeJSON(w, FrameResponse{
		Clip:      clip,
		Time:      t,
		Mesh:      mesh,
		Positions: arrays(frame.Positions),
		Normals:   arrays(frame.Normals),
	})
}

// clipAndTime resolves the {clip} path variable, by index or by name, and
// the t query parameter, which defaults to zero.
func (s *Server) clipAndTime(r *http.Request) (int, float64, error) {
	param := mux.Vars(r)["clip"]
	clip, err := strconv.Atoi(param)
	if err != nil {
		clip, err = s.model.Animations.ClipIndexForName(param)
		if err != nil {
			return 0, 0, err
		}
	}

	var t float64
	if q := r.URL.Query().Get("t"); q != "" {
		t, err = strconv.ParseFloat(q, 64)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "invalid time %q", q)
		}
		if gomath.IsNaN(t) || gomath.IsInf(t, 0) {
			return 0, 0, errors.Errorf("invalid time %q: not finite", q)
		}
	}
	return clip, t, nil
}

func arrays(vs []math.Vec3) [][3]float32 {
	out := make([][3]float32, len(vs))
	for i, v := range vs {
		out[i] = v.Array()
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
