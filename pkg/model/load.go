package model

import (
	"errors"
	"io/fs"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-skel/pkg/formats"
	"github.com/Faultbox/midgard-skel/pkg/math"
)

type options struct {
	materials MaterialFactory
	log       *zap.Logger
}

// Option configures Load and FromAsset.
type Option func(*options)

// WithMaterialFactory sets the function that turns decoded materials into
// bindable ones. Without it meshes have no material.
func WithMaterialFactory(f MaterialFactory) Option {
	return func(o *options) {
		o.materials = f
	}
}

// WithLogger sets the logger used during loading.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load decodes the model file at path and builds an animated model.
// Models without bones or clips still load; they simply have nothing to
// animate. Failures are returned as *LoadError.
func Load(path string, opts ...Option) (*AnimatedModel, error) {
	o := buildOptions(opts)
	o.log.Info("loading model", zap.String("path", path))

	asset, err := formats.ParseFile(path)
	if err != nil {
		return nil, classify(path, err)
	}

	m, err := fromAsset(asset, o)
	if err != nil {
		return nil, classify(path, err)
	}

	o.log.Info("model loaded",
		zap.String("path", path),
		zap.Int("bones", m.Skeleton.Len()),
		zap.Int("meshes", len(m.Meshes)),
		zap.Int("clips", m.Animations.ClipCount()),
	)
	return m, nil
}

// LoadData builds an animated model from file contents already in memory,
// such as a file read from an archive. The name selects the decoder.
func LoadData(name string, data []byte, opts ...Option) (*AnimatedModel, error) {
	o := buildOptions(opts)
	o.log.Info("loading model data", zap.String("name", name), zap.Int("bytes", len(data)))

	asset, err := formats.Parse(name, data)
	if err != nil {
		return nil, classify(name, err)
	}

	m, err := fromAsset(asset, o)
	if err != nil {
		return nil, classify(name, err)
	}
	return m, nil
}

// FromAsset builds an animated model from decoded data.
func FromAsset(asset *formats.Asset, opts ...Option) (*AnimatedModel, error) {
	m, err := fromAsset(asset, buildOptions(opts))
	if err != nil {
		return nil, classify("", err)
	}
	return m, nil
}

func classify(path string, err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return &LoadError{Path: path, Kind: le.Kind, Err: le.Err}
	}
	kind := KindFormat
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, formats.ErrMissingData), errors.Is(err, formats.ErrNoGeometry):
		kind = KindIntegrity
	}
	return &LoadError{Path: path, Kind: kind, Err: err}
}

func fromAsset(asset *formats.Asset, o options) (*AnimatedModel, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}

	skeleton, remap, err := NewHierarchy(asset.Bones)
	if err != nil {
		return nil, err
	}
	tracks, err := NewTrackStore(skeleton, remap, asset.Clips)
	if err != nil {
		return nil, err
	}

	m := &AnimatedModel{Skeleton: skeleton, Animations: tracks}

	m.Materials = make([]Material, len(asset.Materials))
	if o.materials != nil {
		for i, def := range asset.Materials {
			m.Materials[i] = o.materials(def)
		}
	}

	m.Meshes = make([]*Mesh, len(asset.Meshes))
	for i := range asset.Meshes {
		def := &asset.Meshes[i]
		mesh := &Mesh{
			Name:      def.Name,
			Positions: make([]math.Vec3, len(def.Vertices)),
			Normals:   make([]math.Vec3, len(def.Vertices)),
			TexCoords: make([][2]float32, len(def.Vertices)),
			Bones:     make([][formats.MaxInfluences]int, len(def.Vertices)),
			Weights:   make([][formats.MaxInfluences]float32, len(def.Vertices)),
			Indices:   def.Indices,
		}
		if def.Material >= 0 {
			mesh.Material = m.Materials[def.Material]
		}
		for v, vd := range def.Vertices {
			mesh.Positions[v] = vd.Position
			mesh.Normals[v] = vd.Normal
			mesh.TexCoords[v] = vd.UV
			mesh.Weights[v] = vd.Weights
			for k, b := range vd.Bones {
				if vd.Weights[k] != 0 {
					mesh.Bones[v][k] = remap[b]
				}
			}
		}
		m.Meshes[i] = mesh
	}

	o.log.Debug("model built",
		zap.Int("vertices", asset.VertexCount()),
		zap.Int("materials", len(m.Materials)),
	)
	return m, nil
}
