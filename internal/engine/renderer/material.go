package renderer

import (
	"image"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-skel/internal/assets"
	"github.com/Faultbox/midgard-skel/internal/engine/texture"
	"github.com/Faultbox/midgard-skel/pkg/formats"
	"github.com/Faultbox/midgard-skel/pkg/model"
)

// Material is a GL texture bound for drawing. A zero texture draws
// untextured.
type Material struct {
	Name    string
	texture uint32
}

// HasTexture reports whether the material carries a texture.
func (m *Material) HasTexture() bool {
	return m != nil && m.texture != 0
}

// Bind binds the texture to the given texture unit.
func (m *Material) Bind(slot int) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(slot))
	gl.BindTexture(gl.TEXTURE_2D, m.texture)
}

// MaterialFactory returns a factory that decodes and uploads the first
// texture of each material. Textures that fail to load are logged and the
// material draws untextured. Uploaded textures are owned by the renderer.
func (r *Renderer) MaterialFactory(m *assets.Manager, opts texture.Options) model.MaterialFactory {
	return func(def formats.MaterialDef) model.Material {
		mat := &Material{Name: def.Name}
		if len(def.Textures) == 0 {
			return mat
		}

		ref := def.Textures[0]
		img, err := texture.Load(ref, m, opts)
		if err != nil {
			r.log.Warn("texture unavailable",
				zap.String("material", def.Name),
				zap.String("uri", ref.URI),
				zap.Error(err),
			)
			return mat
		}

		mat.texture = r.upload(img)
		r.log.Debug("texture uploaded",
			zap.String("material", def.Name),
			zap.String("uri", ref.URI),
			zap.Int("width", img.Bounds().Dx()),
			zap.Int("height", img.Bounds().Dy()),
		)
		return mat
	}
}

func (r *Renderer) upload(img *image.RGBA) uint32 {
	if len(img.Pix) == 0 {
		return 0
	}
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)

	b := img.Bounds()
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(b.Dx()), int32(b.Dy()), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&img.Pix[0]))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	r.textures = append(r.textures, tex)
	return tex
}

// ReleaseTextures deletes every texture uploaded through MaterialFactory.
// Materials created before the call must not be drawn afterwards.
func (r *Renderer) ReleaseTextures() {
	if len(r.textures) == 0 {
		return
	}
	gl.DeleteTextures(int32(len(r.textures)), &r.textures[0])
	r.textures = r.textures[:0]
}

// ReleaseMaterials deletes the textures of materials made by
// MaterialFactory. Other material types are ignored.
func (r *Renderer) ReleaseMaterials(mats []model.Material) {
	for _, mm := range mats {
		mat, ok := mm.(*Material)
		if !ok || mat == nil || mat.texture == 0 {
			continue
		}
		for i, tex := range r.textures {
			if tex == mat.texture {
				r.textures = append(r.textures[:i], r.textures[i+1:]...)
				break
			}
		}
		gl.DeleteTextures(1, &mat.texture)
		mat.texture = 0
	}
}
