// Package renderer draws model submissions with OpenGL.
package renderer

import (
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-skel/internal/engine/lighting"
	"github.com/Faultbox/midgard-skel/internal/engine/shader"
	"github.com/Faultbox/midgard-skel/pkg/math"
	"github.com/Faultbox/midgard-skel/pkg/model"
)

// Config holds renderer configuration.
type Config struct {
	Width  int
	Height int
	Logger *zap.Logger
}

// Floats per interleaved vertex: position, normal, uv.
const vertexStride = 8

// Renderer implements model.Renderer by streaming every submission into
// one dynamic vertex/index buffer pair.
type Renderer struct {
	config Config
	log    *zap.Logger

	program *shader.Program
	vao     uint32
	vbo     uint32
	ebo     uint32

	// Scratch buffer reused across submissions.
	vertices []float32

	view, proj, modelMat math.Mat4
	lightDir             math.Vec3

	textures []uint32
}

// New creates a new renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
func New(cfg Config) (*Renderer, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Renderer{
		config:   cfg,
		log:      log,
		view:     math.Identity(),
		proj:     math.Identity(),
		modelMat: math.Identity(),
		lightDir: lighting.DefaultSun.Travel(),
	}

	if err := gl.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize OpenGL")
	}

	r.log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.ClearColor(0.5, 0.5, 0.5, 1.0)

	var err error
	r.program, err = shader.Compile(vertexShader, fragmentShader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create shader program")
	}

	r.createBuffers()
	r.Resize(cfg.Width, cfg.Height)

	return r, nil
}

func (r *Renderer) createBuffers() {
	gl.GenVertexArrays(1, &r.vao)
	gl.BindVertexArray(r.vao)

	gl.GenBuffers(1, &r.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.GenBuffers(1, &r.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, r.ebo)

	stride := int32(vertexStride * 4)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 3*4)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(2, 2, gl.FLOAT, false, stride, 6*4)
	gl.EnableVertexAttribArray(2)

	gl.BindVertexArray(0)

	r.log.Debug("stream buffers created",
		zap.Uint32("vao", r.vao),
		zap.Uint32("vbo", r.vbo),
		zap.Uint32("ebo", r.ebo),
	)
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	r.ReleaseTextures()
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
	}
	if r.vbo != 0 {
		gl.DeleteBuffers(1, &r.vbo)
	}
	if r.ebo != 0 {
		gl.DeleteBuffers(1, &r.ebo)
	}
	if r.program != nil {
		r.program.Delete()
	}
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	r.log.Debug("renderer resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// AspectRatio returns width / height of the viewport.
func (r *Renderer) AspectRatio() float32 {
	if r.config.Height == 0 {
		return 1
	}
	return float32(r.config.Width) / float32(r.config.Height)
}

// SetCamera sets the view and projection matrices for following draws.
func (r *Renderer) SetCamera(view, proj math.Mat4) {
	r.view = view
	r.proj = proj
}

// SetModelMatrix sets the object-to-world transform for following draws.
func (r *Renderer) SetModelMatrix(m math.Mat4) {
	r.modelMat = m
}

// SetLightDirection sets the direction the light travels.
func (r *Renderer) SetLightDirection(dir math.Vec3) {
	r.lightDir = dir.Normalize()
}

// ReadPixels returns the current framebuffer as bottom-up RGBA rows.
func (r *Renderer) ReadPixels() ([]byte, int, int) {
	w, h := r.config.Width, r.config.Height
	pixels := make([]byte, w*h*4)
	if len(pixels) == 0 {
		return pixels, w, h
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	return pixels, w, h
}

// Begin starts a new frame.
func (r *Renderer) Begin() {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// End finishes the current frame.
func (r *Renderer) End() {
	gl.BindVertexArray(0)
	gl.UseProgram(0)
}

// Submit draws one triangle list.
func (r *Renderer) Submit(s model.Submission) {
	if len(s.Indices) == 0 || len(s.Positions) == 0 {
		return
	}

	r.vertices = interleave(r.vertices[:0], s)

	r.program.Use()
	mvp := r.proj.Mul(r.view).Mul(r.modelMat)
	r.program.SetMat4("uMVP", mvp)
	r.program.SetMat4("uModel", r.modelMat)
	r.program.SetVec3("uLightDir", r.lightDir)
	r.program.SetBool("uUseTexture", s.Textured)
	r.program.SetInt("uTexture", 0)

	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(r.vertices)*4, unsafe.Pointer(&r.vertices[0]), gl.STREAM_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, r.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(s.Indices)*4, unsafe.Pointer(&s.Indices[0]), gl.STREAM_DRAW)

	gl.DrawElements(gl.TRIANGLES, int32(len(s.Indices)), gl.UNSIGNED_INT, nil)
}

// interleave packs a submission as position, normal, uv per vertex.
// Missing normals or UVs are written as zero.
func interleave(dst []float32, s model.Submission) []float32 {
	for i, p := range s.Positions {
		var n math.Vec3
		if i < len(s.Normals) {
			n = s.Normals[i]
		}
		var uv [2]float32
		if i < len(s.TexCoords) {
			uv = s.TexCoords[i]
		}
		dst = append(dst, p.X, p.Y, p.Z, n.X, n.Y, n.Z, uv[0], uv[1])
	}
	return dst
}

const vertexShader = `
#version 410 core

layout (location = 0) in vec3 aPosition;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in vec2 aTexCoord;

uniform mat4 uMVP;
uniform mat4 uModel;

out vec3 vNormal;
out vec2 vTexCoord;

void main() {
    gl_Position = uMVP * vec4(aPosition, 1.0);
    vNormal = mat3(uModel) * aNormal;
    vTexCoord = aTexCoord;
}
`

const fragmentShader = `
#version 410 core

in vec3 vNormal;
in vec2 vTexCoord;

uniform vec3 uLightDir;
uniform bool uUseTexture;
uniform sampler2D uTexture;

out vec4 FragColor;

void main() {
    vec3 n = normalize(vNormal);
    float diffuse = max(dot(n, -uLightDir), 0.0);
    float light = 0.35 + 0.65 * diffuse;

    vec4 base = vec4(0.8, 0.8, 0.8, 1.0);
    if (uUseTexture) {
        base = texture(uTexture, vTexCoord);
        if (base.a < 0.1) {
            discard;
        }
    }
    FragColor = vec4(base.rgb * light, base.a);
}
`
