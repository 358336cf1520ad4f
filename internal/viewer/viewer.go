// Package viewer runs the interactive skeletal model viewer.
package viewer

import (
	"os"
	"path/filepath"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-skel/internal/assets"
	"github.com/Faultbox/midgard-skel/internal/config"
	"github.com/Faultbox/midgard-skel/internal/demo"
	"github.com/Faultbox/midgard-skel/internal/engine/camera"
	"github.com/Faultbox/midgard-skel/internal/engine/debug"
	"github.com/Faultbox/midgard-skel/internal/engine/input"
	"github.com/Faultbox/midgard-skel/internal/engine/lighting"
	"github.com/Faultbox/midgard-skel/internal/engine/renderer"
	"github.com/Faultbox/midgard-skel/internal/engine/texture"
	"github.com/Faultbox/midgard-skel/internal/engine/window"
	"github.com/Faultbox/midgard-skel/internal/logger"
	"github.com/Faultbox/midgard-skel/pkg/math"
	"github.com/Faultbox/midgard-skel/pkg/model"
)

// Demo camera: eye and target in world space.
var (
	demoEye    = math.Vec3{Y: 30, Z: -65}
	demoTarget = math.Vec3{Y: 5}
)

// Viewer owns the window, the GL state and the loaded model.
type Viewer struct {
	cfg     *config.Config
	log     *zap.Logger
	running bool

	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	camera   *camera.OrbitCamera

	assets  *assets.Manager
	watcher *assets.Watcher
	shots   *debug.ScreenshotCapture
	capture bool

	model *model.AnimatedModel
	demo  *demo.Demo

	start    time.Time
	animTime float64
	paused   bool
}

// New opens the window and loads the configured model.
func New(cfg *config.Config) (*Viewer, error) {
	if cfg.Viewer.ModelPath == "" {
		return nil, errors.New("no model given (use -model or a positional argument)")
	}

	v := &Viewer{
		cfg:    cfg,
		log:    logger.Named("viewer"),
		camera: camera.NewOrbitCamera(),
		input:  input.New(),
		shots:  debug.NewScreenshotCapture(cfg.Viewer.ScreenshotDir, "skel", cfg.Viewer.ScreenshotFormat),
	}
	v.camera.LookFrom(demoEye, demoTarget)

	if cfg.Viewer.DumpConfig {
		v.log.Debug("config dump\n" + spew.Sdump(cfg))
	}

	var err error
	v.window, err = window.New(window.Config{
		Title:      "Skeletal Animation Viewer - " + filepath.Base(cfg.Viewer.ModelPath),
		Width:      cfg.Window.Width,
		Height:     cfg.Window.Height,
		Fullscreen: cfg.Window.Fullscreen,
		VSync:      cfg.Window.VSync,
		Logger:     logger.Named("window"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create window")
	}

	width, height := v.window.Size()
	v.renderer, err = renderer.New(renderer.Config{
		Width:  width,
		Height: height,
		Logger: logger.Named("renderer"),
	})
	if err != nil {
		v.window.Close()
		return nil, errors.Wrap(err, "failed to create renderer")
	}
	v.renderer.SetLightDirection(lighting.Sun{
		Longitude: cfg.Viewer.LightLongitude,
		Latitude:  cfg.Viewer.LightLatitude,
	}.Travel())

	v.assets = assets.NewManager(filepath.Dir(cfg.Viewer.ModelPath), cfg.Viewer.TextureDir)
	for _, path := range cfg.Data.GRFPaths {
		if err := v.assets.AddArchive(path); err != nil {
			v.log.Warn("skipping archive", zap.String("path", path), zap.Error(err))
			continue
		}
		v.log.Info("archive added", zap.String("path", path))
	}

	if err := v.loadModel(); err != nil {
		v.Close()
		return nil, err
	}

	if cfg.Viewer.HotReload && v.fromArchive() {
		v.log.Info("hot reload disabled for archived model")
	} else if cfg.Viewer.HotReload {
		if err := v.watch(); err != nil {
			v.log.Warn("hot reload disabled", zap.Error(err))
		}
	}

	v.log.Info("viewer initialized")
	return v, nil
}

func (v *Viewer) watch() error {
	w, err := assets.NewWatcher(logger.Named("watcher"))
	if err != nil {
		return err
	}
	if err := w.Add(v.cfg.Viewer.ModelPath); err != nil {
		w.Close()
		return err
	}
	v.watcher = w
	return nil
}

// loadModel loads the model and replaces the current one. On failure the
// current model stays.
func (v *Viewer) loadModel() error {
	factory := v.renderer.MaterialFactory(v.assets, texture.Options{
		FlipY:      v.cfg.Viewer.FlipTextures,
		MagentaKey: true,
	})

	opts := []model.Option{
		model.WithMaterialFactory(factory),
		model.WithLogger(logger.Named("loader")),
	}

	var m *model.AnimatedModel
	var err error
	if v.fromArchive() {
		var data []byte
		data, err = v.assets.Load(v.cfg.Viewer.ModelPath)
		if err == nil {
			m, err = model.LoadData(v.cfg.Viewer.ModelPath, data, opts...)
		}
	} else {
		m, err = model.Load(v.cfg.Viewer.ModelPath, opts...)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load model")
	}

	if v.model != nil {
		v.renderer.ReleaseMaterials(v.model.Materials)
	}
	v.model = m
	v.demo = demo.NewDemo(m, v.cfg.Viewer.Clip, v.cfg.Viewer.OrbitRadius, v.cfg.Viewer.TurnRate, v.log)

	fields := []zap.Field{
		zap.String("path", v.cfg.Viewer.ModelPath),
		zap.Int("meshes", len(m.Meshes)),
		zap.Int("bones", m.Skeleton.Len()),
		zap.Int("clips", m.Animations.ClipCount()),
	}
	if c := m.Animations.Clip(v.cfg.Viewer.Clip); c != nil {
		fields = append(fields, zap.String("clip", c.Name), zap.Float64("duration", c.Duration))
	}
	v.log.Info("model ready", fields...)
	return nil
}

// fromArchive reports whether the model path is missing on disk but
// present in an archive.
func (v *Viewer) fromArchive() bool {
	if _, err := os.Stat(v.cfg.Viewer.ModelPath); err == nil {
		return false
	}
	return v.assets.InArchive(v.cfg.Viewer.ModelPath)
}

func (v *Viewer) reload() {
	v.assets.Flush()
	if err := v.loadModel(); err != nil {
		v.log.Warn("reload failed, keeping previous model", zap.Error(err))
	}
}

// Run starts the main loop and returns when the window is closed or Esc
// is pressed.
func (v *Viewer) Run() error {
	v.running = true
	v.start = time.Now()

	lastTime := v.start
	frameCount := 0
	fpsTimer := v.start

	v.log.Info("starting render loop")

	for v.running {
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if v.input.Update() {
			v.running = false
			break
		}
		v.handleEvents()

		v.update(dt)
		v.render(now.Sub(v.start).Seconds())
		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			v.log.Debug("fps", zap.Int("count", frameCount), zap.Float64("dt_ms", dt*1000))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

func (v *Viewer) handleEvents() {
	for _, e := range v.input.Events() {
		switch e.Type {
		case input.EventWindowResize:
			width, height := v.window.Size()
			v.renderer.Resize(width, height)
		case input.EventKeyDown:
			if e.Repeat {
				continue
			}
			switch e.Key {
			case sdl.SCANCODE_ESCAPE:
				v.running = false
			case sdl.SCANCODE_SPACE:
				v.paused = !v.paused
			case sdl.SCANCODE_R:
				v.reload()
			case sdl.SCANCODE_F12:
				v.capture = true
			case sdl.SCANCODE_LEFTBRACKET:
				v.selectClip(v.demo.Clip - 1)
			case sdl.SCANCODE_RIGHTBRACKET:
				v.selectClip(v.demo.Clip + 1)
			}
		case input.EventMouseMove:
			if v.input.IsButtonHeld(sdl.BUTTON_LEFT) {
				v.camera.HandleDrag(float32(e.DeltaX), float32(e.DeltaY))
			}
		case input.EventMouseWheel:
			v.camera.HandleZoom(e.Wheel)
		}
	}
}

func (v *Viewer) selectClip(i int) {
	n := v.model.Animations.ClipCount()
	if n == 0 {
		return
	}
	i = ((i % n) + n) % n
	v.demo.Clip = i
	v.cfg.Viewer.Clip = i
	v.log.Info("clip selected", zap.Int("index", i), zap.String("name", v.model.Animations.Clip(i).Name))
}

func (v *Viewer) update(dt float64) {
	if v.watcher != nil {
		select {
		case path, ok := <-v.watcher.Changed():
			if ok {
				v.log.Info("model changed on disk, reloading", zap.String("path", path))
				v.reload()
			}
		default:
		}
	}

	if !v.paused {
		v.animTime += dt * v.cfg.Viewer.Speed
	}
}

func (v *Viewer) render(wall float64) {
	v.renderer.Begin()
	v.renderer.SetCamera(v.camera.ViewMatrix(), v.camera.ProjectionMatrix(v.renderer.AspectRatio()))
	v.demo.Draw(v.renderer, wall, v.animTime)
	v.renderer.End()

	if v.capture {
		v.capture = false
		pixels, w, h := v.renderer.ReadPixels()
		path, err := v.shots.CaptureFromPixels(pixels, w, h)
		if err != nil {
			v.log.Warn("screenshot failed", zap.Error(err))
			return
		}
		v.log.Info("screenshot saved", zap.String("path", path))
	}
}

// Close releases everything New acquired.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")

	if v.watcher != nil {
		v.watcher.Close()
	}
	if v.assets != nil {
		v.assets.Close()
	}
	if v.renderer != nil {
		v.renderer.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
}
