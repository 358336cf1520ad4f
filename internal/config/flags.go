package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagModel      = flag.String("model", "", "Model file to view (.gltf, .glb, .rsm)")
	flagClip       = flag.Int("clip", -1, "Animation clip index")
	flagSpeed      = flag.Float64("speed", 0, "Playback speed multiplier")
	flagGRF        = flag.String("grf", "", "GRF archive to search for models and textures")
	flagWatch      = flag.Bool("watch", false, "Reload the model when it changes on disk")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config. A positional argument
// is accepted as the model path when --model is absent.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Viewer.DumpConfig = true
	}
	switch {
	case *flagModel != "":
		cfg.Viewer.ModelPath = *flagModel
	case flag.NArg() > 0:
		cfg.Viewer.ModelPath = flag.Arg(0)
	}
	if *flagClip >= 0 {
		cfg.Viewer.Clip = *flagClip
	}
	if *flagSpeed > 0 {
		cfg.Viewer.Speed = *flagSpeed
	}
	if *flagGRF != "" {
		cfg.Data.GRFPaths = append(cfg.Data.GRFPaths, *flagGRF)
	}
	if *flagWatch {
		cfg.Viewer.HotReload = true
	}
	if *flagWindowed {
		cfg.Window.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Window.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Window.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Window.Height = *flagHeight
	}
}
