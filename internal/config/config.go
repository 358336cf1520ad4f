// Package config handles viewer configuration loading and management.
package config

// Config holds all viewer settings.
type Config struct {
	Window  WindowConfig  `yaml:"window"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Data    DataConfig    `yaml:"data"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig holds game data file paths.
type DataConfig struct {
	GRFPaths []string `yaml:"grf_paths"` // Searched for models and textures not found on disk
}

// WindowConfig holds display settings.
type WindowConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
}

// ViewerConfig holds model and playback settings.
type ViewerConfig struct {
	ModelPath    string  `yaml:"model_path"`
	TextureDir   string  `yaml:"texture_dir"` // Overrides the model directory for external textures
	Clip         int     `yaml:"clip"`
	Speed        float64 `yaml:"speed"`         // Playback speed multiplier
	TurnRate     float32 `yaml:"turn_rate"`     // Turntable speed in degrees per second
	OrbitRadius  float32 `yaml:"orbit_radius"`  // Distance of the four demo models from the center
	FlipTextures bool    `yaml:"flip_textures"` // Flip decoded images for GL's bottom-left origin
	HotReload    bool    `yaml:"hot_reload"`
	DumpConfig   bool    `yaml:"dump_config"`

	LightLongitude   float32 `yaml:"light_longitude"` // Sun angle around Y, degrees
	LightLatitude    float32 `yaml:"light_latitude"`  // Sun elevation, degrees
	ScreenshotDir    string  `yaml:"screenshot_dir"`
	ScreenshotFormat string  `yaml:"screenshot_format"` // png or webp
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
		},
		Viewer: ViewerConfig{
			Clip:         0,
			Speed:        1.0,
			TurnRate:     -50,
			OrbitRadius:  20,
			FlipTextures: true,

			LightLongitude:   45,
			LightLatitude:    45,
			ScreenshotDir:    "screenshots",
			ScreenshotFormat: "png",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
