package core

import (
	"io/fs"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

type WindowConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Title  string `toml:"title"`
}

// SceneConfig sizes the generated test scene.
type SceneConfig struct {
	Geometries int `toml:"geometries"`
	Objects    int `toml:"objects"`
	Dynamic    int `toml:"dynamic"`
}

type EngineConfig struct {
	// Number of command recording workers per frame, including the calling goroutine.
	Threads             int    `toml:"threads"`
	VSync               bool   `toml:"vsync"`
	PreferredImageCount uint32 `toml:"preferred_image_count"`
	Validation          bool   `toml:"validation"`
	// Per frame timings are appended here. Empty disables the log.
	PerfLog   string `toml:"perf_log"`
	ShaderDir string `toml:"shader_dir"`
	LogLevel  string `toml:"log_level"`

	Window WindowConfig `toml:"window"`
	Scene  SceneConfig  `toml:"scene"`
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Threads:             runtime.NumCPU(),
		VSync:               false,
		PreferredImageCount: 2,
		Validation:          false,
		PerfLog:             "perf.csv",
		ShaderDir:           "assets/shaders",
		LogLevel:            "info",
		Window: WindowConfig{
			Width:  1280,
			Height: 720,
			Title:  "vkframe",
		},
		Scene: SceneConfig{
			Geometries: 64,
			Objects:    10000,
			Dynamic:    1000,
		},
	}
}

// LoadEngineConfig reads a TOML file on top of the defaults. A missing file
// is not an error.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			LogInfo("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	cfg.Validate()
	return cfg, nil
}

// Validate clamps out of range values in place.
func (c *EngineConfig) Validate() {
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.PreferredImageCount == 0 {
		c.PreferredImageCount = 2
	}
	if c.Scene.Geometries < 1 {
		c.Scene.Geometries = 1
	}
	if c.Scene.Objects < 0 {
		c.Scene.Objects = 0
	}
	if c.Scene.Dynamic < 0 {
		c.Scene.Dynamic = 0
	}
	if c.Scene.Dynamic > c.Scene.Objects {
		c.Scene.Dynamic = c.Scene.Objects
	}
	if c.Window.Width == 0 {
		c.Window.Width = 1280
	}
	if c.Window.Height == 0 {
		c.Window.Height = 720
	}
}
