package engine

import "github.com/spaghettifunk/vkframe/engine/core"

type ApplicationConfig struct {
	// The application name used in windowing and logging.
	Name    string
	Version string
	// Engine settings. Nil means core.DefaultEngineConfig.
	Config *core.EngineConfig
}
