/*
Renders a generated grid of cubes with the multi-threaded Vulkan renderer.
Settings are read from engine.toml in the working directory, or from the
file named by the first argument.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vkframe/engine"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/testbed"
)

func main() {
	path := "engine.toml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := core.LoadEngineConfig(path)
	if err != nil {
		core.LogFatal("loading config: %v", err)
	}

	tb := testbed.NewTestGame(cfg)
	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("creating engine: %v", err)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Close()
		core.LogFatal("initializing engine: %v", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Shutdown()
	}()

	runErr := e.Run()
	if err := e.Close(); err != nil {
		core.LogError("shutdown: %v", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %v", runErr)
	}
}
