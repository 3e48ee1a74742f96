package core_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/core"
)

func TestLoadEngineConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := core.LoadEngineConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, core.DefaultEngineConfig(), cfg)
	require.EqualValues(t, 2, cfg.PreferredImageCount)
	require.Equal(t, "perf.csv", cfg.PerfLog)
}

func TestLoadEngineConfig_ParsesAndClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	data := `
threads = 0
vsync = true
preferred_image_count = 3
perf_log = "out.csv"
log_level = "debug"

[window]
width = 800
height = 600
title = "bench"

[scene]
geometries = 8
objects = 100
dynamic = 500
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := core.LoadEngineConfig(path)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Threads)
	require.True(t, cfg.VSync)
	require.EqualValues(t, 3, cfg.PreferredImageCount)
	require.Equal(t, "out.csv", cfg.PerfLog)
	require.Equal(t, "bench", cfg.Window.Title)
	require.EqualValues(t, 800, cfg.Window.Width)
	require.Equal(t, 100, cfg.Scene.Objects)
	require.Equal(t, 100, cfg.Scene.Dynamic, "dynamic is clamped to objects")
}

func TestLoadEngineConfig_BadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("threads = [oops"), 0o644))
	_, err := core.LoadEngineConfig(path)
	require.Error(t, err)
}

func TestPerfLog_Format(t *testing.T) {
	var buf bytes.Buffer
	p, err := core.NewPerfLog(&buf)
	require.NoError(t, err)

	require.NoError(t, p.Record(16666*time.Microsecond))
	require.NoError(t, p.Record(1000*time.Microsecond))
	require.NoError(t, p.Record(0))
	require.NoError(t, p.Close())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Equal(t, []string{
		"sep=,",
		"total,fps",
		"16666,60.00",
		"1000,1000.00",
		"0,0.00",
	}, lines)
}

func TestFrameMetrics(t *testing.T) {
	m := core.NewFrameMetrics()

	fresh := false
	for i := 0; i < 100; i++ {
		if m.Update(10 * time.Millisecond) {
			fresh = true
		}
	}
	require.True(t, fresh)
	require.InDelta(t, 100.0, m.FPS(), 0.001)
	require.InDelta(t, 10.0, m.FrameTime(), 0.001)

	// the rolling window only remembers the last AVG_COUNT frames
	for i := 0; i < core.AVG_COUNT; i++ {
		m.Update(20 * time.Millisecond)
	}
	require.InDelta(t, 20.0, m.FrameTime(), 0.001)
}

func TestClock(t *testing.T) {
	c := core.NewClock()
	c.Update()
	require.Zero(t, c.Elapsed(), "not started")

	c.Start()
	time.Sleep(2 * time.Millisecond)
	c.Stop()
	e := c.Elapsed()
	require.Greater(t, e, time.Duration(0))
	require.False(t, c.Running())

	time.Sleep(time.Millisecond)
	c.Update()
	require.Equal(t, e, c.Elapsed(), "stopped clock keeps its value")
}

func TestEventBus(t *testing.T) {
	bus := core.NewEventBus()
	first, second := new(int), new(int)

	var calls []string
	require.True(t, bus.Register(core.EventWindowResized, first, func(_ interface{}, ctx core.EventContext) bool {
		calls = append(calls, "first")
		require.EqualValues(t, 640, ctx.Width)
		return false
	}))
	require.False(t, bus.Register(core.EventWindowResized, first, nil))
	require.True(t, bus.Register(core.EventWindowResized, second, func(interface{}, core.EventContext) bool {
		calls = append(calls, "second")
		return true
	}))

	require.True(t, bus.Fire(core.EventContext{Code: core.EventWindowResized, Width: 640, Height: 480}))
	require.Equal(t, []string{"first", "second"}, calls)

	require.False(t, bus.Fire(core.EventContext{Code: core.EventApplicationQuit}))

	require.True(t, bus.Unregister(core.EventWindowResized, second))
	require.False(t, bus.Unregister(core.EventWindowResized, second))
	calls = nil
	require.False(t, bus.Fire(core.EventContext{Code: core.EventWindowResized, Width: 640}))
	require.Equal(t, []string{"first"}, calls)
}
