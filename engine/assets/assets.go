package assets

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vkframe/engine/assets/loaders"
	"github.com/spaghettifunk/vkframe/engine/core"
)

const shaderExt = ".spv"

type ShaderInfo struct {
	Name     string
	Path     string
	Modified time.Time
}

// ShaderLibrary resolves shader names such as "basic.vert" to compiled
// SPIR-V files in one directory. When watching, changed modules are reported
// on Reloads so a renderer can rebuild its pipelines.
type ShaderLibrary struct {
	dir    string
	loader Loader

	mutex   sync.RWMutex
	shaders map[string]ShaderInfo

	watcher  *fsnotify.Watcher
	reloads  chan string
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
	log      *log.Logger
}

func NewShaderLibrary(dir string, watch bool) (*ShaderLibrary, error) {
	sl := &ShaderLibrary{
		dir:     dir,
		loader:  &loaders.SpirvLoader{},
		shaders: make(map[string]ShaderInfo),
		reloads: make(chan string, 16),
		done:    make(chan struct{}),
		log:     core.Logger("assets"),
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "scanning shader directory %s", dir)
	}
	for _, e := range entries {
		if !e.IsDir() {
			sl.handleFileEvent(filepath.Join(dir, e.Name()))
		}
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, errors.Wrap(err, "creating shader watcher")
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, errors.Wrapf(err, "watching %s", dir)
		}
		sl.watcher = w
		sl.wg.Add(1)
		go sl.start()
	}
	return sl, nil
}

func (sl *ShaderLibrary) Dir() string {
	return sl.dir
}

// Load reads the compiled module for name.
func (sl *ShaderLibrary) Load(name string) (*loaders.Resource, error) {
	path := filepath.Join(sl.dir, name+shaderExt)
	res, err := sl.loader.Load(path)
	if err != nil {
		return nil, err
	}
	res.Name = name
	return res, nil
}

func (sl *ShaderLibrary) Has(name string) bool {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	_, ok := sl.shaders[name]
	return ok
}

// Reloads delivers the names of shaders that changed on disk. The channel
// is closed by Close.
func (sl *ShaderLibrary) Reloads() <-chan string {
	return sl.reloads
}

// DrainReloads returns every pending reload without blocking.
func (sl *ShaderLibrary) DrainReloads() []string {
	var names []string
	for {
		select {
		case name, ok := <-sl.reloads:
			if !ok {
				return names
			}
			names = append(names, name)
		default:
			return names
		}
	}
}

func (sl *ShaderLibrary) Close() error {
	if sl.isClosed {
		return nil
	}
	sl.isClosed = true
	if sl.watcher == nil {
		close(sl.reloads)
		return nil
	}
	close(sl.done)
	sl.wg.Wait()
	return nil
}

func (sl *ShaderLibrary) start() {
	defer sl.wg.Done()
	for {
		select {
		case e, ok := <-sl.watcher.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if name, ok := sl.handleFileEvent(e.Name); ok {
					sl.notify(name)
				}
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				sl.removeShader(e.Name)
			}

		case err, ok := <-sl.watcher.Errors:
			if !ok {
				return
			}
			sl.log.Error("shader watcher", "err", err)

		case <-sl.done:
			sl.watcher.Close()
			close(sl.reloads)
			return
		}
	}
}

func (sl *ShaderLibrary) notify(name string) {
	select {
	case sl.reloads <- name:
	default:
		sl.log.Warn("reload queue full, dropping", "shader", name)
	}
}

func (sl *ShaderLibrary) handleFileEvent(path string) (string, bool) {
	name, ok := shaderName(path)
	if !ok {
		return "", false
	}
	info := ShaderInfo{Name: name, Path: path}
	if st, err := os.Stat(path); err == nil {
		info.Modified = st.ModTime()
	}

	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	sl.shaders[name] = info
	return name, true
}

func (sl *ShaderLibrary) removeShader(path string) {
	name, ok := shaderName(path)
	if !ok {
		return
	}
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	delete(sl.shaders, name)
}

func shaderName(path string) (string, bool) {
	base := filepath.Base(path)
	if filepath.Ext(base) != shaderExt {
		return "", false
	}
	return strings.TrimSuffix(base, shaderExt), true
}
