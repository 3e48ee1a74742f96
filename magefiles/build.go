//go:build mage

package main

import (
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every GLSL source under shaders/ into assets/shaders as
// <name>_<stage>.spv, the layout the shader library loads from.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/vkframe", "."), withStream())
	return err
}

func buildShaders() error {
	sources, err := filepath.Glob("shaders/*.*")
	if err != nil {
		return err
	}
	for _, src := range sources {
		base := filepath.Base(src)
		stage := strings.TrimPrefix(filepath.Ext(base), ".")
		name := strings.TrimSuffix(base, filepath.Ext(base))
		out := filepath.Join("assets", "shaders", name+"_"+stage+".spv")
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}
