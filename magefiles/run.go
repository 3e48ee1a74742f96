//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine with engine.toml.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	_, err := executeCmd("go", withArgs("run", ".", "engine.toml"), withStream())
	return err
}

// Runs the unit tests.
func (Run) Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
