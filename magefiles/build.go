//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var (
	shaderKinds  = []string{"asteroid", "skybox", "sprite", "font"}
	shaderStages = []string{"vert", "frag"}
)

// Compiles the GLSL sources in shaders/ to assets/shaders/<kind>.<stage>.spv.
func (Build) Shaders() error {
	out := filepath.Join("assets", "shaders")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	for _, kind := range shaderKinds {
		for _, stage := range shaderStages {
			src := filepath.Join("shaders", fmt.Sprintf("%s.%s", kind, stage))
			dst := filepath.Join(out, fmt.Sprintf("%s.%s.spv", kind, stage))
			if err := compileShader(src, dst); err != nil {
				return err
			}
		}
	}
	return nil
}

// Builds the asteroids binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	return goCmd("build", "-o", filepath.Join("bin", "asteroids"), ".")
}
