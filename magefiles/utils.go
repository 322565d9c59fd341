//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/magefile/mage/target"
)

// compileShader runs glslc on src unless dst is newer than src and the
// shared includes.
func compileShader(src, dst string) error {
	stale, err := target.Path(dst, src, filepath.Join("shaders", "constants.glsl"))
	if err != nil {
		return err
	}
	if !stale {
		return nil
	}
	return sh.RunV("glslc", "--target-env=vulkan1.1", "-I", "shaders", src, "-o", dst)
}

// goCmd runs the go tool with its output streamed.
func goCmd(args ...string) error {
	return sh.RunV(mg.GoCmd(), args...)
}
