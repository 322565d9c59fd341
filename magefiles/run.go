//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the asteroid field with settings.toml.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	return goCmd("run", ".")
}

// Runs without a GPU on the simulated backend for a few seconds.
func (Run) Sim() error {
	return goCmd("run", ".", "-backend", "sim", "-close_after", "5")
}

// Runs a fixed length benchmark and writes frame times to perf.csv.
func (Run) Benchmark() error {
	mg.Deps(Build.Shaders)
	return goCmd("run", ".", "-close_after", "20", "-perf_output", "perf.csv")
}
