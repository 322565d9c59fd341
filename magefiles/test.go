//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every unit test.
func (Test) All() error {
	return goCmd("test", "./...")
}

// Runs the unit tests with the race detector.
func (Test) Race() error {
	return goCmd("test", "-race", "./...")
}
