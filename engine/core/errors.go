package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSwapchainBooting is returned when the presentation surface is out of
	// date and has to be recreated before the next frame.
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	// ErrDeviceLost marks a GPU that stopped answering: a fence wait that hit
	// its timeout or a device-lost result from the API.
	ErrDeviceLost = errors.New("gpu device lost")
	// ErrCreationFailed marks any failure while creating a GPU object.
	ErrCreationFailed = errors.New("gpu object creation failed")
	// ErrCapacityExceeded marks an allocation past a fixed per-frame budget.
	ErrCapacityExceeded = errors.New("per-frame capacity exceeded")
	ErrUnknown          = errors.New("unknown")
)

// DeviceLost wraps err and classifies it as a device loss.
func DeviceLost(err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.Newf(format, args...)
	} else {
		err = errors.Wrapf(err, format, args...)
	}
	return errors.Mark(err, ErrDeviceLost)
}

// CreationFailed wraps err and classifies it as a creation failure.
func CreationFailed(err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.Newf(format, args...)
	} else {
		err = errors.Wrapf(err, format, args...)
	}
	return errors.Mark(err, ErrCreationFailed)
}

// CapacityExceeded builds an overflow error for a named budget.
func CapacityExceeded(budget string, requested, remaining uint64) error {
	return errors.Mark(
		errors.Newf("%s: requested %d, %d remaining", budget, requested, remaining),
		ErrCapacityExceeded)
}

// Wrapf is errors.Wrapf re-exported so callers share one error package.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// IsFatal reports whether err belongs to one of the classes that end the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost) ||
		errors.Is(err, ErrCreationFailed) ||
		errors.Is(err, ErrCapacityExceeded)
}
