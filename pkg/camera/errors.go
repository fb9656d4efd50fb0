package camera

import (
	"errors"
	"strings"
)

var (
	// ErrCapture wraps hardware or driver faults while grabbing frames.
	ErrCapture = errors.New("capture failed")
	// ErrInvalidPath is returned when a recording target directory does not exist.
	ErrInvalidPath = errors.New("invalid path")

	StartedErr    = errors.New("already started")
	NotStartedErr = errors.New("camera not started")
)

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "busy") || strings.Contains(s, "ebusy")
}
