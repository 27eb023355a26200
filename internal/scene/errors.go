package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is wrapped by ParseError when a required field is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrUnknownField is wrapped by ParseError for keys the manifest does not define.
	ErrUnknownField = errors.New("unknown field")
	// ErrCameraTargetNotFound is returned when camera.target names no body.
	ErrCameraTargetNotFound = errors.New("camera target not found")
	// ErrDuplicateName is returned when two bodies share a name.
	ErrDuplicateName = errors.New("duplicate body name")
)

// ParseError identifies the manifest field that could not be decoded.
type ParseError struct {
	Path string // e.g. root.satellites.Earth.orbit.period
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scene: %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
