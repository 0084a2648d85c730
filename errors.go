package mp4

import (
	"errors"
	"fmt"
)

// Reasons a candidate header box is left untouched. They are reported in
// Skip.Reason and never abort a scan.
var (
	// ErrMalformed means the signature sits too close to the start of the
	// buffer or the declared box size is below the 8-byte minimum.
	ErrMalformed = errors.New("malformed box header")
	// ErrInsufficientSize means the declared box is too small to hold the
	// timescale and duration fields of its version.
	ErrInsufficientSize = errors.New("box too small for timing fields")
	// ErrUnsupportedVersion means the version byte is neither 0 nor 1.
	ErrUnsupportedVersion = errors.New("unsupported box version")
	// ErrFieldOverflow means a scaled value does not fit its field.
	ErrFieldOverflow = errors.New("scaled value overflows field")
	// ErrInvalidScale means the resolved factor is not a finite number.
	ErrInvalidScale = errors.New("invalid scale factor")
)

// versionError reports the unknown version alongside ErrUnsupportedVersion.
type versionError struct {
	Version uint8
}

func (e *versionError) Error() string {
	return fmt.Sprintf("%v %d", ErrUnsupportedVersion, e.Version)
}

func (e *versionError) Unwrap() error { return ErrUnsupportedVersion }

// overflowError names the field that could not hold its scaled value.
type overflowError struct {
	Field string
	Width int // bytes
	Value string
}

func (e *overflowError) Error() string {
	return fmt.Sprintf("%s: %s=%s does not fit %d bytes", ErrFieldOverflow, e.Field, e.Value, e.Width)
}

func (e *overflowError) Unwrap() error { return ErrFieldOverflow }
