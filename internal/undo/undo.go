// Package undo records how to turn a patched file back into its original.
//
// A patch touches at most a few dozen bytes, so the reverse delta is a
// bsdiff patch from the patched bytes to the original bytes and is tiny
// compared with the file.
package undo

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
)

// Ext is appended to an output path to name its undo delta.
const Ext = ".undo"

// ErrMismatch is returned when an applied delta does not reproduce the
// expected bytes.
var ErrMismatch = errors.New("undo delta does not match")

// Compute returns a delta that Apply turns from patched into original.
func Compute(original, patched []byte) ([]byte, error) {
	delta, err := bsdiff.Bytes(patched, original)
	if err != nil {
		return nil, fmt.Errorf("compute undo delta: %w", err)
	}
	return delta, nil
}

// Apply reconstructs the original bytes from a patched buffer and its delta.
func Apply(patched, delta []byte) ([]byte, error) {
	original, err := bspatch.Bytes(patched, delta)
	if err != nil {
		return nil, fmt.Errorf("apply undo delta: %w", err)
	}
	return original, nil
}

// Verify checks that delta restores original from patched.
func Verify(original, patched, delta []byte) error {
	got, err := Apply(patched, delta)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, original) {
		return ErrMismatch
	}
	return nil
}
