//go:build !linux

package x11

import (
	"errors"

	"github.com/gogpu/compose/texture"
)

var errNoSharedMemory = errors.New("x11: shared memory transfers need linux")

type shmSegment struct{}

// AttachSharedMemory always fails on this platform.
func (s *Source) AttachSharedMemory(_, _ int) error { return errNoSharedMemory }

// GetSharedImage always fails on this platform.
func (s *Source) GetSharedImage(_, _, _, _ int) (*texture.Image, error) {
	return nil, errNoSharedMemory
}

// DetachSharedMemory does nothing on this platform.
func (s *Source) DetachSharedMemory() {}
