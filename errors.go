package compose

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// Error kinds. Every *Error carries exactly one of these, so callers can
// test the category with errors.Is regardless of the domain.
var (
	// ErrOutOfMemory is returned when a CPU or GPU allocation fails.
	ErrOutOfMemory = errors.New("compose: out of memory")

	// ErrUnsupported is returned when an operation is not meaningful for
	// the backing mode of a resource.
	ErrUnsupported = errors.New("compose: unsupported operation")

	// ErrExternalResource is returned when the GPU driver or a window
	// system request fails.
	ErrExternalResource = errors.New("compose: external resource error")
)

// Domain identifies the subsystem an error originated from.
type Domain uint8

const (
	// DomainSystem covers context and device setup.
	DomainSystem Domain = iota + 1

	// DomainBitmap covers bitmap allocation, mapping and conversion.
	DomainBitmap

	// DomainBuffer covers GPU-transferable pixel and vertex buffers.
	DomainBuffer

	// DomainTexture covers plain and sliced textures.
	DomainTexture

	// DomainTexturePixmap covers textures backed by an external pixmap.
	DomainTexturePixmap

	// DomainFramebuffer covers framebuffer creation and read-back.
	DomainFramebuffer
)

// String returns the domain name used in error messages.
func (d Domain) String() string {
	switch d {
	case DomainSystem:
		return "system"
	case DomainBitmap:
		return "bitmap"
	case DomainBuffer:
		return "buffer"
	case DomainTexture:
		return "texture"
	case DomainTexturePixmap:
		return "texture-pixmap"
	case DomainFramebuffer:
		return "framebuffer"
	default:
		return fmt.Sprintf("domain(%d)", uint8(d))
	}
}

// Error is a recoverable failure reported by a compose operation.
type Error struct {
	// Domain is the subsystem that failed.
	Domain Domain

	// Op names the failed operation, e.g. "map" or "set region".
	Op string

	// Kind is one of ErrOutOfMemory, ErrUnsupported or ErrExternalResource.
	Kind error

	// Msg is an optional human readable detail.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

// NewError creates an Error without an underlying cause.
func NewError(domain Domain, op string, kind error, msg string) *Error {
	return &Error{Domain: domain, Op: op, Kind: kind, Msg: msg}
}

// WrapError creates an Error around cause. Kind defaults to
// ErrExternalResource when nil.
func WrapError(domain Domain, op string, kind error, cause error) *Error {
	if kind == nil {
		kind = ErrExternalResource
	}
	return &Error{Domain: domain, Op: op, Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	s := "compose: " + e.Domain.String() + ": " + e.Op
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	} else if e.Kind != nil && e.Msg == "" {
		s += ": " + e.Kind.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// HALErrorKind classifies a HAL failure as ErrOutOfMemory or
// ErrExternalResource.
func HALErrorKind(err error) error {
	if errors.Is(err, hal.ErrDeviceOutOfMemory) {
		return ErrOutOfMemory
	}
	return ErrExternalResource
}
