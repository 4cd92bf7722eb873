// Package pixel describes pixel formats and converts rows of pixels
// between them.
//
// A Format is a small bit-encoded value: the low nibble selects the
// storage class (bytes per pixel and channel widths) and the high bits
// carry flags for alpha, BGR order, alpha-first order and premultiplied
// alpha. Every function in this package is pure.
package pixel

import "fmt"

// Format represents a pixel storage format.
type Format uint8

// Format flag bits.
const (
	alphaBit  Format = 1 << 4
	bgrBit    Format = 1 << 5
	aFirstBit Format = 1 << 6

	// PremultBit marks formats whose color channels are premultiplied by alpha.
	PremultBit Format = 1 << 7

	classMask Format = 0x0f
)

// Storage classes.
const (
	classA8     Format = 1
	classRGB888 Format = 2
	class8888   Format = 3
	classRGB565 Format = 4
	class4444   Format = 5
	class5551   Format = 6
	classG8     Format = 8
	classRG88   Format = 9
)

const (
	// FormatAny is the "unspecified" sentinel. It is never valid as the
	// format of concrete pixel storage.
	FormatAny Format = 0

	// FormatA8 is 8-bit alpha only.
	FormatA8 = classA8 | alphaBit

	// FormatG8 is 8-bit gray.
	FormatG8 = classG8

	// FormatRG88 is two 8-bit channels, red then green.
	FormatRG88 = classRG88

	// FormatRGB565 is a little-endian 16-bit word, red in the top 5 bits.
	FormatRGB565 = classRGB565

	// FormatRGBA4444 is a little-endian 16-bit word, red in the top nibble.
	FormatRGBA4444    = class4444 | alphaBit
	FormatRGBA4444Pre = FormatRGBA4444 | PremultBit

	// FormatRGBA5551 is a little-endian 16-bit word, red in the top 5 bits
	// and alpha in the lowest bit.
	FormatRGBA5551    = class5551 | alphaBit
	FormatRGBA5551Pre = FormatRGBA5551 | PremultBit

	// FormatRGB888 is three bytes in R, G, B order.
	FormatRGB888 = classRGB888

	// FormatBGR888 is three bytes in B, G, R order.
	FormatBGR888 = classRGB888 | bgrBit

	// FormatRGBA8888 is four bytes in R, G, B, A order.
	FormatRGBA8888    = class8888 | alphaBit
	FormatRGBA8888Pre = FormatRGBA8888 | PremultBit

	// FormatBGRA8888 is four bytes in B, G, R, A order.
	FormatBGRA8888    = class8888 | alphaBit | bgrBit
	FormatBGRA8888Pre = FormatBGRA8888 | PremultBit

	// FormatARGB8888 is four bytes in A, R, G, B order.
	FormatARGB8888    = class8888 | alphaBit | aFirstBit
	FormatARGB8888Pre = FormatARGB8888 | PremultBit

	// FormatABGR8888 is four bytes in A, B, G, R order.
	FormatABGR8888    = class8888 | alphaBit | bgrBit | aFirstBit
	FormatABGR8888Pre = FormatABGR8888 | PremultBit
)

// formatNames lists every valid format.
var formatNames = map[Format]string{
	FormatA8:          "A8",
	FormatG8:          "G8",
	FormatRG88:        "RG88",
	FormatRGB565:      "RGB565",
	FormatRGBA4444:    "RGBA4444",
	FormatRGBA4444Pre: "RGBA4444_PRE",
	FormatRGBA5551:    "RGBA5551",
	FormatRGBA5551Pre: "RGBA5551_PRE",
	FormatRGB888:      "RGB888",
	FormatBGR888:      "BGR888",
	FormatRGBA8888:    "RGBA8888",
	FormatRGBA8888Pre: "RGBA8888_PRE",
	FormatBGRA8888:    "BGRA8888",
	FormatBGRA8888Pre: "BGRA8888_PRE",
	FormatARGB8888:    "ARGB8888",
	FormatARGB8888Pre: "ARGB8888_PRE",
	FormatABGR8888:    "ABGR8888",
	FormatABGR8888Pre: "ABGR8888_PRE",
}

// String returns the format name.
func (f Format) String() string {
	if f == FormatAny {
		return "ANY"
	}
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(0x%02x)", uint8(f))
}

// Valid reports whether f names concrete pixel storage.
func (f Format) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// BytesPerPixel returns the storage size of one pixel. The mapping is
// total over valid formats; FormatAny and unknown values panic.
func BytesPerPixel(f Format) int {
	switch f & classMask {
	case classA8, classG8:
		if f.Valid() {
			return 1
		}
	case classRG88, classRGB565, class4444, class5551:
		if f.Valid() {
			return 2
		}
	case classRGB888:
		if f.Valid() {
			return 3
		}
	case class8888:
		if f.Valid() {
			return 4
		}
	}
	panic(fmt.Sprintf("pixel: BytesPerPixel of invalid format %v", f))
}

// HasAlpha reports whether the format stores an alpha channel.
func (f Format) HasAlpha() bool {
	return f&alphaBit != 0
}

// IsPremultiplied reports whether the premultiplied bit is set.
func (f Format) IsPremultiplied() bool {
	return f&PremultBit != 0
}

// CanHavePremult reports whether the format has a premultiplied variant.
// Alpha-only A8 has nothing to premultiply.
func CanHavePremult(f Format) bool {
	return f.HasAlpha() && f&^PremultBit != FormatA8
}

// Premultiplied returns the premultiplied variant of f, or f itself if it
// cannot have one.
func (f Format) Premultiplied() Format {
	if !CanHavePremult(f) {
		return f
	}
	return f | PremultBit
}

// Unpremultiplied returns f with the premultiplied bit cleared.
func (f Format) Unpremultiplied() Format {
	return f &^ PremultBit
}

// SameLayout reports whether a and b differ at most in the premultiplied bit.
func SameLayout(a, b Format) bool {
	return a&^PremultBit == b&^PremultBit
}

// byteAligned reports whether every component occupies whole bytes, which
// makes the byte order of a packed word matter.
func (f Format) byteAligned() bool {
	switch f & classMask {
	case classA8, classG8, classRG88, classRGB888, class8888:
		return true
	}
	return false
}
