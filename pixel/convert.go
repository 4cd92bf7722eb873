package pixel

import (
	"encoding/binary"
	"fmt"
)

// Rows are converted through an intermediate of 4 bytes per pixel in
// R, G, B, A order. The intermediate keeps the premultiplication state of
// the source format; ConvertRow fixes it up for the destination.

// UnpackRow expands width pixels of format f from src into dst, which
// must hold 4*width bytes of R, G, B, A.
func UnpackRow(f Format, src, dst []byte, width int) {
	if width <= 0 {
		return
	}
	bpp := BytesPerPixel(f)
	_ = src[width*bpp-1]
	_ = dst[width*4-1]

	switch f & classMask {
	case classA8:
		for i := 0; i < width; i++ {
			d := dst[i*4 : i*4+4]
			d[0], d[1], d[2], d[3] = 0, 0, 0, src[i]
		}
	case classG8:
		for i := 0; i < width; i++ {
			g := src[i]
			d := dst[i*4 : i*4+4]
			d[0], d[1], d[2], d[3] = g, g, g, 255
		}
	case classRG88:
		for i := 0; i < width; i++ {
			d := dst[i*4 : i*4+4]
			d[0], d[1], d[2], d[3] = src[i*2], src[i*2+1], 0, 255
		}
	case classRGB888:
		r, b := 0, 2
		if f&bgrBit != 0 {
			r, b = 2, 0
		}
		for i := 0; i < width; i++ {
			s := src[i*3 : i*3+3]
			d := dst[i*4 : i*4+4]
			d[0], d[1], d[2], d[3] = s[r], s[1], s[b], 255
		}
	case class8888:
		ri, gi, bi, ai := order8888(f)
		for i := 0; i < width; i++ {
			s := src[i*4 : i*4+4]
			d := dst[i*4 : i*4+4]
			d[0], d[1], d[2], d[3] = s[ri], s[gi], s[bi], s[ai]
		}
	case classRGB565:
		for i := 0; i < width; i++ {
			v := binary.LittleEndian.Uint16(src[i*2:])
			d := dst[i*4 : i*4+4]
			d[0] = expand(uint32(v>>11), 5)
			d[1] = expand(uint32(v>>5)&0x3f, 6)
			d[2] = expand(uint32(v)&0x1f, 5)
			d[3] = 255
		}
	case class4444:
		for i := 0; i < width; i++ {
			v := binary.LittleEndian.Uint16(src[i*2:])
			d := dst[i*4 : i*4+4]
			d[0] = expand(uint32(v>>12), 4)
			d[1] = expand(uint32(v>>8)&0xf, 4)
			d[2] = expand(uint32(v>>4)&0xf, 4)
			d[3] = expand(uint32(v)&0xf, 4)
		}
	case class5551:
		for i := 0; i < width; i++ {
			v := binary.LittleEndian.Uint16(src[i*2:])
			d := dst[i*4 : i*4+4]
			d[0] = expand(uint32(v>>11), 5)
			d[1] = expand(uint32(v>>6)&0x1f, 5)
			d[2] = expand(uint32(v>>1)&0x1f, 5)
			d[3] = uint8(v&1) * 255
		}
	}
}

// PackRow is the inverse of UnpackRow: it stores width R, G, B, A pixels
// from src into dst using format f. Channels f does not store are dropped.
func PackRow(f Format, src, dst []byte, width int) {
	if width <= 0 {
		return
	}
	bpp := BytesPerPixel(f)
	_ = src[width*4-1]
	_ = dst[width*bpp-1]

	switch f & classMask {
	case classA8:
		for i := 0; i < width; i++ {
			dst[i] = src[i*4+3]
		}
	case classG8:
		for i := 0; i < width; i++ {
			s := src[i*4 : i*4+4]
			dst[i] = uint8((uint32(s[0]) + uint32(s[1]) + uint32(s[2])) / 3)
		}
	case classRG88:
		for i := 0; i < width; i++ {
			dst[i*2], dst[i*2+1] = src[i*4], src[i*4+1]
		}
	case classRGB888:
		r, b := 0, 2
		if f&bgrBit != 0 {
			r, b = 2, 0
		}
		for i := 0; i < width; i++ {
			s := src[i*4 : i*4+4]
			d := dst[i*3 : i*3+3]
			d[r], d[1], d[b] = s[0], s[1], s[2]
		}
	case class8888:
		ri, gi, bi, ai := order8888(f)
		for i := 0; i < width; i++ {
			s := src[i*4 : i*4+4]
			d := dst[i*4 : i*4+4]
			d[ri], d[gi], d[bi], d[ai] = s[0], s[1], s[2], s[3]
		}
	case classRGB565:
		for i := 0; i < width; i++ {
			s := src[i*4 : i*4+4]
			v := uint16(s[0]>>3)<<11 | uint16(s[1]>>2)<<5 | uint16(s[2]>>3)
			binary.LittleEndian.PutUint16(dst[i*2:], v)
		}
	case class4444:
		for i := 0; i < width; i++ {
			s := src[i*4 : i*4+4]
			v := uint16(s[0]>>4)<<12 | uint16(s[1]>>4)<<8 | uint16(s[2]>>4)<<4 | uint16(s[3]>>4)
			binary.LittleEndian.PutUint16(dst[i*2:], v)
		}
	case class5551:
		for i := 0; i < width; i++ {
			s := src[i*4 : i*4+4]
			v := uint16(s[0]>>3)<<11 | uint16(s[1]>>3)<<6 | uint16(s[2]>>3)<<1 | uint16(s[3]>>7)
			binary.LittleEndian.PutUint16(dst[i*2:], v)
		}
	}
}

// ConvertRow converts width pixels from src in format srcFormat to dst in
// format dstFormat, premultiplying or unpremultiplying as the formats
// require. tmp is scratch space of at least 4*width bytes; nil allocates.
func ConvertRow(dstFormat Format, dst []byte, srcFormat Format, src []byte, width int, tmp []byte) {
	if width <= 0 {
		return
	}
	if dstFormat == srcFormat {
		n := width * BytesPerPixel(srcFormat)
		copy(dst[:n], src[:n])
		return
	}
	if len(tmp) < width*4 {
		tmp = make([]byte, width*4)
	}
	tmp = tmp[:width*4]

	UnpackRow(srcFormat, src, tmp, width)
	switch {
	case srcFormat.IsPremultiplied() && !dstFormat.IsPremultiplied():
		unpremultiplyRGBA(tmp)
	case !srcFormat.IsPremultiplied() && dstFormat.IsPremultiplied():
		premultiplyRGBA(tmp)
	}
	PackRow(dstFormat, tmp, dst, width)
}

// PremultiplyRow premultiplies width pixels of format f in place. Formats
// without a premultiplied variant are left untouched.
func PremultiplyRow(f Format, row []byte, width int, tmp []byte) {
	if !CanHavePremult(f) {
		return
	}
	if f&classMask == class8888 {
		_, _, _, ai := order8888(f)
		for i := 0; i < width; i++ {
			p := row[i*4 : i*4+4]
			a := uint32(p[ai])
			if a == 255 {
				continue
			}
			for c := 0; c < 4; c++ {
				if c != ai {
					p[c] = premul(uint32(p[c]), a)
				}
			}
		}
		return
	}
	if len(tmp) < width*4 {
		tmp = make([]byte, width*4)
	}
	UnpackRow(f, row, tmp, width)
	premultiplyRGBA(tmp[:width*4])
	PackRow(f, tmp, row, width)
}

// UnpremultiplyRow reverses PremultiplyRow. Pixels with zero alpha are
// left as they are.
func UnpremultiplyRow(f Format, row []byte, width int, tmp []byte) {
	if !CanHavePremult(f) {
		return
	}
	if f&classMask == class8888 {
		_, _, _, ai := order8888(f)
		for i := 0; i < width; i++ {
			p := row[i*4 : i*4+4]
			a := uint32(p[ai])
			if a == 0 || a == 255 {
				continue
			}
			for c := 0; c < 4; c++ {
				if c != ai {
					p[c] = unpremul(uint32(p[c]), a)
				}
			}
		}
		return
	}
	if len(tmp) < width*4 {
		tmp = make([]byte, width*4)
	}
	UnpackRow(f, row, tmp, width)
	unpremultiplyRGBA(tmp[:width*4])
	PackRow(f, tmp, row, width)
}

// PackColor stores one premultiplied R, G, B, A color into dst using
// format f.
func PackColor(f Format, premultiplied [4]uint8, dst []byte) {
	if !f.Valid() {
		panic(fmt.Sprintf("pixel: PackColor into invalid format %v", f))
	}
	var tmp [4]byte
	ConvertRow(f, dst, FormatRGBA8888Pre, premultiplied[:], 1, tmp[:])
}

func premultiplyRGBA(p []byte) {
	for i := 0; i+3 < len(p); i += 4 {
		a := uint32(p[i+3])
		if a == 255 {
			continue
		}
		p[i] = premul(uint32(p[i]), a)
		p[i+1] = premul(uint32(p[i+1]), a)
		p[i+2] = premul(uint32(p[i+2]), a)
	}
}

func unpremultiplyRGBA(p []byte) {
	for i := 0; i+3 < len(p); i += 4 {
		a := uint32(p[i+3])
		if a == 0 || a == 255 {
			continue
		}
		p[i] = unpremul(uint32(p[i]), a)
		p[i+1] = unpremul(uint32(p[i+1]), a)
		p[i+2] = unpremul(uint32(p[i+2]), a)
	}
}

func premul(c, a uint32) uint8 {
	return uint8((c*a + 127) / 255)
}

func unpremul(c, a uint32) uint8 {
	v := (c*255 + a/2) / a
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

// expand widens an n-bit component to 8 bits by bit replication.
func expand(v uint32, bits uint) uint8 {
	v <<= 8 - bits
	return uint8(v | v>>bits)
}

// order8888 returns the byte index of the R, G, B and A components.
func order8888(f Format) (r, g, b, a int) {
	switch {
	case f&aFirstBit != 0 && f&bgrBit != 0:
		return 3, 2, 1, 0
	case f&aFirstBit != 0:
		return 1, 2, 3, 0
	case f&bgrBit != 0:
		return 2, 1, 0, 3
	default:
		return 0, 1, 2, 3
	}
}
