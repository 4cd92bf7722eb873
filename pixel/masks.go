package pixel

// maxMaskRetries bounds how many channel reinterpretations FormatFromMasks
// tries before giving up.
const maxMaskRetries = 2

// FormatFromMasks infers a Format from a visual's depth, the bits per
// pixel of its storage and its channel masks, as reported by a window
// system for a drawable.
//
// Masks describe a pixel as a machine word. When lsbFirst is set the word
// is stored least significant byte first, which reverses the byte order of
// byte aligned formats. A depth of 32 is taken to carry premultiplied
// alpha. ok is false when no known format matches.
func FormatFromMasks(depth, bpp int, red, green, blue uint32, lsbFirst bool) (f Format, ok bool) {
	f, ok = formatFromMasks(depth, bpp, red, green, blue, 0)
	if !ok {
		return FormatAny, false
	}
	if lsbFirst && f.byteAligned() {
		f ^= bgrBit
		if f.HasAlpha() {
			f ^= aFirstBit
		}
	}
	return f, true
}

func formatFromMasks(depth, bpp int, red, green, blue uint32, attempt int) (Format, bool) {
	switch {
	case depth == 24 && bpp == 24 &&
		red == 0xff0000 && green == 0xff00 && blue == 0xff:
		return FormatRGB888, true
	case (depth == 24 || depth == 32) && bpp == 32 &&
		red == 0xff0000 && green == 0xff00 && blue == 0xff:
		return FormatARGB8888Pre, true
	case depth == 16 && bpp == 16 &&
		red == 0xf800 && green == 0x7e0 && blue == 0x1f:
		return FormatRGB565, true
	}
	if attempt >= maxMaskRetries {
		return FormatAny, false
	}

	// Red and blue swapped.
	if red != blue {
		if f, ok := formatFromMasks(depth, bpp, blue, green, red, attempt+1); ok && (f^bgrBit).Valid() {
			return f ^ bgrBit, true
		}
	}

	// Alpha in the low byte instead of the high byte.
	if bpp == 32 {
		if f, ok := formatFromMasks(depth, bpp, red>>8, green>>8, blue>>8, attempt+1); ok && f.HasAlpha() {
			return f ^ aFirstBit, true
		}
	}
	return FormatAny, false
}
