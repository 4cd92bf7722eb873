package pixel

import "github.com/gogpu/gputypes"

// InternalFormat returns the format a texture stores data of format f
// in. Formats with alpha are kept premultiplied; FormatAny selects
// premultiplied RGBA.
func InternalFormat(f Format) Format {
	if f == FormatAny {
		return FormatRGBA8888Pre
	}
	return f.Premultiplied()
}

// TextureFormat maps a pixel format to the GPU texture format used to
// store it, together with the pixel format uploads must be converted to.
// Formats with no direct GPU equivalent are stored as RGBA8.
func TextureFormat(f Format) (gputypes.TextureFormat, Format) {
	switch f.Unpremultiplied() {
	case FormatRGBA8888:
		return gputypes.TextureFormatRGBA8Unorm, f
	case FormatBGRA8888:
		return gputypes.TextureFormatBGRA8Unorm, f
	}
	upload := FormatRGBA8888
	if f.IsPremultiplied() {
		upload = FormatRGBA8888Pre
	}
	return gputypes.TextureFormatRGBA8Unorm, upload
}

// FromTextureFormat maps a GPU texture format back to the pixel format of
// its texels. Unknown formats map to FormatAny.
func FromTextureFormat(tf gputypes.TextureFormat, premultiplied bool) Format {
	var f Format
	switch tf {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		f = FormatRGBA8888
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		f = FormatBGRA8888
	case gputypes.TextureFormatR8Unorm:
		return FormatG8
	case gputypes.TextureFormatRG8Unorm:
		return FormatRG88
	default:
		return FormatAny
	}
	if premultiplied {
		f = f.Premultiplied()
	}
	return f
}
