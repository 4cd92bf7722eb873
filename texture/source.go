package texture

// Image is a block of pixels fetched from a pixmap. The pixel layout is
// described the way the window system describes it: depth, bits per
// pixel, channel masks and byte order.
type Image struct {
	Width        int
	Height       int
	Depth        int
	BitsPerPixel int
	Rowstride    int

	RedMask   uint32
	GreenMask uint32
	BlueMask  uint32

	// LSBFirst is true when multi-byte pixels are stored least
	// significant byte first.
	LSBFirst bool

	Data []byte
}

// Source reads pixels from a window system pixmap.
type Source interface {
	// Geometry returns the pixmap size and depth.
	Geometry() (width, height, depth int, err error)

	// GetImage fetches the width x height rectangle at (x, y) into a new
	// image.
	GetImage(x, y, width, height int) (*Image, error)

	// GetSubImage fetches the width x height rectangle at (x, y) into img
	// at the same position. img was returned by GetImage for the whole
	// pixmap.
	GetSubImage(img *Image, x, y, width, height int) error
}

// SharedMemorySource is a Source that can transfer images through a
// shared memory segment.
type SharedMemorySource interface {
	Source

	// AttachSharedMemory prepares a segment large enough for a
	// width x height image.
	AttachSharedMemory(width, height int) error

	// GetSharedImage fetches the width x height rectangle at (x, y) into
	// the segment. The returned image starts at the rectangle's origin and
	// is valid until the next call.
	GetSharedImage(x, y, width, height int) (*Image, error)

	// DetachSharedMemory releases the segment.
	DetachSharedMemory()
}

// ReportLevel selects how a damage object reports changes.
type ReportLevel uint8

const (
	// ReportRaw reports every rectangle as drawn.
	ReportRaw ReportLevel = iota

	// ReportDelta reports only newly damaged regions.
	ReportDelta

	// ReportBoundingBox reports when the bounding box of the damage
	// grows.
	ReportBoundingBox

	// ReportNonEmpty reports once when the damage becomes non-empty.
	ReportNonEmpty
)

// Damage is a window system damage object tracking a pixmap.
type Damage interface {
	// Subtract clears the accumulated damage.
	Subtract() error

	// SubtractBounds clears the accumulated damage and returns the
	// bounding box of what was cleared.
	SubtractBounds() (x, y, width, height int, err error)

	// Release destroys the damage object.
	Release()
}

// ZeroCopy binds a pixmap directly to a GPU texture without copying
// through the CPU.
type ZeroCopy interface {
	// Update refreshes the bound texture. It returns false when the
	// binding cannot be used, and the pixmap falls back to CPU copies.
	Update(needsMipmap bool) bool

	// DamageNotify tells the binding that the pixmap changed.
	DamageNotify()

	// Texture returns the bound texture, or nil if there is none yet.
	Texture() Texture

	// Release destroys the binding.
	Release()
}
