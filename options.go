package compose

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// ContextOption configures a Context during creation.
//
// Example:
//
//	ctx, err := compose.NewContext(device, queue,
//	    compose.WithMaxTextureSize(2048),
//	    compose.WithDebug(compose.DebugDisableBatching))
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	limits         gputypes.Limits
	maxTextureSize int
	surfaceFormat  gputypes.TextureFormat
	debug          DebugFlags
}

func defaultContextOptions() contextOptions {
	return contextOptions{
		limits:        gputypes.DefaultLimits(),
		surfaceFormat: gputypes.TextureFormatRGBA8Unorm,
	}
}

// WithLimits sets the device limits. OpenContext passes the adapter's
// limits automatically.
func WithLimits(limits gputypes.Limits) ContextOption {
	return func(o *contextOptions) {
		o.limits = limits
	}
}

// WithMaxTextureSize caps the size of a single texture below the device
// limit, forcing larger textures to be sliced.
func WithMaxTextureSize(n int) ContextOption {
	return func(o *contextOptions) {
		o.maxTextureSize = n
	}
}

// WithSurfaceFormat sets the render target format used for framebuffers.
func WithSurfaceFormat(format gputypes.TextureFormat) ContextOption {
	return func(o *contextOptions) {
		if format != gputypes.TextureFormatUndefined {
			o.surfaceFormat = format
		}
	}
}

// WithDebug enables debug behavior switches.
func WithDebug(flags DebugFlags) ContextOption {
	return func(o *contextOptions) {
		o.debug |= flags
	}
}

// DebugFlags switch off optimizations to isolate rendering problems.
type DebugFlags uint32

const (
	// DebugDisableBatching makes the journal issue one draw call per quad.
	DebugDisableBatching DebugFlags = 1 << iota

	// DebugDisableFastReadPixel forces single pixel reads to flush and
	// read back from the GPU.
	DebugDisableFastReadPixel

	// DebugDisableSharedMemory stops pixmap textures from using shared
	// memory image transfers.
	DebugDisableSharedMemory

	// DebugDisableClearElision makes clears flush pending geometry instead
	// of discarding geometry the clear would cover.
	DebugDisableClearElision
)

var debugFlagNames = []struct {
	name string
	flag DebugFlags
}{
	{"disable-batching", DebugDisableBatching},
	{"disable-fast-read-pixel", DebugDisableFastReadPixel},
	{"disable-shm", DebugDisableSharedMemory},
	{"disable-clear-elision", DebugDisableClearElision},
}

// Has reports whether every flag in f is set.
func (d DebugFlags) Has(f DebugFlags) bool {
	return d&f == f
}

// String returns the comma separated flag names.
func (d DebugFlags) String() string {
	var names []string
	for _, n := range debugFlagNames {
		if d.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseDebugFlags parses a comma separated list of flag names, as
// accepted by the COMPOSE_DEBUG environment variable. "all" enables
// every flag.
func ParseDebugFlags(s string) (DebugFlags, error) {
	var flags DebugFlags
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if field == "all" {
			for _, n := range debugFlagNames {
				flags |= n.flag
			}
			continue
		}
		found := false
		for _, n := range debugFlagNames {
			if n.name == field {
				flags |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("compose: unknown debug flag %q", field)
		}
	}
	return flags, nil
}
