package journal

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/compose"
)

const (
	// DefaultPoolSize is the number of vertex buffers in the ring.
	DefaultPoolSize = 8

	// DefaultPoolBufferSize is the capacity of each pooled vertex buffer.
	DefaultPoolBufferSize = 64 << 10
)

// Option configures a Journal.
type Option func(*options)

type options struct {
	poolSize      int
	bufferSize    int
	batching      bool
	fastReadPixel bool
	targetFormat  gputypes.TextureFormat
}

func defaultOptions() options {
	return options{
		poolSize:      DefaultPoolSize,
		bufferSize:    DefaultPoolBufferSize,
		batching:      true,
		fastReadPixel: true,
		targetFormat:  gputypes.TextureFormatRGBA8Unorm,
	}
}

// WithPoolSize sets the number of vertex buffers the pool cycles through.
func WithPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithPoolBufferSize sets the capacity in bytes of each pooled buffer.
// Flushes needing more get a one-off buffer.
func WithPoolBufferSize(bytes int) Option {
	return func(o *options) {
		o.bufferSize = bytes
	}
}

// WithBatching enables or disables merging consecutive compatible
// entries into one draw call.
func WithBatching(enabled bool) Option {
	return func(o *options) {
		o.batching = enabled
	}
}

// WithFastReadPixel enables or disables answering single pixel reads
// from the logged entries.
func WithFastReadPixel(enabled bool) Option {
	return func(o *options) {
		o.fastReadPixel = enabled
	}
}

// WithTargetFormat sets the format of the render targets the journal
// flushes into. Pipelines are built for it.
func WithTargetFormat(format gputypes.TextureFormat) Option {
	return func(o *options) {
		o.targetFormat = format
	}
}

// applyDebug lets context debug flags override the options.
func (o *options) applyDebug(flags compose.DebugFlags) {
	if flags.Has(compose.DebugDisableBatching) {
		o.batching = false
	}
	if flags.Has(compose.DebugDisableFastReadPixel) {
		o.fastReadPixel = false
	}
}
