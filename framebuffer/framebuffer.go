// Package framebuffer draws rectangles into an offscreen color texture
// through a batching journal.
//
// A Framebuffer owns its journal. Draw calls log quads; the journal is
// flushed when pixels are read, when Flush or Finish is called, or when
// the framebuffer is released. Clears of the whole framebuffer are
// deferred into the load operation of the next render pass.
package framebuffer

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/clip"
	"github.com/gogpu/compose/internal/lru"
	"github.com/gogpu/compose/journal"
	"github.com/gogpu/compose/pixel"
	"github.com/gogpu/compose/texture"
)

// clearMaterialCacheSize bounds the unblended materials kept for
// clipped clears.
const clearMaterialCacheSize = 8

// Option configures a Framebuffer.
type Option func(*options)

type options struct {
	format      pixel.Format
	journalOpts []journal.Option
}

// WithFormat sets the pixel format of the color texture. The default is
// premultiplied RGBA.
func WithFormat(f pixel.Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithJournalOptions passes options to the framebuffer's journal.
func WithJournalOptions(opts ...journal.Option) Option {
	return func(o *options) {
		o.journalOpts = append(o.journalOpts, opts...)
	}
}

// Framebuffer is an offscreen render target.
type Framebuffer struct {
	ctx     *compose.Context
	color   *texture.Texture2D
	journal *journal.Journal

	width, height int

	modelview compose.Matrix
	stack     []compose.Matrix
	clip      *clip.Stack

	// pendingClear is true when the next render pass must clear to
	// clearColor.
	pendingClear bool
	clearColor   compose.RGBA

	// clearKnown is true while nothing but clearColor has reached the
	// texture since the last full clear.
	clearKnown bool

	clearMaterials *lru.Cache[compose.RGBA, *journal.Material]
	releasing      bool
}

var _ journal.Target = (*Framebuffer)(nil)

// New creates a width x height framebuffer. Its contents are undefined
// until the first Clear.
func New(ctx *compose.Context, width, height int, opts ...Option) (*Framebuffer, error) {
	o := options{format: pixel.FormatRGBA8888Pre}
	for _, opt := range opts {
		opt(&o)
	}
	color, err := texture.NewTexture2D(ctx, width, height, o.format)
	if err != nil {
		return nil, compose.WrapError(compose.DomainFramebuffer, "create", nil, err)
	}
	jopts := append([]journal.Option{journal.WithTargetFormat(color.GPUFormat())}, o.journalOpts...)
	j, err := journal.New(ctx, jopts...)
	if err != nil {
		texture.Release(color)
		return nil, compose.WrapError(compose.DomainFramebuffer, "create journal", nil, err)
	}

	compose.Logger().Debug("framebuffer: created",
		"width", width,
		"height", height,
		"format", color.Format().String())
	fb := &Framebuffer{
		ctx:       ctx,
		color:     color,
		journal:   j,
		width:     width,
		height:    height,
		modelview: compose.Identity(),
	}
	fb.clearMaterials = lru.New(clearMaterialCacheSize, fb.retireMaterial)
	return fb, nil
}

// retireMaterial releases an evicted clear material once the quads that
// may still use it have been drawn.
func (fb *Framebuffer) retireMaterial(_ compose.RGBA, m *journal.Material) {
	if fb.releasing {
		m.Release()
		return
	}
	fb.journal.AddFence(m.Release)
}

// Width returns the width in pixels.
func (fb *Framebuffer) Width() int { return fb.width }

// Height returns the height in pixels.
func (fb *Framebuffer) Height() int { return fb.height }

// ColorTexture returns the texture the framebuffer draws into. Pending
// draws are not flushed.
func (fb *Framebuffer) ColorTexture() *texture.Texture2D { return fb.color }

// Journal returns the framebuffer's journal.
func (fb *Framebuffer) Journal() *journal.Journal { return fb.journal }

// ColorView implements journal.Target.
func (fb *Framebuffer) ColorView() hal.TextureView { return fb.color.View() }

// Size implements journal.Target.
func (fb *Framebuffer) Size() (int, int) { return fb.width, fb.height }

// LoadOp implements journal.Target. It clears when a full clear is
// pending and loads the existing contents otherwise.
func (fb *Framebuffer) LoadOp() (gputypes.LoadOp, gputypes.Color) {
	if !fb.pendingClear {
		return gputypes.LoadOpLoad, gputypes.Color{}
	}
	c := fb.clearColor.Premultiply()
	return gputypes.LoadOpClear, gputypes.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

// PushMatrix saves the modelview.
func (fb *Framebuffer) PushMatrix() {
	fb.stack = append(fb.stack, fb.modelview)
}

// PopMatrix restores the modelview saved by the matching PushMatrix.
// Popping an empty stack does nothing.
func (fb *Framebuffer) PopMatrix() {
	if len(fb.stack) == 0 {
		return
	}
	fb.modelview = fb.stack[len(fb.stack)-1]
	fb.stack = fb.stack[:len(fb.stack)-1]
}

// Modelview returns the current modelview.
func (fb *Framebuffer) Modelview() compose.Matrix { return fb.modelview }

// SetModelview replaces the modelview.
func (fb *Framebuffer) SetModelview(m compose.Matrix) { fb.modelview = m }

// Transform applies m before the current modelview.
func (fb *Framebuffer) Transform(m compose.Matrix) {
	fb.modelview = fb.modelview.Multiply(m)
}

// Translate applies a translation.
func (fb *Framebuffer) Translate(x, y float64) { fb.Transform(compose.Translate(x, y)) }

// Scale applies a scale.
func (fb *Framebuffer) Scale(x, y float64) { fb.Transform(compose.Scale(x, y)) }

// Rotate applies a rotation in radians.
func (fb *Framebuffer) Rotate(angle float64) { fb.Transform(compose.Rotate(angle)) }

// PushRectangleClip intersects the clip with the rectangle transformed
// by the modelview. A rotated rectangle clips to its bounding box.
func (fb *Framebuffer) PushRectangleClip(x0, y0, x1, y1 float32) {
	fb.clip = fb.clip.PushTransformed(x0, y0, x1, y1, fb.modelview)
}

// PopClip removes the last pushed clip rectangle.
func (fb *Framebuffer) PopClip() {
	fb.clip = fb.clip.Pop()
}

// Clip returns the current clip snapshot; nil means unclipped.
func (fb *Framebuffer) Clip() *clip.Stack { return fb.clip }

func (fb *Framebuffer) snapshot() journal.Snapshot {
	return journal.Snapshot{Modelview: fb.modelview, Clip: fb.clip}
}

// Flush draws every pending quad and applies a pending clear.
func (fb *Framebuffer) Flush() error {
	if fb.journal.Len() > 0 {
		fb.journal.Flush(fb)
		fb.pendingClear = false
		fb.clearKnown = false
		return nil
	}
	if !fb.pendingClear {
		return nil
	}
	loadOp, clearValue := fb.LoadOp()
	_, err := fb.ctx.Submit("compose-framebuffer-clear", func(enc hal.CommandEncoder) {
		rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "compose-framebuffer-clear",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       fb.ColorView(),
				LoadOp:     loadOp,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: clearValue,
			}},
		})
		rp.End()
	})
	if err != nil {
		return compose.WrapError(compose.DomainFramebuffer, "clear", nil, err)
	}
	fb.pendingClear = false
	return nil
}

// Finish flushes and waits until the GPU has finished all submitted
// work, then runs ready fence callbacks.
func (fb *Framebuffer) Finish() error {
	if err := fb.Flush(); err != nil {
		return err
	}
	if err := fb.ctx.Device().WaitIdle(); err != nil {
		return compose.WrapError(compose.DomainFramebuffer, "finish", nil, fmt.Errorf("wait idle: %w", err))
	}
	fb.PollFences()
	return nil
}

// AddFenceCallback registers cb to run once everything drawn so far has
// reached the texture.
func (fb *Framebuffer) AddFenceCallback(cb func()) *journal.Fence {
	return fb.journal.AddFence(cb)
}

// CancelFenceCallback removes a callback added with AddFenceCallback.
func (fb *Framebuffer) CancelFenceCallback(f *journal.Fence) {
	fb.journal.CancelFence(f)
}

// PollFences runs the callbacks whose work has completed and returns
// how many ran.
func (fb *Framebuffer) PollFences() int {
	return fb.journal.PollFences()
}

// Release flushes pending draws and frees the framebuffer.
func (fb *Framebuffer) Release() {
	if fb.journal == nil {
		return
	}
	if err := fb.Flush(); err != nil {
		compose.Logger().Warn("framebuffer: flush on release failed", "err", err)
	}
	if err := fb.ctx.Device().WaitIdle(); err != nil {
		compose.Logger().Warn("framebuffer: wait idle on release failed", "err", err)
	}
	fb.releasing = true
	fb.PollFences()
	fb.clearMaterials.Purge()
	fb.journal.Destroy()
	fb.journal = nil
	texture.Release(fb.color)
	fb.color = nil
}
