// Package compose is the core of a GPU compositing toolkit built on the
// gogpu HAL.
//
// # Overview
//
// compose moves pixels between CPU memory and GPU textures and draws
// textured quads into offscreen framebuffers. Draw calls are journaled
// and submitted in batches, so a frame made of thousands of rectangles
// costs a handful of render passes.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/compose"
//		"github.com/gogpu/compose/framebuffer"
//		"github.com/gogpu/compose/journal"
//		"github.com/gogpu/gputypes"
//		_ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
//	ctx, _ := compose.OpenContext(gputypes.BackendVulkan)
//	defer ctx.Close()
//
//	fb, _ := framebuffer.New(ctx, 256, 256)
//	defer fb.Release()
//
//	red, _ := journal.NewMaterial(ctx, compose.RGB(1, 0, 0))
//	defer red.Release()
//
//	fb.Clear(compose.RGB(1, 1, 1))
//	fb.DrawRectangle(red, 16, 16, 128, 128)
//	fb.Finish()
//
// # Architecture
//
// The module is organized into:
//   - compose: Context (device, queue, limits, debug flags), errors,
//     logging, Matrix and RGBA
//   - pixel: pixel format descriptors and row conversion
//   - bitmap: CPU images backed by Go memory, shared parents, GPU pixel
//     buffers or another bitmap
//   - texture: plain 2D, sliced and window system pixmap textures
//   - journal: vertex buffer pool, quad journal, materials and fences
//   - framebuffer: offscreen render targets on top of the journal
//   - clip: immutable rectangle clip snapshots
//
// # Coordinate System
//
// Framebuffer coordinates put the origin at the top-left pixel corner,
// with X increasing right and Y increasing down. Texture coordinates run
// from 0 to 1 across the texture.
//
// # Threading
//
// A Context and everything created on it is used from one goroutine.
// Fence callbacks run from PollFences or Finish on that goroutine.
package compose

// Version information
const (
	// Version is the current version of the module
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
