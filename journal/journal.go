// Package journal batches textured quads into few draw calls.
//
// Draws are logged as entries that record the pipeline, modelview and
// clip in effect at the time. Nothing reaches the GPU until Flush, which
// writes every logged vertex into one pooled vertex buffer and issues
// one draw per run of consecutive entries that share state. Paint order
// is preserved.
package journal

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/clip"
	"github.com/gogpu/compose/texture"
)

// ErrPoolSize is returned when the buffer pool is configured with a
// non-positive number of buffers or buffer size.
var ErrPoolSize = errors.New("journal: invalid pool size")

// State is the lifecycle state of a journal.
type State uint8

const (
	// StateIdle means no entries are logged.
	StateIdle State = iota

	// StateAccumulating means entries are waiting for a flush.
	StateAccumulating

	// StateFlushing is held while Flush runs.
	StateFlushing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Pipeline is the GPU state a quad is drawn with.
//
// Entries are batched when their pipelines compare equal, so
// implementations should return the same value for the same state.
type Pipeline interface {
	// Layers returns the number of texture layers sampled.
	Layers() int

	// RenderPipeline returns the pipeline for drawing into format with
	// nLayers texture coordinate sets per vertex.
	RenderPipeline(format gputypes.TextureFormat, nLayers int) (hal.RenderPipeline, error)

	// BindGroup returns the resources bound at group 0.
	BindGroup() (hal.BindGroup, error)

	// SolidColor returns the color every covered pixel ends up with, if
	// that does not depend on textures or the destination.
	SolidColor() (compose.RGBA, bool)

	// WithLayer0 returns a pipeline sampling t as its first layer.
	WithLayer0(t texture.Texture) Pipeline

	// PrePaint brings the layer textures up to date.
	PrePaint()
}

// Target is a render target the journal can be flushed into.
type Target interface {
	ColorView() hal.TextureView
	Size() (width, height int)

	// LoadOp returns how the render pass treats existing contents.
	LoadOp() (gputypes.LoadOp, gputypes.Color)
}

// Snapshot is the transform and clip state a quad is logged with.
type Snapshot struct {
	Modelview compose.Matrix
	Clip      *clip.Stack
}

// Stats counts journal work since creation.
type Stats struct {
	Flushes        int
	Batches        int
	DrawCalls      int
	Quads          int
	Discards       int
	FastReadPixels int
	OneOffBuffers  int
}

// entry is one logged quad.
type entry struct {
	pipeline  Pipeline
	modelview compose.Matrix
	clip      *clip.Stack
	nLayers   int

	// offset of the first vertex float in Journal.vertices.
	offset int

	// bounds is the window-space bounding box of the quad, unclipped.
	bounds clip.Rect
}

// Journal accumulates quads and draws them in batches. It is used from
// one goroutine.
type Journal struct {
	ctx  *compose.Context
	opts options

	pool    *BufferPool
	indices hal.Buffer

	state    State
	entries  []entry
	vertices []float32

	// staging holds the clip-space vertices of the flush in progress.
	staging []float32

	fences         []*Fence
	lastSubmission uint64

	stats Stats
}

// New creates a journal and its buffer pool.
func New(ctx *compose.Context, opts ...Option) (*Journal, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDebug(ctx.Debug())

	pool, err := NewBufferPool(ctx, o.poolSize, o.bufferSize)
	if err != nil {
		return nil, err
	}
	indices, err := newQuadIndices(ctx)
	if err != nil {
		pool.Destroy()
		return nil, err
	}
	return &Journal{
		ctx:     ctx,
		opts:    o,
		pool:    pool,
		indices: indices,
	}, nil
}

// State returns the lifecycle state.
func (j *Journal) State() State { return j.state }

// Len returns the number of logged entries.
func (j *Journal) Len() int { return len(j.entries) }

// Stats returns the work counters.
func (j *Journal) Stats() Stats { return j.stats }

// Pool returns the vertex buffer pool.
func (j *Journal) Pool() *BufferPool { return j.pool }

// TargetFormat returns the format pipelines are built for.
func (j *Journal) TargetFormat() gputypes.TextureFormat { return j.opts.targetFormat }

// LogQuad records a quad covering position (x0, y0, x1, y1) in model
// space. texCoords holds s0, t0, s1, t1 for each of the nLayers layers;
// missing layers sample the whole texture. When layer0 is not nil it
// replaces the first layer of p.
func (j *Journal) LogQuad(snap Snapshot, position [4]float32, p Pipeline, nLayers int,
	layer0 texture.Texture, texCoords []float32) {
	if j.state == StateFlushing {
		panic("journal: LogQuad during flush")
	}
	if layer0 != nil {
		p = p.WithLayer0(layer0)
	}
	p.PrePaint()

	x0, y0, x1, y1 := position[0], position[1], position[2], position[3]
	offset := len(j.vertices)
	corners := [4][2]int{{0, 1}, {2, 1}, {0, 3}, {2, 3}}
	for _, c := range corners {
		j.vertices = append(j.vertices, position[c[0]], position[c[1]])
		for l := 0; l < nLayers; l++ {
			tc := [4]float32{0, 0, 1, 1}
			if len(texCoords) >= 4*(l+1) {
				copy(tc[:], texCoords[4*l:4*l+4])
			}
			j.vertices = append(j.vertices, tc[c[0]], tc[c[1]])
		}
	}

	minX, minY, maxX, maxY := snap.Modelview.TransformRect(float64(x0), float64(y0), float64(x1), float64(y1))
	j.entries = append(j.entries, entry{
		pipeline:  p,
		modelview: snap.Modelview,
		clip:      snap.Clip,
		nLayers:   nLayers,
		offset:    offset,
		bounds:    clip.Rect{X0: float32(minX), Y0: float32(minY), X1: float32(maxX), Y1: float32(maxY)},
	})
	j.state = StateAccumulating
}

// AllEntriesWithinBounds reports whether every logged entry lies inside
// the rectangle, taking each entry's clip into account.
func (j *Journal) AllEntriesWithinBounds(x0, y0, x1, y1 float32) bool {
	r := clip.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
	for i := range j.entries {
		if !r.ContainsRect(j.entries[i].visibleBounds()) {
			return false
		}
	}
	return true
}

// Intersects reports whether any logged entry may touch the rectangle.
func (j *Journal) Intersects(x0, y0, x1, y1 float32) bool {
	r := clip.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
	for i := range j.entries {
		if r.Intersects(j.entries[i].visibleBounds()) {
			return true
		}
	}
	return false
}

func (e *entry) visibleBounds() clip.Rect {
	if cb, ok := e.clip.Bounds(); ok {
		return e.bounds.Intersect(cb)
	}
	return e.bounds
}

// Discard drops every logged entry without drawing. Fences added while
// the entries were pending no longer wait for anything new.
func (j *Journal) Discard() {
	if j.state == StateFlushing {
		panic("journal: Discard during flush")
	}
	if j.state == StateIdle {
		return
	}
	j.stampFences(j.lastSubmission)
	j.reset()
	j.stats.Discards++
}

func (j *Journal) reset() {
	clear(j.entries)
	j.entries = j.entries[:0]
	j.vertices = j.vertices[:0]
	j.state = StateIdle
}

// Destroy frees the buffer pool. Logged entries are dropped.
func (j *Journal) Destroy() {
	if j.state == StateFlushing {
		panic("journal: Destroy during flush")
	}
	j.reset()
	j.fences = nil
	if j.pool != nil {
		j.pool.Destroy()
		j.pool = nil
	}
	if j.indices != nil {
		j.ctx.Device().DestroyBuffer(j.indices)
		j.indices = nil
	}
}
