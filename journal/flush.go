package journal

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose"
)

// maxQuadsPerDraw bounds one DrawIndexed so the shared 16-bit index
// buffer can address every vertex.
const maxQuadsPerDraw = 4096

// newQuadIndices creates the index buffer shared by every draw. Quad
// vertices are ordered top-left, top-right, bottom-left, bottom-right.
func newQuadIndices(ctx *compose.Context) (hal.Buffer, error) {
	data := make([]byte, maxQuadsPerDraw*6*2)
	for q := 0; q < maxQuadsPerDraw; q++ {
		v := uint16(q * 4)
		for i, idx := range [6]uint16{v, v + 1, v + 2, v + 2, v + 1, v + 3} {
			binary.LittleEndian.PutUint16(data[(q*6+i)*2:], idx)
		}
	}
	buf, err := ctx.Device().CreateBuffer(&hal.BufferDescriptor{
		Label: "compose-journal-indices",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, compose.WrapError(compose.DomainBuffer, "create index buffer", compose.HALErrorKind(err), err)
	}
	if err := ctx.Queue().WriteBuffer(buf, 0, data); err != nil {
		ctx.Device().DestroyBuffer(buf)
		return nil, compose.WrapError(compose.DomainBuffer, "write index buffer", nil, err)
	}
	return buf, nil
}

// batch is a run of consecutive entries drawn with one state.
type batch struct {
	first, count int
	pipeline     hal.RenderPipeline
	bindGroup    hal.BindGroup
}

// Flush draws every logged entry into target and returns to idle.
// Flushing an idle journal does nothing.
//
// Flush has no error return: the pool buffers were validated at
// creation, so a failure here is fatal and panics after logging.
func (j *Journal) Flush(target Target) {
	switch j.state {
	case StateIdle:
		return
	case StateFlushing:
		panic("journal: flush during flush")
	}
	j.state = StateFlushing

	width, height := target.Size()
	buf, oneOff, err := j.pool.Acquire(len(j.vertices) * 4)
	if err != nil {
		j.fatal("acquire vertex buffer", err)
	}
	if oneOff {
		j.stats.OneOffBuffers++
	}
	if err := j.upload(buf, width, height); err != nil {
		j.fatal("upload vertices", err)
	}

	batches, err := j.batches()
	if err != nil {
		j.fatal("prepare pipelines", err)
	}
	loadOp, clearColor := target.LoadOp()

	draws := 0
	index, err := j.ctx.Submit("compose-journal", func(enc hal.CommandEncoder) {
		rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "compose-journal-pass",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       target.ColorView(),
				LoadOp:     loadOp,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: clearColor,
			}},
		})
		rp.SetIndexBuffer(j.indices, gputypes.IndexFormatUint16, 0)
		for _, b := range batches {
			draws += j.record(rp, buf, b, width, height)
		}
		rp.End()
	})
	if err != nil {
		j.fatal("submit", err)
	}

	if oneOff {
		j.pool.Retire(buf, index)
	}
	j.lastSubmission = index
	j.stampFences(index)
	j.pool.Reclaim(j.ctx.PollCompleted())

	j.stats.Flushes++
	j.stats.Batches += len(batches)
	j.stats.DrawCalls += draws
	j.stats.Quads += len(j.entries)
	compose.Logger().Debug("journal: flushed",
		"quads", len(j.entries),
		"batches", len(batches),
		"draws", draws,
		"oneOff", oneOff,
		"submission", index)

	j.reset()
}

// upload writes the logged vertices into buf, transformed by each
// entry's modelview and mapped from window space to clip space.
func (j *Journal) upload(buf hal.Buffer, width, height int) error {
	out := slices.Grow(j.staging[:0], len(j.vertices))[:len(j.vertices)]
	j.staging = out
	sx := 2 / float64(width)
	sy := 2 / float64(height)
	for i := range j.entries {
		e := &j.entries[i]
		stride := 2 + 2*e.nLayers
		for v := 0; v < 4; v++ {
			at := e.offset + v*stride
			x, y := e.modelview.TransformPoint(float64(j.vertices[at]), float64(j.vertices[at+1]))
			out[at] = float32(x*sx - 1)
			out[at+1] = float32(1 - y*sy)
			copy(out[at+2:at+stride], j.vertices[at+2:at+stride])
		}
	}
	return j.pool.write(buf, out)
}

// batches groups consecutive entries sharing pipeline, modelview, clip
// and layer count, and resolves the GPU state of each group.
func (j *Journal) batches() ([]batch, error) {
	var out []batch
	for i := range j.entries {
		e := &j.entries[i]
		if n := len(out); n > 0 && j.opts.batching {
			prev := &j.entries[out[n-1].first]
			if prev.pipeline == e.pipeline && prev.modelview == e.modelview &&
				prev.clip == e.clip && prev.nLayers == e.nLayers {
				out[n-1].count++
				continue
			}
		}
		if n := len(out); n > 0 && j.entries[out[n-1].first].pipeline == e.pipeline &&
			j.entries[out[n-1].first].nLayers == e.nLayers {
			out = append(out, batch{first: i, count: 1, pipeline: out[n-1].pipeline, bindGroup: out[n-1].bindGroup})
			continue
		}
		rp, err := e.pipeline.RenderPipeline(j.opts.targetFormat, e.nLayers)
		if err != nil {
			return nil, err
		}
		bg, err := e.pipeline.BindGroup()
		if err != nil {
			return nil, err
		}
		out = append(out, batch{first: i, count: 1, pipeline: rp, bindGroup: bg})
	}
	return out, nil
}

// record encodes the draws of one batch and returns how many it issued.
func (j *Journal) record(rp hal.RenderPassEncoder, buf hal.Buffer, b batch, width, height int) int {
	first := &j.entries[b.first]
	x, y, w, h := first.clip.Scissor(width, height)
	if w == 0 || h == 0 {
		return 0
	}
	rp.SetPipeline(b.pipeline)
	if b.bindGroup != nil {
		rp.SetBindGroup(0, b.bindGroup, nil)
	}
	rp.SetScissorRect(x, y, w, h)
	rp.SetVertexBuffer(0, buf, uint64(first.offset*4))

	draws := 0
	for done := 0; done < b.count; done += maxQuadsPerDraw {
		n := min(maxQuadsPerDraw, b.count-done)
		rp.DrawIndexed(uint32(n*6), 1, 0, int32(done*4), 0)
		draws++
	}
	return draws
}

func (j *Journal) fatal(op string, err error) {
	compose.Logger().Error("journal: flush failed", "op", op, "err", err)
	panic(fmt.Sprintf("journal: flush: %s: %v", op, err))
}
