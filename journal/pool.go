package journal

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose"
)

// vertexBufferUsage: vertices reach the pool through Queue.WriteBuffer,
// so slots are never mapped.
const vertexBufferUsage = gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst

// BufferPool is a ring of vertex buffers handed out round-robin, so a
// buffer is only written again after the other N-1 have been used.
type BufferPool struct {
	device   hal.Device
	queue    hal.Queue
	buffers  []hal.Buffer
	capacity int
	next     int

	// retired one-off buffers waiting for their submission to complete.
	retired []retiredBuffer
}

type retiredBuffer struct {
	buf   hal.Buffer
	index uint64
}

// NewBufferPool creates n buffers of capacity bytes each.
func NewBufferPool(ctx *compose.Context, n, capacity int) (*BufferPool, error) {
	if n <= 0 || capacity <= 0 {
		return nil, fmt.Errorf("%w: %d buffers of %d bytes", ErrPoolSize, n, capacity)
	}
	p := &BufferPool{
		device:   ctx.Device(),
		queue:    ctx.Queue(),
		buffers:  make([]hal.Buffer, 0, n),
		capacity: capacity,
	}
	for i := 0; i < n; i++ {
		buf, err := p.create(fmt.Sprintf("compose-journal-pool-%d", i), capacity)
		if err != nil {
			p.Destroy()
			return nil, compose.WrapError(compose.DomainBuffer, "create pool", compose.HALErrorKind(err), err)
		}
		p.buffers = append(p.buffers, buf)
	}
	return p, nil
}

func (p *BufferPool) create(label string, size int) (hal.Buffer, error) {
	return p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: vertexBufferUsage,
	})
}

// Len returns the number of pooled buffers.
func (p *BufferPool) Len() int { return len(p.buffers) }

// Capacity returns the size in bytes of each pooled buffer.
func (p *BufferPool) Capacity() int { return p.capacity }

// Next returns the ring index the next Acquire will hand out.
func (p *BufferPool) Next() int { return p.next }

// Acquire returns a buffer that can hold n bytes. Requests above the
// capacity get a one-off buffer and leave the ring where it is; the
// caller must Retire it after submitting.
func (p *BufferPool) Acquire(n int) (buf hal.Buffer, oneOff bool, err error) {
	if n > p.capacity {
		buf, err = p.create("compose-journal-oneoff", n)
		if err != nil {
			return nil, false, compose.WrapError(compose.DomainBuffer, "create one-off buffer", compose.HALErrorKind(err), err)
		}
		return buf, true, nil
	}
	buf = p.buffers[p.next]
	p.next = (p.next + 1) % len(p.buffers)
	return buf, false, nil
}

// Retire schedules a one-off buffer for destruction once submission
// index has completed.
func (p *BufferPool) Retire(buf hal.Buffer, index uint64) {
	p.retired = append(p.retired, retiredBuffer{buf: buf, index: index})
}

// Reclaim destroys retired buffers whose submission is at or below
// completed and returns how many were destroyed.
func (p *BufferPool) Reclaim(completed uint64) int {
	n := 0
	kept := p.retired[:0]
	for _, r := range p.retired {
		if r.index <= completed {
			p.device.DestroyBuffer(r.buf)
			n++
			continue
		}
		kept = append(kept, r)
	}
	clear(p.retired[len(kept):])
	p.retired = kept
	return n
}

// Pending returns the number of retired buffers not yet reclaimed.
func (p *BufferPool) Pending() int { return len(p.retired) }

// write copies floats to the start of buf through the queue. The copy is
// ordered before the next submission.
func (p *BufferPool) write(buf hal.Buffer, floats []float32) error {
	if len(floats) == 0 {
		return nil
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(&floats[0])), len(floats)*4)
	return p.queue.WriteBuffer(buf, 0, data)
}

// Destroy frees every buffer, including retired ones that have not
// been reclaimed.
func (p *BufferPool) Destroy() {
	for _, buf := range p.buffers {
		p.device.DestroyBuffer(buf)
	}
	for _, r := range p.retired {
		p.device.DestroyBuffer(r.buf)
	}
	p.buffers = nil
	p.retired = nil
}
