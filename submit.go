package compose

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// Submit records commands with record and submits them to the queue.
// It returns the submission index, which the queue reports through
// PollCompleted once the GPU has finished.
func (c *Context) Submit(label string, record func(enc hal.CommandEncoder)) (uint64, error) {
	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return 0, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return 0, fmt.Errorf("begin encoding: %w", err)
	}

	record(encoder)

	cmdBuffer, err := encoder.EndEncoding()
	if err != nil {
		return 0, fmt.Errorf("end encoding: %w", err)
	}

	index, err := c.queue.Submit([]hal.CommandBuffer{cmdBuffer})
	if err != nil {
		c.device.FreeCommandBuffer(cmdBuffer)
		return 0, fmt.Errorf("submit: %w", err)
	}
	c.inFlight = append(c.inFlight, submission{index: index, cmd: cmdBuffer})
	for i := range c.retired {
		if !c.retired[i].stamped {
			c.retired[i].index = index
			c.retired[i].stamped = true
		}
	}
	c.PollCompleted()
	return index, nil
}

// PollCompleted returns the highest completed submission index and frees
// the command buffers of completed submissions.
func (c *Context) PollCompleted() uint64 {
	done := c.queue.PollCompleted()
	n := 0
	for _, s := range c.inFlight {
		if s.index <= done {
			c.device.FreeCommandBuffer(s.cmd)
			continue
		}
		c.inFlight[n] = s
		n++
	}
	clear(c.inFlight[n:])
	c.inFlight = c.inFlight[:n]
	c.runRetired(done)
	return done
}

type submission struct {
	index uint64
	cmd   hal.CommandBuffer
}

// retiredResource is a release deferred until a submission completes.
type retiredResource struct {
	index   uint64
	stamped bool
	release func()
}

// Retire defers release until the GPU has finished the next submission,
// which also orders it after every earlier one. Use it for objects that
// recorded or soon to be recorded work may still reference.
func (c *Context) Retire(release func()) {
	c.retired = append(c.retired, retiredResource{release: release})
}

// PendingRetired returns the number of deferred releases that have not
// run yet.
func (c *Context) PendingRetired() int { return len(c.retired) }

func (c *Context) runRetired(done uint64) {
	n := 0
	for n < len(c.retired) && c.retired[n].stamped && c.retired[n].index <= done {
		n++
	}
	if n == 0 {
		return
	}
	ready := c.retired[:n:n]
	c.retired = c.retired[n:]
	for _, r := range ready {
		r.release()
	}
}

// SubmitAndWait submits like Submit and blocks until the device is idle.
func (c *Context) SubmitAndWait(label string, record func(enc hal.CommandEncoder)) error {
	if _, err := c.Submit(label, record); err != nil {
		return err
	}
	if err := c.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	c.PollCompleted()
	return nil
}
