package journal

// Fence is a callback waiting for the GPU to finish the work logged
// before it was added.
type Fence struct {
	cb      func()
	index   uint64
	stamped bool
}

// AddFence registers cb to run once everything logged so far has been
// drawn by the GPU. Callbacks run from PollFences in the order they were
// added.
func (j *Journal) AddFence(cb func()) *Fence {
	f := &Fence{cb: cb}
	if j.state == StateIdle {
		f.index = j.lastSubmission
		f.stamped = true
	}
	j.fences = append(j.fences, f)
	return f
}

// CancelFence removes f without running it. Cancelling a fence that has
// already run does nothing.
func (j *Journal) CancelFence(f *Fence) {
	for i, other := range j.fences {
		if other == f {
			j.fences = append(j.fences[:i], j.fences[i+1:]...)
			return
		}
	}
}

// PendingFences returns the number of fences that have not run.
func (j *Journal) PendingFences() int { return len(j.fences) }

// PollFences runs the callbacks of fences whose submission has completed
// and returns how many ran. A fence never runs before one added earlier.
// Retired one-off vertex buffers are reclaimed as well.
func (j *Journal) PollFences() int {
	done := j.ctx.PollCompleted()
	j.pool.Reclaim(done)

	n := 0
	for n < len(j.fences) {
		f := j.fences[n]
		if !f.stamped || f.index > done {
			break
		}
		n++
	}
	ready := j.fences[:n:n]
	j.fences = j.fences[n:]
	for _, f := range ready {
		f.cb()
	}
	return n
}

// stampFences ties fences added since the last flush to submission index.
func (j *Journal) stampFences(index uint64) {
	for _, f := range j.fences {
		if !f.stamped {
			f.index = index
			f.stamped = true
		}
	}
}
