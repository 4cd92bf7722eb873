package parallel

import "sync"

// MinPixels is the image area below which Rows runs on the calling
// goroutine.
const MinPixels = 256 * 256

var (
	sharedOnce sync.Once
	shared     *WorkerPool
)

func sharedPool() *WorkerPool {
	sharedOnce.Do(func() {
		shared = NewWorkerPool(0)
	})
	return shared
}

// Rows calls fn over disjoint bands [y0, y1) covering height rows of a
// width-pixel image and returns when every band is done. Small images
// are processed as a single band.
func Rows(width, height int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	if width*height < MinPixels || height < 2 {
		fn(0, height)
		return
	}
	p := sharedPool()
	bands := Bands(height, p.Workers())
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b[0], b[1]) }
	}
	p.ExecuteAll(work)
}

// Bands splits height rows into at most n contiguous bands of nearly
// equal size.
func Bands(height, n int) [][2]int {
	if height <= 0 {
		return nil
	}
	n = max(min(n, height), 1)
	bands := make([][2]int, 0, n)
	y := 0
	for i := range n {
		rows := height / n
		if i < height%n {
			rows++
		}
		bands = append(bands, [2]int{y, y + rows})
		y += rows
	}
	return bands
}
