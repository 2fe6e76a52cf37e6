package transfer

import (
	"sync"
	"time"

	"github.com/lanxfer/lanxfer/internal/config"
)

// chunkTracker holds the shared chunk_id → bytes_received table for
// one in-flight parallel-file transfer, protected by a single lock
// over the whole map since updates are tiny and frequent enough that
// finer-grained locking would not pay for itself.
type chunkTracker struct {
	mut      sync.Mutex
	received map[int]int64
	total    int64
}

func newChunkTracker(numChunks int, total int64) *chunkTracker {
	return &chunkTracker{received: make(map[int]int64, numChunks), total: total}
}

func (t *chunkTracker) add(chunkID int, n int64) {
	t.mut.Lock()
	t.received[chunkID] += n
	t.mut.Unlock()
}

func (t *chunkTracker) sum() int64 {
	t.mut.Lock()
	defer t.mut.Unlock()
	var sum int64
	for _, v := range t.received {
		sum += v
	}
	return sum
}

// runSampler emits a Progress event at ProgressSampleInterval cadence
// until done is closed. It is safe to let it run past a failed
// transfer: the caller simply stops reading OnComplete's effect and
// closes done.
func (t *chunkTracker) runSampler(sink Sink, done <-chan struct{}) {
	ticker := time.NewTicker(config.ProgressSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			got := t.sum()
			pct := 0.0
			if t.total > 0 {
				pct = 100 * float64(got) / float64(t.total)
			}
			sink.OnProgress(pct, "")
		}
	}
}

// CancelFlag is a single-writer (UI), multi-reader (chunk workers)
// boolean checked between chunk boundaries of any active folder or
// parallel transfer so a cancellation request stops further writes
// promptly without tearing down in-flight I/O mid-call. The zero value
// is ready to use.
type CancelFlag struct {
	mut  sync.RWMutex
	flag bool
}

// Cancel marks the flag; subsequent Cancelled calls return true.
func (c *CancelFlag) Cancel() {
	c.mut.Lock()
	c.flag = true
	c.mut.Unlock()
}

func (c *CancelFlag) Cancelled() bool {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.flag
}
