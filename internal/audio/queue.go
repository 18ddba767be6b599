package audio

import (
	"sync"
)

// SampleQueue is a FIFO of normalized float32 samples shared between the
// decode producer and the playback callback consumer. Capacity is unbounded;
// in practice it is bounded by the network arrival pace on the producer side
// against the device clock on the consumer side.
//
// TryPop never blocks. The critical sections are a few instructions long so
// the playback callback can take the lock without risking its deadline.
type SampleQueue struct {
	mu    sync.Mutex
	buf   []float32
	head  int // index of the next sample to pop
	count int

	pushed uint64
	popped uint64
}

const minQueueCapacity = 4096

// NewSampleQueue creates an empty sample queue.
func NewSampleQueue() *SampleQueue {
	return &SampleQueue{
		buf: make([]float32, minQueueCapacity),
	}
}

// Push appends samples in playback order.
func (q *SampleQueue) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count+len(samples) > len(q.buf) {
		q.grow(q.count + len(samples))
	}

	tail := (q.head + q.count) % len(q.buf)
	n := copy(q.buf[tail:], samples)
	if n < len(samples) {
		copy(q.buf, samples[n:])
	}
	q.count += len(samples)
	q.pushed += uint64(len(samples))
}

// TryPop removes and returns the oldest sample. It returns false on an
// empty queue and never blocks.
func (q *SampleQueue) TryPop() (float32, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return 0, false
	}

	s := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.popped++
	return s, true
}

// Len returns the number of queued samples.
func (q *SampleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Reset discards all queued samples.
func (q *SampleQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head = 0
	q.count = 0
}

// Stats returns lifetime push/pop counters for monitoring.
func (q *SampleQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Queued: q.count,
		Pushed: q.pushed,
		Popped: q.popped,
	}
}

// QueueStats represents sample queue statistics for monitoring.
type QueueStats struct {
	Queued int    `json:"queued_samples"`
	Pushed uint64 `json:"pushed_samples_total"`
	Popped uint64 `json:"popped_samples_total"`
}

// grow reallocates the ring so it can hold at least need samples.
// Called with q.mu held.
func (q *SampleQueue) grow(need int) {
	capacity := len(q.buf) * 2
	for capacity < need {
		capacity *= 2
	}

	next := make([]float32, capacity)
	n := copy(next, q.buf[q.head:q.head+min(q.count, len(q.buf)-q.head)])
	if n < q.count {
		copy(next[n:], q.buf[:q.count-n])
	}
	q.buf = next
	q.head = 0
}
