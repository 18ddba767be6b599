package playback

import (
	"io"
	"sync"
)

// streamBuffer is the growing compressed-audio byte store bridging the
// network feeder and the decode goroutine. Writes append and never
// block; reads block until data arrives or the buffer is closed. The
// read cursor never passes the write cursor.
type streamBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	data    []byte
	readPos int
	closed  bool
}

func newStreamBuffer() *streamBuffer {
	b := &streamBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends a network fragment and wakes the decoder.
func (b *streamBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.data = append(b.data, p...)
	b.cond.Signal()
	return len(p), nil
}

// Read blocks until at least one byte is available past the read cursor
// or the buffer has been closed with no bytes remaining.
func (b *streamBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.readPos >= len(b.data) && !b.closed {
		b.cond.Wait()
	}

	if b.readPos >= len(b.data) {
		return 0, io.EOF
	}

	n := copy(p, b.data[b.readPos:])
	b.readPos += n
	return n, nil
}

// Close marks the end of compressed input. Pending and future reads
// drain the remaining bytes, then return io.EOF. Idempotent.
func (b *streamBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		b.cond.Broadcast()
	}
	return nil
}

// Size returns the number of buffered compressed bytes not yet decoded.
func (b *streamBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) - b.readPos
}
