package audio

import (
	"sync"
	"testing"
)

func TestSampleQueueEmptyPop(t *testing.T) {
	q := NewSampleQueue()

	for i := 0; i < 10; i++ {
		s, ok := q.TryPop()
		if ok {
			t.Fatalf("TryPop on empty queue returned a sample: %f", s)
		}
		if s != 0 {
			t.Errorf("Expected zero sample on miss, got %f", s)
		}
	}
}

func TestSampleQueueFIFOOrder(t *testing.T) {
	q := NewSampleQueue()

	samples := []float32{0.1, -0.2, 0.3, -0.4, 0.5}
	q.Push(samples[:2])
	q.Push(samples[2:])

	for i, want := range samples {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: queue unexpectedly empty", i)
		}
		if got != want {
			t.Errorf("TryPop %d: expected %f, got %f", i, want, got)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("Queue should be empty after consuming all samples")
	}
}

func TestSampleQueueGrowth(t *testing.T) {
	q := NewSampleQueue()

	// Push well past the initial capacity, offset so the ring wraps.
	warmup := make([]float32, 100)
	q.Push(warmup)
	for i := 0; i < 100; i++ {
		q.TryPop()
	}

	big := make([]float32, minQueueCapacity*3)
	for i := range big {
		big[i] = float32(i)
	}
	q.Push(big)

	if q.Len() != len(big) {
		t.Fatalf("Expected %d queued samples, got %d", len(big), q.Len())
	}

	for i := range big {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: queue unexpectedly empty", i)
		}
		if got != big[i] {
			t.Fatalf("TryPop %d: expected %f, got %f (order broken across growth)", i, big[i], got)
		}
	}
}

func TestSampleQueueReset(t *testing.T) {
	q := NewSampleQueue()
	q.Push([]float32{1, 2, 3})
	q.Reset()

	if q.Len() != 0 {
		t.Errorf("Expected empty queue after Reset, got %d samples", q.Len())
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop should miss after Reset")
	}
}

func TestSampleQueueStats(t *testing.T) {
	q := NewSampleQueue()
	q.Push(make([]float32, 8))
	q.TryPop()
	q.TryPop()

	stats := q.Stats()
	if stats.Pushed != 8 {
		t.Errorf("Expected 8 pushed, got %d", stats.Pushed)
	}
	if stats.Popped != 2 {
		t.Errorf("Expected 2 popped, got %d", stats.Popped)
	}
	if stats.Queued != 6 {
		t.Errorf("Expected 6 queued, got %d", stats.Queued)
	}
}

func TestSampleQueueConcurrentProducerConsumer(t *testing.T) {
	q := NewSampleQueue()
	const total = 50000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		chunk := make([]float32, 128)
		sent := 0
		for sent < total {
			n := len(chunk)
			if total-sent < n {
				n = total - sent
			}
			for i := 0; i < n; i++ {
				chunk[i] = float32(sent + i)
			}
			q.Push(chunk[:n])
			sent += n
		}
	}()

	// Consume like the playback callback: poll, tolerate misses.
	received := 0
	var last float32 = -1
	for received < total {
		s, ok := q.TryPop()
		if !ok {
			continue
		}
		if s <= last {
			t.Fatalf("Out-of-order sample: %f after %f", s, last)
		}
		last = s
		received++
	}

	wg.Wait()
	if q.Len() != 0 {
		t.Errorf("Expected drained queue, got %d samples", q.Len())
	}
}
