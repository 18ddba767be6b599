package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/speech-stream-service/internal/audio"
	"github.com/skypro1111/speech-stream-service/internal/metrics"
)

const (
	// CaptureSampleRate is the rate recognition backends expect.
	CaptureSampleRate = 16000
	captureChannels   = 1
	chunkFrames       = 4096

	// senderQueueDepth bounds how many chunks may queue for one slow
	// session before chunks are dropped for it.
	senderQueueDepth = 16
)

// Target is a consumer of captured audio, typically a transcription
// session. Frames are little-endian float32 PCM.
type Target interface {
	Recording() bool
	SendAudio(frame []byte) error
	Shutdown(ctx context.Context)
}

// sender owns the delivery order for one target: a single goroutine
// drains the channel, so frames reach the target's connection in
// capture order even when a send is slow.
type sender struct {
	target Target
	ch     chan []byte
}

// Tee captures microphone audio and fans each chunk out to every
// attached target that is currently recording. Delivery is
// fire-and-forget per target: a full sender queue drops the chunk for
// that target instead of stalling capture or the other targets.
type Tee struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	stream   *portaudio.Stream
	senders  []*sender
	recorder *audio.Recorder
	buf      []int16
	running  bool

	wg sync.WaitGroup
}

// NewTee creates a capture tee. m may be nil.
func NewTee(logger *slog.Logger, m *metrics.Metrics) *Tee {
	return &Tee{
		logger:  logger,
		metrics: m,
		buf:     make([]int16, chunkFrames),
	}
}

// Attach adds a target and starts its sender. Targets attached
// mid-capture start receiving audio from the next chunk.
func (t *Tee) Attach(target Target) {
	s := &sender{
		target: target,
		ch:     make(chan []byte, senderQueueDepth),
	}

	t.mu.Lock()
	t.senders = append(t.senders, s)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.runSender(s)
}

// runSender delivers queued frames to one target in FIFO order.
func (t *Tee) runSender(s *sender) {
	defer t.wg.Done()

	for frame := range s.ch {
		if err := s.target.SendAudio(frame); err != nil {
			t.logger.Debug("Failed to send audio chunk",
				slog.String("error", err.Error()),
			)
			continue
		}
		if t.metrics != nil {
			t.metrics.RecordAudioChunkSent(len(frame))
		}
	}
}

// SetRecorder mirrors captured audio into a WAV recorder. Pass nil to
// stop mirroring.
func (t *Tee) SetRecorder(r *audio.Recorder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recorder = r
}

// Start opens the default input device at 16kHz mono and begins
// pumping fixed-size chunks to the attached targets.
func (t *Tee) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	stream, err := portaudio.OpenDefaultStream(
		captureChannels, 0, float64(CaptureSampleRate), chunkFrames, t.buf,
	)
	if err != nil {
		return fmt.Errorf("failed to open capture device: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	t.stream = stream
	t.running = true

	go t.pump(stream)

	t.logger.Info("Audio capture started",
		slog.Int("sample_rate", CaptureSampleRate),
		slog.Int("chunk_frames", chunkFrames),
	)
	return nil
}

// pump reads chunks until the stream is stopped.
func (t *Tee) pump(stream *portaudio.Stream) {
	for {
		if err := stream.Read(); err != nil {
			t.mu.Lock()
			running := t.running
			t.mu.Unlock()
			if running {
				t.logger.Warn("Capture read failed",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		t.mu.Lock()
		if !t.running {
			t.mu.Unlock()
			return
		}
		chunk := make([]int16, len(t.buf))
		copy(chunk, t.buf)
		t.mu.Unlock()

		t.dispatch(chunk)
	}
}

// dispatch converts one chunk to the wire format once and enqueues it
// for every recording target. Never blocks: a full queue drops the
// chunk for that target.
func (t *Tee) dispatch(chunk []int16) {
	frame := audio.Int16ToFloat32LEBytes(chunk)

	t.mu.Lock()
	for _, s := range t.senders {
		if !s.target.Recording() {
			continue
		}
		select {
		case s.ch <- frame:
		default:
			t.logger.Warn("Dropping audio chunk for slow session")
		}
	}
	recorder := t.recorder
	t.mu.Unlock()

	if recorder != nil {
		if err := recorder.WriteSamples(chunk); err != nil {
			t.logger.Warn("Failed to record audio chunk",
				slog.String("error", err.Error()),
			)
		}
	}
}

// Stop flushes the senders, runs the shutdown sequence on every
// attached target, then releases the capture device. Idempotent.
func (t *Tee) Stop(ctx context.Context) {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stream := t.stream
	t.stream = nil
	senders := t.senders
	t.senders = nil
	for _, s := range senders {
		close(s.ch)
	}
	t.mu.Unlock()

	// Queued frames drain before the end-of-audio sequence starts.
	t.wg.Wait()

	var wg sync.WaitGroup
	for _, s := range senders {
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()
			target.Shutdown(ctx)
		}(s.target)
	}
	wg.Wait()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			t.logger.Debug("Failed to stop capture stream",
				slog.String("error", err.Error()),
			)
		}
		if err := stream.Close(); err != nil {
			t.logger.Debug("Failed to close capture stream",
				slog.String("error", err.Error()),
			)
		}
	}

	t.logger.Info("Audio capture stopped")
}
