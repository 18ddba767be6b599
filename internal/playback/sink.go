package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/speech-stream-service/internal/metrics"
)

// DefaultFramesPerBuffer is the playback callback period in frames.
const DefaultFramesPerBuffer = 1024

// OutputConfig is the output device configuration resolved once at
// session start. The decoder must be constructed with the same values.
type OutputConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// framesPerBuffer returns the configured callback period, falling back
// to the default when unset.
func (c OutputConfig) framesPerBuffer() int {
	if c.FramesPerBuffer <= 0 {
		return DefaultFramesPerBuffer
	}
	return c.FramesPerBuffer
}

// ResolveOutputConfig queries the default output device. portaudio must
// be initialized by the caller.
func ResolveOutputConfig() (OutputConfig, error) {
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return OutputConfig{}, fmt.Errorf("failed to resolve output device: %w", err)
	}

	channels := 2
	if dev.MaxOutputChannels < 2 {
		channels = dev.MaxOutputChannels
	}
	if channels < 1 {
		return OutputConfig{}, fmt.Errorf("output device has no output channels")
	}

	return OutputConfig{
		SampleRate:      int(dev.DefaultSampleRate),
		Channels:        channels,
		FramesPerBuffer: DefaultFramesPerBuffer,
	}, nil
}

// Sink drives the real-time audio output callback. Every callback
// period it pulls from the decoder's sample queue and fills silence on
// underrun. The callback never blocks, sleeps, retries, or allocates:
// missing its deadline causes audible glitches system-wide.
type Sink struct {
	decoder *Decoder
	logger  *slog.Logger
	metrics *metrics.Metrics

	stream *portaudio.Stream

	mu      sync.Mutex
	started bool
	closed  bool

	underruns atomic.Uint64
}

// NewSink opens a stream on the default output device with the given
// configuration. m may be nil. The stream does not run until Start.
func NewSink(decoder *Decoder, cfg OutputConfig, logger *slog.Logger, m *metrics.Metrics) (*Sink, error) {
	s := &Sink{
		decoder: decoder,
		logger:  logger,
		metrics: m,
	}

	stream, err := portaudio.OpenDefaultStream(
		0, cfg.Channels, float64(cfg.SampleRate), cfg.framesPerBuffer(), s.callback,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	s.stream = stream

	logger.Info("Playback sink opened",
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("channels", cfg.Channels),
		slog.Int("frames_per_buffer", cfg.framesPerBuffer()),
	)

	return s, nil
}

// callback runs on the host audio thread.
func (s *Sink) callback(out []float32) {
	missed := false
	for i := range out {
		v, ok := s.decoder.TryGetSample()
		if !ok {
			out[i] = 0
			missed = true
			continue
		}
		out[i] = v
	}
	if missed {
		s.underruns.Add(1)
		if s.metrics != nil {
			s.metrics.RecordPlaybackUnderrun()
		}
	}
}

// Start begins playback.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink is closed")
	}
	if s.started {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	s.started = true
	return nil
}

// Stop halts playback without releasing the stream.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	return nil
}

// Close releases the stream. Safe to call repeatedly.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.started {
		s.started = false
		if err := s.stream.Stop(); err != nil {
			s.logger.Debug("Error stopping output stream", slog.String("error", err.Error()))
		}
	}
	if err := s.stream.Close(); err != nil {
		s.logger.Debug("Error closing output stream", slog.String("error", err.Error()))
	}
}

// Underruns returns the number of callback periods with at least one
// silence-filled sample.
func (s *Sink) Underruns() uint64 {
	return s.underruns.Load()
}
