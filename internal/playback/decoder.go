package playback

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/skypro1111/speech-stream-service/internal/audio"
)

// pcmStream is the decoded side of a compressed-audio decoder: 16-bit
// little-endian stereo PCM at SampleRate.
type pcmStream interface {
	io.Reader
	SampleRate() int
}

// decoderFactory constructs a decoder over the compressed byte stream.
// Construction blocks until enough bytes exist to parse a valid stream
// header, which is how lazy materialization is expressed here: an
// incomplete header waits for the next feed instead of failing.
type decoderFactory func(r io.Reader) (pcmStream, error)

func mp3Factory(r io.Reader) (pcmStream, error) {
	return mp3.NewDecoder(r)
}

// decodedChannels is fixed by the MP3 decoder's output format.
const decodedChannels = 2

// Decoder incrementally decodes a compressed audio stream arriving in
// network-sized fragments, resamples it to the output device
// configuration resolved at construction, and queues normalized samples
// for the playback callback.
type Decoder struct {
	queue       *audio.SampleQueue
	outRate     int
	outChannels int
	logger      *slog.Logger
	factory     decoderFactory

	mu      sync.Mutex
	buf     *streamBuffer
	started bool
	done    chan struct{}
	closed  bool
}

// NewDecoder creates a decoder targeting the output device's exact
// configuration. outRate and outChannels must match the device the
// samples will be played on.
func NewDecoder(outRate, outChannels int, logger *slog.Logger) *Decoder {
	return &Decoder{
		queue:       audio.NewSampleQueue(),
		outRate:     outRate,
		outChannels: outChannels,
		logger:      logger,
		factory:     mp3Factory,
	}
}

// Feed appends a compressed fragment. The first non-empty feed starts
// the decode goroutine; feeding zero bytes is a no-op; fragments fed
// before a full header exists buffer silently.
func (d *Decoder) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if !d.started {
		d.buf = newStreamBuffer()
		d.done = make(chan struct{})
		d.started = true
		go d.decodeLoop(d.buf, d.done)
	}
	buf := d.buf
	d.mu.Unlock()

	buf.Write(chunk)
}

// CloseFeed marks the end of the compressed stream. Already-buffered
// bytes still decode; the decode goroutine exits once they drain.
func (d *Decoder) CloseFeed() {
	d.mu.Lock()
	buf := d.buf
	d.mu.Unlock()

	if buf != nil {
		buf.Close()
	}
}

// Reset discards buffered compressed bytes and queued samples and
// prepares the decoder for a fresh stream.
func (d *Decoder) Reset() {
	d.stop()
	d.queue.Reset()

	d.mu.Lock()
	d.closed = false
	d.mu.Unlock()
}

// Close releases the decoder and its buffers. Safe to call repeatedly.
func (d *Decoder) Close() {
	d.stop()
	d.queue.Reset()
}

// stop tears down the current decode goroutine, if any.
func (d *Decoder) stop() {
	d.mu.Lock()
	buf, done := d.buf, d.done
	d.buf = nil
	d.done = nil
	d.started = false
	d.closed = true
	d.mu.Unlock()

	if buf != nil {
		buf.Close()
	}
	if done != nil {
		<-done
	}
}

// TryGetSample pops one queued sample without blocking.
func (d *Decoder) TryGetSample() (float32, bool) {
	return d.queue.TryPop()
}

// HasSamples reports whether decoded samples are queued.
func (d *Decoder) HasSamples() bool {
	return d.queue.Len() > 0
}

// QueueStats exposes sample queue counters for monitoring.
func (d *Decoder) QueueStats() audio.QueueStats {
	return d.queue.Stats()
}

// decodeLoop constructs the decoder lazily over the growing buffer and
// pushes converted samples until the stream ends. Runs on a background
// goroutine; the real-time callback only ever touches the queue.
func (d *Decoder) decodeLoop(buf *streamBuffer, done chan struct{}) {
	defer close(done)

	stream, err := d.factory(buf)
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			d.logger.Warn("Failed to initialize audio decoder",
				slog.String("error", err.Error()),
			)
		}
		return
	}

	conv := newConverter(stream.SampleRate(), d.outRate, d.outChannels)
	d.logger.Debug("Audio decoder initialized",
		slog.Int("source_rate", stream.SampleRate()),
		slog.Int("output_rate", d.outRate),
		slog.Int("output_channels", d.outChannels),
	)

	raw := make([]byte, 8192)
	pending := 0
	for {
		n, err := stream.Read(raw[pending:])
		total := pending + n

		// Frames are int16 pairs per channel; hold back a ragged tail.
		usable := total - total%(2*decodedChannels)
		if usable > 0 {
			samples, convErr := audio.Float32FromPCM16LE(raw[:usable])
			if convErr == nil {
				d.queue.Push(conv.process(samples))
			}
			copy(raw, raw[usable:total])
		}
		pending = total - usable

		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.logger.Warn("Audio decode ended with error",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}
