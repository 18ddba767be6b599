package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/speech-stream-service/internal/metrics"
	"github.com/skypro1111/speech-stream-service/internal/playback"
)

const dialTimeout = 10 * time.Second

// decoder is the subset of the playback decoder the feeder drives;
// tests may substitute a recording implementation.
type decoder interface {
	Feed(chunk []byte)
	CloseFeed()
	Reset()
}

// Feeder pulls a synthesized audio stream over a websocket and feeds
// every binary fragment to the playback decoder. At most one stream is
// active at a time; a second StartStreaming while one is connecting or
// connected is refused.
type Feeder struct {
	decoder decoder
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	starting bool
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewFeeder creates a feeder that decodes into the given decoder. The
// decoder is shared with the playback sink and is reset at the start of
// every stream. m may be nil.
func NewFeeder(d *playback.Decoder, logger *slog.Logger, m *metrics.Metrics) *Feeder {
	return &Feeder{
		decoder: d,
		logger:  logger,
		metrics: m,
	}
}

// StartStreaming connects to the provider, requests synthesis of text
// and forwards the audio stream to the decoder until the stream ends or
// ctx is cancelled. Returns once the stream is established; the
// transfer itself runs on a background goroutine. Cancellation is
// normal control flow, not an error.
func (f *Feeder) StartStreaming(ctx context.Context, text string, provider Provider) error {
	// Reserve the single stream slot before any blocking work so a
	// concurrent start during the dial is refused, not doubled up.
	f.mu.Lock()
	if f.starting || f.conn != nil {
		f.mu.Unlock()
		f.logger.Warn("Refusing to start TTS stream, another stream is active")
		return nil
	}
	f.starting = true
	f.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, provider.StreamURL(text), provider.Header())
	if err != nil {
		f.releaseSlot()
		if ctx.Err() != nil {
			f.logger.Debug("TTS dial cancelled")
			return nil
		}
		return fmt.Errorf("failed to connect to TTS endpoint: %w", err)
	}

	payload, err := provider.RequestPayload(text)
	if err != nil {
		conn.Close()
		f.releaseSlot()
		return fmt.Errorf("failed to build TTS request: %w", err)
	}
	if payload != nil {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			f.releaseSlot()
			return fmt.Errorf("failed to send TTS request: %w", err)
		}
	}

	// The previous utterance's samples are discarded only once the new
	// stream is actually established; a failed or cancelled dial leaves
	// the queue untouched.
	f.decoder.Reset()

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	f.mu.Lock()
	f.starting = false
	f.conn = conn
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	// Closing the socket is the only way to resolve a pending read.
	go func() {
		select {
		case <-streamCtx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go f.readLoop(conn, done)

	if f.metrics != nil {
		f.metrics.RecordTTSStream()
	}
	f.logger.Info("TTS stream started",
		slog.Int("text_length", len(text)),
	)
	return nil
}

// releaseSlot frees the stream slot after a failed start.
func (f *Feeder) releaseSlot() {
	f.mu.Lock()
	f.starting = false
	f.mu.Unlock()
}

// readLoop forwards binary fragments to the decoder until the stream
// ends. Every exit path marks the end of compressed input and releases
// the connection.
func (f *Feeder) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer f.release(conn)
	defer f.decoder.CloseFeed()

	received := 0
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Debug("TTS stream closed by server",
					slog.Int("bytes_received", received),
				)
			} else {
				f.logger.Debug("TTS stream ended",
					slog.Int("bytes_received", received),
					slog.String("reason", err.Error()),
				)
			}
			return
		}

		if messageType == websocket.BinaryMessage && len(data) > 0 {
			received += len(data)
			if f.metrics != nil {
				f.metrics.RecordTTSBytes(len(data))
			}
			f.decoder.Feed(data)
		}
	}
}

// release closes the connection gracefully and clears the active-stream
// slot. Teardown errors are logged, never surfaced.
func (f *Feeder) release(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		f.logger.Debug("Failed to send close frame", slog.String("error", err.Error()))
	}
	if err := conn.Close(); err != nil {
		f.logger.Debug("Failed to close TTS connection", slog.String("error", err.Error()))
	}

	f.mu.Lock()
	if f.conn == conn {
		f.conn = nil
		f.cancel = nil
	}
	f.mu.Unlock()
}

// Streaming reports whether a stream is currently connecting or active.
func (f *Feeder) Streaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starting || f.conn != nil
}

// Stop cancels the active stream, if any, and waits for the transfer
// goroutine to finish. Safe to call repeatedly.
func (f *Feeder) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Close stops the active stream. The decoder is owned by the caller and
// is not closed here.
func (f *Feeder) Close() {
	f.Stop()
}
