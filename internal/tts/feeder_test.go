package tts

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/speech-stream-service/internal/playback"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDecoder records the calls the feeder makes so tests can assert
// when the shared sample queue is touched.
type fakeDecoder struct {
	mu     sync.Mutex
	resets int
	closes int
	fed    [][]byte
}

func (d *fakeDecoder) Feed(chunk []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := make([]byte, len(chunk))
	copy(c, chunk)
	d.fed = append(d.fed, c)
}

func (d *fakeDecoder) CloseFeed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
}

func (d *fakeDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
}

func (d *fakeDecoder) stats() (resets, closes, chunks int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets, d.closes, len(d.fed)
}

func testFeeder() (*Feeder, *fakeDecoder) {
	f := NewFeeder(playback.NewDecoder(16000, 2, testLogger()), testLogger(), nil)
	d := &fakeDecoder{}
	f.decoder = d
	return f, d
}

// ttsServer is a synthesis endpoint stand-in. handler runs per
// connection after the upgrade; connections are counted.
type ttsServer struct {
	*httptest.Server
	conns atomic.Int32
}

func newTTSServer(t *testing.T, handler func(conn *websocket.Conn)) *ttsServer {
	t.Helper()

	s := &ttsServer{}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		s.conns.Add(1)
		handler(conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *ttsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func jsonProvider(url string) Provider {
	return &StaticProvider{
		URL: url,
		BuildRequest: func(text string) ([]byte, error) {
			return []byte(`{"text":"` + text + `"}`), nil
		},
	}
}

func waitForStreamEnd(t *testing.T, f *Feeder) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for f.Streaming() {
		if time.Now().After(deadline) {
			t.Fatal("Stream did not end")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeederSendsRequestAndDrainsStream(t *testing.T) {
	request := make(chan string, 1)
	server := newTTSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("Failed to read request frame: %v", err)
			return
		}
		request <- string(data)

		for i := 0; i < 3; i++ {
			if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 512)); err != nil {
				t.Errorf("Failed to write audio fragment: %v", err)
				return
			}
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		// Wait for the client's close frame before tearing down.
		conn.ReadMessage()
	})

	f, d := testFeeder()
	if err := f.StartStreaming(context.Background(), "hello", jsonProvider(server.wsURL())); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}

	select {
	case got := <-request:
		if got != `{"text":"hello"}` {
			t.Errorf("Unexpected request frame: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server never received the request frame")
	}

	waitForStreamEnd(t, f)

	resets, closes, chunks := d.stats()
	if resets != 1 {
		t.Errorf("Expected 1 decoder reset, got %d", resets)
	}
	if closes != 1 {
		t.Errorf("Expected 1 CloseFeed, got %d", closes)
	}
	if chunks != 3 {
		t.Errorf("Expected 3 fed fragments, got %d", chunks)
	}
}

func TestFeederRefusesSecondStream(t *testing.T) {
	release := make(chan struct{})
	server := newTTSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		<-release
	})
	defer close(release)

	f, _ := testFeeder()
	defer f.Stop()

	if err := f.StartStreaming(context.Background(), "first", jsonProvider(server.wsURL())); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}
	if !f.Streaming() {
		t.Fatal("Expected active stream")
	}

	// The second start is refused without touching the endpoint.
	if err := f.StartStreaming(context.Background(), "second", jsonProvider(server.wsURL())); err != nil {
		t.Fatalf("Second StartStreaming returned error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if n := server.conns.Load(); n != 1 {
		t.Errorf("Expected 1 connection, got %d", n)
	}
}

func TestFeederRefusesStartWhileDialing(t *testing.T) {
	// A listener that accepts but never answers the upgrade keeps the
	// first dial pending.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		// Swallow the upgrade request without answering so the
		// handshake stalls until the dial context is cancelled.
		buf := make([]byte, 1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				conn.Close()
				return
			}
		}
	}()

	server := newTTSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
	})

	f, d := testFeeder()

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		f.StartStreaming(ctx, "first", jsonProvider("ws://"+listener.Addr().String()))
	}()

	// Wait until the first start holds the slot.
	deadline := time.Now().Add(time.Second)
	for !f.Streaming() {
		if time.Now().After(deadline) {
			t.Fatal("First start never reserved the stream slot")
		}
		time.Sleep(time.Millisecond)
	}

	// The second start must be refused while the first is still dialing.
	if err := f.StartStreaming(context.Background(), "second", jsonProvider(server.wsURL())); err != nil {
		t.Fatalf("Second StartStreaming returned error: %v", err)
	}
	if n := server.conns.Load(); n != 0 {
		t.Errorf("Second start reached the endpoint: %d connections", n)
	}

	cancel()
	select {
	case <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancelled dial never returned")
	}

	if resets, _, _ := d.stats(); resets != 0 {
		t.Errorf("Cancelled dial reset the decoder %d times", resets)
	}
}

func TestFeederStopCancelsStream(t *testing.T) {
	release := make(chan struct{})
	server := newTTSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		<-release
	})
	defer close(release)

	f, _ := testFeeder()
	if err := f.StartStreaming(context.Background(), "hello", jsonProvider(server.wsURL())); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}

	f.Stop()
	if f.Streaming() {
		t.Error("Stream still active after Stop")
	}

	// Stop and Close stay safe once the stream is gone.
	f.Stop()
	f.Close()
}

func TestFeederCancelledDialIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, d := testFeeder()
	if err := f.StartStreaming(ctx, "hello", jsonProvider("ws://127.0.0.1:1/stream")); err != nil {
		t.Fatalf("Cancelled dial surfaced an error: %v", err)
	}
	if f.Streaming() {
		t.Error("Cancelled dial left an active stream")
	}

	// The queued samples of a previous utterance survive a cancelled
	// dial: the decoder is reset only once a stream is established.
	if resets, closes, chunks := d.stats(); resets != 0 || closes != 0 || chunks != 0 {
		t.Errorf("Cancelled dial touched the decoder: resets=%d closes=%d chunks=%d", resets, closes, chunks)
	}

	// The feeder stays usable for the next utterance.
	server := newTTSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.ReadMessage()
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.ReadMessage()
	})
	if err := f.StartStreaming(context.Background(), "again", jsonProvider(server.wsURL())); err != nil {
		t.Fatalf("StartStreaming after cancelled dial failed: %v", err)
	}
	waitForStreamEnd(t, f)

	if resets, _, _ := d.stats(); resets != 1 {
		t.Errorf("Expected 1 reset for the established stream, got %d", resets)
	}
}

func TestFeederDialFailure(t *testing.T) {
	f, d := testFeeder()
	if err := f.StartStreaming(context.Background(), "hello", jsonProvider("ws://127.0.0.1:1/stream")); err == nil {
		t.Fatal("Expected dial error for unreachable endpoint")
	}
	if f.Streaming() {
		t.Error("Failed dial left an active stream")
	}
	if resets, _, _ := d.stats(); resets != 0 {
		t.Errorf("Failed dial reset the decoder %d times", resets)
	}
}
