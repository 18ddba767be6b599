package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/skypro1111/speech-stream-service/internal/protocol"
)

// SessionState represents the protocol state of a transcription session
type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateWaiting    SessionState = "waiting"
	StateReady      SessionState = "ready"
	StateError      SessionState = "error"
	StateClosed     SessionState = "closed"
)

// TranscriptKind distinguishes the two transcript streams of a session
type TranscriptKind int

const (
	KindTranscription TranscriptKind = iota
	KindTranslation
)

func (k TranscriptKind) String() string {
	if k == KindTranslation {
		return "translation"
	}
	return "transcription"
}

// TranscriptEvent is delivered to the sink when a session's joined text
// changes for one of its transcript streams.
type TranscriptEvent struct {
	SessionID string
	Kind      TranscriptKind
	Text      string
	Segments  []protocol.Segment
}

// Sink receives session events. Implementations must not block: events
// are delivered synchronously from the session's receive loop and
// preserve server arrival order.
type Sink interface {
	OnTranscript(event TranscriptEvent)
	OnSessionError(sessionID string, err error)
}

// SessionConfig contains per-session recognition parameters
type SessionConfig struct {
	ServerURL           string
	Language            string
	Task                string
	Model               string
	UseVAD              bool
	SendLastNSegments   int
	NoSpeechThresh      float64
	ClipAudio           bool
	SameOutputThreshold int
	EnableTranslation   bool
	TargetLanguage      string

	// WaitQuietThreshold is how long the server must stay silent before
	// Shutdown proceeds with the end-of-audio sentinel.
	WaitQuietThreshold time.Duration
}

// conn is the subset of *websocket.Conn the session uses; tests may
// substitute an in-memory implementation.
type conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

const (
	defaultWaitQuietThreshold = 15 * time.Second
	waitQuietPollInterval     = 100 * time.Millisecond
	closeTimeout              = 2 * time.Second
)

// Session is one logical client connection to a recognition server.
// All socket writes, binary audio and JSON control frames alike, are
// serialized under sendMu because the socket does not support
// concurrent writers.
type Session struct {
	uid    string
	config SessionConfig
	logger *slog.Logger
	sink   Sink

	conn   conn
	sendMu sync.Mutex

	mu               sync.RWMutex
	registry         *Registry
	state            SessionState
	recording        bool
	failed           bool
	backend          string
	detectedLanguage string
	waitEstimate     float64
	lastActivity     time.Time

	transcript  []protocol.Segment
	translation []protocol.Segment
	lastJoined  [2]string

	readDone  chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session with a client-generated identifier.
// The session does not connect until Connect is called.
func NewSession(config SessionConfig, logger *slog.Logger, sink Sink) *Session {
	if config.Task == "" {
		config.Task = protocol.TaskTranscribe
	}
	if config.WaitQuietThreshold <= 0 {
		config.WaitQuietThreshold = defaultWaitQuietThreshold
	}

	return &Session{
		uid:          uuid.NewString(),
		config:       config,
		logger:       logger,
		sink:         sink,
		state:        StateConnecting,
		lastActivity: time.Now(),
		readDone:     make(chan struct{}),
	}
}

// UID returns the session identifier, stable for the connection lifetime.
func (s *Session) UID() string {
	return s.uid
}

// Connect dials the server, sends the handshake, and starts the receive
// loop. On handshake failure the session enters the error state and is
// not retried by this layer.
func (s *Session) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	wsConn, _, err := dialer.DialContext(ctx, s.config.ServerURL, http.Header{})
	if err != nil {
		s.setFailed(fmt.Errorf("failed to connect to %s: %w", s.config.ServerURL, err))
		return fmt.Errorf("failed to connect to %s: %w", s.config.ServerURL, err)
	}
	s.conn = wsConn

	if err := s.sendHandshake(); err != nil {
		s.setFailed(err)
		wsConn.Close()
		return err
	}

	// Cancellation during connect or receive resolves the pending read
	// by closing the socket; the read loop treats that as shutdown.
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.readDone:
		}
	}()

	go s.readLoop()

	s.logger.Info("Transcription session connected",
		slog.String("uid", s.uid),
		slog.String("server", s.config.ServerURL),
		slog.String("task", s.config.Task),
		slog.String("model", s.config.Model),
	)

	return nil
}

// sendHandshake transmits the single handshake payload.
func (s *Session) sendHandshake() error {
	hello := &protocol.ClientHello{
		UID:                 s.uid,
		Language:            s.config.Language,
		Task:                s.config.Task,
		Model:               s.config.Model,
		UseVAD:              s.config.UseVAD,
		SendLastNSegments:   s.config.SendLastNSegments,
		NoSpeechThresh:      s.config.NoSpeechThresh,
		ClipAudio:           s.config.ClipAudio,
		SameOutputThreshold: s.config.SameOutputThreshold,
		EnableTranslation:   s.config.EnableTranslation,
		TargetLanguage:      s.config.TargetLanguage,
	}

	data, err := protocol.EncodeHello(hello)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}
	return nil
}

// readLoop receives framed JSON messages until the connection drops.
func (s *Session) readLoop() {
	defer close(s.readDone)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(err)
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			s.logger.Warn("Dropping unparseable server message",
				slog.String("uid", s.uid),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.handleServerMessage(msg)
	}
}

// handleDisconnect records a transport-level connection loss.
func (s *Session) handleDisconnect(err error) {
	s.mu.Lock()
	wasClosed := s.state == StateClosed
	s.recording = false
	if !wasClosed {
		s.state = StateError
		s.failed = true
	}
	s.mu.Unlock()

	if wasClosed {
		// Expected teardown path, not a failure.
		return
	}

	s.logger.Warn("Transcription connection lost",
		slog.String("uid", s.uid),
		slog.String("error", err.Error()),
	)
	if s.sink != nil {
		s.sink.OnSessionError(s.uid, fmt.Errorf("connection lost: %w", err))
	}
}

// handleServerMessage dispatches one inbound message. Messages bearing a
// foreign session id are handed to the registry, which knows every live
// session behind the multiplexed endpoint; a message for a session
// nobody registered is dropped entirely.
func (s *Session) handleServerMessage(msg *protocol.ServerMessage) {
	if msg.UID != s.uid {
		s.mu.RLock()
		registry := s.registry
		s.mu.RUnlock()

		if registry != nil && registry.Route(msg) {
			return
		}
		s.logger.Debug("Dropping message for unknown session",
			slog.String("uid", s.uid),
			slog.String("message_uid", msg.UID),
		)
		return
	}

	s.touch()

	switch msg.Classify() {
	case protocol.KindStatus:
		s.handleStatus(msg)

	case protocol.KindDisconnect:
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
		s.logger.Info("Server requested disconnect",
			slog.String("uid", s.uid),
		)

	case protocol.KindServerReady:
		s.mu.Lock()
		s.backend = msg.Backend
		s.state = StateReady
		s.recording = true
		s.mu.Unlock()
		s.logger.Info("Server ready",
			slog.String("uid", s.uid),
			slog.String("backend", msg.Backend),
		)

	case protocol.KindLanguage:
		s.mu.Lock()
		s.detectedLanguage = msg.Language
		s.mu.Unlock()
		s.logger.Info("Server detected language",
			slog.String("uid", s.uid),
			slog.String("language", msg.Language),
		)

	case protocol.KindSegments:
		// Some servers piggyback the detected language on the first
		// segment batch instead of a dedicated message.
		if msg.Language != "" {
			s.mu.Lock()
			s.detectedLanguage = msg.Language
			s.mu.Unlock()
		}
		if msg.Segments != nil {
			s.ingestSegments(KindTranscription, msg.Segments)
		}
		if msg.TranslatedSegments != nil {
			s.ingestSegments(KindTranslation, msg.TranslatedSegments)
		}
	}
}

// handleStatus processes WAIT, ERROR and WARNING statuses.
func (s *Session) handleStatus(msg *protocol.ServerMessage) {
	switch msg.Status {
	case protocol.StatusWait:
		estimate, _ := msg.EstimatedWaitMinutes()
		s.mu.Lock()
		s.state = StateWaiting
		s.waitEstimate = estimate
		s.mu.Unlock()
		s.logger.Info("Server busy, queued",
			slog.String("uid", s.uid),
			slog.Float64("estimated_wait_minutes", estimate),
		)

	case protocol.StatusError:
		s.mu.Lock()
		s.state = StateError
		s.failed = true
		s.mu.Unlock()
		s.logger.Error("Server reported error",
			slog.String("uid", s.uid),
			slog.String("message", msg.MessageText()),
		)
		if s.sink != nil {
			s.sink.OnSessionError(s.uid, fmt.Errorf("server error: %s", msg.MessageText()))
		}

	case protocol.StatusWarning:
		s.logger.Warn("Server reported warning",
			slog.String("uid", s.uid),
			slog.String("message", msg.MessageText()),
		)

	default:
		s.logger.Warn("Unknown server status",
			slog.String("uid", s.uid),
			slog.String("status", msg.Status),
		)
	}
}

// ingestSegments appends received segments to the transcript log and
// raises an event only when the joined text differs from the last one
// emitted for the same stream. The transcripts are monotonically growing
// logs; revision is modeled by the server resending updated segment sets.
func (s *Session) ingestSegments(kind TranscriptKind, segments []protocol.Segment) {
	joined := joinSegments(segments)

	s.mu.Lock()
	switch kind {
	case KindTranscription:
		s.transcript = append(s.transcript, segments...)
	case KindTranslation:
		s.translation = append(s.translation, segments...)
	}
	suppressed := joined == s.lastJoined[kind]
	if !suppressed {
		s.lastJoined[kind] = joined
	}
	s.mu.Unlock()

	if suppressed || s.sink == nil {
		return
	}

	s.sink.OnTranscript(TranscriptEvent{
		SessionID: s.uid,
		Kind:      kind,
		Text:      joined,
		Segments:  segments,
	})
}

// joinSegments builds the deduplication key: trimmed texts joined by a
// single space. Dedup is literal string equality on this value.
func joinSegments(segments []protocol.Segment) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = strings.TrimSpace(seg.Text)
	}
	return strings.Join(parts, " ")
}

// SendAudio transmits one binary audio frame. Frames are dropped with an
// error while the session is not recording; after a server disconnect
// notice no further audio leaves the client.
func (s *Session) SendAudio(frame []byte) error {
	s.mu.RLock()
	recording := s.recording
	s.mu.RUnlock()

	if !recording {
		return fmt.Errorf("session %s is not recording", s.uid)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	return nil
}

// Shutdown performs the caller-driven stop sequence: a bounded
// wait-for-quiet so the server can flush trailing partial results, the
// end-of-audio sentinel, then a graceful close. Teardown never returns
// an error; close-time failures are logged and swallowed.
func (s *Session) Shutdown(ctx context.Context) {
	s.waitForQuiet(ctx)

	s.mu.Lock()
	s.recording = false
	s.mu.Unlock()

	if s.conn != nil {
		s.sendMu.Lock()
		if err := s.conn.WriteMessage(websocket.TextMessage, []byte(protocol.EndOfAudio)); err != nil {
			s.logger.Debug("Failed to send end-of-audio sentinel",
				slog.String("uid", s.uid),
				slog.String("error", err.Error()),
			)
		}
		s.sendMu.Unlock()
	}

	s.Close()
}

// waitForQuiet polls until the server has been silent for the configured
// threshold or the caller's context expires.
func (s *Session) waitForQuiet(ctx context.Context) {
	ticker := time.NewTicker(waitQuietPollInterval)
	defer ticker.Stop()

	for {
		s.mu.RLock()
		quiet := time.Since(s.lastActivity) >= s.config.WaitQuietThreshold
		s.mu.RUnlock()

		if quiet {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-s.readDone:
			return
		case <-ticker.C:
		}
	}
}

// Close closes the connection. Safe to call multiple times and from
// multiple goroutines.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.recording = false
		s.mu.Unlock()

		if s.conn == nil {
			return
		}

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(closeTimeout)); err != nil {
			s.logger.Debug("Failed to send close frame",
				slog.String("uid", s.uid),
				slog.String("error", err.Error()),
			)
		}
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("Error closing connection",
				slog.String("uid", s.uid),
				slog.String("error", err.Error()),
			)
		}
	})
}

// setRegistry links or unlinks the routing registry. Called by the
// registry itself on Register and Unregister.
func (s *Session) setRegistry(r *Registry) {
	s.mu.Lock()
	s.registry = r
	s.mu.Unlock()
}

// touch refreshes the last-activity timestamp. Called for every
// successfully parsed inbound message, including suppressed ones.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// State returns the current protocol state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Recording reports whether audio transmission is currently permitted.
func (s *Session) Recording() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording
}

// Failed reports whether the session hit a server error or transport
// failure. The caller decides whether to recreate the session.
func (s *Session) Failed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failed
}

// Backend returns the server backend name announced at ready time.
func (s *Session) Backend() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// DetectedLanguage returns the server-detected language, when language
// was set to auto-detect.
func (s *Session) DetectedLanguage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detectedLanguage
}

// EstimatedWait returns the queue estimate in minutes from the most
// recent WAIT status.
func (s *Session) EstimatedWait() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitEstimate
}

// Transcript returns a copy of the accumulated segments for a stream.
func (s *Session) Transcript(kind TranscriptKind) []protocol.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var src []protocol.Segment
	switch kind {
	case KindTranscription:
		src = s.transcript
	case KindTranslation:
		src = s.translation
	}

	out := make([]protocol.Segment, len(src))
	copy(out, src)
	return out
}

// LastActivity returns the time of the last parsed server message.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Info returns a monitoring snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		UID:              s.uid,
		State:            s.state,
		Recording:        s.recording,
		Failed:           s.failed,
		Backend:          s.backend,
		DetectedLanguage: s.detectedLanguage,
		Task:             s.config.Task,
		SegmentCount:     len(s.transcript),
		TranslationCount: len(s.translation),
		LastActivity:     s.lastActivity,
	}
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	UID              string       `json:"uid"`
	State            SessionState `json:"state"`
	Recording        bool         `json:"recording"`
	Failed           bool         `json:"failed"`
	Backend          string       `json:"backend,omitempty"`
	DetectedLanguage string       `json:"detected_language,omitempty"`
	Task             string       `json:"task"`
	SegmentCount     int          `json:"segment_count"`
	TranslationCount int          `json:"translation_count"`
	LastActivity     time.Time    `json:"last_activity"`
}

// setFailed marks the session failed before the read loop exists.
func (s *Session) setFailed(err error) {
	s.mu.Lock()
	s.state = StateError
	s.failed = true
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.OnSessionError(s.uid, err)
	}
}
