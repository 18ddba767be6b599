package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Protocol constants for the recognition server connection
const (
	// Status values carried by the "status" field
	StatusWait    = "WAIT"
	StatusError   = "ERROR"
	StatusWarning = "WARNING"

	// Control values carried by the "message" field
	MsgDisconnect  = "DISCONNECT"
	MsgServerReady = "SERVER_READY"

	// EndOfAudio is the text frame the client sends after the last
	// audio frame so the server can flush trailing results.
	EndOfAudio = "END_OF_AUDIO"

	// Task types for the handshake
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

// ClientHello is the handshake payload sent once immediately after the
// socket connects.
type ClientHello struct {
	UID                 string  `json:"uid"`
	Language            string  `json:"language,omitempty"`
	Task                string  `json:"task"`
	Model               string  `json:"model"`
	UseVAD              bool    `json:"use_vad"`
	SendLastNSegments   int     `json:"send_last_n_segments"`
	NoSpeechThresh      float64 `json:"no_speech_thresh"`
	ClipAudio           bool    `json:"clip_audio"`
	SameOutputThreshold int     `json:"same_output_threshold"`
	EnableTranslation   bool    `json:"enable_translation"`
	TargetLanguage      string  `json:"target_language,omitempty"`
}

// Segment is a timestamped span of recognized or translated text.
// Immutable once received; revisions arrive as resent segment sets.
type Segment struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	Completed bool    `json:"completed"`
}

// UnmarshalJSON accepts start/end as either JSON numbers or the
// string-encoded seconds some server builds emit.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start     json.Number `json:"start"`
		End       json.Number `json:"end"`
		Text      string      `json:"text"`
		Completed bool        `json:"completed"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		// Some server builds emit timestamps as quoted strings.
		return s.unmarshalQuoted(data)
	}

	start, err := raw.Start.Float64()
	if err != nil {
		return fmt.Errorf("invalid segment start %q: %w", raw.Start, err)
	}
	end, err := raw.End.Float64()
	if err != nil {
		return fmt.Errorf("invalid segment end %q: %w", raw.End, err)
	}

	s.Start = start
	s.End = end
	s.Text = raw.Text
	s.Completed = raw.Completed
	return nil
}

// unmarshalQuoted handles segments whose timestamps are JSON strings.
func (s *Segment) unmarshalQuoted(data []byte) error {
	var raw struct {
		Start     string `json:"start"`
		End       string `json:"end"`
		Text      string `json:"text"`
		Completed bool   `json:"completed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse segment: %w", err)
	}

	start, err := strconv.ParseFloat(raw.Start, 64)
	if err != nil {
		return fmt.Errorf("invalid segment start %q: %w", raw.Start, err)
	}
	end, err := strconv.ParseFloat(raw.End, 64)
	if err != nil {
		return fmt.Errorf("invalid segment end %q: %w", raw.End, err)
	}

	s.Start = start
	s.End = end
	s.Text = raw.Text
	s.Completed = raw.Completed
	return nil
}

// ServerMessage is one framed JSON message from the recognition server.
// Field presence determines the message kind.
type ServerMessage struct {
	UID                string          `json:"uid"`
	Status             string          `json:"status,omitempty"`
	Message            json.RawMessage `json:"message,omitempty"`
	Backend            string          `json:"backend,omitempty"`
	Language           string          `json:"language,omitempty"`
	Segments           []Segment       `json:"segments,omitempty"`
	TranslatedSegments []Segment       `json:"translated_segments,omitempty"`
}

// MessageKind identifies how a ServerMessage should be handled.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindStatus
	KindDisconnect
	KindServerReady
	KindLanguage
	KindSegments
)

// Parse decodes one framed JSON message.
func Parse(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse server message: %w", err)
	}
	return &msg, nil
}

// Classify determines the message kind. Evaluation order matches the
// dispatch precedence: status first, then disconnect and ready notices,
// then language detection, then segment payloads.
func (m *ServerMessage) Classify() MessageKind {
	switch {
	case m.Status != "":
		return KindStatus
	case m.MessageText() == MsgDisconnect:
		return KindDisconnect
	case m.MessageText() == MsgServerReady:
		return KindServerReady
	case m.Language != "" && m.Segments == nil && m.TranslatedSegments == nil:
		return KindLanguage
	case m.Segments != nil || m.TranslatedSegments != nil:
		return KindSegments
	default:
		return KindUnknown
	}
}

// MessageText returns the "message" field when it is a JSON string,
// otherwise the empty string. WAIT statuses reuse the field for a
// numeric estimate, so the raw form is kept.
func (m *ServerMessage) MessageText() string {
	if len(m.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Message, &s); err != nil {
		return ""
	}
	return s
}

// EstimatedWaitMinutes extracts the queue estimate attached to a WAIT
// status. The server sends it as a bare number in the message field.
func (m *ServerMessage) EstimatedWaitMinutes() (float64, bool) {
	if m.Status != StatusWait || len(m.Message) == 0 {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(m.Message, &v); err != nil {
		return 0, false
	}
	return v, true
}

// EncodeHello serializes the handshake payload.
func EncodeHello(hello *ClientHello) ([]byte, error) {
	data, err := json.Marshal(hello)
	if err != nil {
		return nil, fmt.Errorf("failed to encode handshake: %w", err)
	}
	return data, nil
}
