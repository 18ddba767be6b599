package tts

import "net/http"

// Provider describes a speech-synthesis backend: where to connect for a
// given utterance, which headers to present, and the request frame that
// starts synthesis. Everything provider-specific lives behind this
// interface; the feeder only moves bytes.
type Provider interface {
	// StreamURL returns the websocket endpoint for the utterance.
	StreamURL(text string) string

	// Header returns headers sent with the connection upgrade, such as
	// authorization. May return nil.
	Header() http.Header

	// RequestPayload returns the frame sent right after connecting to
	// request synthesis of the utterance. A nil payload means the
	// endpoint needs no request frame.
	RequestPayload(text string) ([]byte, error)
}

// StaticProvider is a Provider for endpoints that take the utterance as
// a JSON request frame against a fixed URL.
type StaticProvider struct {
	URL     string
	Headers http.Header
	// BuildRequest shapes the request frame from the utterance.
	BuildRequest func(text string) ([]byte, error)
}

func (p *StaticProvider) StreamURL(text string) string { return p.URL }

func (p *StaticProvider) Header() http.Header { return p.Headers }

func (p *StaticProvider) RequestPayload(text string) ([]byte, error) {
	if p.BuildRequest == nil {
		return nil, nil
	}
	return p.BuildRequest(text)
}
