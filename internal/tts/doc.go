// Package tts streams synthesized speech from a websocket endpoint into
// the playback decoder. The feeder owns the network side only: provider
// selection and request shaping live behind the Provider interface, and
// decoded audio is the playback package's concern.
package tts
