// Package audio provides the shared sample queue, PCM format conversions,
// and WAV recording used by the playback and capture pipelines.
package audio
