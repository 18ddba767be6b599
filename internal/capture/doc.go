// Package capture reads microphone audio through portaudio and fans
// fixed-size chunks out to transcription sessions, with an optional WAV
// mirror of everything captured.
package capture
