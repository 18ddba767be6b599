// Package playback implements the text-to-speech playback pipeline: a
// streaming decoder that turns compressed audio fragments into device
// format samples, and the real-time output sink that consumes them with
// silence fill on underrun.
package playback
