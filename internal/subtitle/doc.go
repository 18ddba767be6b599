// Package subtitle serializes transcript segments to SubRip (.srt)
// files.
package subtitle
