package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Sample format conversions shared by the playback and capture paths.
//
// Playback consumes 16-bit little-endian signed PCM and normalizes each
// sample to [-1, 1] via int16/32768. Capture produces the recognition
// server's wire format: raw 32-bit float PCM, little-endian, mono.

// Int16ToFloat32 normalizes a single PCM-16 sample to [-1, 1].
func Int16ToFloat32(s int16) float32 {
	return float32(s) / 32768.0
}

// BytesToInt16LE converts little-endian PCM-16 bytes to samples.
// The input length must be even.
func BytesToInt16LE(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM-16 data length must be even, got %d bytes", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// Float32FromPCM16LE converts little-endian PCM-16 bytes to normalized
// float32 samples. Trailing odd bytes are rejected.
func Float32FromPCM16LE(data []byte) ([]float32, error) {
	ints, err := BytesToInt16LE(data)
	if err != nil {
		return nil, err
	}

	samples := make([]float32, len(ints))
	for i, s := range ints {
		samples[i] = Int16ToFloat32(s)
	}
	return samples, nil
}

// Int16ToFloat32LEBytes packs PCM-16 capture samples as normalized 32-bit
// float little-endian bytes, the binary frame format the recognition
// server expects.
func Int16ToFloat32LEBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(Int16ToFloat32(s))
		binary.LittleEndian.PutUint32(out[i*4:], bits)
	}
	return out
}
