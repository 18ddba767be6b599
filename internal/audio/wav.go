package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

const wavHeaderSize = 44

// Recorder writes captured PCM-16 mono audio to a WAV file incrementally.
// The RIFF and data chunk sizes are unknown while recording, so a
// placeholder header is written up front and patched on Close.
type Recorder struct {
	file       *os.File
	sampleRate int

	mu      sync.Mutex
	dataLen uint32
	closed  bool
}

// NewRecorder creates a WAV recorder for 16-bit mono PCM at sampleRate.
func NewRecorder(path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file %s: %w", path, err)
	}

	r := &Recorder{file: file, sampleRate: sampleRate}
	if err := r.writeHeader(0); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	return r, nil
}

// WriteSamples appends PCM-16 samples to the recording.
func (r *Recorder) WriteSamples(samples []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	if len(samples) == 0 {
		return nil
	}

	if err := binary.Write(r.file, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	r.dataLen += uint32(len(samples) * 2)
	return nil
}

// Close patches the header sizes and closes the file. Safe to call twice.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to rewind recording: %w", err)
	}
	if err := r.writeHeader(r.dataLen); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// writeHeader writes the 44-byte canonical WAV header for 16-bit mono PCM.
func (r *Recorder) writeHeader(dataLen uint32) error {
	var header [wavHeaderSize]byte

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataLen)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(r.sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(r.sampleRate)*2) // byte rate
	binary.LittleEndian.PutUint16(header[32:34], 2)                      // block align
	binary.LittleEndian.PutUint16(header[34:36], 16)                     // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataLen)

	if _, err := r.file.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	return nil
}

// DecodeWAV decodes 16-bit mono PCM WAV data back to samples and its
// sample rate. Used by tests and tooling, not the streaming path.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing RIFF/WAVE markers")
	}
	if string(data[12:16]) != "fmt " {
		return nil, 0, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(data[36:40]) != "data" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", format)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", bits)
	}
	if channels := binary.LittleEndian.Uint16(data[22:24]); channels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", channels)
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataLen > len(data)-wavHeaderSize {
		dataLen = len(data) - wavHeaderSize
	}

	samples := make([]int16, dataLen/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[wavHeaderSize+i*2:]))
	}
	return samples, sampleRate, nil
}
