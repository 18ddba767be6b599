package playback

import (
	"math"
	"testing"
)

func TestConverterStereoPassthrough(t *testing.T) {
	c := newConverter(16000, 16000, 2)
	in := []float32{0.1, -0.1, 0.2, -0.2, 0.3, -0.3}
	out := c.process(in)

	if len(out) != len(in) {
		t.Fatalf("Expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, in[i], out[i])
		}
	}
}

func TestConverterMonoDownmix(t *testing.T) {
	c := newConverter(16000, 16000, 1)
	// Frames (0.2, 0.4) and (-1.0, 1.0): averages 0.3 and 0.
	out := c.process([]float32{0.2, 0.4, -1.0, 1.0})

	if len(out) != 2 {
		t.Fatalf("Expected 2 mono samples, got %d", len(out))
	}
	if math.Abs(float64(out[0]-0.3)) > 1e-6 {
		t.Errorf("Expected 0.3, got %f", out[0])
	}
	if out[1] != 0 {
		t.Errorf("Expected 0, got %f", out[1])
	}
}

func TestResamplerHalvesRate(t *testing.T) {
	r := newResampler(32000, 16000)

	in := make([]float32, 2001)
	for i := range in {
		in[i] = float32(i) / 1000
	}
	out := r.process(in)

	// Downsampling 2:1 produces roughly half the frames.
	if len(out) < 990 || len(out) > 1010 {
		t.Fatalf("Expected ~1000 output samples, got %d", len(out))
	}

	// Linear interpolation of a ramp stays on the ramp.
	for i := 1; i < len(out); i++ {
		step := out[i] - out[i-1]
		if math.Abs(float64(step-0.002)) > 1e-5 {
			t.Fatalf("Sample %d: ramp step %f, expected 0.002", i, step)
		}
	}
}

func TestResamplerStateAcrossChunks(t *testing.T) {
	whole := newResampler(24000, 16000)
	chunked := newResampler(24000, 16000)

	in := make([]float32, 960)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) * 0.01))
	}

	wholeOut := whole.process(in)

	var chunkedOut []float32
	for i := 0; i < len(in); i += 37 {
		end := i + 37
		if end > len(in) {
			end = len(in)
		}
		chunkedOut = append(chunkedOut, chunked.process(in[i:end])...)
	}

	if len(wholeOut) != len(chunkedOut) {
		t.Fatalf("Chunked output length %d differs from whole %d", len(chunkedOut), len(wholeOut))
	}
	for i := range wholeOut {
		if wholeOut[i] != chunkedOut[i] {
			t.Fatalf("Sample %d differs: whole=%f chunked=%f", i, wholeOut[i], chunkedOut[i])
		}
	}
}

func TestConverterStereoResample(t *testing.T) {
	c := newConverter(48000, 16000, 2)

	// 300 frames of constant DC on both channels.
	in := make([]float32, 600)
	for i := 0; i < 300; i++ {
		in[i*2] = 0.5
		in[i*2+1] = -0.25
	}
	out := c.process(in)

	if len(out)%2 != 0 {
		t.Fatalf("Stereo output has odd length %d", len(out))
	}
	frames := len(out) / 2
	if frames < 95 || frames > 105 {
		t.Fatalf("Expected ~100 output frames, got %d", frames)
	}
	for i := 0; i < frames; i++ {
		if out[i*2] != 0.5 || out[i*2+1] != -0.25 {
			t.Fatalf("Frame %d: got (%f, %f), expected (0.5, -0.25)", i, out[i*2], out[i*2+1])
		}
	}
}
