package playback

// converter maps decoded interleaved stereo samples to the output
// device configuration: channel mapping first, then linear resampling
// per output channel. State carries across calls so chunk boundaries do
// not produce seams.
type converter struct {
	srcRate     int
	outRate     int
	outChannels int
	resamplers  []*resampler
}

func newConverter(srcRate, outRate, outChannels int) *converter {
	c := &converter{
		srcRate:     srcRate,
		outRate:     outRate,
		outChannels: outChannels,
	}
	if srcRate != outRate {
		n := outChannels
		if n > decodedChannels {
			n = decodedChannels
		}
		c.resamplers = make([]*resampler, n)
		for i := range c.resamplers {
			c.resamplers[i] = newResampler(srcRate, outRate)
		}
	}
	return c
}

// process consumes interleaved stereo input and returns interleaved
// output frames in the device configuration.
func (c *converter) process(in []float32) []float32 {
	frames := len(in) / decodedChannels

	if c.outChannels == 1 {
		mono := make([]float32, frames)
		for i := 0; i < frames; i++ {
			mono[i] = (in[i*2] + in[i*2+1]) / 2
		}
		if c.resamplers == nil {
			return mono
		}
		return c.resamplers[0].process(mono)
	}

	// Stereo out: resample each channel independently, then interleave.
	if c.resamplers == nil {
		out := make([]float32, frames*2)
		copy(out, in[:frames*2])
		return out
	}

	left := make([]float32, frames)
	right := make([]float32, frames)
	for i := 0; i < frames; i++ {
		left[i] = in[i*2]
		right[i] = in[i*2+1]
	}
	left = c.resamplers[0].process(left)
	right = c.resamplers[1].process(right)

	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	out := make([]float32, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = left[i]
		out[i*2+1] = right[i]
	}
	return out
}

// resampler performs streaming linear interpolation from srcRate to
// outRate on one channel.
type resampler struct {
	step   float64 // input frames advanced per output frame
	t      float64 // fractional position inside [prev, next]
	prev   float32
	primed bool
}

func newResampler(srcRate, outRate int) *resampler {
	return &resampler{
		step: float64(srcRate) / float64(outRate),
	}
}

func (r *resampler) process(in []float32) []float32 {
	out := make([]float32, 0, int(float64(len(in))/r.step)+2)
	for _, next := range in {
		if !r.primed {
			r.prev = next
			r.primed = true
			continue
		}
		for r.t < 1.0 {
			out = append(out, r.prev+float32(r.t)*(next-r.prev))
			r.t += r.step
		}
		r.t -= 1.0
		r.prev = next
	}
	return out
}
