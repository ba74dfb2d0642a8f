package capture

// resampler converts mono PCM between rates by linear interpolation,
// carrying its fractional position across calls.
type resampler struct {
	step float64
	pos  float64
	last int16
	have bool
}

func newResampler(srcRate, dstRate int) *resampler {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return &resampler{}
	}
	return &resampler{step: float64(srcRate) / float64(dstRate)}
}

func (r *resampler) process(in []int16) []int16 {
	if r.step == 0 || len(in) == 0 {
		return in
	}

	// Index -1 refers to the last sample of the previous call.
	at := func(i int) float64 {
		if i < 0 {
			return float64(r.last)
		}
		return float64(in[i])
	}

	start := -1
	if !r.have {
		start = 0
	}

	out := make([]int16, 0, int(float64(len(in))/r.step)+1)
	for {
		i := int(r.pos) + start
		if i+1 >= len(in) {
			break
		}
		frac := r.pos - float64(int(r.pos))
		v := at(i) + (at(i+1)-at(i))*frac
		out = append(out, int16(v))
		r.pos += r.step
	}

	// Rebase so that position 0 is the last sample of this call.
	r.pos -= float64(len(in) - 1 - start)
	if r.pos < 0 {
		r.pos = 0
	}
	r.last = in[len(in)-1]
	r.have = true
	return out
}
