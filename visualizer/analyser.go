package visualizer

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

type AnalyserOptions struct {
	FFTSize     int
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
}

func DefaultAnalyserOptions() AnalyserOptions {
	return AnalyserOptions{
		FFTSize:     64,
		Smoothing:   0.7,
		MinDecibels: -90,
		MaxDecibels: -10,
	}
}

// Analyser keeps the most recent FFTSize samples and reports a smoothed,
// byte-scaled magnitude spectrum of them. Writers and readers may run on
// different goroutines.
type Analyser struct {
	mu   sync.Mutex
	opts AnalyserOptions

	fft    *fourier.FFT
	window []float64
	ring   []float64
	pos    int

	seq      []float64
	coeffs   []complex128
	smoothed []float64
	closed   bool
}

func NewAnalyser(opts AnalyserOptions) *Analyser {
	n := opts.FFTSize
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	window.Blackman(w)

	return &Analyser{
		opts:     opts,
		fft:      fourier.NewFFT(n),
		window:   w,
		ring:     make([]float64, n),
		seq:      make([]float64, n),
		coeffs:   make([]complex128, n/2+1),
		smoothed: make([]float64, n/2),
	}
}

func (a *Analyser) FrequencyBinCount() int { return a.opts.FFTSize / 2 }

func (a *Analyser) Write(pcm []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	n := len(a.ring)
	for _, s := range pcm {
		a.ring[a.pos] = float64(s) / 32768
		a.pos = (a.pos + 1) % n
	}
}

// ByteFrequencyData fills dst with up to FrequencyBinCount values in
// [0, 255], mapping MinDecibels to 0 and MaxDecibels to 255.
func (a *Analyser) ByteFrequencyData(dst []uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	for i := 0; i < n; i++ {
		a.seq[i] = a.ring[(a.pos+i)%n] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	tau := a.opts.Smoothing
	span := a.opts.MaxDecibels - a.opts.MinDecibels
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / float64(n)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag

		if k >= len(dst) {
			continue
		}
		db := 20 * math.Log10(a.smoothed[k])
		v := math.Floor(255 / span * (db - a.opts.MinDecibels))
		switch {
		case math.IsNaN(v) || v < 0:
			dst[k] = 0
		case v > 255:
			dst[k] = 255
		default:
			dst[k] = uint8(v)
		}
	}
}

// Close stops the analyser from accepting more audio.
func (a *Analyser) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}
