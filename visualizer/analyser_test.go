package visualizer

import (
	"math"
	"testing"
)

func TestAnalyserSilence(t *testing.T) {
	a := NewAnalyser(DefaultAnalyserOptions())
	if a.FrequencyBinCount() != 32 {
		t.Fatalf("FrequencyBinCount() = %d, want 32", a.FrequencyBinCount())
	}

	a.Write(make([]int16, 256))
	bins := make([]uint8, 32)
	a.ByteFrequencyData(bins)
	for i, b := range bins {
		if b != 0 {
			t.Errorf("bin %d = %d, want 0 for silence", i, b)
		}
	}
}

func TestAnalyserTonePeaksInItsBin(t *testing.T) {
	a := NewAnalyser(DefaultAnalyserOptions())

	// Bin 8 of a 64-point FFT at 16 kHz is 2 kHz.
	const rate, freq = 16000, 2000
	pcm := make([]int16, 64)
	for i := range pcm {
		pcm[i] = int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}

	bins := make([]uint8, 32)
	for i := 0; i < 20; i++ {
		a.Write(pcm)
		a.ByteFrequencyData(bins)
	}

	peak := 0
	for i := range bins {
		if bins[i] > bins[peak] {
			peak = i
		}
	}
	if peak != 8 {
		t.Errorf("peak bin = %d, want 8 (bins %v)", peak, bins)
	}
	if bins[8] < 200 {
		t.Errorf("peak level = %d, want a loud tone near full scale", bins[8])
	}
}

func TestAnalyserSmoothing(t *testing.T) {
	a := NewAnalyser(DefaultAnalyserOptions())

	pcm := make([]int16, 64)
	for i := range pcm {
		pcm[i] = int16(16000 * math.Sin(2*math.Pi*8*float64(i)/64))
	}
	a.Write(pcm)

	bins := make([]uint8, 32)
	a.ByteFrequencyData(bins)
	first := bins[8]
	a.ByteFrequencyData(bins)
	if bins[8] <= first {
		t.Errorf("level did not rise under smoothing: %d then %d", first, bins[8])
	}
}

func TestAnalyserClosedIgnoresWrites(t *testing.T) {
	a := NewAnalyser(DefaultAnalyserOptions())
	a.Close()
	a.Write([]int16{32000, -32000, 32000, -32000})

	bins := make([]uint8, 32)
	a.ByteFrequencyData(bins)
	for i, b := range bins {
		if b != 0 {
			t.Fatalf("bin %d = %d after writes to a closed analyser", i, b)
		}
	}
}
