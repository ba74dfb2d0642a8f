package visualizer

import "runtime"

const (
	DefaultBands  = 8
	LowEndBands   = 4
	lowEndMaxCPUs = 4
)

// Capabilities describes the host for render-quality decisions.
type Capabilities struct {
	Concurrency   int
	Platform      string
	ReducedMotion bool
}

func ProbeCapabilities(reducedMotion bool) Capabilities {
	return Capabilities{
		Concurrency:   runtime.NumCPU(),
		Platform:      runtime.GOOS,
		ReducedMotion: reducedMotion,
	}
}

func (c Capabilities) LowEnd() bool {
	if c.Concurrency > 0 && c.Concurrency <= lowEndMaxCPUs {
		return true
	}
	switch c.Platform {
	case "android", "ios":
		return true
	}
	return false
}

// BandConfig is fixed for the lifetime of a visualizer.
type BandConfig struct {
	Bands         int
	ReducedMotion bool
}

func NewBandConfig(c Capabilities) BandConfig {
	bands := DefaultBands
	if c.LowEnd() {
		bands = LowEndBands
	}
	return BandConfig{Bands: bands, ReducedMotion: c.ReducedMotion}
}
