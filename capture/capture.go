package capture

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrUnsupported      = errors.New("audio capture is not supported in this environment")
	ErrNoDevice         = errors.New("no capture device found")
)

// Constraints mirror what a caller asks of the microphone. Flags the
// backend cannot honour are recorded and ignored.
type Constraints struct {
	ChannelCount     int
	SampleRate       int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints is the request used for streaming: mono, 16 kHz,
// with all voice processing enabled.
func DefaultConstraints() Constraints {
	return Constraints{
		ChannelCount:     1,
		SampleRate:       16000,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// AnalysisConstraints is the request used by the visualizer's own tap.
func AnalysisConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Stream is a live mono PCM source. Frames is closed when the track ends,
// either because the source ran dry or because Stop was called.
type Stream interface {
	Frames() <-chan []int16
	SampleRate() int
	Stop()
}

type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

type DeviceInfo struct {
	ID      string
	Name    string
	Default bool
}
