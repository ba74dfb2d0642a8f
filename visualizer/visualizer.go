package visualizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"node.town/wisp/capture"
)

type Status int

const (
	StatusPending Status = iota
	StatusGranted
	StatusDenied
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusGranted:
		return "permission-granted"
	case StatusDenied:
		return "permission-denied"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "permission-pending"
	}
}

type Options struct {
	// Device supplies the analysis tap. A nil Device means the host cannot
	// capture audio at all.
	Device   capture.Device
	Bands    BandConfig
	Analyser AnalyserOptions
	OnError  func(error)
	Logger   *log.Logger
}

// Visualizer turns a live analysis tap into frames. It activates the tap
// the first time it is told the user is listening, and renders the idle
// animation until then or if activation fails.
type Visualizer struct {
	opts   Options
	logger *log.Logger

	mu        sync.Mutex
	status    Status
	listening bool
	activated bool
	analyser  *Analyser
	stream    capture.Stream
	tapDone   chan struct{}
	bins      []uint8
	closed    bool
}

func New(opts Options) *Visualizer {
	if opts.Bands.Bands == 0 {
		opts.Bands = NewBandConfig(ProbeCapabilities(false))
	}
	if opts.Analyser.FFTSize == 0 {
		opts.Analyser = DefaultAnalyserOptions()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	v := &Visualizer{opts: opts, logger: opts.Logger}
	if opts.Device == nil {
		v.status = StatusUnsupported
	}
	return v
}

func (v *Visualizer) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *Visualizer) Listening() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.listening
}

// SetListening switches between the idle and active renderings. The first
// switch to listening starts activation in the background.
func (v *Visualizer) SetListening(ctx context.Context, listening bool) {
	v.mu.Lock()
	v.listening = listening
	first := listening && !v.activated && v.status == StatusPending && !v.closed
	if first {
		v.activated = true
	}
	v.mu.Unlock()

	if first {
		go v.activate(ctx)
	}
}

// Activate opens the analysis tap. It runs at most once; later calls
// report the outcome of the first.
func (v *Visualizer) Activate(ctx context.Context) error {
	v.mu.Lock()
	if v.activated {
		status := v.status
		v.mu.Unlock()
		switch status {
		case StatusDenied:
			return capture.ErrPermissionDenied
		case StatusUnsupported:
			return capture.ErrUnsupported
		}
		return nil
	}
	v.activated = true
	v.mu.Unlock()

	return v.activate(ctx)
}

func (v *Visualizer) activate(ctx context.Context) error {
	if v.opts.Device == nil {
		return capture.ErrUnsupported
	}

	stream, err := v.opts.Device.Open(ctx, capture.AnalysisConstraints())
	if err != nil {
		v.mu.Lock()
		if errors.Is(err, capture.ErrUnsupported) {
			v.status = StatusUnsupported
		} else {
			v.status = StatusDenied
		}
		v.mu.Unlock()

		v.logger.Error("visualizer could not open microphone", "error", err)
		if v.opts.OnError != nil {
			v.opts.OnError(err)
		}
		return err
	}

	analyser := NewAnalyser(v.opts.Analyser)
	tapDone := make(chan struct{})

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		stream.Stop()
		return nil
	}
	v.stream = stream
	v.analyser = analyser
	v.tapDone = tapDone
	v.bins = make([]uint8, analyser.FrequencyBinCount())
	v.status = StatusGranted
	v.mu.Unlock()

	go func() {
		defer close(tapDone)
		for frame := range stream.Frames() {
			analyser.Write(frame)
		}
	}()

	v.logger.Debug("visualizer tap active", "bands", v.opts.Bands.Bands, "sample_rate", stream.SampleRate())
	return nil
}

// Frame computes what to draw at now.
func (v *Visualizer) Frame(now time.Time) Frame {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.listening && v.analyser != nil {
		v.analyser.ByteFrequencyData(v.bins)
		return ActiveFrame(v.bins, v.opts.Bands.Bands)
	}

	f := IdleFrame(now, v.opts.Bands.ReducedMotion)
	if v.listening {
		f.PillWidth = PillWidthActive
	}
	return f
}

// Close releases the tap. It is safe to call in any state.
func (v *Visualizer) Close() {
	v.mu.Lock()
	v.closed = true
	stream, analyser, tapDone := v.stream, v.analyser, v.tapDone
	v.stream, v.analyser, v.tapDone = nil, nil, nil
	v.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	if tapDone != nil {
		<-tapDone
	}
	if analyser != nil {
		analyser.Close()
	}
}
