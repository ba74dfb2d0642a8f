package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

const defaultMicSampleRate = 16000

// MicDevice captures from a system input through miniaudio. Resampling and
// channel mixing are done by miniaudio, so the stream always delivers the
// requested rate when one is given.
type MicDevice struct {
	name   string
	logger *log.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

func NewMicDevice(name string, logger *log.Logger) *MicDevice {
	return &MicDevice{name: name, logger: logger}
}

func (d *MicDevice) context() (*malgo.AllocatedContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx != nil {
		return d.ctx, nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		d.logger.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	d.ctx = ctx
	return ctx, nil
}

func (d *MicDevice) Devices() ([]DeviceInfo, error) {
	ctx, err := d.context()
	if err != nil {
		return nil, err
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			ID:      info.ID.String(),
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

func (d *MicDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := d.context()
	if err != nil {
		return nil, err
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.SampleRate = defaultMicSampleRate
	if c.SampleRate > 0 {
		config.SampleRate = uint32(c.SampleRate)
	}
	config.Alsa.NoMMap = 1

	if d.name != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			return nil, fmt.Errorf("list capture devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == d.name || info.ID.String() == d.name {
				config.Capture.DeviceID = info.ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrNoDevice, d.name)
		}
	}

	if c.EchoCancellation || c.NoiseSuppression || c.AutoGainControl {
		d.logger.Debug(
			"voice processing requested but left to the platform",
			"echo_cancellation", c.EchoCancellation,
			"noise_suppression", c.NoiseSuppression,
			"auto_gain_control", c.AutoGainControl,
		)
	}

	s := &micStream{
		frames: make(chan []int16, 64),
		logger: d.logger,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			s.push(input, frameCount)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, config, callbacks)
	if err != nil {
		return nil, openError("init capture device", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, openError("start capture device", err)
	}

	s.device = device
	s.sampleRate = int(device.SampleRate())
	d.logger.Info("microphone opened", "device", d.name, "sample_rate", s.sampleRate)
	return s, nil
}

// openError maps a miniaudio result onto the capture sentinels. Only an
// access failure counts as a denied permission.
func openError(op string, err error) error {
	switch {
	case errors.Is(err, malgo.ErrAccessDenied):
		return fmt.Errorf("%s: %w: %w", op, ErrPermissionDenied, err)
	case errors.Is(err, malgo.ErrNoBackend),
		errors.Is(err, malgo.ErrAPINotFound),
		errors.Is(err, malgo.ErrFailedToInitBackend),
		errors.Is(err, malgo.ErrDeviceTypeNotSupported):
		return fmt.Errorf("%s: %w: %w", op, ErrUnsupported, err)
	case errors.Is(err, malgo.ErrNoDevice),
		errors.Is(err, malgo.ErrDoesNotExist):
		return fmt.Errorf("%s: %w: %w", op, ErrNoDevice, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close releases the miniaudio context. Streams must be stopped first.
func (d *MicDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return nil
	}
	if err := d.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninit audio context: %w", err)
	}
	d.ctx.Free()
	d.ctx = nil
	return nil
}

type micStream struct {
	device     *malgo.Device
	sampleRate int
	frames     chan []int16
	logger     *log.Logger

	mu      sync.Mutex
	stopped bool
}

func (s *micStream) push(input []byte, frameCount uint32) {
	pcm := make([]int16, frameCount)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	select {
	case s.frames <- pcm:
	default:
		s.logger.Warn("capture buffer full, dropping frame", "samples", len(pcm))
	}
}

func (s *micStream) Frames() <-chan []int16 { return s.frames }

func (s *micStream) SampleRate() int { return s.sampleRate }

func (s *micStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.frames)
	s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
	}
}
