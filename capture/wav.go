package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFrameDuration is how much audio each delivered frame carries,
// roughly the callback period of a real input device.
const wavFrameDuration = 20 * time.Millisecond

// WAVDevice replays a PCM WAV file as if it were a microphone. With
// realtime set, frames are paced at the file's own rate; otherwise they are
// delivered as fast as the consumer reads them. The stream ends at EOF.
type WAVDevice struct {
	path     string
	realtime bool
	logger   *log.Logger
}

func NewWAVDevice(path string, realtime bool, logger *log.Logger) *WAVDevice {
	return &WAVDevice{path: path, realtime: realtime, logger: logger}
}

func (d *WAVDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid WAV file", d.path)
	}
	dec.ReadInfo()
	if dec.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("unsupported bit depth %d, want 16", dec.BitDepth)
	}

	srcRate := int(dec.SampleRate)
	dstRate := srcRate
	if c.SampleRate > 0 {
		dstRate = c.SampleRate
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &wavStream{
		frames:     make(chan []int16, 8),
		sampleRate: dstRate,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	d.logger.Info(
		"wav source opened",
		"path", d.path,
		"sample_rate", srcRate,
		"channels", dec.NumChans,
		"target_rate", dstRate,
	)

	go func() {
		defer close(s.done)
		defer close(s.frames)
		defer f.Close()
		d.pump(ctx, dec, srcRate, dstRate, s.frames)
	}()

	return s, nil
}

func (d *WAVDevice) pump(
	ctx context.Context,
	dec *wav.Decoder,
	srcRate, dstRate int,
	out chan<- []int16,
) {
	channels := int(dec.NumChans)
	samplesPerFrame := int(wavFrameDuration.Seconds()*float64(srcRate)) * channels
	buf := &audio.IntBuffer{
		Data:   make([]int, samplesPerFrame),
		Format: &audio.Format{NumChannels: channels, SampleRate: srcRate},
	}
	resampler := newResampler(srcRate, dstRate)

	var ticker *time.Ticker
	if d.realtime {
		ticker = time.NewTicker(wavFrameDuration)
		defer ticker.Stop()
	}

	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			d.logger.Error("read wav samples", "error", err)
			return
		}
		if n == 0 {
			d.logger.Debug("wav source drained", "path", d.path)
			return
		}

		frame := resampler.process(downmix(buf.Data[:n], channels))
		if len(frame) == 0 {
			continue
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func downmix(samples []int, channels int) []int16 {
	if channels <= 1 {
		pcm := make([]int16, len(samples))
		for i, v := range samples {
			pcm[i] = int16(v)
		}
		return pcm
	}

	pcm := make([]int16, len(samples)/channels)
	for i := range pcm {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		pcm[i] = int16(sum / channels)
	}
	return pcm
}

type wavStream struct {
	frames     chan []int16
	sampleRate int
	cancel     context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

func (s *wavStream) Frames() <-chan []int16 { return s.frames }

func (s *wavStream) SampleRate() int { return s.sampleRate }

func (s *wavStream) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
