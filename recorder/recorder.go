package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"node.town/wisp/capture"
)

const DefaultTimeslice = 100 * time.Millisecond

var ErrAlreadyStarted = errors.New("recorder already started")

type State int

const (
	Inactive State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "inactive"
}

// Chunk is one timeslice of encoded audio.
type Chunk struct {
	Seq      int
	Data     []byte
	Format   string
	Duration time.Duration
}

// Handler receives chunks in capture order. OnStop is called exactly once,
// after the last OnChunk.
type Handler interface {
	OnChunk(Chunk)
	OnStop()
}

// EncodingError reports a slice that could not be encoded. The slice is
// dropped and recording continues.
type EncodingError struct {
	Seq int
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode chunk %d: %v", e.Seq, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

type Options struct {
	Timeslice time.Duration
	Encoder   Encoder
	Logger    *log.Logger
}

// Recorder slices a capture stream into fixed-duration encoded chunks.
type Recorder struct {
	stream capture.Stream
	opts   Options

	mu      sync.Mutex
	state   State
	started bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(stream capture.Stream, opts Options) *Recorder {
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Recorder{
		stream: stream,
		opts:   opts,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (r *Recorder) Start(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true
	r.state = Recording

	go r.run(h)
	return nil
}

// Stop asks the recorder to finish. It does not wait: buffered audio is
// flushed and OnStop delivered from the recorder's goroutine.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.state = Inactive
	r.mu.Unlock()

	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed once OnStop has returned.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) run(h Handler) {
	defer close(r.done)

	rate := r.stream.SampleRate()
	sliceLen := int(r.opts.Timeslice.Seconds() * float64(rate))
	if sliceLen <= 0 {
		sliceLen = 1
	}

	var (
		buf []int16
		seq int
	)

	emit := func(pcm []int16, final bool) {
		seq++
		var data []byte
		if len(pcm) > 0 {
			out, err := r.opts.Encoder.Encode(pcm)
			if err != nil {
				r.opts.Logger.Warn(
					"dropping chunk",
					"error", &EncodingError{Seq: seq, Err: err},
				)
			} else {
				data = out
			}
		}
		if final {
			tail, err := r.opts.Encoder.Flush()
			if err != nil {
				r.opts.Logger.Warn("failed to finish stream", "error", err)
			}
			data = append(data, tail...)
		}
		if len(data) == 0 {
			return
		}
		h.OnChunk(Chunk{
			Seq:      seq,
			Data:     data,
			Format:   r.opts.Encoder.Format(),
			Duration: time.Duration(len(pcm)) * time.Second / time.Duration(rate),
		})
	}

	push := func(frame []int16) {
		buf = append(buf, frame...)
		for len(buf) >= sliceLen {
			emit(buf[:sliceLen], false)
			buf = append([]int16(nil), buf[sliceLen:]...)
		}
	}

	frames := r.stream.Frames()

loop:
	for {
		select {
		case <-r.stop:
			for {
				select {
				case frame, ok := <-frames:
					if !ok {
						break loop
					}
					push(frame)
				default:
					break loop
				}
			}
		case frame, ok := <-frames:
			if !ok {
				r.opts.Logger.Debug("capture track ended")
				r.mu.Lock()
				r.state = Inactive
				r.mu.Unlock()
				break loop
			}
			push(frame)
		}
	}

	emit(buf, true)
	h.OnStop()
}
