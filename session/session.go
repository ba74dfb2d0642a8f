package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"node.town/wisp/capture"
	"node.town/wisp/recorder"
	"node.town/wisp/transcribe"
)

type State int

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return "idle"
	}
}

// Conn is the session's view of a connection to the transcription service.
type Conn interface {
	Send(transcribe.ClientMessage) error
	Messages() <-chan transcribe.ServerMessage
	Err() error
	State() transcribe.State
	Close() error
}

type DialFunc func(ctx context.Context) (Conn, error)

type EncoderFunc func(sampleRate int) (recorder.Encoder, error)

// Dial adapts a transcribe.Dialer to a DialFunc.
func Dial(d *transcribe.Dialer) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		c, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

type Options struct {
	Device      capture.Device
	Dial        DialFunc
	Encoder     EncoderFunc
	Constraints capture.Constraints
	Timeslice   time.Duration
	Logger      *log.Logger
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	State       State
	Generation  uint64
	RecordingID string
	Chunks      int
	Bytes       int
	Transcript  string
	Err         error
	Connected   bool
}

// Error returns the user-facing error message, or "".
func (s Snapshot) Error() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Session drives one capture stream and one connection through the
// idle → recording → processing → idle cycle. All mutable state is owned by
// a single goroutine; public methods post commands to it.
type Session struct {
	opts   Options
	logger *log.Logger

	events  chan event
	quit    chan struct{}
	done    chan struct{}
	closing sync.Once

	snapMu  sync.Mutex
	snap    Snapshot
	updates chan Snapshot

	// Owned by the loop goroutine.
	state      State
	gen        uint64
	id         string
	stream     capture.Stream
	rec        *recorder.Recorder
	conn       Conn
	chunks     []recorder.Chunk
	transcript string
	err        error
	awaiting   bool
}

func New(opts Options) *Session {
	if opts.Timeslice <= 0 {
		opts.Timeslice = recorder.DefaultTimeslice
	}
	if opts.Constraints == (capture.Constraints{}) {
		opts.Constraints = capture.DefaultConstraints()
	}
	if opts.Encoder == nil {
		opts.Encoder = func(rate int) (recorder.Encoder, error) {
			return recorder.NewOggOpusEncoder(rate)
		}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Session{
		opts:    opts,
		logger:  opts.Logger,
		events:  make(chan event, 256),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		updates: make(chan Snapshot, 1),
	}
	go s.loop()
	return s
}

type event interface{}

type command struct {
	run   func() error
	reply chan error
}

type chunkEvent struct {
	gen   uint64
	chunk recorder.Chunk
}

type stoppedEvent struct {
	gen uint64
}

type messageEvent struct {
	conn Conn
	msg  transcribe.ServerMessage
}

type connClosedEvent struct {
	conn Conn
	err  error
}

func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

func (s *Session) do(fn func() error) error {
	reply := make(chan error, 1)
	if !s.post(command{run: fn, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// Start opens the microphone, makes sure a connection is open, and begins
// streaming chunks. It fails with ErrNotIdle unless the session is idle.
func (s *Session) Start(ctx context.Context) error {
	return s.do(func() error { return s.start(ctx) })
}

// Stop finishes the current recording. The session moves to processing once
// the final chunk and audio_end have been sent.
func (s *Session) Stop() error {
	return s.do(func() error { s.stop(); return nil })
}

// Cancel abandons the current recording without waiting for a result.
func (s *Session) Cancel() error {
	return s.do(func() error { s.cancel(); return nil })
}

// Reset returns to idle from any state, clearing any error or transcript.
func (s *Session) Reset() error {
	return s.do(func() error { s.reset(); return nil })
}

// Connect opens the connection ahead of the first recording.
func (s *Session) Connect(ctx context.Context) error {
	return s.do(func() error {
		err := s.ensureConn(ctx)
		if err != nil {
			s.err = err
		}
		s.publish()
		return err
	})
}

func (s *Session) Snapshot() Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

// Updates delivers the latest snapshot after each change. Intermediate
// snapshots are dropped if the reader falls behind.
func (s *Session) Updates() <-chan Snapshot { return s.updates }

// Close tears down capture and the connection and stops the session.
func (s *Session) Close() error {
	s.closing.Do(func() {
		close(s.quit)
		<-s.done
	})
	return nil
}

func (s *Session) loop() {
	defer close(s.done)
	s.publish()

	for {
		select {
		case <-s.quit:
			s.teardown()
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case command:
		ev.reply <- ev.run()
	case chunkEvent:
		s.onChunk(ev)
	case stoppedEvent:
		s.onStopped(ev)
	case messageEvent:
		s.onMessage(ev)
	case connClosedEvent:
		s.onConnClosed(ev)
	}
}

func (s *Session) start(ctx context.Context) error {
	if s.state != Idle {
		return ErrNotIdle
	}

	s.err = nil
	s.transcript = ""
	s.publish()

	stream, err := s.opts.Device.Open(ctx, s.opts.Constraints)
	if err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			s.err = &PermissionError{Err: err}
		} else {
			s.err = fmt.Errorf("failed to open microphone: %w", err)
		}
		s.logger.Error("microphone unavailable", "error", err)
		s.publish()
		return s.err
	}

	if err := s.ensureConn(ctx); err != nil {
		stream.Stop()
		s.err = err
		s.publish()
		return err
	}

	enc, err := s.opts.Encoder(stream.SampleRate())
	if err != nil {
		stream.Stop()
		s.err = fmt.Errorf("failed to create encoder: %w", err)
		s.publish()
		return s.err
	}

	s.gen++
	s.id = uuid.NewString()
	s.chunks = nil
	s.awaiting = false

	logger := s.logger.With("recording", s.id)
	rec := recorder.New(stream, recorder.Options{
		Timeslice: s.opts.Timeslice,
		Encoder:   enc,
		Logger:    logger,
	})
	if err := rec.Start(&recorderHandler{s: s, gen: s.gen}); err != nil {
		stream.Stop()
		s.err = err
		s.publish()
		return err
	}

	s.stream = stream
	s.rec = rec
	s.state = Recording
	logger.Info(
		"recording started",
		"sample_rate", stream.SampleRate(),
		"format", enc.Format(),
		"timeslice", s.opts.Timeslice,
	)
	s.publish()
	return nil
}

func (s *Session) ensureConn(ctx context.Context) error {
	if s.conn != nil && s.conn.State() == transcribe.Open {
		return nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	conn, err := s.opts.Dial(ctx)
	if err != nil {
		s.logger.Error("failed to connect", "error", err)
		return &ConnectionError{Op: "failed to connect to transcription service", Err: err}
	}
	s.conn = conn
	go s.pump(conn)
	return nil
}

func (s *Session) pump(conn Conn) {
	for msg := range conn.Messages() {
		if !s.post(messageEvent{conn: conn, msg: msg}) {
			return
		}
	}
	s.post(connClosedEvent{conn: conn, err: conn.Err()})
}

// capturing reports whether the recorder is still accepting audio.
func (s *Session) capturing() bool {
	return s.state == Recording && s.rec != nil && s.rec.State() == recorder.Recording
}

func (s *Session) releaseCapture() {
	if s.rec != nil {
		s.rec.Stop()
	}
	if s.stream != nil {
		s.stream.Stop()
	}
}

func (s *Session) stop() {
	if !s.capturing() {
		return
	}
	s.logger.Info("stopping recording", "recording", s.id)
	s.releaseCapture()
}

func (s *Session) cancel() {
	if !s.capturing() {
		return
	}
	s.logger.Info("recording cancelled", "recording", s.id, "chunks", len(s.chunks))
	s.abandon()
	s.transcript = ""
	s.publish()
}

func (s *Session) reset() {
	if s.state != Idle {
		s.logger.Info("session reset", "recording", s.id, "state", s.state)
		s.abandon()
	}
	s.err = nil
	s.transcript = ""
	s.chunks = nil
	s.publish()
}

// abandon drops the current recording. Any audio already sent is discarded
// by closing the connection, and the generation moves on so that late
// events for it are ignored.
func (s *Session) abandon() {
	s.releaseCapture()
	s.gen++
	s.rec = nil
	s.stream = nil
	s.chunks = nil
	s.awaiting = false
	s.state = Idle
	s.closeConn()
}

func (s *Session) closeConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("close connection", "error", err)
	}
	s.conn = nil
}

func (s *Session) onChunk(ev chunkEvent) {
	if ev.gen != s.gen {
		s.logger.Debug("ignoring chunk from abandoned recording", "seq", ev.chunk.Seq)
		return
	}
	if len(ev.chunk.Data) == 0 {
		return
	}
	s.chunks = append(s.chunks, ev.chunk)

	if s.conn == nil {
		s.logger.Warn("chunk not sent, no connection", "seq", ev.chunk.Seq)
	} else if err := s.conn.Send(transcribe.AudioChunk(ev.chunk.Data)); err != nil {
		s.logger.Warn("failed to send chunk", "seq", ev.chunk.Seq, "error", err)
	} else {
		s.logger.Debug("chunk sent", "seq", ev.chunk.Seq, "bytes", len(ev.chunk.Data))
	}
	s.publish()
}

func (s *Session) onStopped(ev stoppedEvent) {
	if ev.gen != s.gen || s.state != Recording {
		return
	}
	if s.stream != nil {
		s.stream.Stop()
	}
	s.rec = nil
	s.stream = nil

	logger := s.logger.With("recording", s.id)
	if s.conn == nil {
		logger.Warn("recording finished without a connection")
		if s.err == nil {
			s.err = &ConnectionError{Err: ErrNotConnected}
		}
		s.state = Idle
		s.publish()
		return
	}

	if err := s.conn.Send(transcribe.AudioEnd()); err != nil {
		logger.Error("failed to send audio_end", "error", err)
		s.err = &ConnectionError{Op: "failed to finish recording", Err: err}
		s.state = Idle
		s.publish()
		return
	}

	logger.Info("recording finished", "chunks", len(s.chunks), "bytes", s.bytes())
	s.awaiting = true
	s.state = Processing
	s.publish()
}

func (s *Session) onMessage(ev messageEvent) {
	if ev.conn != s.conn {
		s.logger.Debug("ignoring message from closed connection", "type", ev.msg.Type)
		return
	}

	msg := ev.msg
	switch msg.Type {
	case transcribe.TypeChunkReceived:
		s.logger.Debug("chunk received", "buffer_size", msg.BufferSize)

	case transcribe.TypeTranscriptionResult:
		if !s.awaiting {
			s.logger.Info("ignoring unexpected transcription result")
			return
		}
		s.logger.Info("transcription received", "recording", s.id, "length", len(msg.Text))
		s.transcript = msg.Text
		s.awaiting = false
		s.state = Idle
		s.publish()

	case transcribe.TypeError:
		switch {
		case s.awaiting:
			s.awaiting = false
			s.state = Idle
		case s.state == Recording:
		default:
			s.logger.Info("ignoring server error while idle", "message", msg.Message)
			return
		}
		s.logger.Error("transcription service error", "message", msg.Message)
		s.err = &ServerError{Message: msg.Message}
		s.publish()

	case transcribe.TypePong:

	default:
		s.logger.Warn("unknown message type", "type", msg.Type)
	}
}

func (s *Session) onConnClosed(ev connClosedEvent) {
	if ev.conn != s.conn {
		return
	}
	s.conn = nil
	if ev.err != nil {
		s.logger.Warn("connection closed", "error", ev.err)
	}
	if s.state != Idle {
		s.err = &ConnectionError{Err: ErrLostConnection}
	}
	s.publish()
}

func (s *Session) teardown() {
	s.releaseCapture()
	s.closeConn()
	s.rec = nil
	s.stream = nil
}

func (s *Session) bytes() int {
	n := 0
	for _, c := range s.chunks {
		n += len(c.Data)
	}
	return n
}

func (s *Session) publish() {
	snap := Snapshot{
		State:       s.state,
		Generation:  s.gen,
		RecordingID: s.id,
		Chunks:      len(s.chunks),
		Bytes:       s.bytes(),
		Transcript:  s.transcript,
		Err:         s.err,
		Connected:   s.conn != nil && s.conn.State() == transcribe.Open,
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()

	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

type recorderHandler struct {
	s   *Session
	gen uint64
}

func (h *recorderHandler) OnChunk(c recorder.Chunk) {
	h.s.post(chunkEvent{gen: h.gen, chunk: c})
}

func (h *recorderHandler) OnStop() {
	h.s.post(stoppedEvent{gen: h.gen})
}
