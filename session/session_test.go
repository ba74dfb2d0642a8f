package session

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"node.town/wisp/capture"
	"node.town/wisp/recorder"
	"node.town/wisp/transcribe"
)

type MockStream struct {
	frames chan []int16
	rate   int
	once   sync.Once
}

func (m *MockStream) Frames() <-chan []int16 { return m.frames }
func (m *MockStream) SampleRate() int        { return m.rate }
func (m *MockStream) Stop()                  { m.once.Do(func() { close(m.frames) }) }

type MockDevice struct {
	mu      sync.Mutex
	err     error
	rate    int
	streams []*MockStream
}

func (m *MockDevice) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	st := &MockStream{frames: make(chan []int16, 64), rate: m.rate}
	m.streams = append(m.streams, st)
	return st, nil
}

func (m *MockDevice) last() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[len(m.streams)-1]
}

type MockConn struct {
	mu     sync.Mutex
	sent   []transcribe.ClientMessage
	msgs   chan transcribe.ServerMessage
	closed bool
	err    error
	once   sync.Once
}

func NewMockConn() *MockConn {
	return &MockConn{msgs: make(chan transcribe.ServerMessage)}
}

func (m *MockConn) Send(msg transcribe.ClientMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return transcribe.ErrConnClosed
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *MockConn) Messages() <-chan transcribe.ServerMessage { return m.msgs }

func (m *MockConn) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *MockConn) State() transcribe.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return transcribe.Closed
	}
	return transcribe.Open
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// drop simulates the service going away.
func (m *MockConn) drop(err error) {
	m.mu.Lock()
	m.closed = true
	m.err = err
	m.mu.Unlock()
	m.once.Do(func() { close(m.msgs) })
}

func (m *MockConn) Sent() []transcribe.ClientMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcribe.ClientMessage(nil), m.sent...)
}

type MockDialer struct {
	mu    sync.Mutex
	err   error
	conns []*MockConn
}

func (m *MockDialer) Dial(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c := NewMockConn()
	m.conns = append(m.conns, c)
	return c, nil
}

func (m *MockDialer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *MockDialer) last() *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[len(m.conns)-1]
}

// testRate makes one 100 ms slice exactly 2048 samples, 4096 bytes of PCM.
const testRate = 20480

func newTestSession(t *testing.T) (*Session, *MockDevice, *MockDialer) {
	t.Helper()
	dev := &MockDevice{rate: testRate}
	dialer := &MockDialer{}
	s := New(Options{
		Device: dev,
		Dial:   dialer.Dial,
		Encoder: func(rate int) (recorder.Encoder, error) {
			return recorder.NewPCMEncoder(rate), nil
		},
		Logger: log.New(io.Discard),
	})
	t.Cleanup(func() { s.Close() })
	return s, dev, dialer
}

func waitFor(t *testing.T, s *Session, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := s.Snapshot(); cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last snapshot %+v", what, s.Snapshot())
	return Snapshot{}
}

func waitSent(t *testing.T, c *MockConn, n int) []transcribe.ClientMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := c.Sent(); len(sent) >= n {
			return sent
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages, have %d", n, len(c.Sent()))
	return nil
}

func deliver(t *testing.T, c *MockConn, msg transcribe.ServerMessage) {
	t.Helper()
	select {
	case c.msgs <- msg:
	case <-time.After(2 * time.Second):
		t.Fatalf("session never read %s", msg.Type)
	}
}

func TestSessionFullCycle(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	ctx := context.Background()

	if got := s.Snapshot().State; got != Idle {
		t.Fatalf("initial state = %v, want idle", got)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := s.Snapshot().State; got != Recording {
		t.Fatalf("state after Start = %v, want recording", got)
	}

	stream := dev.last()
	stream.frames <- make([]int16, 2048)
	stream.frames <- make([]int16, 2048)
	stream.frames <- make([]int16, 1024)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitFor(t, s, "processing", func(sn Snapshot) bool { return sn.State == Processing })

	conn := dialer.last()
	sent := conn.Sent()
	if len(sent) != 4 {
		t.Fatalf("sent %d messages, want 3 chunks and audio_end", len(sent))
	}
	for i, want := range []int{4096, 4096, 2048} {
		if sent[i].Type != transcribe.TypeAudioChunk {
			t.Fatalf("message %d type = %s, want audio_chunk", i, sent[i].Type)
		}
		data, err := base64.StdEncoding.DecodeString(sent[i].Data)
		if err != nil {
			t.Fatalf("message %d is not base64: %v", i, err)
		}
		if len(data) != want {
			t.Errorf("chunk %d = %d bytes, want %d", i, len(data), want)
		}
	}
	if sent[3].Type != transcribe.TypeAudioEnd {
		t.Errorf("last message = %s, want audio_end", sent[3].Type)
	}

	for _, size := range []int{4096, 8192, 10240} {
		deliver(t, conn, transcribe.ServerMessage{Type: transcribe.TypeChunkReceived, BufferSize: size})
	}
	deliver(t, conn, transcribe.ServerMessage{Type: transcribe.TypeTranscriptionResult, Text: "hello world"})

	snap := waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle })
	if snap.Transcript != "hello world" {
		t.Errorf("Transcript = %q, want %q", snap.Transcript, "hello world")
	}
	if snap.Err != nil {
		t.Errorf("Err = %v, want nil", snap.Err)
	}
	if snap.Chunks != 3 || snap.Bytes != 10240 {
		t.Errorf("Chunks, Bytes = %d, %d; want 3, 10240", snap.Chunks, snap.Bytes)
	}
}

func TestSessionReusesOpenConnection(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.Start(ctx); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
		dev.last().frames <- make([]int16, 100)
		s.Stop()
		waitFor(t, s, "processing", func(sn Snapshot) bool { return sn.State == Processing })
		deliver(t, dialer.last(), transcribe.ServerMessage{Type: transcribe.TypeTranscriptionResult, Text: "ok"})
		waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle })
	}

	if dialer.Count() != 1 {
		t.Errorf("dialled %d times, want 1", dialer.Count())
	}
}

func TestSessionStartRequiresIdle(t *testing.T) {
	s, _, _ := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Errorf("second Start() error = %v, want ErrNotIdle", err)
	}
}

func TestSessionPermissionDeniedOpensNoConnection(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	dev.err = capture.ErrPermissionDenied

	err := s.Start(context.Background())
	var perr *PermissionError
	if !errors.As(err, &perr) {
		t.Fatalf("Start() error = %v, want PermissionError", err)
	}

	snap := s.Snapshot()
	if snap.State != Idle {
		t.Errorf("state = %v, want idle", snap.State)
	}
	if snap.Error() == "" {
		t.Error("no error message recorded")
	}
	if dialer.Count() != 0 {
		t.Errorf("dialled %d times, want 0", dialer.Count())
	}
}

func TestSessionDialFailureReleasesStream(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	dialer.err = errors.New("connection refused")

	err := s.Start(context.Background())
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Start() error = %v, want ConnectionError", err)
	}
	if s.Snapshot().State != Idle {
		t.Errorf("state = %v, want idle", s.Snapshot().State)
	}
	if _, ok := <-dev.last().frames; ok {
		t.Error("stream was not released")
	}
}

func TestSessionCancelSuppressesResult(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	dev.last().frames <- make([]int16, 2048)
	conn := dialer.last()
	waitSent(t, conn, 1)

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	snap := s.Snapshot()
	if snap.State != Idle {
		t.Fatalf("state after Cancel = %v, want idle", snap.State)
	}
	if snap.Chunks != 0 || snap.Transcript != "" {
		t.Errorf("Cancel left chunks=%d transcript=%q", snap.Chunks, snap.Transcript)
	}
	if conn.State() != transcribe.Closed {
		t.Error("Cancel did not close the connection")
	}

	// A result that was already in flight must not surface.
	deliver(t, conn, transcribe.ServerMessage{Type: transcribe.TypeTranscriptionResult, Text: "late"})
	time.Sleep(50 * time.Millisecond)
	if got := s.Snapshot().Transcript; got != "" {
		t.Errorf("Transcript = %q after cancel, want empty", got)
	}

	for _, m := range conn.Sent() {
		if m.Type == transcribe.TypeAudioEnd {
			t.Error("audio_end sent for a cancelled recording")
		}
	}
}

func TestSessionCancelAfterStopIsNoop(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	dev.last().frames <- make([]int16, 500)
	s.Stop()
	s.Cancel()

	waitFor(t, s, "processing", func(sn Snapshot) bool { return sn.State == Processing })
	conn := dialer.last()
	if conn.State() != transcribe.Open {
		t.Error("Cancel after Stop closed the connection")
	}

	deliver(t, conn, transcribe.ServerMessage{Type: transcribe.TypeTranscriptionResult, Text: "kept"})
	snap := waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle })
	if snap.Transcript != "kept" {
		t.Errorf("Transcript = %q, want %q", snap.Transcript, "kept")
	}
}

func TestSessionStopWhenIdleIsNoop(t *testing.T) {
	s, _, dialer := newTestSession(t)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if s.Snapshot().State != Idle || dialer.Count() != 0 {
		t.Errorf("idle Stop/Cancel changed state: %+v", s.Snapshot())
	}
}

func TestSessionServerErrorWhileProcessing(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	s.Start(context.Background())
	dev.last().frames <- make([]int16, 500)
	s.Stop()
	waitFor(t, s, "processing", func(sn Snapshot) bool { return sn.State == Processing })

	deliver(t, dialer.last(), transcribe.ServerMessage{Type: transcribe.TypeError, Message: "Transcription failed"})
	snap := waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle })

	var serr *ServerError
	if !errors.As(snap.Err, &serr) || serr.Message != "Transcription failed" {
		t.Errorf("Err = %v, want ServerError(Transcription failed)", snap.Err)
	}
}

func TestSessionServerErrorWhileRecordingIsNotTerminal(t *testing.T) {
	s, _, dialer := newTestSession(t)
	s.Start(context.Background())

	deliver(t, dialer.last(), transcribe.ServerMessage{Type: transcribe.TypeError, Message: "Unknown message type: x"})
	snap := waitFor(t, s, "error", func(sn Snapshot) bool { return sn.Err != nil })
	if snap.State != Recording {
		t.Errorf("state = %v, want recording", snap.State)
	}
}

func TestSessionConnectionLoss(t *testing.T) {
	s, _, dialer := newTestSession(t)
	s.Start(context.Background())

	dialer.last().drop(errors.New("reset by peer"))
	snap := waitFor(t, s, "lost connection", func(sn Snapshot) bool { return sn.Err != nil })

	if !errors.Is(snap.Err, ErrLostConnection) {
		t.Errorf("Err = %v, want ErrLostConnection", snap.Err)
	}
	if snap.State != Recording {
		t.Errorf("state = %v, want unchanged recording", snap.State)
	}
	if snap.Connected {
		t.Error("Connected = true after loss")
	}
}

func TestSessionResetFromProcessing(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	s.Start(context.Background())
	dev.last().frames <- make([]int16, 500)
	s.Stop()
	waitFor(t, s, "processing", func(sn Snapshot) bool { return sn.State == Processing })

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	snap := s.Snapshot()
	if snap.State != Idle || snap.Err != nil {
		t.Errorf("after Reset: %+v", snap)
	}
	if dialer.last().State() != transcribe.Closed {
		t.Error("Reset did not drop the connection awaiting a result")
	}
}

func TestSessionConnect(t *testing.T) {
	s, _, dialer := newTestSession(t)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !s.Snapshot().Connected {
		t.Error("Connected = false after Connect")
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if dialer.Count() != 1 {
		t.Errorf("dialled %d times, want 1", dialer.Count())
	}
}

func TestSessionClose(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	s.Start(context.Background())

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if dialer.last().State() != transcribe.Closed {
		t.Error("Close did not close the connection")
	}
	if _, ok := <-dev.last().frames; ok {
		t.Error("Close did not release the stream")
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestSessionUpdates(t *testing.T) {
	s, _, _ := newTestSession(t)
	s.Start(context.Background())

	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-s.Updates():
			if snap.State == Recording {
				return
			}
		case <-timeout:
			t.Fatal("no recording snapshot published")
		}
	}
}

func TestSessionIgnoresUnknownMessage(t *testing.T) {
	s, _, dialer := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deliver(t, dialer.last(), transcribe.ServerMessage{Type: "partial_result", Text: "hel"})
	// Connect goes through the same event loop, so the message above has
	// been handled once it returns.
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	snap := s.Snapshot()
	if snap.State != Recording {
		t.Errorf("state = %v, want recording", snap.State)
	}
	if snap.Err != nil {
		t.Errorf("Err = %v, want nil", snap.Err)
	}
	if snap.Transcript != "" {
		t.Errorf("Transcript = %q, want empty", snap.Transcript)
	}
}

func TestSessionStreamEndsWhileRecording(t *testing.T) {
	s, dev, dialer := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stream := dev.last()
	stream.frames <- make([]int16, 2048)
	stream.Stop()

	waitFor(t, s, "processing", func(sn Snapshot) bool { return sn.State == Processing })

	sent := dialer.last().Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want one chunk and audio_end", len(sent))
	}
	if sent[0].Type != transcribe.TypeAudioChunk {
		t.Errorf("first message = %s, want audio_chunk", sent[0].Type)
	}
	if sent[1].Type != transcribe.TypeAudioEnd {
		t.Errorf("last message = %s, want audio_end", sent[1].Type)
	}

	deliver(t, dialer.last(), transcribe.ServerMessage{Type: transcribe.TypeTranscriptionResult, Text: "cut short"})
	snap := waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle })
	if snap.Transcript != "cut short" {
		t.Errorf("Transcript = %q, want %q", snap.Transcript, "cut short")
	}
}
