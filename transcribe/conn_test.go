package transcribe

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// fakeService mimics the transcription backend: it buffers decoded chunks,
// acknowledges each one, and answers audio_end with the buffer length.
type fakeService struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []ClientMessage
	dropNext bool
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	defer ws.Close()

	size := 0
	for {
		var msg ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		drop := s.dropNext
		s.mu.Unlock()

		if drop {
			return
		}

		switch msg.Type {
		case TypeAudioChunk:
			data, _ := base64.StdEncoding.DecodeString(msg.Data)
			size += len(data)
			ws.WriteJSON(ServerMessage{Type: TypeChunkReceived, BufferSize: size})
		case TypeAudioEnd:
			if size == 0 {
				ws.WriteJSON(ServerMessage{Type: TypeError, Message: "No audio data received"})
				continue
			}
			ws.WriteJSON(ServerMessage{Type: TypeTranscriptionResult, Text: strings.Repeat("a", size)})
			size = 0
		case TypePing:
			ws.WriteJSON(ServerMessage{Type: TypePong})
		}
	}
}

func startFakeService(t *testing.T) (*fakeService, string) {
	t.Helper()
	svc := &fakeService{t: t}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return svc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, c *Conn) ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		if !ok {
			t.Fatal("messages closed early")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return ServerMessage{}
}

func dial(t *testing.T, url string, ping time.Duration) *Conn {
	t.Helper()
	d := &Dialer{URL: url, PingInterval: ping, Logger: log.New(io.Discard)}
	c, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnChunkRoundTrip(t *testing.T) {
	_, url := startFakeService(t)
	c := dial(t, url, -1)

	if c.State() != Open {
		t.Fatalf("State() = %v, want open", c.State())
	}

	for _, n := range []int{4, 4, 2} {
		if err := c.Send(AudioChunk(make([]byte, n))); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	want := []int{4, 8, 10}
	for i, size := range want {
		msg := next(t, c)
		if msg.Type != TypeChunkReceived || msg.BufferSize != size {
			t.Errorf("ack %d = %+v, want buffer_size %d", i, msg, size)
		}
	}

	if err := c.Send(AudioEnd()); err != nil {
		t.Fatalf("Send(audio_end) error = %v", err)
	}
	msg := next(t, c)
	if msg.Type != TypeTranscriptionResult || len(msg.Text) != 10 {
		t.Errorf("result = %+v", msg)
	}
}

func TestConnKeepAlive(t *testing.T) {
	_, url := startFakeService(t)
	c := dial(t, url, 20*time.Millisecond)

	msg := next(t, c)
	if msg.Type != TypePong {
		t.Errorf("got %v, want pong", msg.Type)
	}
}

func TestConnServerDisconnect(t *testing.T) {
	svc, url := startFakeService(t)
	svc.dropNext = true
	c := dial(t, url, -1)

	if err := c.Send(AudioChunk([]byte{1})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not notice the server going away")
	}
	if _, ok := <-c.Messages(); ok {
		t.Error("Messages() still open after disconnect")
	}
	if c.Err() == nil {
		t.Error("Err() = nil after remote disconnect")
	}
	if c.State() != Closed {
		t.Errorf("State() = %v, want closed", c.State())
	}
}

func TestConnLocalClose(t *testing.T) {
	_, url := startFakeService(t)
	c := dial(t, url, -1)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
	if c.Err() != nil {
		t.Errorf("Err() = %v, want nil after local close", c.Err())
	}
	if err := c.Send(AudioEnd()); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Send() after close error = %v, want ErrConnClosed", err)
	}
}

func TestDialFailure(t *testing.T) {
	d := &Dialer{URL: "ws://127.0.0.1:1/ws/transcribe", Logger: log.New(io.Discard)}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := d.Dial(ctx); err == nil {
		t.Error("Dial() to a closed port succeeded")
	}
}
