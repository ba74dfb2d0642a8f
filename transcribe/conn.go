package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	DefaultURL          = "ws://localhost:8000/ws/transcribe"
	DefaultPingInterval = 30 * time.Second
	WriteTimeout        = 10 * time.Second
)

var ErrConnClosed = errors.New("connection closed")

type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Dialer opens connections to the transcription service.
type Dialer struct {
	URL          string
	Header       http.Header
	PingInterval time.Duration
	Logger       *log.Logger
}

func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	url := d.URL
	if url == "" {
		url = DefaultURL
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	logger.Info("connected to transcription service", "url", url)

	c := &Conn{
		ws:       ws,
		logger:   logger,
		messages: make(chan ServerMessage, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.setState(Open)

	go c.readLoop()

	interval := d.PingInterval
	if interval == 0 {
		interval = DefaultPingInterval
	}
	if interval > 0 {
		go c.keepAlive(interval)
	}

	return c, nil
}

// Conn is one websocket connection to the transcription service. Writes are
// serialised; inbound frames are decoded by a single read loop and delivered
// on Messages, which is closed when the connection ends.
type Conn struct {
	ws     *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	state  State
	err    error
	closed bool

	messages  chan ServerMessage
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Messages() <-chan ServerMessage { return c.messages }

// Done is closed once the connection has ended for any reason.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports why the connection ended. It is nil while open and after a
// local Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) Send(msg ClientMessage) error {
	if c.State() != Open {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s message: %w", msg.Type, err)
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = Closed
	c.mu.Unlock()
	close(c.quit)

	c.writeMu.Lock()
	err := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("failed to send close message", "error", err)
	}

	if err := c.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close websocket connection: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.finish()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = fmt.Errorf("websocket read failed: %w", err)
			}
			c.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		msg, err := ParseServerMessage(data)
		if err != nil {
			c.logger.Warn("ignoring malformed message", "error", err)
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.quit:
			return
		}
	}
}

func (c *Conn) finish() {
	c.closeOnce.Do(func() {
		c.setState(Closed)
		close(c.done)
		close(c.messages)
		c.ws.Close()
	})
}

func (c *Conn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Send(Ping()); err != nil {
				c.logger.Error("failed to send ping", "error", err)
				return
			}
		}
	}
}
