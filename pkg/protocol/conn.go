// ABOUTME: WebSocket connection wrapper for the sink protocol
// ABOUTME: Serializes writes and splits incoming frames into control messages and audio chunks
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audioout/internal/version"
	"github.com/gorilla/websocket"
)

// DefaultPath is the HTTP path sinks serve the protocol on
const DefaultPath = "/audioout"

const writeTimeout = 5 * time.Second

// ErrClosed is returned after Close
var ErrClosed = errors.New("protocol connection closed")

// Conn is a protocol connection over a WebSocket.
// Sends may be issued from several goroutines; Receive from one.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

// Incoming is one received frame; exactly one field is set
type Incoming struct {
	Message *Message
	Audio   *AudioChunk
}

// NewConn wraps an established WebSocket
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// URL builds the WebSocket URL of a sink
func URL(host string, port int) string {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: DefaultPath}
	return u.String()
}

// NormalizeURL accepts "host:port", "ws://host:port" or a full URL and returns a ws URL
func NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty sink address")
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid sink address %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%s is not a supported protocol", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid sink address %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}
	return u.String(), nil
}

// Dial connects to a sink
func Dial(ctx context.Context, addr string) (*Conn, error) {
	target, err := NormalizeURL(addr)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{"User-Agent": []string{version.UserAgent()}}
	ws, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return NewConn(ws), nil
}

// Send writes a control message
func (c *Conn) Send(msgType string, payload interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(Message{Type: msgType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to send %s: %w", msgType, err)
	}
	return nil
}

// SendAudio writes a binary audio frame
func (c *Conn) SendAudio(chunk AudioChunk) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, EncodeAudioChunk(chunk)); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// Receive reads the next frame
func (c *Conn) Receive() (Incoming, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return Incoming{}, err
		}

		switch messageType {
		case websocket.TextMessage:
			msg, err := DecodeMessage(data)
			if err != nil {
				return Incoming{}, err
			}
			return Incoming{Message: &msg}, nil
		case websocket.BinaryMessage:
			chunk, err := DecodeAudioChunk(data)
			if err != nil {
				return Incoming{}, err
			}
			return Incoming{Audio: &chunk}, nil
		}
	}
}

// Expect reads until a control message arrives, failing on stream/error or after timeout
func (c *Conn) Expect(msgType string, timeout time.Duration) (Message, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = c.ws.SetReadDeadline(time.Time{}) }()

	for {
		in, err := c.Receive()
		if err != nil {
			return Message{}, fmt.Errorf("waiting for %s: %w", msgType, err)
		}
		if in.Message == nil {
			continue
		}
		if in.Message.Type == msgType {
			return *in.Message, nil
		}
		if se, ok := in.Message.Payload.(*StreamError); ok {
			return Message{}, fmt.Errorf("sink error: %s", se.Message)
		}
	}
}

// Close sends a close frame and closes the connection
func (c *Conn) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.ws.Close()
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// IsClosed reports whether err means the peer or Close ended the connection
func IsClosed(err error) bool {
	if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
