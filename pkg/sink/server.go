// ABOUTME: Network sink serving the audioout stream protocol over WebSocket
// ABOUTME: Plays one remote stream at a time through an audio output and advertises itself via mDNS
package sink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audioout"
	"github.com/Resonate-Protocol/audioout/pkg/discovery"
	"github.com/Resonate-Protocol/audioout/pkg/protocol"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBusy is reported to clients while another stream is playing
var ErrBusy = errors.New("sink busy")

const (
	defaultBufferMs      = 200
	defaultStateInterval = 1000 // ms
	handshakeTimeout     = 5 * time.Second
	shutdownTimeout      = 5 * time.Second
	audioQueueLength     = 64
)

// Config holds sink configuration
type Config struct {
	// Name is shown to clients and advertised over mDNS
	Name string
	// Addr is the listen address, e.g. ":8928"
	Addr string
	// Device is the local output device; zero means the system default
	Device audio.DeviceInfo
	// Format overrides the device rate, channels or bit depth; zero fields follow the stream
	Format audio.Format
	// BufferMs is used when a client does not ask for a buffer size
	BufferMs int
	// StateIntervalMs is the cadence of sink/state reports
	StateIntervalMs int
	// EnableMDNS advertises the sink on the local network
	EnableMDNS bool
	// Factory creates output devices; nil uses the default factory
	Factory audioout.DeviceFactory
	Logger  *log.Logger
}

// SessionInfo describes the stream currently playing
type SessionInfo struct {
	ID         string
	ClientID   string
	ClientName string
	RemoteAddr string
	Stream     protocol.AudioFormat
	Device     audio.Format
	State      audio.State
	Error      audio.Error
	Volume     float64
	Started    time.Time
	Processed  int64 // microseconds
}

// Server is a network audio sink
type Server struct {
	config   Config
	logger   *log.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu         sync.Mutex
	current    *session
	isShutdown bool
	wg         sync.WaitGroup

	// OnSession is called when a session starts and ends; set before serving
	OnSession func(info SessionInfo, active bool)
}

// New creates a sink
func New(config Config) *Server {
	if config.Name == "" {
		config.Name = "audioout sink"
	}
	if config.BufferMs <= 0 {
		config.BufferMs = defaultBufferMs
	}
	if config.StateIntervalMs <= 0 {
		config.StateIntervalMs = defaultStateInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		config: config,
		logger: logger.WithPrefix("sink"),
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Sinks run on trusted local networks; non-browser clients send no Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc(protocol.DefaultPath, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the protocol
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Current returns the active session, if any
func (s *Server) Current() (SessionInfo, bool) {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		return SessionInfo{}, false
	}
	return sess.info(), true
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: handshakeTimeout,
	}

	var mdnsManager *discovery.Manager
	if s.config.EnableMDNS {
		port := 0
		if addr, ok := ln.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		mdnsManager = discovery.NewManager(discovery.Config{
			Instance: s.config.Name,
			Port:     port,
			Text: map[string]string{
				"path":   protocol.DefaultPath,
				"codecs": strings.Join(supportedCodecs, ","),
				"proto":  fmt.Sprint(protocol.Version),
			},
		})
		if err := mdnsManager.Advertise(); err != nil {
			s.logger.Warn("Failed to start mDNS advertisement", "error", err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	s.logger.Info("Sink listening", "addr", ln.Addr().String(), "name", s.config.Name)

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Sink shutting down")
	case err := <-errChan:
		serverErr = err
	}

	s.mu.Lock()
	s.isShutdown = true
	current := s.current
	s.mu.Unlock()

	if mdnsManager != nil {
		mdnsManager.Stop()
	}
	if current != nil {
		current.stop("shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error", "error", err)
	}
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	conn := protocol.NewConn(ws)
	defer conn.Close()

	s.logger.Debug("New connection", "remote", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection runs one client from stream/start to disconnect
func (s *Server) handleConnection(conn *protocol.Conn) {
	msg, err := conn.Expect(protocol.TypeStreamStart, handshakeTimeout)
	if err != nil {
		s.logger.Warn("Handshake failed", "error", err)
		return
	}
	start, ok := msg.Payload.(*protocol.StreamStart)
	if !ok || start == nil {
		sendError(conn, "stream/start without payload")
		return
	}

	sess, err := s.claim(conn, start)
	if err != nil {
		s.logger.Info("Rejecting stream", "client", start.Name, "error", err)
		sendError(conn, err.Error())
		return
	}
	defer s.release(sess)

	if err := sess.open(); err != nil {
		s.logger.Warn("Failed to open stream", "client", start.Name, "error", err)
		sendError(conn, err.Error())
		return
	}

	s.logger.Info("Stream started",
		"client", start.Name,
		"session", sess.id,
		"stream", sess.streamFormatString(),
		"device", sess.device.String())
	if s.OnSession != nil {
		s.OnSession(sess.info(), true)
	}

	sess.run()

	if s.OnSession != nil {
		s.OnSession(sess.info(), false)
	}
	s.logger.Info("Stream ended", "client", start.Name, "session", sess.id, "reason", sess.reason())
}

// claim reserves the sink for a new session
func (s *Server) claim(conn *protocol.Conn, start *protocol.StreamStart) (*session, error) {
	if start.Version != protocol.Version {
		return nil, fmt.Errorf("unsupported protocol version %d", start.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isShutdown {
		return nil, errors.New("sink shutting down")
	}
	if s.current != nil {
		return nil, ErrBusy
	}

	bufferMs := start.BufferMs
	if bufferMs <= 0 {
		bufferMs = s.config.BufferMs
	}

	sess := &session{
		id:         uuid.NewString(),
		conn:       conn,
		start:      *start,
		sinkName:   s.config.Name,
		device:     deviceFormat(start.Format, s.config.Format),
		deviceInfo: s.config.Device,
		bufferMs:   bufferMs,
		intervalMs: s.config.StateIntervalMs,
		factory:    s.config.Factory,
		logger:     s.logger,
		started:    time.Now(),
	}
	s.current = sess
	return sess, nil
}

func (s *Server) release(sess *session) {
	sess.close()

	s.mu.Lock()
	if s.current == sess {
		s.current = nil
	}
	s.mu.Unlock()
}

func sendError(conn *protocol.Conn, message string) {
	_ = conn.Send(protocol.TypeStreamError, protocol.StreamError{Message: message})
}
