// ABOUTME: One remote stream playing through a local audio output
// ABOUTME: Reads control and audio frames, feeds the output in pull mode and reports sink state
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audio/decode"
	"github.com/Resonate-Protocol/audioout/pkg/audioout"
	"github.com/Resonate-Protocol/audioout/pkg/protocol"
	"github.com/charmbracelet/log"
)

var supportedCodecs = []string{audio.CodecPCM, decode.CodecOpus}

const drainPoll = 10 * time.Millisecond

type session struct {
	id         string
	conn       *protocol.Conn
	start      protocol.StreamStart
	sinkName   string
	device     audio.Format
	deviceInfo audio.DeviceInfo
	bufferMs   int
	intervalMs int
	factory    audioout.DeviceFactory
	logger     *log.Logger
	started    time.Time

	out    *audioout.Output
	w      io.Writer
	pipe   *pipeline
	ctx    context.Context
	cancel context.CancelFunc
	frames chan []byte

	stopOnce sync.Once
	mu       sync.Mutex
	ended    string
	drain    bool
}

// open creates the output and answers stream/ready
func (s *session) open() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	codec := s.start.Format.Codec
	if codec == "" {
		codec = audio.CodecPCM
		s.start.Format.Codec = codec
	}
	if !slices.Contains(supportedCodecs, codec) {
		return fmt.Errorf("unsupported codec: %s", codec)
	}

	pipe, err := newPipeline(s.start.Format, s.device)
	if err != nil {
		return err
	}
	s.pipe = pipe

	opts := []audioout.Option{audioout.WithLogger(s.logger)}
	if s.factory != nil {
		opts = append(opts, audioout.WithFactory(s.factory))
	}
	out := audioout.NewForDevice(s.deviceInfo, s.device, opts...)
	out.SetBufferSize(s.device.BytesForDuration(time.Duration(s.bufferMs) * time.Millisecond))
	out.SetNotifyInterval(s.intervalMs)
	out.SetVolume(s.start.Volume)
	out.SetCategory("network")

	s.mu.Lock()
	s.out = out
	s.mu.Unlock()

	out.OnStateChanged(s.stateChanged)
	out.OnNotify(func() { s.report(out.State()) })

	w := out.StartWriter()
	if w == nil {
		return fmt.Errorf("output device failed: %s", out.Error())
	}
	s.w = w

	return s.conn.Send(protocol.TypeStreamReady, protocol.StreamReady{
		Version:   protocol.Version,
		SessionID: s.id,
		SinkName:  s.sinkName,
		Device: protocol.AudioFormat{
			Codec:      audio.CodecPCM,
			SampleRate: s.device.SampleRate,
			Channels:   s.device.Channels,
			BitDepth:   s.device.BitDepth,
		},
	})
}

// run blocks until the client ends the stream, disconnects or the output fails
func (s *session) run() {
	s.frames = make(chan []byte, audioQueueLength)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.play()
	}()

	s.readLoop()
	close(s.frames)
	<-done
}

func (s *session) readLoop() {
	for {
		in, err := s.conn.Receive()
		if err != nil {
			if !protocol.IsClosed(err) {
				s.logger.Debug("Connection read failed", "session", s.id, "error", err)
			}
			s.stop("disconnected")
			return
		}

		if in.Audio != nil {
			select {
			case s.frames <- in.Audio.Data:
			case <-s.ctx.Done():
				return
			}
			continue
		}

		switch in.Message.Type {
		case protocol.TypeStreamPause:
			s.out.Suspend()
		case protocol.TypeStreamResume:
			s.out.Resume()
		case protocol.TypeStreamVolume:
			if p, ok := in.Message.Payload.(*protocol.StreamVolume); ok {
				s.out.SetVolume(p.Volume)
				s.report(s.out.State())
			}
		case protocol.TypeStreamEnd:
			reason := "end"
			if p, ok := in.Message.Payload.(*protocol.StreamEnd); ok && p.Reason != "" {
				reason = p.Reason
			}
			s.mu.Lock()
			s.ended = reason
			s.drain = true
			s.mu.Unlock()
			return
		default:
			s.logger.Debug("Ignoring message", "type", in.Message.Type)
		}
	}
}

// play converts queued frames and writes them to the output
func (s *session) play() {
	for data := range s.frames {
		pcm, err := s.pipe.convert(data)
		if err != nil {
			s.fail(err)
			return
		}
		if err := audioout.WriteAll(s.ctx, s.out, s.w, pcm); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail(fmt.Errorf("output stopped: %s", s.out.Error()))
			return
		}
	}

	s.mu.Lock()
	drain := s.drain
	s.mu.Unlock()
	if drain {
		s.waitDrained()
	}
}

// waitDrained lets buffered audio play out after stream/end
func (s *session) waitDrained() {
	limit := time.Duration(s.bufferMs)*time.Millisecond + 500*time.Millisecond
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for s.out.State() == audio.StateActive {
		select {
		case <-s.ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

func (s *session) stateChanged(state audio.State) {
	s.report(state)

	if state != audio.StateStopped {
		return
	}
	switch errState := s.out.Error(); errState {
	case audio.IOError, audio.FatalError:
		go s.fail(fmt.Errorf("output device failed: %s", errState))
	}
}

// report sends sink/state; failures mean the client is gone and are ignored
func (s *session) report(state audio.State) {
	msg := protocol.SinkState{
		State:          state.String(),
		ProcessedUSecs: s.out.ProcessedUSecs(),
	}
	if e := s.out.Error(); e != audio.NoError {
		msg.Error = e.String()
	}
	if err := s.conn.Send(protocol.TypeSinkState, msg); err != nil && !errors.Is(err, protocol.ErrClosed) {
		s.logger.Debug("Failed to send sink state", "session", s.id, "error", err)
	}
}

// fail reports err to the client and ends the session
func (s *session) fail(err error) {
	s.logger.Warn("Stream failed", "session", s.id, "error", err)
	sendError(s.conn, err.Error())
	s.stop("error")
}

// stop ends the session from any goroutine
func (s *session) stop(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.ended == "" {
			s.ended = reason
		}
		s.mu.Unlock()

		if s.cancel != nil {
			s.cancel()
		}
		_ = s.conn.Close()
	})
}

// close releases the output; called once the session goroutines are done
func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	out := s.out
	s.mu.Unlock()

	if out != nil {
		_ = out.Close()
	}
	if s.pipe != nil {
		s.pipe.close()
	}
}

func (s *session) reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *session) streamFormatString() string {
	f := s.start.Format
	return fmt.Sprintf("%s %dHz %dch %d-bit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()

	info := SessionInfo{
		ID:         s.id,
		ClientID:   s.start.ClientID,
		ClientName: s.start.Name,
		Stream:     s.start.Format,
		Device:     s.device,
		Started:    s.started,
	}
	if addr := s.conn.RemoteAddr(); addr != nil {
		info.RemoteAddr = addr.String()
	}
	if out != nil {
		info.State = out.State()
		info.Error = out.Error()
		info.Volume = out.Volume()
		info.Processed = out.ProcessedUSecs()
	}
	return info
}
