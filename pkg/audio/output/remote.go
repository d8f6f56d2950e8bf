// ABOUTME: Remote output driver streaming to an audioout sink over WebSocket
// ABOUTME: Paces rendering in real time with a token bucket and sends PCM or Opus frames
package output

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/audioout/internal/version"
	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audio/decode"
	"github.com/Resonate-Protocol/audioout/pkg/audio/encode"
	"github.com/Resonate-Protocol/audioout/pkg/discovery"
	"github.com/Resonate-Protocol/audioout/pkg/protocol"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RemoteBackend is the name of the network sink backend
const RemoteBackend = "remote"

const (
	remoteFrameDuration = 20 * time.Millisecond
	remoteHandshake     = 5 * time.Second
	remoteBrowseTimeout = 2 * time.Second
)

func init() {
	register(backendEntry{
		name:      RemoteBackend,
		priority:  10,
		available: func() bool { return true },
		newDriver: func(info audio.DeviceInfo) driver { return &remoteDriver{info: info} },
		devices:   remoteDevices,
		minNotify: remoteFrameDuration,
	})
}

// remoteDriver sends rendered audio to a sink
type remoteDriver struct {
	info audio.DeviceInfo

	conn    *protocol.Conn
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closing atomic.Bool

	pauseMu sync.Mutex
	paused  bool
	resumed chan struct{}
}

func (d *remoteDriver) open(cfg driverConfig, r renderer) (driverParams, error) {
	addr := d.info.ID
	if addr == "" {
		addr = d.info.Property("url", "")
	}
	if addr == "" {
		return driverParams{}, fmt.Errorf("%w: remote device needs a sink address", ErrDeviceNotFound)
	}

	wire := protocol.AudioFormat{
		Codec:      audio.CodecPCM,
		SampleRate: cfg.Format.SampleRate,
		Channels:   cfg.Format.Channels,
		BitDepth:   cfg.Format.BitDepth,
	}
	if d.info.Property("codec", audio.CodecPCM) == encode.CodecOpus {
		if cfg.Format.BitDepth == 16 && encode.OpusSupported(cfg.Format.SampleRate, cfg.Format.Channels) {
			wire.Codec = encode.CodecOpus
		} else {
			log.Warn("Opus not possible for this format, sending PCM", "format", cfg.Format.String())
		}
	}

	frame := cfg.Format.BytesForDuration(remoteFrameDuration)
	if frame <= 0 {
		return driverParams{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, cfg.Format)
	}
	var codec *remoteCodec
	if wire.Codec == encode.CodecOpus {
		var err error
		codec, err = newRemoteCodec(cfg.Format)
		if err != nil {
			return driverParams{}, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteHandshake)
	defer cancel()

	conn, err := protocol.Dial(ctx, addr)
	if err != nil {
		return driverParams{}, err
	}

	bufferMs := int(cfg.Format.DurationForBytes(int64(cfg.BufferSize)) / time.Millisecond)
	start := protocol.StreamStart{
		Version:  protocol.Version,
		ClientID: uuid.NewString(),
		Name:     d.info.Property("client_name", version.Product),
		Format:   wire,
		BufferMs: bufferMs,
		Volume:   1,
	}
	if err := conn.Send(protocol.TypeStreamStart, start); err != nil {
		_ = conn.Close()
		return driverParams{}, err
	}

	msg, err := conn.Expect(protocol.TypeStreamReady, remoteHandshake)
	if err != nil {
		_ = conn.Close()
		return driverParams{}, err
	}
	if ready, ok := msg.Payload.(*protocol.StreamReady); ok {
		log.Debug("Remote sink ready", "sink", ready.SinkName, "session", ready.SessionID, "codec", wire.Codec)
	}

	// The sink buffers BufferSize; allow that much ahead of real time
	burst := max(cfg.BufferSize, frame)
	limiter := rate.NewLimiter(rate.Limit(cfg.Format.BytesForDuration(time.Second)), burst)

	runCtx, runCancel := context.WithCancel(context.Background())
	d.conn = conn
	d.cancel = runCancel
	d.closing.Store(false)
	d.pauseMu.Lock()
	d.paused = false
	d.resumed = make(chan struct{})
	d.pauseMu.Unlock()

	d.wg.Add(2)
	go d.pump(runCtx, cfg.Format, frame, limiter, codec, r)
	go d.readLoop(r)

	return driverParams{
		BufferSize: burst,
		PeriodSize: frame,
	}, nil
}

// pump renders one frame at a time, never faster than real time plus the sink buffer
func (d *remoteDriver) pump(ctx context.Context, format audio.Format, frame int, limiter *rate.Limiter, codec *remoteCodec, r renderer) {
	defer d.wg.Done()

	buf := make([]byte, frame)
	var timestamp int64
	frameMicros := format.MicrosForBytes(int64(frame))

	for {
		if !d.waitResumed(ctx) {
			return
		}
		if err := limiter.WaitN(ctx, frame); err != nil {
			return
		}

		r.render(buf)

		payload := buf
		if codec != nil {
			packet, err := codec.encode(buf)
			if err != nil {
				r.fail(err)
				return
			}
			payload = packet
		}

		if err := d.conn.SendAudio(protocol.AudioChunk{Timestamp: timestamp, Data: payload}); err != nil {
			if !d.closing.Load() {
				r.fail(err)
			}
			return
		}
		timestamp += frameMicros
	}
}

// waitResumed blocks while paused
func (d *remoteDriver) waitResumed(ctx context.Context) bool {
	d.pauseMu.Lock()
	paused, resumed := d.paused, d.resumed
	d.pauseMu.Unlock()

	if !paused {
		return ctx.Err() == nil
	}
	select {
	case <-resumed:
		return true
	case <-ctx.Done():
		return false
	}
}

// readLoop watches for sink errors and disconnects
func (d *remoteDriver) readLoop(r renderer) {
	defer d.wg.Done()

	for {
		in, err := d.conn.Receive()
		if err != nil {
			if !d.closing.Load() {
				r.fail(fmt.Errorf("sink connection lost: %w", err))
			}
			return
		}
		if in.Message == nil {
			continue
		}

		switch p := in.Message.Payload.(type) {
		case *protocol.StreamError:
			r.fail(fmt.Errorf("sink error: %s", p.Message))
			return
		case *protocol.StreamEnd:
			if !d.closing.Load() {
				r.fail(fmt.Errorf("sink ended stream: %s", p.Reason))
			}
			return
		case *protocol.SinkState:
			log.Debug("Remote sink state", "state", p.State, "error", p.Error)
		}
	}
}

func (d *remoteDriver) pause() error {
	d.pauseMu.Lock()
	if !d.paused {
		d.paused = true
		d.resumed = make(chan struct{})
	}
	d.pauseMu.Unlock()

	if d.conn == nil {
		return nil
	}
	return d.conn.Send(protocol.TypeStreamPause, nil)
}

func (d *remoteDriver) resume() error {
	if d.conn != nil {
		if err := d.conn.Send(protocol.TypeStreamResume, nil); err != nil {
			return err
		}
	}

	d.pauseMu.Lock()
	if d.paused {
		d.paused = false
		close(d.resumed)
	}
	d.pauseMu.Unlock()
	return nil
}

func (d *remoteDriver) close() error {
	if d.conn == nil {
		return nil
	}
	d.closing.Store(true)
	d.cancel()

	err := d.conn.Send(protocol.TypeStreamEnd, protocol.StreamEnd{Reason: "stopped"})
	if errors.Is(err, protocol.ErrClosed) {
		err = nil
	}
	if cerr := d.conn.Close(); err == nil {
		err = cerr
	}
	d.wg.Wait()
	d.conn = nil
	return err
}

// remoteCodec turns rendered PCM frames into Opus packets
type remoteCodec struct {
	pcm  decode.Decoder
	opus *encode.OpusEncoder
}

func newRemoteCodec(format audio.Format) (*remoteCodec, error) {
	pcm, err := decode.NewPCM(format)
	if err != nil {
		return nil, err
	}
	opusFormat := format
	opusFormat.Codec = encode.CodecOpus
	enc, err := encode.NewOpus(opusFormat)
	if err != nil {
		return nil, err
	}
	return &remoteCodec{pcm: pcm, opus: enc}, nil
}

func (c *remoteCodec) encode(frame []byte) ([]byte, error) {
	samples, err := c.pcm.Decode(frame)
	if err != nil {
		return nil, err
	}
	return c.opus.Encode(samples)
}

// remoteDevices browses the network for sinks
func remoteDevices(ctx context.Context) ([]audio.DeviceInfo, error) {
	sinks, err := discovery.Discover(ctx, remoteBrowseTimeout)
	if err != nil {
		return nil, err
	}

	devices := make([]audio.DeviceInfo, 0, len(sinks))
	for _, s := range sinks {
		props := make(map[string]string, len(s.Text)+1)
		for k, v := range s.Text {
			props[k] = v
		}
		props["host"] = s.Host
		devices = append(devices, audio.DeviceInfo{
			Backend:    RemoteBackend,
			ID:         s.URL(),
			Name:       s.Name,
			Properties: props,
		})
	}
	return devices, nil
}
