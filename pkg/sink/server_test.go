// ABOUTME: Tests for the network sink
// ABOUTME: Drives the sink over real WebSockets with the null output backend
package sink

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audio/encode"
	"github.com/Resonate-Protocol/audioout/pkg/audio/output"
	"github.com/Resonate-Protocol/audioout/pkg/audioout"
	"github.com/Resonate-Protocol/audioout/pkg/protocol"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pcm48k = protocol.AudioFormat{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// startSink serves a sink backed by the null device and returns its address
func startSink(t *testing.T, config Config) (*Server, string) {
	t.Helper()
	config.Logger = quietLogger()
	if config.Factory == nil {
		config.Factory = output.NewFactory(output.WithBackend(output.NullBackend), output.WithLogger(config.Logger))
	}
	if config.StateIntervalMs == 0 {
		config.StateIntervalMs = 10
	}
	srv := New(config)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, strings.TrimPrefix(ts.URL, "http://")
}

func dial(t *testing.T, addr string) *protocol.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := protocol.Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func startStream(t *testing.T, conn *protocol.Conn, format protocol.AudioFormat) (*protocol.StreamReady, error) {
	t.Helper()
	require.NoError(t, conn.Send(protocol.TypeStreamStart, protocol.StreamStart{
		Version:  protocol.Version,
		ClientID: "test-client",
		Name:     "Test Client",
		Format:   format,
		Volume:   1,
	}))
	msg, err := conn.Expect(protocol.TypeStreamReady, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return msg.Payload.(*protocol.StreamReady), nil
}

// waitSinkState reads sink/state reports until one has the wanted state
func waitSinkState(t *testing.T, conn *protocol.Conn, want string) protocol.SinkState {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := conn.Expect(protocol.TypeSinkState, time.Until(deadline))
		require.NoError(t, err)
		state := msg.Payload.(*protocol.SinkState)
		if state.State == want {
			return *state
		}
	}
	t.Fatalf("sink never reported state %q", want)
	return protocol.SinkState{}
}

func TestSink_Handshake(t *testing.T) {
	srv, addr := startSink(t, Config{Name: "Kitchen"})
	conn := dial(t, addr)

	ready, err := startStream(t, conn, pcm48k)
	require.NoError(t, err)

	assert.NotEmpty(t, ready.SessionID)
	assert.Equal(t, "Kitchen", ready.SinkName)
	assert.Equal(t, protocol.Version, ready.Version)
	assert.Equal(t, pcm48k, ready.Device)

	info, ok := srv.Current()
	require.True(t, ok)
	assert.Equal(t, ready.SessionID, info.ID)
	assert.Equal(t, "Test Client", info.ClientName)
	assert.Equal(t, audio.StateIdle, info.State)
}

func TestSink_PlaysAudio(t *testing.T) {
	srv, addr := startSink(t, Config{})
	conn := dial(t, addr)

	_, err := startStream(t, conn, pcm48k)
	require.NoError(t, err)

	frame := make([]byte, 3840) // 20ms
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.SendAudio(protocol.AudioChunk{Timestamp: int64(i) * 20000, Data: frame}))
	}

	state := waitSinkState(t, conn, "active")
	assert.Empty(t, state.Error)

	assert.Eventually(t, func() bool {
		info, ok := srv.Current()
		return ok && info.Processed >= 100000
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSink_PauseResumeVolume(t *testing.T) {
	srv, addr := startSink(t, Config{})
	conn := dial(t, addr)

	_, err := startStream(t, conn, pcm48k)
	require.NoError(t, err)

	require.NoError(t, conn.Send(protocol.TypeStreamPause, nil))
	waitSinkState(t, conn, "suspended")

	require.NoError(t, conn.Send(protocol.TypeStreamResume, nil))
	waitSinkState(t, conn, "idle")

	require.NoError(t, conn.Send(protocol.TypeStreamVolume, protocol.StreamVolume{Volume: 3}))
	assert.Eventually(t, func() bool {
		info, ok := srv.Current()
		return ok && info.Volume == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Send(protocol.TypeStreamVolume, protocol.StreamVolume{Volume: 0.25}))
	assert.Eventually(t, func() bool {
		info, ok := srv.Current()
		return ok && info.Volume == 0.25
	}, time.Second, 5*time.Millisecond)
}

func TestSink_RejectsUnsupportedCodec(t *testing.T) {
	_, addr := startSink(t, Config{})
	conn := dial(t, addr)

	_, err := startStream(t, conn, protocol.AudioFormat{Codec: "aac", SampleRate: 48000, Channels: 2, BitDepth: 16})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported codec")
}

func TestSink_RejectsChannelConversion(t *testing.T) {
	_, addr := startSink(t, Config{Format: audio.Format{Channels: 1}})
	conn := dial(t, addr)

	_, err := startStream(t, conn, pcm48k)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot convert 2 channels to 1")
}

func TestSink_Busy(t *testing.T) {
	_, addr := startSink(t, Config{})

	first := dial(t, addr)
	_, err := startStream(t, first, pcm48k)
	require.NoError(t, err)

	second := dial(t, addr)
	_, err = startStream(t, second, pcm48k)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrBusy.Error())
}

func TestSink_ResamplesToConfiguredRate(t *testing.T) {
	srv, addr := startSink(t, Config{Format: audio.Format{SampleRate: 48000}})
	conn := dial(t, addr)

	ready, err := startStream(t, conn, protocol.AudioFormat{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 16})
	require.NoError(t, err)
	assert.Equal(t, 48000, ready.Device.SampleRate)

	// 100ms at 44.1kHz
	require.NoError(t, conn.SendAudio(protocol.AudioChunk{Data: make([]byte, 4410*4)}))
	assert.Eventually(t, func() bool {
		info, ok := srv.Current()
		return ok && info.Processed >= 90000
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSink_DisconnectEndsSession(t *testing.T) {
	srv, addr := startSink(t, Config{})
	conn := dial(t, addr)

	_, err := startStream(t, conn, pcm48k)
	require.NoError(t, err)
	_, ok := srv.Current()
	require.True(t, ok)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		_, ok := srv.Current()
		return !ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSink_OpusStream(t *testing.T) {
	srv, addr := startSink(t, Config{})
	conn := dial(t, addr)

	opusFormat := protocol.AudioFormat{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16}
	ready, err := startStream(t, conn, opusFormat)
	require.NoError(t, err)
	assert.Equal(t, "pcm", ready.Device.Codec)
	assert.Equal(t, 16, ready.Device.BitDepth)

	enc, err := encode.NewOpus(audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16})
	require.NoError(t, err)
	defer enc.Close()

	samples := make([]int32, enc.FrameSize())
	for i := 0; i < 5; i++ {
		packet, err := enc.Encode(samples)
		require.NoError(t, err)
		require.NoError(t, conn.SendAudio(protocol.AudioChunk{Timestamp: int64(i) * 20000, Data: packet}))
	}

	assert.Eventually(t, func() bool {
		info, ok := srv.Current()
		return ok && info.Processed >= 100000
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSink_RemoteOutputEndToEnd(t *testing.T) {
	srv, addr := startSink(t, Config{Name: "Den"})

	format := audio.DefaultFormat()
	out := audioout.NewForDevice(
		audio.DeviceInfo{Backend: output.RemoteBackend, ID: addr, Name: "Den"},
		format,
		audioout.WithLogger(quietLogger()),
	)
	defer out.Close()

	w := out.StartWriter()
	require.NotNil(t, w, "remote output failed: %s", out.Error())
	assert.Equal(t, audio.StateIdle, out.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, audioout.WriteAll(ctx, out, w, make([]byte, format.BytesForDuration(100*time.Millisecond))))

	assert.Eventually(t, func() bool {
		info, ok := srv.Current()
		return ok && info.ClientName == "audioout" && info.Processed > 0
	}, 3*time.Second, 10*time.Millisecond)

	out.Stop()
	assert.Equal(t, audio.NoError, out.Error())
	assert.Eventually(t, func() bool {
		_, ok := srv.Current()
		return !ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSink_RemoteOutputOpus(t *testing.T) {
	srv, addr := startSink(t, Config{})

	out := audioout.NewForDevice(
		audio.DeviceInfo{Backend: output.RemoteBackend, ID: addr, Properties: map[string]string{"codec": "opus"}},
		audio.DefaultFormat(),
		audioout.WithLogger(quietLogger()),
	)
	defer out.Close()

	w := out.StartWriter()
	require.NotNil(t, w)

	assert.Eventually(t, func() bool {
		info, ok := srv.Current()
		return ok && info.Stream.Codec == "opus"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSink_RemoteOutputUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	out := audioout.NewForDevice(audio.DeviceInfo{Backend: output.RemoteBackend, ID: addr}, audio.DefaultFormat(), audioout.WithLogger(quietLogger()))
	defer out.Close()

	assert.Nil(t, out.StartWriter())
	assert.Equal(t, audio.StateStopped, out.State())
	assert.Equal(t, audio.OpenError, out.Error())
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	srv := New(Config{Logger: quietLogger()})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}
