// ABOUTME: Opus audio encoder
// ABOUTME: Encodes 20ms frames of int32 samples to Opus packets
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// CodecOpus is the wire codec name for Opus packets
const CodecOpus = "opus"

// maxOpusPacket is the largest packet libopus recommends buffering for
const maxOpusPacket = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int
	pcm        []int16
	packet     []byte
}

// OpusSupported reports whether Opus can carry audio at this rate and channel count
func OpusSupported(sampleRate, channels int) bool {
	if channels != 1 && channels != 2 {
		return false
	}
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	default:
		return false
	}
}

// OpusFrameSamples returns the samples per channel of one 20ms Opus frame
func OpusFrameSamples(sampleRate int) int {
	return sampleRate / 50
}

// NewOpus creates a new Opus encoder
func NewOpus(format audio.Format) (*OpusEncoder, error) {
	if format.Codec != CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}
	if !OpusSupported(format.SampleRate, format.Channels) {
		return nil, fmt.Errorf("unsupported opus format: %dHz %dch", format.SampleRate, format.Channels)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	frameSize := OpusFrameSamples(format.SampleRate)

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		frameSize:  frameSize,
		pcm:        make([]int16, frameSize*format.Channels),
		packet:     make([]byte, maxOpusPacket),
	}, nil
}

// FrameSize returns the interleaved sample count Encode expects
func (e *OpusEncoder) FrameSize() int {
	return e.frameSize * e.channels
}

// SetBitrate sets the target bitrate in bits per second
func (e *OpusEncoder) SetBitrate(bps int) error {
	if err := e.encoder.SetBitrate(bps); err != nil {
		return fmt.Errorf("failed to set opus bitrate: %w", err)
	}
	return nil
}

// Encode converts one 20ms frame of int32 samples to an Opus packet.
// Short frames are padded with silence.
func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	if len(samples) > len(e.pcm) {
		return nil, fmt.Errorf("opus frame too large: %d samples, max %d", len(samples), len(e.pcm))
	}

	for i := range e.pcm {
		if i < len(samples) {
			e.pcm[i] = audio.SampleToInt16(clamp24(samples[i]))
		} else {
			e.pcm[i] = 0
		}
	}

	n, err := e.encoder.Encode(e.pcm, e.packet)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	out := make([]byte, n)
	copy(out, e.packet[:n])
	return out, nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
