// ABOUTME: Wire audio to device PCM conversion for sink sessions
// ABOUTME: Decodes PCM or Opus frames, resamples to the device rate and re-encodes
package sink

import (
	"fmt"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audio/decode"
	"github.com/Resonate-Protocol/audioout/pkg/audio/encode"
	"github.com/Resonate-Protocol/audioout/pkg/audio/resample"
	"github.com/Resonate-Protocol/audioout/pkg/protocol"
)

// pipeline converts frames in the stream format to bytes in the device format
type pipeline struct {
	dec decode.Decoder
	rs  *resample.Resampler
	enc encode.Encoder
	buf []int32

	channels int
}

// deviceFormat picks the output format for a stream.
// A configured format wins; otherwise the stream's own rate and channels are used.
func deviceFormat(stream protocol.AudioFormat, configured audio.Format) audio.Format {
	f := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: stream.SampleRate,
		Channels:   stream.Channels,
		BitDepth:   stream.BitDepth,
	}
	if stream.Codec == decode.CodecOpus || f.BitDepth == 0 {
		f.BitDepth = 16
	}
	if configured.SampleRate > 0 {
		f.SampleRate = configured.SampleRate
	}
	if configured.BitDepth > 0 {
		f.BitDepth = configured.BitDepth
	}
	if configured.Channels > 0 {
		f.Channels = configured.Channels
	}
	return f
}

func newPipeline(stream protocol.AudioFormat, device audio.Format) (*pipeline, error) {
	if stream.Channels != device.Channels {
		return nil, fmt.Errorf("cannot convert %d channels to %d", stream.Channels, device.Channels)
	}
	if stream.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", stream.SampleRate)
	}

	in := audio.Format{
		Codec:      stream.Codec,
		SampleRate: stream.SampleRate,
		Channels:   stream.Channels,
		BitDepth:   stream.BitDepth,
	}
	if in.Codec == decode.CodecOpus && in.BitDepth == 0 {
		in.BitDepth = 16
	}

	dec, err := decode.NewDecoder(in)
	if err != nil {
		return nil, err
	}
	enc, err := encode.NewPCM(device)
	if err != nil {
		_ = dec.Close()
		return nil, err
	}

	p := &pipeline{dec: dec, enc: enc, channels: device.Channels}
	if stream.SampleRate != device.SampleRate {
		p.rs = resample.New(stream.SampleRate, device.SampleRate, device.Channels)
	}
	return p, nil
}

// convert turns one wire frame into device bytes
func (p *pipeline) convert(data []byte) ([]byte, error) {
	samples, err := p.dec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	if p.rs != nil {
		need := p.rs.OutputSamplesNeeded(len(samples)) + 2*p.channels
		if cap(p.buf) < need {
			p.buf = make([]int32, need)
		}
		n := p.rs.Resample(samples, p.buf[:need])
		samples = p.buf[:n]
	}

	return p.enc.Encode(samples)
}

func (p *pipeline) close() {
	_ = p.dec.Close()
	_ = p.enc.Close()
}
