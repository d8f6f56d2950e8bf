// ABOUTME: Test tone generator used by the tone command and device checks
// ABOUTME: Produces a sine wave as 24-bit range samples, optionally for a fixed duration
package tone

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// DefaultFrequency is A4
const DefaultFrequency = 440.0

// Generator produces a sine tone
type Generator struct {
	mu          sync.Mutex
	format      audio.Format
	frequency   float64
	amplitude   float64
	totalFrames int64 // 0 means endless
	frameIndex  int64
}

// New creates a generator for format. A zero duration never ends.
func New(format audio.Format, frequency, amplitude float64, duration time.Duration) (*Generator, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid tone format: %s", format)
	}
	if frequency <= 0 || frequency >= float64(format.SampleRate)/2 {
		return nil, fmt.Errorf("frequency %.1fHz outside (0, %d)", frequency, format.SampleRate/2)
	}
	if amplitude < 0 || amplitude > 1 || math.IsNaN(amplitude) {
		return nil, fmt.Errorf("amplitude %.2f outside [0, 1]", amplitude)
	}

	g := &Generator{
		format:    format,
		frequency: frequency,
		amplitude: amplitude,
	}
	if duration > 0 {
		g.totalFrames = int64(duration.Seconds() * float64(format.SampleRate))
	}
	return g, nil
}

// Format returns the generated format
func (g *Generator) Format() audio.Format { return g.format }

// ReadSamples fills dst with whole frames of the tone, duplicated across channels
func (g *Generator) ReadSamples(dst []int32) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	channels := g.format.Channels
	frames := int64(len(dst) / channels)
	if g.totalFrames > 0 {
		remaining := g.totalFrames - g.frameIndex
		if remaining <= 0 {
			return 0, io.EOF
		}
		frames = min(frames, remaining)
	}

	rate := float64(g.format.SampleRate)
	for i := int64(0); i < frames; i++ {
		t := float64(g.frameIndex+i) / rate
		value := int32(math.Sin(2*math.Pi*g.frequency*t) * audio.Max24Bit * g.amplitude)
		for ch := 0; ch < channels; ch++ {
			dst[int(i)*channels+ch] = value
		}
	}
	g.frameIndex += frames

	return int(frames) * channels, nil
}

// Elapsed returns how much of the tone has been generated
func (g *Generator) Elapsed() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Duration(g.frameIndex) * time.Second / time.Duration(g.format.SampleRate)
}

func (g *Generator) Close() error { return nil }
