// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM stream format and sample conversion helpers
package audio

import (
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// CodecPCM is the only codec output devices accept
	CodecPCM = "pcm"
)

// Format describes a PCM audio stream.
// Samples are little endian; 8-bit samples are unsigned, wider samples are signed.
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat returns 48kHz stereo 16-bit PCM
func DefaultFormat() Format {
	return Format{
		Codec:      CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}
}

// IsValid reports whether the format can be played by an output device
func (f Format) IsValid() bool {
	if f.Codec != CodecPCM && f.Codec != "" {
		return false
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return false
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
		return true
	default:
		return false
	}
}

// BytesPerSample returns the size of a single sample of one channel
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// BytesPerFrame returns the size of one sample across all channels
func (f Format) BytesPerFrame() int {
	return f.BytesPerSample() * f.Channels
}

// BytesForDuration returns the number of bytes needed for d of audio, rounded down to a whole frame
func (f Format) BytesForDuration(d time.Duration) int {
	if !f.IsValid() || d <= 0 {
		return 0
	}
	// Whole seconds and the remainder separately so long durations do not overflow
	rate := int64(f.SampleRate)
	frames := int64(d/time.Second)*rate + int64(d%time.Second)*rate/int64(time.Second)
	return int(frames) * f.BytesPerFrame()
}

// DurationForBytes returns the play time of n bytes
func (f Format) DurationForBytes(n int64) time.Duration {
	if !f.IsValid() || n <= 0 {
		return 0
	}
	frames := n / int64(f.BytesPerFrame())
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// MicrosForBytes returns the play time of n bytes in microseconds
func (f Format) MicrosForBytes(n int64) int64 {
	if !f.IsValid() || n <= 0 {
		return 0
	}
	frames := n / int64(f.BytesPerFrame())
	return frames * 1000000 / int64(f.SampleRate)
}

// String returns a compact description like "pcm 48000Hz 2ch 16-bit"
func (f Format) String() string {
	codec := f.Codec
	if codec == "" {
		codec = CodecPCM
	}
	return fmt.Sprintf("%s %dHz %dch %d-bit", codec, f.SampleRate, f.Channels, f.BitDepth)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
