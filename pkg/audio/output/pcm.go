// ABOUTME: Software volume for little endian PCM byte streams
// ABOUTME: Scales 8/16/24/32-bit samples in place with clipping protection
package output

import (
	"encoding/binary"
	"math"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// applyVolume scales PCM samples in place
func applyVolume(p []byte, bitDepth int, volume float64) {
	multiplier := getVolumeMultiplier(volume)
	if multiplier == 1.0 {
		return
	}

	switch bitDepth {
	case 8:
		for i, b := range p {
			v := math.Round(float64(int(b)-128)*multiplier) + 128
			p[i] = byte(clampFloat(v, 0, 255))
		}
	case 16:
		for i := 0; i+2 <= len(p); i += 2 {
			s := int16(binary.LittleEndian.Uint16(p[i:]))
			v := clampFloat(float64(s)*multiplier, math.MinInt16, math.MaxInt16)
			binary.LittleEndian.PutUint16(p[i:], uint16(int16(v)))
		}
	case 24:
		for i := 0; i+3 <= len(p); i += 3 {
			s := audio.SampleFrom24Bit([3]byte{p[i], p[i+1], p[i+2]})
			v := clampFloat(float64(s)*multiplier, audio.Min24Bit, audio.Max24Bit)
			b := audio.SampleTo24Bit(int32(v))
			copy(p[i:i+3], b[:])
		}
	case 32:
		for i := 0; i+4 <= len(p); i += 4 {
			s := int32(binary.LittleEndian.Uint32(p[i:]))
			v := clampFloat(float64(s)*multiplier, math.MinInt32, math.MaxInt32)
			binary.LittleEndian.PutUint32(p[i:], uint32(int32(v)))
		}
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume float64) float64 {
	if math.IsNaN(volume) {
		return 0.0
	}
	return clampFloat(volume, 0.0, 1.0)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
