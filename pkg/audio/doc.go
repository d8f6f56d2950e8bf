// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, DeviceInfo, State and Error plus sample conversion helpers
// Package audio provides the value types shared by every audioout package.
//
// This package defines:
//   - Format: Describes a PCM stream (codec, sample rate, channels, bit depth)
//   - DeviceInfo: Identifies an output device; the zero value means the system default
//   - State and Error: The stream state machine and error taxonomy reported by devices
//
// It also provides utilities for converting between different sample formats:
//   - 16-bit ↔ 24-bit conversions
//   - int32 ↔ packed byte conversions
//
// Example:
//
//	format := audio.Format{
//	    Codec:      "pcm",
//	    SampleRate: 48000,
//	    Channels:   2,
//	    BitDepth:   16,
//	}
//
//	// 20ms of audio in bytes
//	n := format.BytesForDuration(20 * time.Millisecond)
package audio
