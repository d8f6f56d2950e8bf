// ABOUTME: Audio encoder package for encoding samples to wire and device formats
// ABOUTME: Provides Encoder interface and implementations for PCM and Opus
// Package encode provides audio encoders for various codecs.
//
// Supports: PCM (8, 16, 24 and 32-bit), Opus
//
// All encoders accept int32 samples in 24-bit range. PCM output matches the
// byte layout output devices expect, so a decoded file or network stream can be
// written straight into a device.
//
// Example:
//
//	encoder, err := encode.NewPCM(format)
//	data, err := encoder.Encode(samples)
package encode
