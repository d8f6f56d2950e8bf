// ABOUTME: Audio decoder package for packets and audio files
// ABOUTME: Provides packet Decoders (PCM, Opus) and file Sources (MP3, FLAC, WAV, Ogg Vorbis, raw PCM)
// Package decode provides audio decoders for various codecs.
//
// Packet decoders (PCM, Opus) turn network frames into samples. File sources
// (MP3, FLAC, WAV, Ogg Vorbis, raw PCM) stream a whole file.
//
// All decoders output interleaved int32 samples in 24-bit range for
// consistent hi-res audio processing.
//
// Example:
//
//	src, err := decode.Open("song.flac")
//	defer src.Close()
//	n, err := src.ReadSamples(buf)
package decode
