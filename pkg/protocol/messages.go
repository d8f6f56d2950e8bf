// ABOUTME: Remote sink protocol message type definitions
// ABOUTME: Control messages, their payload structs and binary frame encoding
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Version is the protocol version exchanged in stream/start and stream/ready
const Version = 1

const (
	// BinaryMessageHeaderSize is the size of binary message header (type byte + timestamp)
	BinaryMessageHeaderSize = 1 + 8

	// AudioChunkMessageType is the binary message type ID for audio chunks
	AudioChunkMessageType = 4
)

// Control message types
const (
	TypeStreamStart  = "stream/start"
	TypeStreamReady  = "stream/ready"
	TypeStreamPause  = "stream/pause"
	TypeStreamResume = "stream/resume"
	TypeStreamVolume = "stream/volume"
	TypeStreamEnd    = "stream/end"
	TypeStreamError  = "stream/error"
	TypeSinkState    = "sink/state"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// AudioFormat describes the audio carried in binary frames
type AudioFormat struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// StreamStart opens a stream on the sink
type StreamStart struct {
	Version  int         `json:"version"`
	ClientID string      `json:"client_id,omitempty"`
	Name     string      `json:"name,omitempty"`
	Format   AudioFormat `json:"format"`
	// BufferMs is the sink side buffer the client asks for
	BufferMs int     `json:"buffer_ms,omitempty"`
	Volume   float64 `json:"volume"`
}

// StreamReady acknowledges stream/start
type StreamReady struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	SinkName  string `json:"sink_name"`
	// Device is the output device format after any conversion on the sink
	Device AudioFormat `json:"device"`
}

// StreamVolume changes the sink side volume, 0.0 to 1.0
type StreamVolume struct {
	Volume float64 `json:"volume"`
}

// StreamEnd closes a stream
type StreamEnd struct {
	Reason string `json:"reason,omitempty"`
}

// StreamError reports a sink side failure; the stream is closed afterwards
type StreamError struct {
	Message string `json:"message"`
}

// SinkState reports the sink output state
type SinkState struct {
	State          string `json:"state"`
	Error          string `json:"error"`
	ProcessedUSecs int64  `json:"processed_usecs"`
}

// AudioChunk represents a timestamped audio frame
type AudioChunk struct {
	Timestamp int64  // Microseconds of stream time
	Data      []byte // Encoded audio
}

// envelope defers payload decoding until the type is known
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeMessage parses a JSON text frame into a Message with a typed payload.
// Unknown types keep the raw payload.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("failed to parse message: %w", err)
	}

	var payload interface{}
	switch env.Type {
	case TypeStreamStart:
		payload = &StreamStart{}
	case TypeStreamReady:
		payload = &StreamReady{}
	case TypeStreamVolume:
		payload = &StreamVolume{}
	case TypeStreamEnd:
		payload = &StreamEnd{}
	case TypeStreamError:
		payload = &StreamError{}
	case TypeSinkState:
		payload = &SinkState{}
	case TypeStreamPause, TypeStreamResume:
		return Message{Type: env.Type}, nil
	case "":
		return Message{}, fmt.Errorf("message without type")
	default:
		return Message{Type: env.Type, Payload: env.Payload}, nil
	}

	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return Message{}, fmt.Errorf("failed to parse %s: %w", env.Type, err)
		}
	}
	return Message{Type: env.Type, Payload: payload}, nil
}

// EncodeAudioChunk builds a binary audio frame
func EncodeAudioChunk(chunk AudioChunk) []byte {
	frame := make([]byte, BinaryMessageHeaderSize+len(chunk.Data))
	frame[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(frame[1:BinaryMessageHeaderSize], uint64(chunk.Timestamp))
	copy(frame[BinaryMessageHeaderSize:], chunk.Data)
	return frame
}

// DecodeAudioChunk parses a binary audio frame; Data aliases data
func DecodeAudioChunk(data []byte) (AudioChunk, error) {
	if len(data) < BinaryMessageHeaderSize {
		return AudioChunk{}, fmt.Errorf("invalid binary message: too short (%d bytes)", len(data))
	}
	if data[0] != AudioChunkMessageType {
		return AudioChunk{}, fmt.Errorf("unknown binary message type: %d", data[0])
	}
	return AudioChunk{
		Timestamp: int64(binary.BigEndian.Uint64(data[1:BinaryMessageHeaderSize])),
		Data:      data[BinaryMessageHeaderSize:],
	}, nil
}
