// ABOUTME: Remote sink wire protocol package
// ABOUTME: Defines control messages, binary audio frames and a WebSocket connection wrapper
// Package protocol implements the wire protocol between the remote output
// backend and an audioout sink.
//
// Control messages are JSON text frames ({"type": ..., "payload": ...}).
// Audio travels in binary frames: one type byte, an 8 byte big endian
// timestamp in microseconds of stream time, then the encoded audio.
//
// Example:
//
//	conn, err := protocol.Dial(ctx, "ws://host:8928/audioout")
//	err = conn.Send(protocol.TypeStreamStart, protocol.StreamStart{...})
package protocol
