// ABOUTME: Byte ring buffer shared by the stream engine and drivers
// ABOUTME: Thread-safe circular buffer that zero-fills reads on underrun
package output

import "sync"

// RingBuffer provides thread-safe circular buffer for audio bytes
type RingBuffer struct {
	buffer   []byte
	readPos  int
	writePos int
	count    int // Number of bytes currently in buffer
	mu       sync.Mutex
}

// NewRingBuffer creates a ring buffer with given capacity (in bytes)
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &RingBuffer{
		buffer: make([]byte, capacity),
	}
}

// Write adds bytes to the ring buffer and returns how many fit
func (rb *RingBuffer) Write(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	written := 0
	for written < len(p) && rb.count < size {
		// contiguous space up to the end of the backing slice
		end := rb.writePos + (size - rb.count)
		if end > size {
			end = size
		}
		n := copy(rb.buffer[rb.writePos:end], p[written:])
		rb.writePos = (rb.writePos + n) % size
		rb.count += n
		written += n
	}
	return written
}

// Read retrieves bytes from the ring buffer.
// The part of p that could not be filled is zeroed.
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	read := 0
	for read < len(p) && rb.count > 0 {
		end := rb.readPos + rb.count
		if end > size {
			end = size
		}
		n := copy(p[read:], rb.buffer[rb.readPos:end])
		rb.readPos = (rb.readPos + n) % size
		rb.count -= n
		read += n
	}

	// Zero-fill remaining if underrun
	clear(p[read:])

	return read
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free bytes in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buffer) - rb.count
}

// Size returns the buffer capacity
func (rb *RingBuffer) Size() int {
	return len(rb.buffer)
}

// Reset drops all buffered bytes
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.writePos = 0
	rb.count = 0
}
