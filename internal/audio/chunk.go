package audio

// chunker slices an arbitrary PCM byte stream into fixed-size frames for the
// recognizer.
type chunker struct {
	size    int
	pending []byte
}

func newChunker(size int) *chunker {
	return &chunker{size: size}
}

// Push buffers b and returns every complete frame now available.
func (c *chunker) Push(b []byte) [][]byte {
	c.pending = append(c.pending, b...)
	if len(c.pending) < c.size {
		return nil
	}
	frames := make([][]byte, 0, len(c.pending)/c.size)
	for len(c.pending) >= c.size {
		frame := make([]byte, c.size)
		copy(frame, c.pending)
		c.pending = c.pending[c.size:]
		frames = append(frames, frame)
	}
	return frames
}

// Flush returns the buffered partial frame, if any, and resets the buffer.
func (c *chunker) Flush() []byte {
	if len(c.pending) == 0 {
		return nil
	}
	rest := append([]byte(nil), c.pending...)
	c.pending = nil
	return rest
}
