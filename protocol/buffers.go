package protocol

// OutputBuffer provides an abstraction for writing outgoing protocol data
type OutputBuffer interface {
	// Output writes data to the buffer
	Output(data []byte)

	// CurPosition returns the current write position
	CurPosition() int

	// Update modifies a byte at a specific position
	Update(pos int, val byte)

	// DataSince returns data from a specific position to current
	DataSince(pos int) []byte
}

// ScratchOutput implements OutputBuffer using a fixed-size scratch buffer
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// NewScratchOutput creates a new ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{pos: 0}
}

// Output appends data, truncating at MessageMax
func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < len(s.buf) {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Free returns the space left before output is truncated
func (s *ScratchOutput) Free() int {
	return len(s.buf) - s.pos
}

// Reset clears the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// StreamBuffer holds received bytes until a whole frame is present.
// Unread bytes are always contiguous: Write moves them to the front when
// the tail runs out, so Data never copies.
type StreamBuffer struct {
	buf   []byte
	start int
	end   int
}

// NewStreamBuffer returns a buffer holding up to capacity bytes
func NewStreamBuffer(capacity int) *StreamBuffer {
	return &StreamBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count
func (b *StreamBuffer) Write(data []byte) int {
	if b.end+len(data) > len(b.buf) && b.start > 0 {
		b.end = copy(b.buf, b.buf[b.start:b.end])
		b.start = 0
	}
	n := copy(b.buf[b.end:], data)
	b.end += n
	return n
}

// Data returns the unread bytes. The slice is valid until the next Write.
func (b *StreamBuffer) Data() []byte {
	return b.buf[b.start:b.end]
}

// Len returns the number of unread bytes
func (b *StreamBuffer) Len() int {
	return b.end - b.start
}

// Free returns how many more bytes Write can take
func (b *StreamBuffer) Free() int {
	return len(b.buf) - b.Len()
}

// Pop discards n bytes from the front
func (b *StreamBuffer) Pop(n int) {
	if n >= b.Len() {
		b.Reset()
		return
	}
	b.start += n
}

// Reset drops everything
func (b *StreamBuffer) Reset() {
	b.start = 0
	b.end = 0
}
