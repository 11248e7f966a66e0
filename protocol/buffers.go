package protocol

// InputBuffer is the read side of the console link: framed bytes land
// here (from a UART ISR or a socket read) and the transport consumes
// whole frames from the front.
type InputBuffer interface {
	// Data returns the unconsumed bytes as one contiguous slice.
	Data() []byte

	// Available returns the number of unconsumed bytes.
	Available() int

	// Pop discards n bytes from the front.
	Pop(n int)
}

// OutputBuffer is the write side. Frame encoding needs to back-patch
// the length and CRC after the payload is known, hence CurPosition,
// Update and DataSince rather than a plain Writer.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer adapts an already-complete byte slice (a wasm
// message, a test vector) to InputBuffer without copying.
type SliceInputBuffer struct {
	data []byte
	off  int
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte {
	return s.data[s.off:]
}

func (s *SliceInputBuffer) Available() int {
	return len(s.data) - s.off
}

func (s *SliceInputBuffer) Pop(n int) {
	s.off += n
	if s.off > len(s.data) {
		s.off = len(s.data)
	}
}

// ScratchOutput is a fixed-capacity OutputBuffer. MessageMax bounds a
// single encoded frame, so the buffer never needs to grow; writes past
// the end are truncated and the frame fails its length check instead
// of corrupting memory.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written so far.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset rewinds the buffer for reuse.
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// FifoBuffer is the ring between the byte source and the frame parser.
// Bytes arrive one interrupt at a time on the device, so Write must be
// cheap and the parser must be able to see everything received so far.
type FifoBuffer struct {
	buf   []byte
	start int // index of the oldest byte
	count int // bytes stored
}

// NewFifoBuffer returns a ring holding up to capacity bytes.
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the number of
// bytes stored. Overflow drops the newest bytes; the frame parser
// resynchronizes on the next valid header.
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		if f.count == len(f.buf) {
			break
		}
		f.buf[(f.start+f.count)%len(f.buf)] = b
		f.count++
		written++
	}
	return written
}

// Available returns the number of buffered bytes.
func (f *FifoBuffer) Available() int {
	return f.count
}

// Data returns the buffered bytes as one contiguous slice. When the
// ring has wrapped this copies; the parser needs contiguous frames.
func (f *FifoBuffer) Data() []byte {
	if f.start+f.count <= len(f.buf) {
		return f.buf[f.start : f.start+f.count]
	}
	out := make([]byte, f.count)
	n := copy(out, f.buf[f.start:])
	copy(out[n:], f.buf[:f.count-n])
	return out
}

// Pop discards n bytes from the front.
func (f *FifoBuffer) Pop(n int) {
	if n > f.count {
		n = f.count
	}
	f.start = (f.start + n) % len(f.buf)
	f.count -= n
}

// Reset discards all buffered bytes.
func (f *FifoBuffer) Reset() {
	f.start = 0
	f.count = 0
}
