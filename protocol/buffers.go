package protocol

// InputBuffer is the receive side the transports scan for frames
type InputBuffer interface {
	Data() []byte
	Available() int
	// Pop drops n bytes that were consumed as frames
	Pop(n int)
}

// OutputBuffer is where frames are assembled before they go on the wire.
// Positions let the transport patch the length byte and checksum a frame
// after its payload has been written.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer serves an already received byte slice
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput collects outgoing frames in a fixed array. Output past the
// end is dropped, so a full scratch never allocates.
type ScratchOutput struct {
	buf [MessageMax]byte
	n   int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.n += copy(s.buf[s.n:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.n }

// Update patches a byte already written; positions past the end are ignored
func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.n {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.n {
		return nil
	}
	return s.buf[pos:s.n]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte { return s.buf[:s.n] }

func (s *ScratchOutput) Reset() { s.n = 0 }

// FifoBuffer queues received serial bytes until they form whole frames.
// Data always returns the queued bytes as one slice: when the queue wraps,
// it is rotated to the front of the array in place, so frame scanning never
// sees a split frame and the receive path does not allocate.
type FifoBuffer struct {
	buf   []byte
	head  int // Index of the oldest byte
	count int
}

// NewFifoBuffer creates a queue holding up to capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write queues as much of data as fits and returns the count queued
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), len(f.buf)-f.count)
	tail := (f.head + f.count) % len(f.buf)
	copied := copy(f.buf[tail:], data[:n])
	copy(f.buf, data[copied:n])
	f.count += n
	return n
}

// Available returns the number of queued bytes
func (f *FifoBuffer) Available() int {
	return f.count
}

// Data returns the queued bytes, oldest first
func (f *FifoBuffer) Data() []byte {
	if f.head+f.count > len(f.buf) {
		f.linearize()
	}
	return f.buf[f.head : f.head+f.count]
}

// linearize moves the oldest byte to index 0 by rotating the whole array
func (f *FifoBuffer) linearize() {
	reverse(f.buf[:f.head])
	reverse(f.buf[f.head:])
	reverse(f.buf)
	f.head = 0
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Pop drops up to n of the oldest bytes
func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.count)
	f.count -= n
	if f.count == 0 {
		f.head = 0
		return
	}
	f.head = (f.head + n) % len(f.buf)
}

// Reset empties the queue
func (f *FifoBuffer) Reset() {
	f.head = 0
	f.count = 0
}
