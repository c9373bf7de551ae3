// Package tinycompress writes zlib streams made of stored DEFLATE blocks.
// It needs no tables or hashing state beyond Adler-32, which keeps it small
// enough for the firmware; any zlib reader accepts the output.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

// MaxBlock is the largest payload of one stored DEFLATE block
const MaxBlock = 0xFFFF

var (
	zlibHeader = []byte{0x78, 0x01}

	// ErrClosed is returned by Write after Close
	ErrClosed = errors.New("tinycompress: writer closed")
)

// Writer buffers everything written and emits the stream on Close
type Writer struct {
	output io.Writer
	buf    []byte
	closed bool
}

// NewWriter creates a Writer with room for sizeHint bytes before it has to
// grow its buffer
func NewWriter(w io.Writer, sizeHint int) *Writer {
	return &Writer{
		output: w,
		buf:    make([]byte, 0, sizeHint),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the header, the blocks and the checksum. The underlying
// writer is not closed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return Encode(w.output, w.buf)
}

// Encode writes data as one complete zlib stream
func Encode(out io.Writer, data []byte) error {
	sum := adler32.Checksum(data)
	if _, err := out.Write(zlibHeader); err != nil {
		return err
	}

	var hdr [5]byte
	for {
		n := len(data)
		final := byte(0)
		if n <= MaxBlock {
			final = 1
		} else {
			n = MaxBlock
		}

		// BFINAL bit, BTYPE=00, then LEN and NLEN little endian
		hdr[0] = final
		hdr[1] = byte(n)
		hdr[2] = byte(n >> 8)
		hdr[3] = ^byte(n)
		hdr[4] = ^byte(n >> 8)
		if _, err := out.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := out.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
		if final == 1 {
			break
		}
	}

	_, err := out.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

// EncodedLen returns the stream size for n input bytes, checksum included
func EncodedLen(n int) int {
	blocks := n/MaxBlock + 1
	if n > 0 && n%MaxBlock == 0 {
		blocks--
	}
	return len(zlibHeader) + 5*blocks + n + 4
}
