// Package tinycompress produces zlib streams built from stored DEFLATE
// blocks. TinyGo cannot afford compress/flate on the target, but hosts
// expect the command dictionary in zlib format; a stored-block stream
// keeps the firmware side trivial while any standard zlib reader can
// decode it.
package tinycompress

import (
	"bytes"
	"hash/adler32"
	"io"
)

// maxStoredBlock is the largest payload one stored DEFLATE block can
// carry; the block length field is 16 bits.
const maxStoredBlock = 0xFFFF

// Writer is an io.WriteCloser that buffers its input and emits the
// complete zlib stream on Close.
type Writer struct {
	output io.Writer
	input  []byte
}

// NewWriter creates a Writer that emits to w on Close.
func NewWriter(w io.Writer) *Writer {
	// The dictionary is a few KB. Reserve enough up front that Write
	// does not reallocate while the cores scheduler is running.
	return &Writer{
		output: w,
		input:  make([]byte, 0, 8192),
	}
}

// Write implements io.Writer. Input is buffered until Close.
func (w *Writer) Write(p []byte) (int, error) {
	if cap(w.input) < len(w.input)+len(p) {
		grown := make([]byte, len(w.input), len(w.input)+len(p))
		copy(grown, w.input)
		w.input = grown
	}
	w.input = append(w.input, p...)
	return len(p), nil
}

// Close writes the zlib header, the buffered input as stored blocks and
// the Adler-32 trailer.
func (w *Writer) Close() error {
	if _, err := w.output.Write([]byte{0x78, 0x9C}); err != nil {
		return err
	}
	if err := writeStoredBlocks(w.output, w.input); err != nil {
		return err
	}
	sum := adler32.Checksum(w.input)
	_, err := w.output.Write([]byte{
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})
	return err
}

// writeStoredBlocks emits data as stored DEFLATE blocks with the last
// one marked final. Zero-length input still gets its final block so the
// stream terminates.
func writeStoredBlocks(out io.Writer, data []byte) error {
	for {
		n := len(data)
		if n > maxStoredBlock {
			n = maxStoredBlock
		}
		final := byte(0)
		if n == len(data) {
			final = 1
		}
		blockLen := uint16(n)
		nlen := ^blockLen
		hdr := []byte{
			final,
			byte(blockLen), byte(blockLen >> 8),
			byte(nlen), byte(nlen >> 8),
		}
		if _, err := out.Write(hdr); err != nil {
			return err
		}
		if _, err := out.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
		if final == 1 {
			return nil
		}
	}
}

// Compress wraps input in a complete zlib stream and returns it.
func Compress(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write(input); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
