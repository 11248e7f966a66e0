package protocol

import (
	"bytes"
	"testing"
)

func TestFifoWriteReadOrder(t *testing.T) {
	f := NewFifoBuffer(16)

	if n := f.Write([]byte{1, 2, 3, 4}); n != 4 {
		t.Fatalf("Write stored %d bytes, want 4", n)
	}
	if f.Available() != 4 {
		t.Fatalf("Available() = %d, want 4", f.Available())
	}
	if !bytes.Equal(f.Data(), []byte{1, 2, 3, 4}) {
		t.Fatalf("Data() = %v", f.Data())
	}

	f.Pop(2)
	if !bytes.Equal(f.Data(), []byte{3, 4}) {
		t.Fatalf("after Pop(2), Data() = %v", f.Data())
	}
}

// The parser depends on Data returning all buffered bytes contiguously
// even after the ring wraps, since a frame can straddle the wrap point.
func TestFifoWrapContiguous(t *testing.T) {
	f := NewFifoBuffer(8)

	f.Write([]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	f.Pop(6)

	// Next write straddles the physical end of the ring.
	frame := []byte{7, 0, 0x10, 0x2A, 0xBE, 0xEF, 0x7E}
	if n := f.Write(frame); n != len(frame) {
		t.Fatalf("Write stored %d bytes, want %d", n, len(frame))
	}
	if !bytes.Equal(f.Data(), frame) {
		t.Fatalf("wrapped Data() = %v, want %v", f.Data(), frame)
	}

	f.Pop(len(frame))
	if f.Available() != 0 {
		t.Fatalf("Available() = %d after draining", f.Available())
	}
}

func TestFifoOverflowDropsNewest(t *testing.T) {
	f := NewFifoBuffer(4)

	if n := f.Write([]byte{1, 2, 3, 4, 5, 6}); n != 4 {
		t.Fatalf("Write stored %d bytes, want 4", n)
	}
	if !bytes.Equal(f.Data(), []byte{1, 2, 3, 4}) {
		t.Fatalf("Data() = %v, oldest bytes must survive overflow", f.Data())
	}
}

func TestFifoReset(t *testing.T) {
	f := NewFifoBuffer(8)
	f.Write([]byte{1, 2, 3})
	f.Pop(1)
	f.Reset()

	if f.Available() != 0 {
		t.Fatalf("Available() = %d after Reset", f.Available())
	}
	if n := f.Write([]byte{9, 9, 9, 9, 9, 9, 9, 9}); n != 8 {
		t.Fatalf("Write after Reset stored %d, want full capacity 8", n)
	}
}

func TestFifoPopPastEnd(t *testing.T) {
	f := NewFifoBuffer(8)
	f.Write([]byte{1, 2})
	f.Pop(10)
	if f.Available() != 0 {
		t.Fatalf("Available() = %d, want 0", f.Available())
	}
}

func TestSliceInputBuffer(t *testing.T) {
	in := NewSliceInputBuffer([]byte{10, 20, 30, 40})

	if in.Available() != 4 {
		t.Fatalf("Available() = %d, want 4", in.Available())
	}
	in.Pop(3)
	if !bytes.Equal(in.Data(), []byte{40}) {
		t.Fatalf("Data() = %v, want [40]", in.Data())
	}
	in.Pop(5)
	if in.Available() != 0 {
		t.Fatalf("Available() = %d after over-pop, want 0", in.Available())
	}
}

func TestScratchOutputBackpatch(t *testing.T) {
	out := NewScratchOutput()

	out.Output([]byte{0, 0}) // header placeholder
	mark := out.CurPosition()
	EncodeVLQUint(out, 1718000000) // an epoch-sized argument
	payload := out.DataSince(mark)
	if len(payload) == 0 {
		t.Fatal("DataSince returned nothing for the payload")
	}

	// Patch the length byte the way frame encoding does.
	out.Update(0, byte(out.CurPosition()))
	if got := out.Result()[0]; got != byte(out.CurPosition()) {
		t.Fatalf("patched length byte = %d, want %d", got, out.CurPosition())
	}

	out.Reset()
	if out.CurPosition() != 0 || len(out.Result()) != 0 {
		t.Fatal("Reset did not rewind the buffer")
	}
}

func TestScratchOutputTruncatesAtCapacity(t *testing.T) {
	out := NewScratchOutput()
	big := make([]byte, MessageMax+32)
	out.Output(big)
	if out.CurPosition() != MessageMax {
		t.Fatalf("CurPosition() = %d, want clamp at %d", out.CurPosition(), MessageMax)
	}
}
