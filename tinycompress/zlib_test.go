package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func decode(t *testing.T, compressed []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("zlib reader rejected stream: %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decompression failed: %v", err)
	}
	return out
}

func TestWriterRoundTrip(t *testing.T) {
	input := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 40)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write(input); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	compressed := buf.Bytes()
	if compressed[0] != 0x78 || compressed[1] != 0x9C {
		t.Errorf("Expected zlib header 78 9C, got %02X %02X", compressed[0], compressed[1])
	}
	if got := decode(t, compressed); !bytes.Equal(got, input) {
		t.Errorf("Roundtrip mismatch: %d bytes in, %d bytes out", len(input), len(got))
	}
}

func TestWriterIncrementalWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	parts := []string{`{"version":"`, "goclock-0.1.0", `","config":{}}`}
	for _, p := range parts {
		if _, err := w.Write([]byte(p)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := []byte(`{"version":"goclock-0.1.0","config":{}}`)
	if got := decode(t, buf.Bytes()); !bytes.Equal(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestWriterEmptyInput(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := decode(t, buf.Bytes()); len(got) != 0 {
		t.Errorf("Expected empty stream, got %d bytes", len(got))
	}
}

func TestCompressMultiBlock(t *testing.T) {
	input := make([]byte, 70000)
	for i := range input {
		input[i] = byte(i * 7)
	}

	compressed, err := Compress(input)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	// Header, two stored block headers, payload, checksum.
	if want := 2 + 5 + maxStoredBlock + 5 + (len(input) - maxStoredBlock) + 4; len(compressed) != want {
		t.Errorf("Expected %d compressed bytes, got %d", want, len(compressed))
	}
	if got := decode(t, compressed); !bytes.Equal(got, input) {
		t.Errorf("Multi-block roundtrip mismatch: %d bytes in, %d bytes out", len(input), len(got))
	}
}
