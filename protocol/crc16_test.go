package protocol

import "testing"

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{data: []byte{}, expected: 0xFFFF},
		{data: []byte{0x00}, expected: 0x0F87},
		{data: []byte{0xFF}, expected: 0x00FF},
		// Header of an empty frame, i.e. a bare ACK.
		{data: []byte{MessageLengthMin, MessageDest}, expected: 0x9E81},
		{data: []byte("123456789"), expected: 0x6F91},
	}

	for _, tc := range testCases {
		if got := CRC16(tc.data); got != tc.expected {
			t.Errorf("CRC16(%v) = 0x%04X, want 0x%04X", tc.data, got, tc.expected)
		}
	}
}

func TestCRC16DetectsBitFlips(t *testing.T) {
	frame := []byte{0x08, 0x11, 0x02, 0x7B, 0x05}
	want := CRC16(frame)

	for i := range frame {
		for bit := uint(0); bit < 8; bit++ {
			mut := make([]byte, len(frame))
			copy(mut, frame)
			mut[i] ^= 1 << bit
			if CRC16(mut) == want {
				t.Errorf("flipping byte %d bit %d left the checksum unchanged", i, bit)
			}
		}
	}
}

func TestCRC16Different(t *testing.T) {
	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}

	crc1 := CRC16(data1)
	crc2 := CRC16(data2)

	if crc1 == crc2 {
		t.Errorf("CRC16 collision: both inputs produced %04X", crc1)
	}
}
