package protocol

import "errors"

var ErrBufferTooSmall = errors.New("buffer too small for VLQ")

// Command arguments travel as VLQ integers: seven value bits per byte,
// most significant group first, high bit set on every byte but the
// last. The first group is sign-extended when its top two value bits
// are set, so small negatives cost one byte like small positives do.

// vlqShifts are the bit offsets of the seven-bit groups, most
// significant first. A five-group encoding covers all of int32.
var vlqShifts = [5]uint{28, 21, 14, 7, 0}

// vlqGroups returns how many groups the shortest encoding of v needs.
// The bounds are asymmetric because the decoder sign-extends from bit
// 5 of the leading group.
func vlqGroups(v int32) int {
	switch {
	case -(1<<5) <= v && v < (3 << 5):
		return 1
	case -(1<<12) <= v && v < (3 << 12):
		return 2
	case -(1<<19) <= v && v < (3 << 19):
		return 3
	case -(1<<26) <= v && v < (3 << 26):
		return 4
	}
	return 5
}

// EncodeVLQInt appends the shortest encoding of v to the output.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var enc [5]byte
	n := vlqGroups(v)
	for i := 0; i < n; i++ {
		shift := vlqShifts[5-n+i]
		b := byte(v>>shift) & 0x7F
		if shift != 0 {
			b |= 0x80
		}
		enc[i] = b
	}
	output.Output(enc[:n])
}

// EncodeVLQUint appends the encoding of an unsigned value. Values with
// the top bit set take the five-group form.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQ reads one integer from the start of data without consuming
// it. Returns the value and the number of bytes it occupied.
func DecodeVLQ(data []byte) (int32, int, error) {
	if len(data) == 0 {
		return 0, 0, ErrBufferTooSmall
	}
	c := data[0]
	v := uint32(c & 0x7F)
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	n := 1
	for c&0x80 != 0 {
		if n >= len(data) {
			return 0, 0, ErrBufferTooSmall
		}
		c = data[n]
		v = v<<7 | uint32(c&0x7F)
		n++
	}
	return int32(v), n, nil
}

// DecodeVLQInt reads one integer and advances the slice past it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	v, n, err := DecodeVLQ(*data)
	if err != nil {
		return 0, err
	}
	*data = (*data)[n:]
	return v, nil
}

// DecodeVLQUint reads one unsigned integer and advances the slice.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes appends a length-prefixed byte block.
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes reads a length-prefixed block and advances the slice.
// The returned slice aliases data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	length, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < length {
		return nil, ErrBufferTooSmall
	}
	block := (*data)[:length]
	*data = (*data)[length:]
	return block, nil
}

// EncodeVLQString appends a length-prefixed string.
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQUint(output, uint32(len(s)))
	output.Output([]byte(s))
}

// DecodeVLQString reads a length-prefixed string and advances the
// slice.
func DecodeVLQString(data *[]byte) (string, error) {
	block, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(block), nil
}
