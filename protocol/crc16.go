package protocol

// crcPoly is the CCITT polynomial 0x1021, bit-reflected to match the
// LSB-first shift direction below.
const crcPoly = 0x8408

// CRC16 computes the frame checksum over header plus payload: reflected
// CCITT, seeded 0xFFFF, no final inversion. Both link directions use
// it, so the byte-for-byte result is load-bearing.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ crcPoly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
