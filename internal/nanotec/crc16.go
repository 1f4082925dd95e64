package nanotec

// crc16 computes the frame checksum used on the RS-485 wire.
//
// Reused verbatim from protocol/crc16.go's Klipper-compatible CRC16,
// which implements the same CRC16-CCITT-family polynomial Nanotec's
// RS-485 frames check against; only the name changed to keep it
// unexported here.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b = b ^ uint8(crc&0xFF)
		b = b ^ (b << 4)
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}
