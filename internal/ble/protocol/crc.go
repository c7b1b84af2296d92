package protocol

const crc16Poly = 0x1021

// CRC16XModem computes CRC-16/XMODEM: polynomial 0x1021, initial value 0,
// MSB first, no reflection and no final XOR.
func CRC16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// ApplyCommandChecksum returns the CRC of the apply frame for the given
// command, target and encoded earbud records.
func ApplyCommandChecksum(cmd Command, target Target, left, right []byte) (uint16, error) {
	frame, err := MarshalApplyFrame(cmd, target, left, right)
	if err != nil {
		return 0, err
	}
	return CRC16XModem(frame), nil
}
