package ccsds

import (
	"github.com/sigurn/crc16"
)

// CRC16Poly is the generator polynomial X^16 + X^12 + X^5 + 1 shared by both
// frame formats.  Input and output are processed most-significant-bit first
// with no reflection and no final XOR; callers seed the register with 0.
const CRC16Poly uint16 = 0x1021

// CRC16 computes the error control field over buf, continuing from seed.
// Feeding the result of one call as the seed of the next is equivalent to a
// single call over the concatenated input.
func CRC16(seed uint16, buf []byte) uint16 {
	crc := seed
	for _, b := range buf {
		ch := uint16(b) << 8
		for i := 0; i < 8; i++ {
			xor := (crc^ch)&0x8000 != 0
			crc <<= 1
			if xor {
				crc ^= CRC16Poly
			}
			ch <<= 1
		}
	}
	return crc
}

// ErrorControl computes the 16-bit error control field for a byte range.
// Both codecs take one, so a target with a CRC peripheral can substitute its
// own binding for the portable routines here.
type ErrorControl interface {
	Checksum(seed uint16, buf []byte) uint16
}

// SoftwareErrorControl is the bit-serial reference implementation.
type SoftwareErrorControl struct{}

// Checksum implements ErrorControl.
func (SoftwareErrorControl) Checksum(seed uint16, buf []byte) uint16 {
	return CRC16(seed, buf)
}

// TableErrorControl trades 512 bytes of lookup table for a per-byte inner
// loop.  The XMODEM parameter set is this system's CRC contract: poly 0x1021,
// init 0, no reflection, no final XOR.
type TableErrorControl struct {
	table *crc16.Table
}

// NewTableErrorControl builds the lookup table once.
func NewTableErrorControl() TableErrorControl {
	return TableErrorControl{table: crc16.MakeTable(crc16.CRC16_XMODEM)}
}

// Checksum implements ErrorControl.
func (e TableErrorControl) Checksum(seed uint16, buf []byte) uint16 {
	return crc16.Update(seed, buf, e.table)
}
