package ccsds

import (
	"testing"
)

// TestCRC16KnownVector checks the published check value for poly 0x1021,
// init 0, no reflection ("123456789" -> 0x31C3).
func TestCRC16KnownVector(t *testing.T) {
	crc := CRC16(0, []byte("123456789"))
	if crc != 0x31C3 {
		t.Errorf("CRC16 of check input was %#04x, want 0x31c3", crc)
	}
}

// TestCRC16SeedChaining verifies that feeding one call's result as the next
// call's seed matches a single pass over the concatenation.
func TestCRC16SeedChaining(t *testing.T) {
	buf := make([]byte, 256)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	whole := CRC16(0, buf)
	for split := 0; split <= len(buf); split += 13 {
		chained := CRC16(CRC16(0, buf[:split]), buf[split:])
		if chained != whole {
			t.Errorf("split at %d: chained CRC %#04x, whole %#04x", split, chained, whole)
		}
	}
}

// TestErrorControlProvidersAgree compares the bit-serial and table-driven
// providers over a range of inputs and seeds.
func TestErrorControlProvidersAgree(t *testing.T) {
	software := SoftwareErrorControl{}
	table := NewTableErrorControl()

	buf := make([]byte, 300)
	for i := range buf {
		buf[i] = byte(i*31 + 5)
	}
	seeds := []uint16{0, 1, 0x1021, 0x31C3, 0xFFFF}
	for _, seed := range seeds {
		for length := 0; length <= len(buf); length += 17 {
			s := software.Checksum(seed, buf[:length])
			tb := table.Checksum(seed, buf[:length])
			if s != tb {
				t.Errorf("seed %#04x len %d: software %#04x, table %#04x", seed, length, s, tb)
			}
		}
	}
}

// TestCRC16EmptyInput: the register must come back unchanged.
func TestCRC16EmptyInput(t *testing.T) {
	if crc := CRC16(0x1234, nil); crc != 0x1234 {
		t.Errorf("CRC16 of empty input was %#04x, want the seed back", crc)
	}
}
