package ccsds

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Bus packet capacities.  The length field counts the header, the data and,
// when present, the 2-byte error control field, and fits in 7 bits.
const (
	BusPacketMaxSize     = 127
	BusPacketHeaderSize  = 2
	BusPacketECFSize     = 2
	BusPacketMaxDataSize = BusPacketMaxSize - BusPacketHeaderSize - BusPacketECFSize
)

// PacketType marks a bus packet as telemetry or telecommand.
type PacketType byte

// PacketTypeTM ...
const PacketTypeTM PacketType = 0

// PacketTypeTC ...
const PacketTypeTC PacketType = 1

// A BusPacket is the short-form packet moved between subsystems on the
// internal vehicle bus.
type BusPacket struct {
	PacketType PacketType
	APID       byte // 7 bits
	ECFFlag    bool
	Length     byte // header + data + (ECF if flagged)
	Data       []byte
	ECF        uint16 // valid only when ECFFlag is set
}

func (p *BusPacket) headerByte0() byte {
	return byte(p.PacketType&1)<<7 | p.APID&0x7F
}

func (p *BusPacket) headerByte1() byte {
	b := p.Length & 0x7F
	if p.ECFFlag {
		b |= 0x80
	}
	return b
}

// BusPacketLength reads the length field from a raw header without decoding
// the rest of the packet.
func BusPacketLength(buf []byte) int {
	return int(buf[1] & 0x7F)
}

// A BusPacketCodec encodes and decodes bus packets using the given error
// control provider.
type BusPacketCodec struct {
	ECF ErrorControl
}

// NewBusPacketCodec returns a codec over ecf, defaulting to the software
// CRC-16 routine when ecf is nil.
func NewBusPacketCodec(ecf ErrorControl) *BusPacketCodec {
	if ecf == nil {
		ecf = SoftwareErrorControl{}
	}
	return &BusPacketCodec{ECF: ecf}
}

// Encode builds a BusPacket around data, computing the error control field
// over the serialized header and data when withECF is set.
func (c *BusPacketCodec) Encode(packetType PacketType, apid byte, withECF bool, data []byte) (*BusPacket, error) {
	if len(data)+BusPacketHeaderSize+BusPacketECFSize > BusPacketMaxSize {
		return nil, errors.Wrapf(ErrLength, "bus packet data length %d exceeds %d", len(data), BusPacketMaxDataSize)
	}

	p := &BusPacket{
		PacketType: packetType & 1,
		APID:       apid & 0x7F,
		ECFFlag:    withECF,
		Length:     byte(BusPacketHeaderSize + len(data)),
		Data:       append([]byte(nil), data...),
	}

	if withECF {
		p.Length += BusPacketECFSize
		crcBuf := make([]byte, BusPacketHeaderSize+len(data))
		crcBuf[0] = p.headerByte0()
		crcBuf[1] = p.headerByte1()
		copy(crcBuf[BusPacketHeaderSize:], data)
		p.ECF = c.ECF.Checksum(0, crcBuf)
	}

	return p, nil
}

// Packetize serializes an encoded packet for transmission.  The returned
// buffer holds Length bytes plus one trailing zero byte that is not counted
// in the length field.
func (p *BusPacket) Packetize() []byte {
	buf := make([]byte, int(p.Length)+1)
	buf[0] = p.headerByte0()
	buf[1] = p.headerByte1()
	copy(buf[BusPacketHeaderSize:], p.Data)
	if p.ECFFlag {
		binary.BigEndian.PutUint16(buf[int(p.Length)-BusPacketECFSize:], p.ECF)
	}
	return buf
}

// EncodePacketize produces wire bytes directly without materializing a
// BusPacket, computing the error control field in place over the serialized
// header and data.  Unlike Packetize it does not append the terminator byte.
func (c *BusPacketCodec) EncodePacketize(packetType PacketType, apid byte, withECF bool, data []byte) ([]byte, error) {
	if len(data)+BusPacketHeaderSize+BusPacketECFSize > BusPacketMaxSize {
		return nil, errors.Wrapf(ErrLength, "bus packet data length %d exceeds %d", len(data), BusPacketMaxDataSize)
	}

	length := BusPacketHeaderSize + len(data)
	if withECF {
		length += BusPacketECFSize
	}

	buf := make([]byte, length)
	buf[0] = byte(packetType&1)<<7 | apid&0x7F
	buf[1] = byte(length) & 0x7F
	if withECF {
		buf[1] |= 0x80
	}
	copy(buf[BusPacketHeaderSize:], data)

	if withECF {
		ecf := c.ECF.Checksum(0, buf[:length-BusPacketECFSize])
		binary.BigEndian.PutUint16(buf[length-BusPacketECFSize:], ecf)
	}

	return buf, nil
}

// Decode parses a received buffer into a BusPacket, verifying the error
// control field when the header flags one.  All length fields are validated
// before any indexing, so malformed input yields an error rather than a
// panic.
func (c *BusPacketCodec) Decode(buf []byte) (*BusPacket, error) {
	if len(buf) < BusPacketHeaderSize {
		return nil, errors.Wrapf(ErrLength, "bus packet buffer holds %d bytes", len(buf))
	}

	length := BusPacketLength(buf)
	withECF := buf[1]&0x80 != 0

	overhead := BusPacketHeaderSize
	if withECF {
		overhead += BusPacketECFSize
	}
	if length < overhead {
		return nil, errors.Wrapf(ErrLength, "bus packet length field %d below %d", length, overhead)
	}
	if len(buf) < length {
		return nil, errors.Wrapf(ErrLength, "bus packet length field %d exceeds buffer %d", length, len(buf))
	}

	p := &BusPacket{
		PacketType: PacketType(buf[0] >> 7),
		APID:       buf[0] & 0x7F,
		ECFFlag:    withECF,
		Length:     byte(length),
	}

	if withECF {
		calculated := c.ECF.Checksum(0, buf[:length-BusPacketECFSize])
		ecf := binary.BigEndian.Uint16(buf[length-BusPacketECFSize : length])
		if calculated != ecf {
			return nil, errors.Wrapf(ErrChecksum, "bus packet apid %d: calculated %#04x, trailer %#04x", p.APID, calculated, ecf)
		}
		p.ECF = ecf
	}

	dataLen := length - overhead
	p.Data = append([]byte(nil), buf[BusPacketHeaderSize:BusPacketHeaderSize+dataLen]...)
	return p, nil
}
