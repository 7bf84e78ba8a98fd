package ccsds

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Transfer frame capacities.  The truncated variant carries only the 4-byte
// header; the full variant adds the length, flags and virtual-channel insert
// zone.  Both end with a 2-byte error control field.
const (
	TransferFrameMaxSize             = 256
	TransferFrameECFSize             = 2
	TransferFrameTruncatedHeaderSize = 4
	TransferFrameBaseHeaderSize      = 7
	TransferFrameDataHeaderSize      = 1
	TransferFrameVCFrameMaxSize      = 56
	TransferFrameMaxDataSize         = TransferFrameMaxSize - TransferFrameTruncatedHeaderSize -
		TransferFrameDataHeaderSize - TransferFrameECFSize
)

// Link defaults for the vehicle-to-ground channel.
const (
	DefaultTFVN  byte   = 0b1100
	DefaultSCID  uint16 = 0x5553
	DefaultVCID  byte   = 0b111000
	DefaultMAPID byte   = 0b0000
)

// Values for PrimaryHeader.SourceDestID.
const (
	FrameSource      byte = 0
	FrameDestination byte = 1
)

// A PrimaryHeader holds the transfer frame primary header fields.  Length,
// the flags and VCFrame are meaningful only when Truncated is false; the
// truncated layout relies on the transport to convey the total frame length
// out of band.
type PrimaryHeader struct {
	TFVN         byte   // 4 bits
	SCID         uint16 // spacecraft id
	SourceDestID byte   // 1 bit
	VCID         byte   // 6 bits
	MAPID        byte   // 4 bits
	Truncated    bool   // end flag

	// Full-header fields, unused when Truncated.
	Length      uint16
	BypassFlag  bool
	CommandFlag bool
	OCFFlag     bool
	VCFrame     []byte // insert-zone frame, at most 56 bytes
}

// A DataField holds the transfer frame data field: a one-byte header plus
// the payload.
type DataField struct {
	ConstrRule byte // 3 bits
	ProtocolID byte // 5 bits
	Data       []byte
}

func (h *PrimaryHeader) endFlag() byte {
	if h.Truncated {
		return 1
	}
	return 0
}

// putPrefix writes the 3-byte scid/vcid/mapid prefix plus the end flag that
// both layouts share.
func (h *PrimaryHeader) putPrefix(buf []byte) {
	buf[0] = h.TFVN<<4 | byte(h.SCID>>12)&0x0F
	buf[1] = byte(h.SCID >> 4)
	buf[2] = byte(h.SCID&0x0F)<<4 | (h.SourceDestID&1)<<3 | (h.VCID>>3)&0x07
	buf[3] = (h.VCID&0x07)<<5 | (h.MAPID&0x0F)<<1 | h.endFlag()
}

func (h *PrimaryHeader) parsePrefix(buf []byte) {
	h.TFVN = buf[0] >> 4
	h.SCID = uint16(buf[0]&0x0F)<<12 | uint16(buf[1])<<4 | uint16(buf[2]>>4)
	h.SourceDestID = buf[2] >> 3 & 1
	h.VCID = buf[2]&0x07<<3 | buf[3]>>5
	h.MAPID = buf[3] >> 1 & 0x0F
	h.Truncated = buf[3]&1 != 0
}

// A TransferFrameCodec encodes and decodes transfer frames using the given
// error control provider.
type TransferFrameCodec struct {
	ECF ErrorControl
}

// NewTransferFrameCodec returns a codec over ecf, defaulting to the software
// CRC-16 routine when ecf is nil.
func NewTransferFrameCodec(ecf ErrorControl) *TransferFrameCodec {
	if ecf == nil {
		ecf = SoftwareErrorControl{}
	}
	return &TransferFrameCodec{ECF: ecf}
}

// SetData copies the payload into tfdf and, for full-header frames, copies
// the insert-zone frame into tfph and computes the total frame length.
func (c *TransferFrameCodec) SetData(data, vcData []byte, tfph *PrimaryHeader, tfdf *DataField) error {
	if len(data) > TransferFrameMaxDataSize {
		return errors.Wrapf(ErrLength, "transfer frame data length %d exceeds %d", len(data), TransferFrameMaxDataSize)
	}
	if len(vcData) > TransferFrameVCFrameMaxSize {
		return errors.Wrapf(ErrLength, "insert-zone frame length %d exceeds %d", len(vcData), TransferFrameVCFrameMaxSize)
	}

	if !tfph.Truncated {
		total := len(data) + len(vcData) + TransferFrameBaseHeaderSize +
			TransferFrameDataHeaderSize + TransferFrameECFSize
		if total > TransferFrameMaxSize {
			return errors.Wrapf(ErrLength, "transfer frame length %d exceeds %d", total, TransferFrameMaxSize)
		}
		tfph.Length = uint16(total)
		tfph.VCFrame = append([]byte(nil), vcData...)
	}

	tfdf.Data = append([]byte(nil), data...)
	return nil
}

// Packetize serializes a frame for transmission.  For full-header frames the
// payload length is derived from tfph.Length; for truncated frames it is
// dataLength.  The error control field is computed over everything that
// precedes it and written big-endian.
func (c *TransferFrameCodec) Packetize(dataLength int, tfph *PrimaryHeader, tfdf *DataField) ([]byte, error) {
	if tfph.Truncated {
		return c.packetizeTruncated(dataLength, tfph, tfdf)
	}
	return c.packetizeFull(tfph, tfdf)
}

func (c *TransferFrameCodec) packetizeFull(tfph *PrimaryHeader, tfdf *DataField) ([]byte, error) {
	length := int(tfph.Length)
	if length > TransferFrameMaxSize {
		return nil, errors.Wrapf(ErrLength, "transfer frame length %d exceeds %d", length, TransferFrameMaxSize)
	}

	// The wire field for the insert-zone length is 3 bits wide.
	vcLen := len(tfph.VCFrame)
	if vcLen > 0x07 {
		return nil, errors.Wrapf(ErrLength, "insert-zone frame length %d does not fit the 3-bit field", vcLen)
	}
	payload := length - TransferFrameBaseHeaderSize - vcLen -
		TransferFrameDataHeaderSize - TransferFrameECFSize
	if payload < 0 {
		return nil, errors.Wrapf(ErrLength, "transfer frame length %d leaves no room for the data field", length)
	}
	if payload > len(tfdf.Data) {
		return nil, errors.Wrapf(ErrLength, "transfer frame length %d implies %d data bytes, have %d", length, payload, len(tfdf.Data))
	}

	buf := make([]byte, length)
	tfph.putPrefix(buf)
	binary.BigEndian.PutUint16(buf[4:], tfph.Length)
	buf[6] = byte(vcLen) & 0x07
	if tfph.BypassFlag {
		buf[6] |= 1 << 7
	}
	if tfph.CommandFlag {
		buf[6] |= 1 << 6
	}
	if tfph.OCFFlag {
		buf[6] |= 1 << 3
	}
	copy(buf[TransferFrameBaseHeaderSize:], tfph.VCFrame)

	buf[TransferFrameBaseHeaderSize+vcLen] = tfdf.ConstrRule&0x07<<5 | tfdf.ProtocolID&0x1F
	copy(buf[TransferFrameBaseHeaderSize+vcLen+TransferFrameDataHeaderSize:], tfdf.Data[:payload])

	ecf := c.ECF.Checksum(0, buf[:length-TransferFrameECFSize])
	binary.BigEndian.PutUint16(buf[length-TransferFrameECFSize:], ecf)
	return buf, nil
}

func (c *TransferFrameCodec) packetizeTruncated(dataLength int, tfph *PrimaryHeader, tfdf *DataField) ([]byte, error) {
	if dataLength < 0 || dataLength > TransferFrameMaxDataSize {
		return nil, errors.Wrapf(ErrLength, "transfer frame data length %d exceeds %d", dataLength, TransferFrameMaxDataSize)
	}
	if dataLength > len(tfdf.Data) {
		return nil, errors.Wrapf(ErrLength, "transfer frame data length %d, have %d", dataLength, len(tfdf.Data))
	}

	length := TransferFrameTruncatedHeaderSize + TransferFrameDataHeaderSize +
		dataLength + TransferFrameECFSize
	buf := make([]byte, length)
	tfph.putPrefix(buf)
	buf[TransferFrameTruncatedHeaderSize] = tfdf.ConstrRule&0x07<<5 | tfdf.ProtocolID&0x1F
	copy(buf[TransferFrameTruncatedHeaderSize+TransferFrameDataHeaderSize:], tfdf.Data[:dataLength])

	ecf := c.ECF.Checksum(0, buf[:length-TransferFrameECFSize])
	binary.BigEndian.PutUint16(buf[length-TransferFrameECFSize:], ecf)
	return buf, nil
}

// Decode parses a received buffer into tfph and tfdf.  The end flag in the
// prefix selects the layout; for truncated frames the total frame length is
// len(buf).  All length fields are validated before any indexing.
func (c *TransferFrameCodec) Decode(buf []byte, tfph *PrimaryHeader, tfdf *DataField) error {
	if len(buf) < TransferFrameTruncatedHeaderSize {
		return errors.Wrapf(ErrLength, "transfer frame buffer holds %d bytes", len(buf))
	}

	tfph.parsePrefix(buf)
	if tfph.Truncated {
		return c.decodeTruncated(buf, tfph, tfdf)
	}
	return c.decodeFull(buf, tfph, tfdf)
}

func (c *TransferFrameCodec) decodeFull(buf []byte, tfph *PrimaryHeader, tfdf *DataField) error {
	if len(buf) < TransferFrameBaseHeaderSize {
		return errors.Wrapf(ErrLength, "transfer frame buffer holds %d bytes", len(buf))
	}

	length := int(binary.BigEndian.Uint16(buf[4:6]))
	if length > len(buf) {
		return errors.Wrapf(ErrLength, "transfer frame length field %d exceeds buffer %d", length, len(buf))
	}

	tfph.Length = uint16(length)
	tfph.BypassFlag = buf[6]&(1<<7) != 0
	tfph.CommandFlag = buf[6]&(1<<6) != 0
	tfph.OCFFlag = buf[6]&(1<<3) != 0
	vcLen := int(buf[6] & 0x07)

	dataLen := length - TransferFrameBaseHeaderSize - vcLen -
		TransferFrameDataHeaderSize - TransferFrameECFSize
	if dataLen < 0 {
		return errors.Wrapf(ErrLength, "transfer frame length field %d leaves no room for the data field", length)
	}
	tfph.VCFrame = append([]byte(nil), buf[TransferFrameBaseHeaderSize:TransferFrameBaseHeaderSize+vcLen]...)

	dfHeader := buf[TransferFrameBaseHeaderSize+vcLen]
	tfdf.ConstrRule = dfHeader >> 5
	tfdf.ProtocolID = dfHeader & 0x1F
	dataStart := TransferFrameBaseHeaderSize + vcLen + TransferFrameDataHeaderSize
	tfdf.Data = append([]byte(nil), buf[dataStart:dataStart+dataLen]...)

	calculated := c.ECF.Checksum(0, buf[:length-TransferFrameECFSize])
	ecf := binary.BigEndian.Uint16(buf[length-TransferFrameECFSize : length])
	if calculated != ecf {
		return errors.Wrapf(ErrChecksum, "transfer frame scid %#04x: calculated %#04x, trailer %#04x", tfph.SCID, calculated, ecf)
	}
	return nil
}

func (c *TransferFrameCodec) decodeTruncated(buf []byte, tfph *PrimaryHeader, tfdf *DataField) error {
	dataLen := len(buf) - TransferFrameTruncatedHeaderSize -
		TransferFrameDataHeaderSize - TransferFrameECFSize
	if dataLen < 0 {
		return errors.Wrapf(ErrLength, "truncated transfer frame buffer holds %d bytes", len(buf))
	}

	dfHeader := buf[TransferFrameTruncatedHeaderSize]
	tfdf.ConstrRule = dfHeader >> 5
	tfdf.ProtocolID = dfHeader & 0x1F
	dataStart := TransferFrameTruncatedHeaderSize + TransferFrameDataHeaderSize
	tfdf.Data = append([]byte(nil), buf[dataStart:dataStart+dataLen]...)

	calculated := c.ECF.Checksum(0, buf[:len(buf)-TransferFrameECFSize])
	ecf := binary.BigEndian.Uint16(buf[len(buf)-TransferFrameECFSize:])
	if calculated != ecf {
		return errors.Wrapf(ErrChecksum, "truncated transfer frame scid %#04x: calculated %#04x, trailer %#04x", tfph.SCID, calculated, ecf)
	}
	return nil
}
