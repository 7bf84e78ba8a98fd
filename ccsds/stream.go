package ccsds

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// A BusPacketScanner extracts marker-delimited bus packets from a continuous
// receive stream.  It owns the SyncState for the stream, so one scanner
// serves exactly one channel.
type BusPacketScanner struct {
	codec *BusPacketCodec
	r     *bufio.Reader
	state SyncState
}

// NewBusPacketScanner returns a scanner over stream.  A nil codec selects the
// software error control routine.
func NewBusPacketScanner(stream io.Reader, codec *BusPacketCodec) *BusPacketScanner {
	if codec == nil {
		codec = NewBusPacketCodec(nil)
	}
	return &BusPacketScanner{codec: codec, r: bufio.NewReader(stream), state: SyncFind}
}

// Next scans forward to the next synchronization marker, reads the packet
// that follows per its length field and decodes it.  It returns io.EOF at
// the end of the stream.
func (s *BusPacketScanner) Next() (*BusPacket, error) {
	for s.state != SyncCompleted {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		s.state = s.state.Next(b)
	}
	s.state = SyncFind

	buf := make([]byte, BusPacketMaxSize)
	if _, err := io.ReadFull(s.r, buf[:BusPacketHeaderSize]); err != nil {
		return nil, errors.Wrap(err, "stream ends inside a bus packet header")
	}
	length := BusPacketLength(buf)
	if length > BusPacketHeaderSize {
		if _, err := io.ReadFull(s.r, buf[BusPacketHeaderSize:length]); err != nil {
			return nil, errors.Wrapf(err, "stream ends inside a bus packet body, length field %d", length)
		}
	} else {
		length = BusPacketHeaderSize
	}
	return s.codec.Decode(buf[:length])
}

// ReadBusPacketsCallback reads from a byte stream, locates marker-delimited
// bus packets and passes each decoded packet to a callback.  Frames that
// fail length or error control validation are dropped; it is the caller's
// transport that decides about retransmission, not this layer.
func ReadBusPacketsCallback(stream io.Reader, codec *BusPacketCodec, callback func(p *BusPacket)) error {
	scanner := NewBusPacketScanner(stream, codec)
	for {
		p, err := scanner.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, ErrChecksum) || errors.Is(err, ErrLength) {
			continue
		}
		if err != nil {
			return err
		}
		callback(p)
	}
}

// ReadBusPacketsChannel reads from a byte stream, locates marker-delimited
// bus packets and passes each decoded packet to a channel.
func ReadBusPacketsChannel(stream io.Reader, codec *BusPacketCodec, channel chan *BusPacket) error {
	return ReadBusPacketsCallback(stream, codec, func(p *BusPacket) { channel <- p })
}

// A BusPacketFile is a binary file containing a sequence of marker-framed
// bus packets.
type BusPacketFile struct {
	Filename string
	Codec    *BusPacketCodec
}

// Iterate reads the file and passes each decoded packet to a callback.
func (source BusPacketFile) Iterate(callback func(p *BusPacket)) error {
	file, err := os.Open(source.Filename)
	if err != nil {
		return errors.Wrap(err, "opening bus packet file")
	}
	defer file.Close()

	if err := ReadBusPacketsCallback(file, source.Codec, callback); err != nil {
		return errors.Wrapf(err, "filename=%s", source.Filename)
	}
	return nil
}

// WriteFrame writes the synchronization marker followed by frame, the
// transmit-side counterpart of the scanner.
func WriteFrame(w io.Writer, frame []byte) error {
	if _, err := w.Write(FrameSync[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}
