package ccsds

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultHeader(truncated bool) *PrimaryHeader {
	return &PrimaryHeader{
		TFVN:         DefaultTFVN,
		SCID:         DefaultSCID,
		SourceDestID: FrameSource,
		VCID:         DefaultVCID,
		MAPID:        DefaultMAPID,
		Truncated:    truncated,
	}
}

// TestTransferFramePrefixLayout pins the shared 4-byte prefix down to the bit.
func TestTransferFramePrefixLayout(t *testing.T) {
	codec := NewTransferFrameCodec(nil)
	tfph := defaultHeader(false)
	tfdf := &DataField{ConstrRule: 0b111, ProtocolID: 0}

	require.NoError(t, codec.SetData([]byte{1, 2, 3}, nil, tfph, tfdf))
	buf, err := codec.Packetize(0, tfph, tfdf)
	require.NoError(t, err)

	// tfvn 0b1100, scid 0x5553, source, vcid 0b111000, mapid 0, not truncated
	require.Equal(t, byte(0xC5), buf[0])
	require.Equal(t, byte(0x55), buf[1])
	require.Equal(t, byte(0x37), buf[2])
	require.Equal(t, byte(0x00), buf[3])
	// length: 3 data + 7 + 1 + 2
	require.Equal(t, byte(0), buf[4])
	require.Equal(t, byte(13), buf[5])
	// data field header: constr_rule 0b111, protocol 0
	require.Equal(t, byte(0xE0), buf[7])
}

// TestTransferFrameRoundTrip covers the full-header layout with and without
// an insert-zone frame.
func TestTransferFrameRoundTrip(t *testing.T) {
	codec := NewTransferFrameCodec(nil)

	cases := []struct {
		name   string
		data   []byte
		vcData []byte
	}{
		{"no insert zone", []byte{100, 13, 32, 76, 12, 98, 34, 12, 65, 23}, nil},
		{"with insert zone", []byte{1, 2, 3, 4}, []byte{0xAA, 0xBB, 0xCC}},
		{"empty data", nil, nil},
		{"max insert zone field", []byte{7}, []byte{1, 2, 3, 4, 5, 6, 7}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tfph := defaultHeader(false)
			tfph.BypassFlag = true
			tfph.OCFFlag = true
			tfdf := &DataField{ConstrRule: 0b111, ProtocolID: 0b00011}

			require.NoError(t, codec.SetData(c.data, c.vcData, tfph, tfdf))
			wantLen := len(c.data) + len(c.vcData) + TransferFrameBaseHeaderSize +
				TransferFrameDataHeaderSize + TransferFrameECFSize
			require.Equal(t, uint16(wantLen), tfph.Length)

			buf, err := codec.Packetize(0, tfph, tfdf)
			require.NoError(t, err)
			require.Len(t, buf, wantLen)

			var gotPH PrimaryHeader
			var gotDF DataField
			require.NoError(t, codec.Decode(buf, &gotPH, &gotDF))

			require.Equal(t, tfph.TFVN, gotPH.TFVN)
			require.Equal(t, tfph.SCID, gotPH.SCID)
			require.Equal(t, tfph.SourceDestID, gotPH.SourceDestID)
			require.Equal(t, tfph.VCID, gotPH.VCID)
			require.Equal(t, tfph.MAPID, gotPH.MAPID)
			require.False(t, gotPH.Truncated)
			require.Equal(t, tfph.Length, gotPH.Length)
			require.Equal(t, tfph.BypassFlag, gotPH.BypassFlag)
			require.Equal(t, tfph.CommandFlag, gotPH.CommandFlag)
			require.Equal(t, tfph.OCFFlag, gotPH.OCFFlag)
			require.Equal(t, append([]byte{}, c.vcData...), gotPH.VCFrame)

			require.Equal(t, tfdf.ConstrRule, gotDF.ConstrRule)
			require.Equal(t, tfdf.ProtocolID, gotDF.ProtocolID)
			require.Equal(t, append([]byte{}, c.data...), gotDF.Data)
		})
	}
}

// TestTruncatedFrameLength: the truncated layout is exactly header + data
// field header + data + ECF.
func TestTruncatedFrameLength(t *testing.T) {
	codec := NewTransferFrameCodec(nil)
	for _, n := range []int{0, 1, 10, TransferFrameMaxDataSize} {
		tfph := defaultHeader(true)
		tfdf := &DataField{}
		require.NoError(t, codec.SetData(make([]byte, n), nil, tfph, tfdf))

		buf, err := codec.Packetize(n, tfph, tfdf)
		require.NoError(t, err)
		require.Len(t, buf, TransferFrameTruncatedHeaderSize+TransferFrameDataHeaderSize+n+TransferFrameECFSize)
	}
}

// TestTruncatedFrameRoundTrip checks the truncated layout end to end,
// including the big-endian ECF trailer.
func TestTruncatedFrameRoundTrip(t *testing.T) {
	codec := NewTransferFrameCodec(nil)
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x42}

	tfph := defaultHeader(true)
	tfph.SourceDestID = FrameDestination
	tfdf := &DataField{ConstrRule: 0b010, ProtocolID: 0b10001}
	require.NoError(t, codec.SetData(data, nil, tfph, tfdf))

	buf, err := codec.Packetize(len(data), tfph, tfdf)
	require.NoError(t, err)

	var gotPH PrimaryHeader
	var gotDF DataField
	require.NoError(t, codec.Decode(buf, &gotPH, &gotDF))
	require.True(t, gotPH.Truncated)
	require.Equal(t, DefaultSCID, gotPH.SCID)
	require.Equal(t, FrameDestination, gotPH.SourceDestID)
	require.Equal(t, tfdf.ConstrRule, gotDF.ConstrRule)
	require.Equal(t, tfdf.ProtocolID, gotDF.ProtocolID)
	require.Equal(t, data, gotDF.Data)
}

// TestTransferFrameCapacity exercises every LengthError branch.
func TestTransferFrameCapacity(t *testing.T) {
	codec := NewTransferFrameCodec(nil)

	tfph := defaultHeader(false)
	tfdf := &DataField{}
	err := codec.SetData(make([]byte, TransferFrameMaxDataSize+1), nil, tfph, tfdf)
	require.ErrorIs(t, err, ErrLength)

	err = codec.SetData(nil, make([]byte, TransferFrameVCFrameMaxSize+1), tfph, tfdf)
	require.ErrorIs(t, err, ErrLength)

	// Payload that fits the data field but not the full-header frame.
	err = codec.SetData(make([]byte, TransferFrameMaxDataSize), make([]byte, 7), tfph, tfdf)
	require.ErrorIs(t, err, ErrLength)

	// An insert zone too long for the 3-bit wire field.
	require.NoError(t, codec.SetData([]byte{1}, make([]byte, 8), tfph, tfdf))
	_, err = codec.Packetize(0, tfph, tfdf)
	require.ErrorIs(t, err, ErrLength)

	// Truncated payload over capacity.
	tfph = defaultHeader(true)
	tfdf = &DataField{Data: make([]byte, TransferFrameMaxDataSize+1)}
	_, err = codec.Packetize(TransferFrameMaxDataSize+1, tfph, tfdf)
	require.ErrorIs(t, err, ErrLength)
}

// TestTransferFrameTamper: single-bit corruption anywhere before the trailer
// must be caught on both layouts.
func TestTransferFrameTamper(t *testing.T) {
	codec := NewTransferFrameCodec(nil)

	for _, truncated := range []bool{false, true} {
		tfph := defaultHeader(truncated)
		tfdf := &DataField{}
		data := []byte{10, 20, 30, 40}
		require.NoError(t, codec.SetData(data, nil, tfph, tfdf))
		buf, err := codec.Packetize(len(data), tfph, tfdf)
		require.NoError(t, err)

		// Skip byte 3: flipping the end flag changes the layout, not just
		// the checksum.  Skip bytes 4-6 on the full layout for the same
		// reason (length and vc_length steer the parse).
		start := TransferFrameBaseHeaderSize
		if truncated {
			start = TransferFrameTruncatedHeaderSize
		}
		for i := start; i < len(buf)-TransferFrameECFSize; i++ {
			buf[i] ^= 0x01
			var ph PrimaryHeader
			var df DataField
			err := codec.Decode(buf, &ph, &df)
			require.ErrorIs(t, err, ErrChecksum, "truncated=%v byte %d", truncated, i)
			buf[i] ^= 0x01
		}
	}
}

// TestTransferFrameDecodeLengthErrors covers malformed buffers.
func TestTransferFrameDecodeLengthErrors(t *testing.T) {
	codec := NewTransferFrameCodec(nil)
	var ph PrimaryHeader
	var df DataField

	// Too short for any prefix.
	require.ErrorIs(t, codec.Decode([]byte{0xC5, 0x55}, &ph, &df), ErrLength)

	// Truncated frame without room for data field header + ECF.
	require.ErrorIs(t, codec.Decode([]byte{0xC5, 0x55, 0x37, 0x01, 0xE0}, &ph, &df), ErrLength)

	// Full-header frame whose length field leaves a negative data length.
	tfph := defaultHeader(false)
	tfdf := &DataField{}
	require.NoError(t, codec.SetData([]byte{1, 2, 3}, nil, tfph, tfdf))
	buf, err := codec.Packetize(0, tfph, tfdf)
	require.NoError(t, err)
	buf[4], buf[5] = 0, 9 // below base header + df header + ECF
	require.ErrorIs(t, codec.Decode(buf, &ph, &df), ErrLength)

	// Length field beyond the received buffer.
	buf[4], buf[5] = 0x01, 0x00
	require.ErrorIs(t, codec.Decode(buf, &ph, &df), ErrLength)
}

// TestTransferFrameProviderInterop: a frame sealed with the table provider
// verifies under the software provider.
func TestTransferFrameProviderInterop(t *testing.T) {
	table := NewTransferFrameCodec(NewTableErrorControl())
	software := NewTransferFrameCodec(SoftwareErrorControl{})

	tfph := defaultHeader(false)
	tfdf := &DataField{}
	require.NoError(t, table.SetData([]byte{5, 4, 3, 2, 1}, nil, tfph, tfdf))
	buf, err := table.Packetize(0, tfph, tfdf)
	require.NoError(t, err)

	var ph PrimaryHeader
	var df DataField
	require.NoError(t, software.Decode(buf, &ph, &df))
}
