package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(Put, OK, false, 42)

	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h))
	require.Equal(t, headerSize, buf.Len())

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, h.Type, got.Type)
	require.Equal(t, h.Status, got.Status)
	require.Equal(t, h.Null, got.Null)
	require.Equal(t, h.Size, got.Size)
}

func TestPacketRoundTripWithPayload(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")
	require.NoError(t, WritePacket(&buf, Value, OK, false, payload))

	h, got, err := ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, Value, h.Type)
	require.Equal(t, payload, got)
}

func TestPacketRoundTripNullPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, Data, OK, true, nil))

	h, got, err := ReadPacket(&buf)
	require.NoError(t, err)
	require.True(t, h.Null)
	require.Equal(t, uint32(0), h.Size)
	require.Nil(t, got)
}

func TestReadHeaderRejectsNonZeroPadding(t *testing.T) {
	buf := make([]byte, headerSize)
	buf[3] = 1 // padding byte must be reserved-zero

	_, err := ReadHeader(bytes.NewReader(buf))
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestReadHeaderOnEmptyStreamReturnsEOF(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}

func TestReadHeaderOnTruncatedStreamReturnsUnexpectedEOF(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader(make([]byte, 4)))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestTypeAndStatusStrings(t *testing.T) {
	require.Equal(t, "PUT", Put.String())
	require.Equal(t, "ABORTED", Aborted.String())
}
