// Package protocol implements the fixed-header binary framing spoken between
// a store server and its clients: a 16-byte header, optionally followed by a
// payload whose length the header carries.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Type identifies a packet's role on the wire.
type Type uint8

const (
	NoPacket Type = iota
	Get
	Put
	Key
	Value
	Reply
	Data
	Commit
)

func (t Type) String() string {
	switch t {
	case NoPacket:
		return "NO_PKT"
	case Get:
		return "GET"
	case Put:
		return "PUT"
	case Key:
		return "KEY"
	case Value:
		return "VALUE"
	case Reply:
		return "REPLY"
	case Data:
		return "DATA"
	case Commit:
		return "COMMIT"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Status is the reply status code carried by a REPLY packet's header.
type Status uint8

const (
	OK Status = iota
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// headerSize is the fixed wire size of a Header: 1+1+1+1+4+4+4 bytes.
const headerSize = 16

// ErrMalformedHeader is returned when a header's reserved padding byte is
// nonzero. No other header field is validated.
var ErrMalformedHeader = errors.New("protocol: malformed packet header")

// Header is the fixed-size preamble of every packet.
type Header struct {
	Type          Type
	Status        Status
	Null          bool // true iff the payload represents a null value
	Size          uint32
	TimestampSec  uint32
	TimestampNsec uint32
}

// NewHeader builds a Header stamped with the current wall-clock time, the way
// the reference implementation stamps every outgoing packet at send time.
func NewHeader(typ Type, status Status, null bool, size uint32) Header {
	now := time.Now()
	return Header{
		Type:          typ,
		Status:        status,
		Null:          null,
		Size:          size,
		TimestampSec:  uint32(now.Unix()),
		TimestampNsec: uint32(now.Nanosecond()),
	}
}

// WriteHeader encodes h to w in wire format: type, status, null flag,
// reserved padding byte, then three big-endian uint32 fields.
func WriteHeader(w io.Writer, h Header) error {
	var buf [headerSize]byte
	buf[0] = byte(h.Type)
	buf[1] = byte(h.Status)
	if h.Null {
		buf[2] = 1
	}
	buf[3] = 0
	binary.BigEndian.PutUint32(buf[4:8], h.Size)
	binary.BigEndian.PutUint32(buf[8:12], h.TimestampSec)
	binary.BigEndian.PutUint32(buf[12:16], h.TimestampNsec)

	_, err := w.Write(buf[:])
	return err
}

// ReadHeader decodes a Header from r. io.EOF is returned unaltered so
// callers can distinguish a clean connection close from a mid-header
// truncation (reported as io.ErrUnexpectedEOF by io.ReadFull).
func ReadHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	if buf[3] != 0 {
		return Header{}, ErrMalformedHeader
	}
	return Header{
		Type:          Type(buf[0]),
		Status:        Status(buf[1]),
		Null:          buf[2] != 0,
		Size:          binary.BigEndian.Uint32(buf[4:8]),
		TimestampSec:  binary.BigEndian.Uint32(buf[8:12]),
		TimestampNsec: binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// WritePacket writes a header for typ/status/null/len(payload) followed by
// payload itself (payload may be empty).
func WritePacket(w io.Writer, typ Type, status Status, null bool, payload []byte) error {
	h := NewHeader(typ, status, null, uint32(len(payload)))
	if err := WriteHeader(w, h); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadPacket reads a header and, if its Size is nonzero, the payload that
// follows it.
func ReadPacket(r io.Reader) (Header, []byte, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	if h.Size == 0 {
		return h, nil, nil
	}
	payload := make([]byte, h.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, err
	}
	return h, payload, nil
}
