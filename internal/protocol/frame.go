package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame layout constants
const (
	HeaderSize        = 42 // magic(2) + length(2) + type(2) + checksum(4) + correlation(32)
	CorrelationIDSize = 32
	MaxFrameSize      = 0xFFFF // length field is a uint16

	offsetLength      = 2
	offsetType        = 4
	offsetChecksum    = 6
	offsetCorrelation = 10
)

// Magic identifies the protocol ("hd")
var Magic = [2]byte{0x68, 0x64}

// FrameType tells which key encrypted the payload
type FrameType string

const (
	FrameTypePK FrameType = "pk" // pre-shared key, hello only
	FrameTypeDK FrameType = "dk" // per-connection session key
)

// Frame represents a parsed protocol frame. The payload is still encrypted.
type Frame struct {
	Magic         [2]byte
	Length        uint16
	Type          FrameType
	Checksum      uint32
	CorrelationID []byte
	Payload       []byte
}

// NewFrame builds a frame around an encrypted payload and fills in the
// length and checksum fields.
func NewFrame(typ FrameType, correlationID []byte, payload []byte) *Frame {
	return &Frame{
		Magic:         Magic,
		Length:        uint16(HeaderSize + len(payload)),
		Type:          typ,
		Checksum:      crc32.ChecksumIEEE(payload),
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// ParseFrame splits raw bytes into header fields and payload.
// The checksum is not verified; use Valid for that.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrMalformedFrame, len(data), HeaderSize)
	}

	frame := &Frame{
		Length:        binary.BigEndian.Uint16(data[offsetLength:offsetType]),
		Type:          FrameType(data[offsetType:offsetChecksum]),
		Checksum:      binary.BigEndian.Uint32(data[offsetChecksum:offsetCorrelation]),
		CorrelationID: bytes.Clone(data[offsetCorrelation:HeaderSize]),
		Payload:       bytes.Clone(data[HeaderSize:]),
	}
	copy(frame.Magic[:], data[0:2])

	return frame, nil
}

// Valid reports whether the header checksum matches the payload
func (f *Frame) Valid() bool {
	return crc32.ChecksumIEEE(f.Payload) == f.Checksum
}

// Marshal serializes the frame. Length and checksum are recomputed from the
// payload so a frame built by hand cannot go out inconsistent.
func (f *Frame) Marshal() ([]byte, error) {
	total := HeaderSize + len(f.Payload)
	if total > MaxFrameSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(f.Payload), MaxFrameSize-HeaderSize)
	}
	if len(f.CorrelationID) != CorrelationIDSize {
		return nil, fmt.Errorf("correlation id must be %d bytes, got %d", CorrelationIDSize, len(f.CorrelationID))
	}
	if len(f.Type) != 2 {
		return nil, fmt.Errorf("invalid frame type %q", f.Type)
	}

	buf := make([]byte, total)
	copy(buf[0:2], Magic[:])
	binary.BigEndian.PutUint16(buf[offsetLength:offsetType], uint16(total))
	copy(buf[offsetType:offsetChecksum], string(f.Type))
	binary.BigEndian.PutUint32(buf[offsetChecksum:offsetCorrelation], crc32.ChecksumIEEE(f.Payload))
	copy(buf[offsetCorrelation:HeaderSize], f.CorrelationID)
	copy(buf[HeaderSize:], f.Payload)

	return buf, nil
}

// ReadFrame reads exactly one frame from a byte stream using the length
// prefix. TCP may split or coalesce device writes, so the connection loop
// never assumes one read equals one frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	prefix := make([]byte, offsetType)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}

	if prefix[0] != Magic[0] || prefix[1] != Magic[1] {
		return nil, fmt.Errorf("%w: invalid magic 0x%02x%02x", ErrMalformedFrame, prefix[0], prefix[1])
	}

	length := int(binary.BigEndian.Uint16(prefix[offsetLength:offsetType]))
	if length < HeaderSize {
		return nil, fmt.Errorf("%w: declared length %d below header size", ErrMalformedFrame, length)
	}

	buf := make([]byte, length)
	copy(buf, prefix)
	if _, err := io.ReadFull(r, buf[offsetType:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	return buf, nil
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{type=%s, length=%d, checksum=0x%08x, correlation=%q, payload_len=%d}",
		f.Type, f.Length, f.Checksum, f.CorrelationID, len(f.Payload))
}
