// Package protocol implements the frame every replicated log entry is wrapped in.
//
// A log backend stores opaque bytes, so each entry carries its own header:
// the codec needed to decode the body, the command kind, and a checksum that
// catches entries corrupted or written by something else.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│kd│  crc32  │ bodyLen │    body ...    │
//	│ agl  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Magic number bytes: "agl" (atomix group log).
const (
	MagicNumber byte = 0x61 // 'a'
	MagicByte2  byte = 0x67 // 'g'
	MagicByte3  byte = 0x6c // 'l'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (kind) + 4 (crc) + 4 (bodyLen)

	// MaxBodyLen bounds the allocation made for a body read off the wire.
	MaxBodyLen uint32 = 64 << 20
)

// Kind tells the apply loop which command the body holds.
type Kind byte

const (
	KindMessage Kind = 0 // Producer → target member
	KindAck     Kind = 1 // Target member → producer
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindAck:
		return "ack"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

var (
	ErrInvalidMagic    = errors.New("protocol: invalid magic number")
	ErrVersion         = errors.New("protocol: unsupported version")
	ErrCodec           = errors.New("protocol: unsupported codec type")
	ErrKind            = errors.New("protocol: unsupported kind")
	ErrChecksum        = errors.New("protocol: checksum mismatch")
	ErrBodyTooLarge    = errors.New("protocol: body too large")
	ErrTrailingPayload = errors.New("protocol: trailing bytes after body")
)

// Header represents the fixed 14-byte frame header.
type Header struct {
	CodecType byte
	Kind      Kind
	Checksum  uint32 // IEEE crc32 of the body; filled in by Encode
	BodyLen   uint32 // filled in by Encode
}

// Encode writes a complete frame (header + body) to w. Checksum and BodyLen
// are computed from body and stored back into h.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint64(len(body)) > uint64(MaxBodyLen) {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	h.Checksum = crc32.ChecksumIEEE(body)
	h.BodyLen = uint32(len(body))

	buf := make([]byte, HeaderSize)
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.Kind)
	binary.BigEndian.PutUint32(buf[6:10], h.Checksum)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// Decode reads a complete frame (header + body) from r.
// It validates the magic number, version, codec type, kind and checksum.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("%w: %x", ErrInvalidMagic, headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrVersion, headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("%w: %d", ErrCodec, headerBuf[4])
	}
	kind := Kind(headerBuf[5])
	if kind != KindMessage && kind != KindAck {
		return nil, nil, fmt.Errorf("%w: %d", ErrKind, headerBuf[5])
	}

	h := &Header{
		CodecType: headerBuf[4],
		Kind:      kind,
		Checksum:  binary.BigEndian.Uint32(headerBuf[6:10]),
		BodyLen:   binary.BigEndian.Uint32(headerBuf[10:14]),
	}
	if h.BodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, h.BodyLen)
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	if sum := crc32.ChecksumIEEE(body); sum != h.Checksum {
		return nil, nil, fmt.Errorf("%w: got %08x, header says %08x", ErrChecksum, sum, h.Checksum)
	}
	return h, body, nil
}

// Marshal returns the frame for body as a single log entry.
func Marshal(h *Header, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(body))
	if err := Encode(&buf, h, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a log entry holding exactly one frame.
func Unmarshal(data []byte) (*Header, []byte, error) {
	r := bytes.NewReader(data)
	h, body, err := Decode(r)
	if err != nil {
		return nil, nil, err
	}
	if r.Len() != 0 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrTrailingPayload, r.Len())
	}
	return h, body, nil
}
