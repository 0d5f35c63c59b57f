// Package buffer implements the positional binary buffer used by every
// serializer writer.
//
// A Buffer keeps two independent cursors over one growable byte region:
// writes append at the write position, reads consume from the read
// position. All integers are big-endian (network byte order), matching
// the log-entry frame in package protocol.
//
//	0             read               write           cap
//	├──────────────┼──────────────────┼───────────────┤
//	│   consumed   │   unread bytes   │  free space   │
package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrUnderflow is returned when a read needs more bytes than remain.
var ErrUnderflow = fmt.Errorf("buffer underflow: %w", io.ErrUnexpectedEOF)

// ErrOutOfRange is returned by positional accessors for an offset outside the written region.
var ErrOutOfRange = errors.New("buffer position out of range")

// Buffer is a big-endian reader/writer. It is not safe for concurrent use.
type Buffer struct {
	data []byte
	read int
}

// New returns an empty buffer with room for size bytes.
func New(size int) *Buffer {
	return &Buffer{data: make([]byte, 0, size)}
}

// Wrap returns a buffer reading from data. The slice is not copied.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns every written byte, including bytes already read.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.read
}

// Position returns the read position.
func (b *Buffer) Position() int {
	return b.read
}

// WritePosition returns the write position, i.e. the number of written bytes.
func (b *Buffer) WritePosition() int {
	return len(b.data)
}

// Seek moves the read position.
func (b *Buffer) Seek(pos int) error {
	if pos < 0 || pos > len(b.data) {
		return ErrOutOfRange
	}
	b.read = pos
	return nil
}

// Reset empties the buffer and keeps the allocated capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.read = 0
}

func (b *Buffer) WriteUint8(v uint8) {
	b.data = append(b.data, v)
}

func (b *Buffer) WriteUint16(v uint16) {
	b.data = binary.BigEndian.AppendUint16(b.data, v)
}

func (b *Buffer) WriteUint32(v uint32) {
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}

func (b *Buffer) WriteUint64(v uint64) {
	b.data = binary.BigEndian.AppendUint64(b.data, v)
}

// WriteBytes appends raw bytes without a length prefix.
func (b *Buffer) WriteBytes(p []byte) {
	b.data = append(b.data, p...)
}

// WriteUint16At overwrites two already written bytes at pos.
// Writers use it to back-patch a length prefix once the count is known.
func (b *Buffer) WriteUint16At(pos int, v uint16) error {
	if pos < 0 || pos+2 > len(b.data) {
		return ErrOutOfRange
	}
	binary.BigEndian.PutUint16(b.data[pos:pos+2], v)
	return nil
}

// WriteUint32At overwrites four already written bytes at pos.
func (b *Buffer) WriteUint32At(pos int, v uint32) error {
	if pos < 0 || pos+4 > len(b.data) {
		return ErrOutOfRange
	}
	binary.BigEndian.PutUint32(b.data[pos:pos+4], v)
	return nil
}

// ReadUint16At reads two bytes at pos without moving the read position.
func (b *Buffer) ReadUint16At(pos int) (uint16, error) {
	if pos < 0 || pos+2 > len(b.data) {
		return 0, ErrOutOfRange
	}
	return binary.BigEndian.Uint16(b.data[pos : pos+2]), nil
}

// ReadUint32At reads four bytes at pos without moving the read position.
func (b *Buffer) ReadUint32At(pos int) (uint32, error) {
	if pos < 0 || pos+4 > len(b.data) {
		return 0, ErrOutOfRange
	}
	return binary.BigEndian.Uint32(b.data[pos : pos+4]), nil
}

func (b *Buffer) next(n int) ([]byte, error) {
	if n < 0 || b.Len() < n {
		return nil, ErrUnderflow
	}
	p := b.data[b.read : b.read+n]
	b.read += n
	return p, nil
}

func (b *Buffer) ReadUint8() (uint8, error) {
	p, err := b.next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

// ReadBytes returns a copy of the next n bytes.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	p, err := b.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}
