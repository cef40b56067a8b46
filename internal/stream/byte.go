// Package stream provides the sequential readers the preprocessor and the
// config decoders are built on. Both readers keep a stack of handed-back
// units and a position that moves in lockstep with every read and unread.
package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrUnexpectedEOF is returned when a value is cut off by the end of input.
var ErrUnexpectedEOF = errors.New("unexpected end of input")

// maxVLQGroups bounds the number of 7-bit groups of a compressed integer.
const maxVLQGroups = 5

// ByteReader decodes the little-endian primitives of the rapified format.
type ByteReader struct {
	src      *bufio.Reader
	pushback []byte
	pos      int
}

func NewByteReader(r io.Reader) *ByteReader {
	return &ByteReader{src: bufio.NewReader(r)}
}

// Position returns the number of bytes consumed so far.
func (r *ByteReader) Position() int {
	return r.pos
}

func (r *ByteReader) ReadByte() (byte, error) {
	if n := len(r.pushback); n > 0 {
		b := r.pushback[n-1]
		r.pushback = r.pushback[:n-1]
		r.pos++
		return b, nil
	}
	b, err := r.src.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, fmt.Errorf("offset %d: %w", r.pos, ErrUnexpectedEOF)
		}
		return 0, err
	}
	r.pos++
	return b, nil
}

// Unread hands b back; it is the next byte returned by ReadByte.
func (r *ByteReader) Unread(b byte) {
	r.pushback = append(r.pushback, b)
	r.pos--
}

func (r *ByteReader) Peek() (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	r.Unread(b)
	return b, nil
}

func (r *ByteReader) read4() ([4]byte, error) {
	var buf [4]byte
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return buf, err
		}
		buf[i] = b
	}
	return buf, nil
}

func (r *ByteReader) ReadInt32() (int32, error) {
	buf, err := r.read4()
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (r *ByteReader) ReadFloat32() (float32, error) {
	buf, err := r.read4()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[:])), nil
}

// ReadVLQ reads a compressed integer: little-endian groups of 7 bits, the
// high bit of each byte flagging that another group follows. Values that
// do not fit 31 bits come back negative.
func (r *ByteReader) ReadVLQ() (int32, error) {
	start := r.pos
	var v uint32
	for i := 0; i < maxVLQGroups; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << (7 * i)
		if b < 0x80 {
			return int32(v), nil
		}
	}
	return 0, fmt.Errorf("offset %d: compressed integer longer than %d bytes", start, maxVLQGroups)
}

// ReadCString reads a NUL-terminated string. The terminator is consumed.
func (r *ByteReader) ReadCString() (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

func (r *ByteReader) Skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadByte(); err != nil {
			return err
		}
	}
	return nil
}

// SeekForward advances to the absolute offset off. Seeking behind the
// current position is a programming error and panics.
func (r *ByteReader) SeekForward(off int) error {
	if off < r.pos {
		panic(fmt.Sprintf("stream: seek to offset %d behind position %d", off, r.pos))
	}
	return r.Skip(off - r.pos)
}

// AppendVLQ appends the compressed encoding of v to dst.
func AppendVLQ(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}
