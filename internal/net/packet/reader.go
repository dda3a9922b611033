package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrShortPacket   = errors.New("packet truncated")
	ErrTrailingBytes = errors.New("unread bytes after packet")
	ErrInvalidString = errors.New("string is not valid UTF-8")
	ErrInvalidValue  = errors.New("invalid field value")
)

// Reader reads little-endian packet fields. Byte 0 is always the opcode.
//
// Errors are sticky: after the first failure every read returns a zero value
// and Err reports the original cause, so decoders read straight through and
// check once at the end.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	r := &Reader{data: data, off: 1} // skip opcode byte
	if len(data) == 0 {
		r.off = 0
		r.err = fmt.Errorf("%w: missing opcode", ErrShortPacket)
	}
	return r
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

func (r *Reader) Err() error { return r.err }

// Fail records err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Finish returns the sticky error, or ErrTrailingBytes when the payload was
// not fully consumed.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if n := r.Remaining(); n > 0 {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, n)
	}
	return nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortPacket, n, r.off, len(r.data)-r.off)
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadBool reads one byte; anything but 0 or 1 is rejected.
func (r *Reader) ReadBool() bool {
	switch v := r.ReadC(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.Fail(fmt.Errorf("%w: bool byte %d", ErrInvalidValue, v))
		return false
	}
}

// ReadH reads 2 bytes as uint16.
func (r *Reader) ReadH() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadD reads 4 bytes as uint32.
func (r *Reader) ReadD() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadI reads 4 bytes as int32.
func (r *Reader) ReadI() int32 { return int32(r.ReadD()) }

// ReadL reads 8 bytes as int64.
func (r *Reader) ReadL() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

// ReadF reads an IEEE-754 float32.
func (r *Reader) ReadF() float32 {
	return math.Float32frombits(r.ReadD())
}

// ReadS reads a u16 length-prefixed UTF-8 string.
func (r *Reader) ReadS() string {
	n := int(r.ReadH())
	b := r.take(n)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.Fail(ErrInvalidString)
		return ""
	}
	return string(b)
}

// ReadCount reads a u16 element count. Counts that cannot possibly fit in
// the remaining payload, given each element takes at least minSize bytes,
// are rejected before the caller allocates.
func (r *Reader) ReadCount(minSize int) int {
	n := int(r.ReadH())
	if r.err != nil {
		return 0
	}
	if minSize > 0 && n*minSize > r.Remaining() {
		r.Fail(fmt.Errorf("%w: %d elements of at least %d bytes, %d left", ErrShortPacket, n, minSize, r.Remaining()))
		return 0
	}
	return n
}

func (r *Reader) ReadVec3() mgl32.Vec3 {
	return mgl32.Vec3{r.ReadF(), r.ReadF(), r.ReadF()}
}

// ReadQuat reads a rotation as w, x, y, z.
func (r *Reader) ReadQuat() mgl32.Quat {
	w := r.ReadF()
	v := r.ReadVec3()
	return mgl32.Quat{W: w, V: v}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
