package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxCount is the largest element count or string length a u16 prefix can
// carry.
const MaxCount = math.MaxUint16

var (
	ErrStringTooLong = errors.New("string too long for packet")
	ErrTooManyItems  = errors.New("too many elements for packet")
)

// Writer builds a packet. All multi-byte writes are little-endian.
//
// Like Reader, errors are sticky: a field that cannot be represented is
// recorded and Err reports it once encoding is done.
type Writer struct {
	buf []byte
	err error
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithOpcode(op Opcode) *Writer {
	w := NewWriter()
	w.WriteC(byte(op))
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteC(1)
	} else {
		w.WriteC(0)
	}
}

// WriteH writes a uint16.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteD writes a uint32.
func (w *Writer) WriteD(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteI writes an int32.
func (w *Writer) WriteI(v int32) { w.WriteD(uint32(v)) }

// WriteL writes an int64.
func (w *Writer) WriteL(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

// WriteF writes an IEEE-754 float32.
func (w *Writer) WriteF(v float32) {
	w.WriteD(math.Float32bits(v))
}

// WriteS writes a u16 length-prefixed string.
func (w *Writer) WriteS(s string) {
	if len(s) > MaxCount {
		w.Fail(fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s)))
		return
	}
	w.WriteH(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteCount writes a u16 element count.
func (w *Writer) WriteCount(n int) {
	if n < 0 || n > MaxCount {
		w.Fail(fmt.Errorf("%w: %d", ErrTooManyItems, n))
		return
	}
	w.WriteH(uint16(n))
}

func (w *Writer) WriteVec3(v mgl32.Vec3) {
	w.WriteF(v[0])
	w.WriteF(v[1])
	w.WriteF(v[2])
}

// WriteQuat writes a rotation as w, x, y, z.
func (w *Writer) WriteQuat(q mgl32.Quat) {
	w.WriteF(q.W)
	w.WriteVec3(q.V)
}

func (w *Writer) Err() error { return w.err }

// Fail records err unless an earlier error is already recorded.
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}
