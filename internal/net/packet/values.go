package packet

import (
	"fmt"

	"github.com/tsom/server/internal/entity"
)

// WriteValue writes a property value as its type byte followed by its
// components.
func (w *Writer) WriteValue(v entity.Value) {
	t := v.Type()
	w.WriteC(byte(t))
	switch x := v.(type) {
	case entity.Bool:
		w.WriteBool(bool(x))
	case entity.String:
		w.WriteS(string(x))
	default:
		if t.IsInteger() {
			for _, c := range entity.Ints(v) {
				w.WriteL(c)
			}
			return
		}
		for _, c := range entity.Floats(v) {
			w.WriteF(float32(c))
		}
	}
}

// ReadValue reads a value written by WriteValue.
func (r *Reader) ReadValue() entity.Value {
	t := entity.PropertyType(r.ReadC())
	if r.err != nil {
		return nil
	}
	if !t.Valid() {
		r.Fail(fmt.Errorf("%w: property type %d", ErrInvalidValue, uint8(t)))
		return nil
	}
	switch t {
	case entity.TypeBool:
		return entity.Bool(r.ReadBool())
	case entity.TypeString:
		return entity.String(r.ReadS())
	}

	comps := make([]float64, t.Components())
	if t.IsFloat() {
		for i := range comps {
			comps[i] = float64(r.ReadF())
		}
		v, err := entity.FromFloats(t, comps)
		if err != nil {
			r.Fail(err)
		}
		return v
	}
	// int64 does not survive a float64 round trip, so integers are built
	// directly.
	ints := make([]int64, t.Components())
	for i := range ints {
		ints[i] = r.ReadL()
	}
	return intValue(t, ints)
}

func intValue(t entity.PropertyType, n []int64) entity.Value {
	switch t {
	case entity.TypeInteger:
		return entity.Integer(n[0])
	case entity.TypeIntegerPosition2D:
		return entity.IntegerPosition2D{n[0], n[1]}
	case entity.TypeIntegerPosition3D:
		return entity.IntegerPosition3D{n[0], n[1], n[2]}
	case entity.TypeIntegerRect2D:
		return entity.IntegerRect2D{n[0], n[1], n[2], n[3]}
	case entity.TypeIntegerRect3D:
		return entity.IntegerRect3D{n[0], n[1], n[2], n[3], n[4], n[5]}
	case entity.TypeIntegerSize2D:
		return entity.IntegerSize2D{n[0], n[1]}
	default:
		return entity.IntegerSize3D{n[0], n[1], n[2]}
	}
}
