package entity

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// PropertyType is the closed set of shapes a property value may take. The
// same enumeration is used on the wire, in Lua and in native code.
type PropertyType uint8

const (
	TypeBool PropertyType = iota
	TypeFloat
	TypeFloatPosition2D
	TypeFloatPosition3D
	TypeFloatRect2D
	TypeFloatRect3D
	TypeFloatSize2D
	TypeFloatSize3D
	TypeInteger
	TypeIntegerPosition2D
	TypeIntegerPosition3D
	TypeIntegerRect2D
	TypeIntegerRect3D
	TypeIntegerSize2D
	TypeIntegerSize3D
	TypeString

	typeCount
)

var typeNames = [typeCount]string{
	TypeBool:              "Bool",
	TypeFloat:             "Float",
	TypeFloatPosition2D:   "FloatPosition2D",
	TypeFloatPosition3D:   "FloatPosition3D",
	TypeFloatRect2D:       "FloatRect2D",
	TypeFloatRect3D:       "FloatRect3D",
	TypeFloatSize2D:       "FloatSize2D",
	TypeFloatSize3D:       "FloatSize3D",
	TypeInteger:           "Integer",
	TypeIntegerPosition2D: "IntegerPosition2D",
	TypeIntegerPosition3D: "IntegerPosition3D",
	TypeIntegerRect2D:     "IntegerRect2D",
	TypeIntegerRect3D:     "IntegerRect3D",
	TypeIntegerSize2D:     "IntegerSize2D",
	TypeIntegerSize3D:     "IntegerSize3D",
	TypeString:            "String",
}

// componentCounts is the number of scalar components of each type; 0 for
// scalar-free kinds (bool, string).
var componentCounts = [typeCount]int{
	TypeFloat:             1,
	TypeFloatPosition2D:   2,
	TypeFloatPosition3D:   3,
	TypeFloatRect2D:       4,
	TypeFloatRect3D:       6,
	TypeFloatSize2D:       2,
	TypeFloatSize3D:       3,
	TypeInteger:           1,
	TypeIntegerPosition2D: 2,
	TypeIntegerPosition3D: 3,
	TypeIntegerRect2D:     4,
	TypeIntegerRect3D:     6,
	TypeIntegerSize2D:     2,
	TypeIntegerSize3D:     3,
}

func (t PropertyType) Valid() bool { return t < typeCount }

func (t PropertyType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("PropertyType(%d)", uint8(t))
	}
	return typeNames[t]
}

// Components returns the number of scalar components carried by t.
func (t PropertyType) Components() int {
	if !t.Valid() {
		return 0
	}
	return componentCounts[t]
}

// IsFloat reports whether t's components are float32.
func (t PropertyType) IsFloat() bool {
	return t >= TypeFloat && t <= TypeFloatSize3D
}

// IsInteger reports whether t's components are int64.
func (t PropertyType) IsInteger() bool {
	return t >= TypeInteger && t <= TypeIntegerSize3D
}

// ParsePropertyType accepts the canonical names ("FloatPosition3D"),
// case-insensitively.
func ParsePropertyType(s string) (PropertyType, error) {
	for i, name := range typeNames {
		if strings.EqualFold(name, s) {
			return PropertyType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPropertyType, s)
}

// Value is one property value. The concrete types below are the only
// implementations; each maps to exactly one PropertyType.
type Value interface {
	Type() PropertyType
}

type (
	Bool            bool
	Float           float32
	FloatPosition2D mgl32.Vec2
	FloatPosition3D mgl32.Vec3
	FloatRect2D     mgl32.Vec4 // x, y, width, height
	FloatRect3D     [6]float32 // x, y, z, width, height, depth
	FloatSize2D     mgl32.Vec2
	FloatSize3D     mgl32.Vec3

	Integer           int64
	IntegerPosition2D [2]int64
	IntegerPosition3D [3]int64
	IntegerRect2D     [4]int64
	IntegerRect3D     [6]int64
	IntegerSize2D     [2]int64
	IntegerSize3D     [3]int64

	String string
)

func (Bool) Type() PropertyType              { return TypeBool }
func (Float) Type() PropertyType             { return TypeFloat }
func (FloatPosition2D) Type() PropertyType   { return TypeFloatPosition2D }
func (FloatPosition3D) Type() PropertyType   { return TypeFloatPosition3D }
func (FloatRect2D) Type() PropertyType       { return TypeFloatRect2D }
func (FloatRect3D) Type() PropertyType       { return TypeFloatRect3D }
func (FloatSize2D) Type() PropertyType       { return TypeFloatSize2D }
func (FloatSize3D) Type() PropertyType       { return TypeFloatSize3D }
func (Integer) Type() PropertyType           { return TypeInteger }
func (IntegerPosition2D) Type() PropertyType { return TypeIntegerPosition2D }
func (IntegerPosition3D) Type() PropertyType { return TypeIntegerPosition3D }
func (IntegerRect2D) Type() PropertyType     { return TypeIntegerRect2D }
func (IntegerRect3D) Type() PropertyType     { return TypeIntegerRect3D }
func (IntegerSize2D) Type() PropertyType     { return TypeIntegerSize2D }
func (IntegerSize3D) Type() PropertyType     { return TypeIntegerSize3D }
func (String) Type() PropertyType            { return TypeString }

// ZeroValue returns the zero value of t.
func ZeroValue(t PropertyType) Value {
	switch t {
	case TypeBool:
		return Bool(false)
	case TypeString:
		return String("")
	}
	v, err := FromFloats(t, make([]float64, t.Components()))
	if err != nil {
		return nil
	}
	return v
}

// FromFloats builds a numeric value of type t from its components.
// Integer kinds truncate toward zero.
func FromFloats(t PropertyType, c []float64) (Value, error) {
	if !t.IsFloat() && !t.IsInteger() {
		return nil, fmt.Errorf("%w: %s has no numeric components", ErrValueShape, t)
	}
	if len(c) != t.Components() {
		return nil, fmt.Errorf("%w: %s takes %d components, got %d", ErrValueShape, t, t.Components(), len(c))
	}
	f := func(i int) float32 { return float32(c[i]) }
	n := func(i int) int64 { return int64(c[i]) }

	switch t {
	case TypeFloat:
		return Float(f(0)), nil
	case TypeFloatPosition2D:
		return FloatPosition2D{f(0), f(1)}, nil
	case TypeFloatPosition3D:
		return FloatPosition3D{f(0), f(1), f(2)}, nil
	case TypeFloatRect2D:
		return FloatRect2D{f(0), f(1), f(2), f(3)}, nil
	case TypeFloatRect3D:
		return FloatRect3D{f(0), f(1), f(2), f(3), f(4), f(5)}, nil
	case TypeFloatSize2D:
		return FloatSize2D{f(0), f(1)}, nil
	case TypeFloatSize3D:
		return FloatSize3D{f(0), f(1), f(2)}, nil
	case TypeInteger:
		return Integer(n(0)), nil
	case TypeIntegerPosition2D:
		return IntegerPosition2D{n(0), n(1)}, nil
	case TypeIntegerPosition3D:
		return IntegerPosition3D{n(0), n(1), n(2)}, nil
	case TypeIntegerRect2D:
		return IntegerRect2D{n(0), n(1), n(2), n(3)}, nil
	case TypeIntegerRect3D:
		return IntegerRect3D{n(0), n(1), n(2), n(3), n(4), n(5)}, nil
	case TypeIntegerSize2D:
		return IntegerSize2D{n(0), n(1)}, nil
	default:
		return IntegerSize3D{n(0), n(1), n(2)}, nil
	}
}

// Floats returns the numeric components of v, or nil for bool and string.
func Floats(v Value) []float64 {
	switch x := v.(type) {
	case Float:
		return []float64{float64(x)}
	case FloatPosition2D:
		return f32s(x[:])
	case FloatPosition3D:
		return f32s(x[:])
	case FloatRect2D:
		return f32s(x[:])
	case FloatRect3D:
		return f32s(x[:])
	case FloatSize2D:
		return f32s(x[:])
	case FloatSize3D:
		return f32s(x[:])
	case Integer:
		return []float64{float64(x)}
	case IntegerPosition2D:
		return i64s(x[:])
	case IntegerPosition3D:
		return i64s(x[:])
	case IntegerRect2D:
		return i64s(x[:])
	case IntegerRect3D:
		return i64s(x[:])
	case IntegerSize2D:
		return i64s(x[:])
	case IntegerSize3D:
		return i64s(x[:])
	}
	return nil
}

func f32s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func i64s(in []int64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// MaxStringBytes is the longest String value a property may hold; longer
// strings cannot be replicated.
const MaxStringBytes = 1<<16 - 1

// Convert maps a loosely typed value (as produced by YAML or JSON decoders
// and by the scripting adapter) into the closed variant set.
//
// Accepted inputs: bool for Bool, string for String, any Go number for
// scalar kinds, and []float64 / []any of numbers for vector kinds.
func Convert(t PropertyType, raw any) (Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPropertyType, uint8(t))
	}
	switch t {
	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants bool, got %T", ErrValueShape, t, raw)
		}
		return Bool(b), nil
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants string, got %T", ErrValueShape, t, raw)
		}
		if len(s) > MaxStringBytes {
			return nil, fmt.Errorf("%w: string of %d bytes", ErrValueShape, len(s))
		}
		return String(s), nil
	}

	if n, ok := toFloat(raw); ok {
		return FromFloats(t, []float64{n})
	}
	var comps []float64
	switch list := raw.(type) {
	case []float64:
		comps = list
	case []any:
		comps = make([]float64, len(list))
		for i, e := range list {
			n, ok := toFloat(e)
			if !ok {
				return nil, fmt.Errorf("%w: %s component %d is %T", ErrValueShape, t, i, e)
			}
			comps[i] = n
		}
	default:
		return nil, fmt.Errorf("%w: %s cannot be built from %T", ErrValueShape, t, raw)
	}
	return FromFloats(t, comps)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Ints returns the components of an integer value without going through
// float64, or nil for non-integer kinds.
func Ints(v Value) []int64 {
	switch x := v.(type) {
	case Integer:
		return []int64{int64(x)}
	case IntegerPosition2D:
		return x[:]
	case IntegerPosition3D:
		return x[:]
	case IntegerRect2D:
		return x[:]
	case IntegerRect3D:
		return x[:]
	case IntegerSize2D:
		return x[:]
	case IntegerSize3D:
		return x[:]
	}
	return nil
}
