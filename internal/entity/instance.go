package entity

import "fmt"

// ClassInstance is the per-entity property storage. It always holds exactly
// one value per property of its class.
type ClassInstance struct {
	class  *Class
	values []Value
}

func (ci *ClassInstance) Class() *Class { return ci.class }

// Len returns the number of property slots.
func (ci *ClassInstance) Len() int { return len(ci.values) }

// Value returns the raw value at index i. It panics when i is out of range.
func (ci *ClassInstance) Value(i int) Value { return ci.values[i] }

// Values returns a copy of every slot in declared order.
func (ci *ClassInstance) Values() []Value {
	out := make([]Value, len(ci.values))
	copy(out, ci.values)
	return out
}

// SetValue stores v at index i after checking it against the declared type.
func (ci *ClassInstance) SetValue(i int, v Value) error {
	p := ci.class.props[i]
	if v == nil || v.Type() != p.Type {
		return ci.mismatch(p, v)
	}
	if str, ok := v.(String); ok && len(str) > MaxStringBytes {
		return fmt.Errorf("%w: %s.%s holds %d bytes", ErrValueShape, ci.class.name, p.Name, len(str))
	}
	ci.values[i] = v
	return nil
}

// Lookup resolves name through the class index.
func (ci *ClassInstance) Lookup(name string) (int, error) {
	i := ci.class.FindProperty(name)
	if i == InvalidIndex {
		return InvalidIndex, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, ci.class.name, name)
	}
	return i, nil
}

func (ci *ClassInstance) mismatch(p Property, v Value) error {
	got := "nil"
	if v != nil {
		got = v.Type().String()
	}
	return fmt.Errorf("%w: %s.%s is %s, got %s", ErrTypeMismatch, ci.class.name, p.Name, p.Type, got)
}

// GetAt reads slot i as T. The index is not range checked; the type is.
func GetAt[T Value](ci *ClassInstance, i int) (T, error) {
	v, ok := ci.values[i].(T)
	if !ok {
		var zero T
		p := ci.class.props[i]
		return zero, fmt.Errorf("%w: %s.%s is %s, requested %T", ErrTypeMismatch, ci.class.name, p.Name, p.Type, zero)
	}
	return v, nil
}

// Get reads property name as T.
func Get[T Value](ci *ClassInstance, name string) (T, error) {
	i, err := ci.Lookup(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return GetAt[T](ci, i)
}

// UpdateAt writes v into slot i. The index is not range checked; the type is.
func UpdateAt[T Value](ci *ClassInstance, i int, v T) error {
	return ci.SetValue(i, v)
}

// Update writes v into property name.
func Update[T Value](ci *ClassInstance, name string, v T) error {
	i, err := ci.Lookup(name)
	if err != nil {
		return err
	}
	return ci.SetValue(i, v)
}

// MustGet is Get for code paths where a failure means the schema and the
// caller disagree.
func MustGet[T Value](ci *ClassInstance, name string) T {
	v, err := Get[T](ci, name)
	if err != nil {
		panic(err)
	}
	return v
}
