package entity

import (
	"fmt"

	"github.com/tsom/server/internal/core/ecs"
)

// InvalidIndex is returned by FindProperty for names the class lacks.
const InvalidIndex = -1

// Property describes one named, typed slot of an entity class.
type Property struct {
	Name string
	Type PropertyType
	// Default seeds the slot when an entity is initialized. Nil means the
	// zero value of Type.
	Default Value
	// Networked properties are replicated in entity creation packets.
	Networked bool
}

// InitFunc runs once per entity, after every property holds its default.
type InitFunc func(id ecs.EntityID, inst *ClassInstance) error

// Class is an immutable entity schema. Property indices are positional and
// fixed once the class is built.
type Class struct {
	name   string
	props  []Property
	index  map[string]int
	onInit InitFunc
}

// NewClass validates and builds a class. Two properties sharing a name is a
// construction error.
func NewClass(name string, props []Property, onInit InitFunc) (*Class, error) {
	if name == "" {
		return nil, ErrEmptyClassName
	}
	c := &Class{
		name:   name,
		props:  make([]Property, len(props)),
		index:  make(map[string]int, len(props)),
		onInit: onInit,
	}
	for i, p := range props {
		if p.Name == "" {
			return nil, fmt.Errorf("class %s property #%d: %w", name, i, ErrEmptyPropertyName)
		}
		if _, dup := c.index[p.Name]; dup {
			return nil, fmt.Errorf("class %s: %w: %q", name, ErrDuplicateProperty, p.Name)
		}
		if !p.Type.Valid() {
			return nil, fmt.Errorf("class %s property %s: %w", name, p.Name, ErrUnknownPropertyType)
		}
		if p.Default == nil {
			p.Default = ZeroValue(p.Type)
		} else if p.Default.Type() != p.Type {
			return nil, fmt.Errorf("class %s property %s: default is %s, declared %s: %w",
				name, p.Name, p.Default.Type(), p.Type, ErrTypeMismatch)
		}
		c.props[i] = p
		c.index[p.Name] = i
	}
	return c, nil
}

// MustNewClass is NewClass for statically known schemas.
func MustNewClass(name string, props []Property, onInit InitFunc) *Class {
	c, err := NewClass(name, props, onInit)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Class) Name() string { return c.name }

func (c *Class) PropertyCount() int { return len(c.props) }

// Property returns the descriptor at index i. It panics when i is out of
// range.
func (c *Class) Property(i int) Property { return c.props[i] }

// Properties returns a copy of the property descriptors in declared order.
func (c *Class) Properties() []Property {
	out := make([]Property, len(c.props))
	copy(out, c.props)
	return out
}

// FindProperty returns the declared position of name, or InvalidIndex.
func (c *Class) FindProperty(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return InvalidIndex
}

// NewInstance returns property storage seeded with the declared defaults.
func (c *Class) NewInstance() *ClassInstance {
	values := make([]Value, len(c.props))
	for i, p := range c.props {
		values[i] = p.Default
	}
	return &ClassInstance{class: c, values: values}
}

// InitializeEntity attaches a fresh ClassInstance to id, then runs the
// class's init callback. The callback sees every default already in place.
func (c *Class) InitializeEntity(store *ecs.Store[ClassInstance], id ecs.EntityID) (*ClassInstance, error) {
	inst := c.NewInstance()
	store.Set(id, inst)
	if c.onInit != nil {
		if err := c.onInit(id, inst); err != nil {
			return inst, fmt.Errorf("init %s entity %s: %w", c.name, id, err)
		}
	}
	return inst, nil
}
