package entity

import "fmt"

// Registry resolves class names to schemas. Each world owns its own.
type Registry struct {
	classes map[string]*Class
	order   []*Class
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// Register adds c. Class names are unique.
func (r *Registry) Register(c *Class) error {
	if _, ok := r.classes[c.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateClass, c.Name())
	}
	r.classes[c.Name()] = c
	r.order = append(r.order, c)
	return nil
}

// Find returns the class registered under name. A miss is always an error.
func (r *Registry) Find(name string) (*Class, error) {
	c, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, name)
	}
	return c, nil
}

func (r *Registry) Len() int { return len(r.order) }

// Each visits classes in registration order.
func (r *Registry) Each(fn func(*Class)) {
	for _, c := range r.order {
		fn(c)
	}
}
