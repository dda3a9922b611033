package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tsom/server/internal/entity"
)

// PropertyEntry is one property of an entity class as written in YAML.
// Default is decoded loosely and converted to the declared type.
type PropertyEntry struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Default   any    `yaml:"default"`
	Networked bool   `yaml:"networked"`
}

// ClassEntry defines an entity class. Init names the Lua function run when
// an entity of the class is created; empty means none.
type ClassEntry struct {
	Name       string          `yaml:"name"`
	Init       string          `yaml:"init"`
	Properties []PropertyEntry `yaml:"properties"`
}

type classFile struct {
	Classes []ClassEntry `yaml:"classes"`
}

// InitResolver returns the init callback registered under name.
type InitResolver func(name string) (entity.InitFunc, error)

// LoadEntityClasses reads entity_classes.yaml and registers every class in
// reg. resolve may be nil when no class names an init function.
func LoadEntityClasses(path string, reg *entity.Registry, resolve InitResolver) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read entity classes: %w", err)
	}
	return ParseEntityClasses(raw, reg, resolve)
}

// ParseEntityClasses is LoadEntityClasses for an in-memory document.
func ParseEntityClasses(raw []byte, reg *entity.Registry, resolve InitResolver) (int, error) {
	var f classFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("parse entity classes: %w", err)
	}
	for _, ce := range f.Classes {
		c, err := buildClass(ce, resolve)
		if err != nil {
			return 0, err
		}
		if err := reg.Register(c); err != nil {
			return 0, err
		}
	}
	return len(f.Classes), nil
}

func buildClass(ce ClassEntry, resolve InitResolver) (*entity.Class, error) {
	props := make([]entity.Property, 0, len(ce.Properties))
	for _, pe := range ce.Properties {
		t, err := entity.ParsePropertyType(pe.Type)
		if err != nil {
			return nil, fmt.Errorf("class %s property %s: %w", ce.Name, pe.Name, err)
		}
		p := entity.Property{Name: pe.Name, Type: t, Networked: pe.Networked}
		if pe.Default != nil {
			if p.Default, err = entity.Convert(t, pe.Default); err != nil {
				return nil, fmt.Errorf("class %s property %s default: %w", ce.Name, pe.Name, err)
			}
		}
		props = append(props, p)
	}

	var init entity.InitFunc
	if ce.Init != "" {
		if resolve == nil {
			return nil, fmt.Errorf("class %s: init %q but no script engine", ce.Name, ce.Init)
		}
		fn, err := resolve(ce.Init)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", ce.Name, err)
		}
		init = fn
	}
	return entity.NewClass(ce.Name, props, init)
}
