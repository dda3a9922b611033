package entity

import "errors"

// Schema errors. They signal a mismatch between a class definition and the
// code using it.
var (
	ErrEmptyClassName      = errors.New("entity class name is empty")
	ErrEmptyPropertyName   = errors.New("property name is empty")
	ErrDuplicateProperty   = errors.New("duplicate property name")
	ErrDuplicateClass      = errors.New("duplicate entity class")
	ErrUnknownClass        = errors.New("unknown entity class")
	ErrUnknownProperty     = errors.New("unknown property")
	ErrUnknownPropertyType = errors.New("unknown property type")
	ErrTypeMismatch        = errors.New("property type mismatch")
	ErrValueShape          = errors.New("value does not fit property type")
)
