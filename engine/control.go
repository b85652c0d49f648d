// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"maps"
	"slices"

	"github.com/pkg/errors"
)

// Controller is the interface that a UI uses to edit a
// parameter structure without knowing its type.
type Controller interface {
	// Name identifies the structure.
	Name() string

	// Get returns a copy of the current value.
	Get() any

	// GetDefault returns a copy of the default value.
	GetDefault() any

	// SetAny replaces the current value.
	// It fails if v does not have the structure's type.
	SetAny(v any) error

	// Reset replaces the current value with the
	// default value.
	Reset()
}

// Control holds a parameter structure and its default.
// It implements Controller.
type Control[T any] struct {
	name  string
	value T
	dfl   T
}

// NewControl creates a Control whose current and default
// values are dfl.
func NewControl[T any](name string, dfl T) *Control[T] {
	return &Control[T]{name: name, value: dfl, dfl: dfl}
}

// Value returns the current value.
func (c *Control[T]) Value() T { return c.value }

// Ptr returns a pointer to the current value.
func (c *Control[T]) Ptr() *T { return &c.value }

// Default returns the default value.
func (c *Control[T]) Default() T { return c.dfl }

// Set replaces the current value.
func (c *Control[T]) Set(v T) { c.value = v }

func (c *Control[T]) Name() string { return c.name }

func (c *Control[T]) Get() any { return c.value }

func (c *Control[T]) GetDefault() any { return c.dfl }

func (c *Control[T]) SetAny(v any) error {
	x, ok := v.(T)
	if !ok {
		return errors.Errorf("engine: control %q: have %T, want %T", c.name, v, c.value)
	}
	c.value = x
	return nil
}

func (c *Control[T]) Reset() { c.value = c.dfl }

// Controls is a set of controllers keyed by name.
type Controls map[string]Controller

func (cs Controls) add(c ...Controller) {
	for _, x := range c {
		cs[x.Name()] = x
	}
}

// Names returns the sorted names of the controllers.
func (cs Controls) Names() []string { return slices.Sorted(maps.Keys(cs)) }
