package complecs

import (
	"fmt"
	"reflect"
)

// ComponentID is the position of a component kind in a compiled schema. It
// doubles as the component's bit in a bitmask256.
type ComponentID uint8

// MaxComponentKinds is the number of component kinds one schema can hold.
const MaxComponentKinds = 256

// ComponentKind declares one typed column of data. Every component kind gets
// exactly one Storage in a World. Build it with NewComponentKind; a literal
// ComponentKind has no storage constructor and fails validation.
type ComponentKind struct {
	Name string
	Type reflect.Type

	newColumn func(kind string, capacity int) column
}

// ComponentKey is the typed name of a component kind, returned by
// RegisterComponent so callers can reach the storage without repeating T.
type ComponentKey[T any] struct {
	name string
}

// Name returns the component kind's name.
func (k ComponentKey[T]) Name() string {
	return k.name
}

// Storage returns the World's storage for this component kind.
func (k ComponentKey[T]) Storage(w *World) (*Storage[T], error) {
	return Components[T](w, k.name)
}

// RegisterComponent declares a component kind named name holding values of
// type T. Name clashes are reported by Schema.Validate.
func RegisterComponent[T any](s *Schema, name string) ComponentKey[T] {
	s.AddComponent(NewComponentKind[T](name))
	return ComponentKey[T]{name: name}
}

// NewComponentKind returns the kind of a component named name holding values
// of type T.
func NewComponentKind[T any](name string) ComponentKind {
	return ComponentKind{
		Name: name,
		Type: reflect.TypeFor[T](),
		newColumn: func(kind string, capacity int) column {
			return newStorage[T](kind, capacity)
		},
	}
}

// Components returns the storage of the named component kind. It fails with
// ErrUnknownKind if the World has no such kind and with ErrTypeMismatch if the
// kind does not hold T.
func Components[T any](w *World, name string) (*Storage[T], error) {
	id, ok := w.plan.componentIDs[name]
	if !ok {
		return nil, unknownKind("component", name)
	}
	s, ok := w.columns[id].(*Storage[T])
	if !ok {
		return nil, &TypeError{Kind: name, Want: w.columns[id].valueType(), Got: reflect.TypeFor[T]()}
	}
	return s, nil
}

// Get returns a copy of the value rec holds for the named component.
func Get[T any](w *World, rec *EntityRecord, component string) (T, error) {
	var zero T
	h, err := w.recordHandle(rec, component)
	if err != nil {
		return zero, err
	}
	s, err := Components[T](w, component)
	if err != nil {
		return zero, err
	}
	return s.Get(h)
}

// Set overwrites the value rec holds for the named component. It panics when
// called from inside a process that borrows the component's storage.
func Set[T any](w *World, rec *EntityRecord, component string, v T) error {
	h, err := w.recordHandle(rec, component)
	if err != nil {
		return err
	}
	s, err := Components[T](w, component)
	if err != nil {
		return err
	}
	p, err := s.GetMut(h)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (w *World) recordHandle(rec *EntityRecord, component string) (Handle, error) {
	if rec == nil || rec.world != w || rec.state != Registered {
		return Handle{}, &HandleError{Kind: "entity record", Handle: rec.Handle()}
	}
	h, ok := rec.Component(component)
	if !ok {
		return Handle{}, fmt.Errorf("%w: entity %q has no component %q", ErrUnknownKind, rec.Kind(), component)
	}
	return h, nil
}
