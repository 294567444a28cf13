package complecs

import (
	"fmt"
	"reflect"
)

// ProcessFunc is the body of a process. It is called once per subscribed
// entity with a Row giving access to that entity's declared components.
type ProcessFunc func(row *Row)

// ProcessKind declares a batch operation over every entity subscribed to it.
//
// Mutable parameters come first, immutable ones second; a component kind may
// appear only once across both lists. External arguments are supplied to Run
// and passed unchanged to every row.
type ProcessKind struct {
	Name      string
	Mutable   []string
	Immutable []string
	External  []reflect.Type
	Body      ProcessFunc
}

// Row is one entity's view during a process run. It only reaches the
// components the process declared.
type Row struct {
	process string
	index   int
	tuple   ArgTuple
	mut     []column
	ref     []column
	ext     []any
}

// Process returns the name of the running process.
func (r *Row) Process() string {
	return r.process
}

// Index returns the position of this row in the current run, starting at 0.
func (r *Row) Index() int {
	return r.index
}

// Handle returns the component handle at position i of the argument tuple,
// mutable parameters first.
func (r *Row) Handle(i int) Handle {
	return r.tuple[i]
}

// Mut returns the i-th mutable parameter of the row.
func Mut[T any](r *Row, i int) *T {
	if i < 0 || i >= len(r.mut) {
		panic(fmt.Sprintf("complecs: process %q has no mutable parameter %d", r.process, i))
	}
	s, ok := r.mut[i].(*Storage[T])
	if !ok {
		panic(fmt.Sprintf("complecs: process %q mutable parameter %d holds %v, not %v",
			r.process, i, r.mut[i].valueType(), reflect.TypeFor[T]()))
	}
	return s.at(r.tuple[i].Index)
}

// Ref returns a copy of the i-th immutable parameter of the row. The copy is
// shallow: for slice, map and pointer components it still shares the
// underlying data with the storage, and writes through it are not prevented.
func Ref[T any](r *Row, i int) T {
	if i < 0 || i >= len(r.ref) {
		panic(fmt.Sprintf("complecs: process %q has no immutable parameter %d", r.process, i))
	}
	s, ok := r.ref[i].(*Storage[T])
	if !ok {
		panic(fmt.Sprintf("complecs: process %q immutable parameter %d holds %v, not %v",
			r.process, i, r.ref[i].valueType(), reflect.TypeFor[T]()))
	}
	return *s.at(r.tuple[len(r.mut)+i].Index)
}

// Ext returns the i-th external argument of the run.
func Ext[T any](r *Row, i int) T {
	if i < 0 || i >= len(r.ext) {
		panic(fmt.Sprintf("complecs: process %q has no external argument %d", r.process, i))
	}
	if r.ext[i] == nil {
		var zero T
		return zero
	}
	v, ok := r.ext[i].(T)
	if !ok {
		panic(fmt.Sprintf("complecs: process %q external argument %d is %T, not %v",
			r.process, i, r.ext[i], reflect.TypeFor[T]()))
	}
	return v
}

// TypeOf is a shorthand for reflect.TypeFor, handy in ProcessKind.External.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// processPlan is a validated process kind with its parameters resolved to
// component IDs.
type processPlan struct {
	id   int
	name string
	mut  []ComponentID
	ref  []ComponentID
	ext  []reflect.Type
	body ProcessFunc
	mask bitmask256 // every component the process touches
}

func (p *processPlan) arity() int {
	return len(p.mut) + len(p.ref)
}

// checkArgs verifies the external arguments of a run against the declared
// types.
func (p *processPlan) checkArgs(args []any) error {
	if len(args) != len(p.ext) {
		return fmt.Errorf("process %q takes %d external arguments, got %d", p.name, len(p.ext), len(args))
	}
	for i, t := range p.ext {
		if !argMatches(args[i], t) {
			return fmt.Errorf("process %q external argument %d must be %v, got %T", p.name, i, t, args[i])
		}
	}
	return nil
}

func argMatches(v any, t reflect.Type) bool {
	if v == nil {
		return nilable(t)
	}
	vt := reflect.TypeOf(v)
	if t.Kind() == reflect.Interface {
		return vt.Implements(t)
	}
	return vt == t
}
