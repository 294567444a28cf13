package complecs

import (
	"fmt"
	"reflect"
	"slices"
)

// slot is one cell of a Storage. prev and next link the occupied slots in
// insertion order; both are stored as index+1 so that 0 means "none" and a
// zero Storage is ready to use.
type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
	prev, next uint32
}

// StorageStats is a snapshot of a storage's bookkeeping.
type StorageStats struct {
	Live  int // occupied slots
	Slots int // slots below the high-water mark
	Free  int // entries in the free list
}

// Storage is a generational slot arena holding values of one type. It is the
// backing store of every component kind, every process membership table and
// every entity registry.
//
// Freed slots are recycled with an incremented generation, so handles to
// removed values fail with ErrInvalidHandle instead of aliasing the new
// occupant. Occupied slots are iterated in insertion order.
//
// A Storage is not safe for concurrent use. While a process run borrows it,
// structural changes panic.
type Storage[T any] struct {
	kind       string
	slots      []slot[T]
	free       []uint32 // LIFO stack of freed indices, all below top
	top        uint32   // high-water mark; slot top-1 is never free
	head, tail uint32   // index+1 of the first and last occupied slot
	live       int
	borrow     int32 // >0 shared borrows, -1 exclusive borrow
}

// NewStorage creates an empty storage with room for capacity values before
// it has to grow.
func NewStorage[T any](capacity int) *Storage[T] {
	return newStorage[T]("", capacity)
}

func newStorage[T any](kind string, capacity int) *Storage[T] {
	return &Storage[T]{
		kind:  kind,
		slots: make([]slot[T], 0, max(capacity, 0)),
	}
}

// Insert stores v and returns a fresh handle to it. Previously issued valid
// handles stay valid.
func (s *Storage[T]) Insert(v T) Handle {
	s.mustMutate("insert into")
	var idx uint32
	switch {
	case len(s.free) > 0:
		idx = s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
	case int(s.top) < len(s.slots):
		idx = s.top
		s.top++
	default:
		s.slots = append(s.slots, slot[T]{generation: 1})
		idx = s.top
		s.top++
	}
	sl := &s.slots[idx]
	sl.value = v
	sl.occupied = true
	s.link(idx)
	s.live++
	return Handle{Index: idx, Generation: sl.generation}
}

// Get returns a copy of the value behind h.
func (s *Storage[T]) Get(h Handle) (T, error) {
	if s.borrow < 0 {
		panic(fmt.Sprintf("complecs: cannot read %s while it is borrowed mutably", s.label()))
	}
	sl, err := s.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return sl.value, nil
}

// GetMut returns a pointer to the value behind h. The pointer is valid until
// the next Insert or Remove on this storage.
func (s *Storage[T]) GetMut(h Handle) (*T, error) {
	s.mustMutate("write to")
	sl, err := s.lookup(h)
	if err != nil {
		return nil, err
	}
	return &sl.value, nil
}

// Remove frees the slot behind h and returns the value it held. The slot's
// generation is bumped, so h and every copy of it become stale.
func (s *Storage[T]) Remove(h Handle) (T, error) {
	s.mustMutate("remove from")
	var zero T
	sl, err := s.lookup(h)
	if err != nil {
		return zero, err
	}
	v := sl.value
	sl.value = zero
	sl.occupied = false
	sl.generation++
	if sl.generation == 0 {
		sl.generation = 1
	}
	s.unlink(h.Index)
	s.live--
	s.release(h.Index)
	return v, nil
}

// Contains reports whether h refers to a live value.
func (s *Storage[T]) Contains(h Handle) bool {
	_, err := s.lookup(h)
	return err == nil
}

// Len returns the number of live values.
func (s *Storage[T]) Len() int {
	return s.live
}

// Stats returns the storage's live count, slot count and free-list length.
func (s *Storage[T]) Stats() StorageStats {
	return StorageStats{Live: s.live, Slots: int(s.top), Free: len(s.free)}
}

// Each calls fn with every live value in insertion order. Inserting into or
// removing from the storage inside fn panics.
func (s *Storage[T]) Each(fn func(Handle, T)) {
	s.borrowShared()
	defer s.releaseShared()
	for i := s.head; i != 0; {
		sl := &s.slots[i-1]
		fn(Handle{Index: i - 1, Generation: sl.generation}, sl.value)
		i = sl.next
	}
}

// EachMut is Each with a pointer to every value. The storage is borrowed
// exclusively for the duration of the call.
func (s *Storage[T]) EachMut(fn func(Handle, *T)) {
	s.borrowExclusive()
	defer s.releaseExclusive()
	for i := s.head; i != 0; {
		sl := &s.slots[i-1]
		fn(Handle{Index: i - 1, Generation: sl.generation}, &sl.value)
		i = sl.next
	}
}

// Handles returns the handles of all live values in insertion order.
func (s *Storage[T]) Handles() []Handle {
	hs := make([]Handle, 0, s.live)
	for i := s.head; i != 0; i = s.slots[i-1].next {
		hs = append(hs, Handle{Index: i - 1, Generation: s.slots[i-1].generation})
	}
	return hs
}

func (s *Storage[T]) lookup(h Handle) (*slot[T], error) {
	if h.Index >= s.top {
		return nil, &HandleError{Kind: s.kind, Handle: h}
	}
	sl := &s.slots[h.Index]
	if !sl.occupied || sl.generation != h.Generation {
		return nil, &HandleError{Kind: s.kind, Handle: h}
	}
	return sl, nil
}

// at returns the value of a slot already checked with Contains.
func (s *Storage[T]) at(idx uint32) *T {
	return &s.slots[idx].value
}

func (s *Storage[T]) link(idx uint32) {
	sl := &s.slots[idx]
	sl.prev = s.tail
	sl.next = 0
	if s.tail != 0 {
		s.slots[s.tail-1].next = idx + 1
	} else {
		s.head = idx + 1
	}
	s.tail = idx + 1
}

func (s *Storage[T]) unlink(idx uint32) {
	sl := &s.slots[idx]
	if sl.prev != 0 {
		s.slots[sl.prev-1].next = sl.next
	} else {
		s.head = sl.next
	}
	if sl.next != 0 {
		s.slots[sl.next-1].prev = sl.prev
	} else {
		s.tail = sl.prev
	}
	sl.prev, sl.next = 0, 0
}

// release hands a freed slot back. The topmost slot lowers the high-water
// mark instead of entering the free list, and any free slots left exposed at
// the top are pulled out of the free list too. This keeps Insert followed by
// Remove from changing Stats.
func (s *Storage[T]) release(idx uint32) {
	if idx != s.top-1 {
		s.free = append(s.free, idx)
		return
	}
	s.top--
	for s.top > 0 && !s.slots[s.top-1].occupied {
		if i := slices.Index(s.free, s.top-1); i >= 0 {
			s.free = slices.Delete(s.free, i, i+1)
		}
		s.top--
	}
}

func (s *Storage[T]) label() string {
	if s.kind == "" {
		return fmt.Sprintf("storage of %v", reflect.TypeFor[T]())
	}
	return s.kind
}

func (s *Storage[T]) busy() bool {
	return s.borrow != 0
}

func (s *Storage[T]) mustMutate(op string) {
	if s.borrow != 0 {
		panic(fmt.Sprintf("complecs: cannot %s %s while it is borrowed", op, s.label()))
	}
}

func (s *Storage[T]) borrowShared() {
	if s.borrow < 0 {
		panic(fmt.Sprintf("complecs: %s is already borrowed mutably", s.label()))
	}
	s.borrow++
}

func (s *Storage[T]) releaseShared() {
	s.borrow--
}

func (s *Storage[T]) borrowExclusive() {
	if s.borrow != 0 {
		panic(fmt.Sprintf("complecs: %s is already borrowed", s.label()))
	}
	s.borrow = -1
}

func (s *Storage[T]) releaseExclusive() {
	s.borrow = 0
}

// column is the type-erased view of a component storage the World works
// through when it does not know T.
type column interface {
	kindName() string
	valueType() reflect.Type
	insertAny(v any) (Handle, error)
	removeAny(h Handle) error
	getAny(h Handle) (any, error)
	setAny(h Handle, v any) error
	checkType(v any) error
	Contains(h Handle) bool
	busy() bool
	Len() int
	Stats() StorageStats
	borrowShared()
	releaseShared()
	borrowExclusive()
	releaseExclusive()
}

func (s *Storage[T]) kindName() string {
	return s.kind
}

func (s *Storage[T]) valueType() reflect.Type {
	return reflect.TypeFor[T]()
}

// assign converts v to T. An untyped nil stands for the zero value of a
// nilable T.
func assign[T any](v any) (T, bool) {
	if v == nil {
		var zero T
		return zero, nilable(reflect.TypeFor[T]())
	}
	val, ok := v.(T)
	return val, ok
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

func (s *Storage[T]) checkType(v any) error {
	if _, ok := assign[T](v); !ok {
		return &TypeError{Kind: s.kind, Want: reflect.TypeFor[T](), Got: reflect.TypeOf(v)}
	}
	return nil
}

func (s *Storage[T]) insertAny(v any) (Handle, error) {
	val, ok := assign[T](v)
	if !ok {
		return Handle{}, &TypeError{Kind: s.kind, Want: reflect.TypeFor[T](), Got: reflect.TypeOf(v)}
	}
	return s.Insert(val), nil
}

func (s *Storage[T]) removeAny(h Handle) error {
	_, err := s.Remove(h)
	return err
}

func (s *Storage[T]) getAny(h Handle) (any, error) {
	v, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Storage[T]) setAny(h Handle, v any) error {
	val, ok := assign[T](v)
	if !ok {
		return &TypeError{Kind: s.kind, Want: reflect.TypeFor[T](), Got: reflect.TypeOf(v)}
	}
	p, err := s.GetMut(h)
	if err != nil {
		return err
	}
	*p = val
	return nil
}
