package complecs

import (
	"fmt"
	"slices"
)

// ArgTuple is one entity's subscription row: a handle per process parameter,
// mutable parameters first. The order matters because runs borrow storages in
// that same order.
type ArgTuple []Handle

// MembershipTable holds the argument tuples of every entity subscribed to one
// process. Rows are visited in subscription order.
type MembershipTable struct {
	process string
	arity   int
	rows    *Storage[ArgTuple]
}

// NewMembershipTable creates an empty table for a process taking arity
// component parameters.
func NewMembershipTable(process string, arity int) *MembershipTable {
	return newMembershipTable(process, arity, 0)
}

func newMembershipTable(process string, arity, capacity int) *MembershipTable {
	return &MembershipTable{
		process: process,
		arity:   arity,
		rows:    newStorage[ArgTuple]("membership table of "+process, capacity),
	}
}

// Process returns the name of the process this table belongs to.
func (t *MembershipTable) Process() string {
	return t.process
}

// Arity returns the number of handles in every row.
func (t *MembershipTable) Arity() int {
	return t.arity
}

// Subscribe appends a row and returns the handle needed to remove it. The
// tuple is copied.
func (t *MembershipTable) Subscribe(tuple ArgTuple) Handle {
	if len(tuple) != t.arity {
		panic(fmt.Sprintf("complecs: process %q takes %d parameters, tuple has %d", t.process, t.arity, len(tuple)))
	}
	return t.rows.Insert(slices.Clone(tuple))
}

// Unsubscribe removes the row behind h. It fails with ErrInvalidHandle if the
// row is already gone.
func (t *MembershipTable) Unsubscribe(h Handle) error {
	_, err := t.rows.Remove(h)
	return err
}

// Row returns a copy of the row behind h.
func (t *MembershipTable) Row(h Handle) (ArgTuple, error) {
	tuple, err := t.rows.Get(h)
	if err != nil {
		return nil, err
	}
	return slices.Clone(tuple), nil
}

// Contains reports whether h refers to a live row.
func (t *MembershipTable) Contains(h Handle) bool {
	return t.rows.Contains(h)
}

// Len returns the number of subscribed rows.
func (t *MembershipTable) Len() int {
	return t.rows.Len()
}

// Stats returns the bookkeeping of the underlying storage.
func (t *MembershipTable) Stats() StorageStats {
	return t.rows.Stats()
}

// Each calls fn for every row in subscription order.
func (t *MembershipTable) Each(fn func(Handle, ArgTuple)) {
	t.rows.Each(func(h Handle, tuple ArgTuple) {
		fn(h, slices.Clone(tuple))
	})
}
