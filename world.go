// Package complecs is a small Entity-Component-System runtime built around
// subscriptions rather than queries.
//
// Components are stored in generational slot arenas and referenced by
// handles. When an entity is added, it is subscribed once to every process
// its kind takes part in; a process run then walks its membership table in
// subscription order instead of searching for matching entities. Removing the
// entity releases every handle it was given, in both the membership tables
// and the component storages.
//
// Worlds are built from a Schema, which is validated as a whole before any
// storage exists. Execution is single threaded and synchronous.
package complecs

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures a World.
type Option func(*World)

// WithLogger sets the logger a World reports lifecycle events and failures
// to. The default logger discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(w *World) {
		if log != nil {
			w.log = log
		}
	}
}

// WithCapacity preallocates room for n values in every storage.
func WithCapacity(n int) Option {
	return func(w *World) {
		w.capacity = max(n, 0)
	}
}

// WithEventBus makes the World publish EntityAdded, EntityRemoved and
// ProcessRan events on bus.
func WithEventBus(bus *EventBus) Option {
	return func(w *World) {
		w.events = bus
	}
}

// World owns every component storage, membership table and entity registry
// of one simulation.
type World struct {
	id       uuid.UUID
	log      *zap.Logger
	events   *EventBus
	capacity int
	plan     *plan
	columns  []column           // indexed by ComponentID
	tables   []*MembershipTable // indexed by process ID
	records  []*EntityRegistry  // indexed by entity kind ID
	failure  error
}

// NewWorld validates schema and builds a World from it. On a schema violation
// it returns a *SchemaError and no World.
func NewWorld(schema *Schema, opts ...Option) (*World, error) {
	p, err := schema.compile()
	if err != nil {
		return nil, err
	}
	w := &World{
		id:   uuid.New(),
		log:  zap.NewNop(),
		plan: p,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(zap.Stringer("world", w.id))

	w.columns = make([]column, len(p.components))
	for i, c := range p.components {
		w.columns[i] = c.newColumn(c.Name, w.capacity)
	}
	w.tables = make([]*MembershipTable, len(p.processes))
	for i, pp := range p.processes {
		w.tables[i] = newMembershipTable(pp.name, pp.arity(), w.capacity)
	}
	w.records = make([]*EntityRegistry, len(p.entities))
	for i, ep := range p.entities {
		w.records[i] = newEntityRegistry(ep.name, w.capacity)
	}

	w.log.Info("world built",
		zap.Int("components", len(w.columns)),
		zap.Int("processes", len(w.tables)),
		zap.Int("entities", len(w.records)),
		zap.Strings("tick", w.TickOrder()))
	return w, nil
}

// ID returns the unique identifier the World tags its log entries with.
func (w *World) ID() uuid.UUID {
	return w.id
}

// Err returns the consistency failure that poisoned the World, or nil.
func (w *World) Err() error {
	return w.failure
}

// Add creates an entity of the given kind. values are the initial component
// values, in the order the entity kind lists its components.
//
// Every value is type-checked before anything is stored. The entity is then
// inserted into each component storage and, only once all inserts are done,
// subscribed to each of its processes.
func (w *World) Add(kind string, values ...any) (*EntityRecord, error) {
	if w.failure != nil {
		return nil, w.failure
	}
	eid, ok := w.plan.entityIDs[kind]
	if !ok {
		return nil, unknownKind("entity", kind)
	}
	ep := w.plan.entities[eid]
	if len(values) < len(ep.components) {
		return nil, fmt.Errorf("%w: entity %q takes %d values, got %d", ErrMissingValue, kind, len(ep.components), len(values))
	}
	if len(values) > len(ep.components) {
		return nil, fmt.Errorf("complecs: entity %q takes %d values, got %d", kind, len(ep.components), len(values))
	}
	for i, cid := range ep.components {
		if err := w.columns[cid].checkType(values[i]); err != nil {
			return nil, err
		}
	}

	w.mustBeIdle(ep, "add")

	rec := &EntityRecord{
		world:       w,
		plan:        ep,
		components:  make([]Handle, len(ep.components)),
		memberships: make([]Handle, len(ep.processes)),
	}
	for i, cid := range ep.components {
		h, err := w.columns[cid].insertAny(values[i])
		if err != nil {
			w.rollback(ep, rec.components[:i])
			return nil, err
		}
		rec.components[i] = h
	}
	for j, pid := range ep.processes {
		layout := ep.layouts[j]
		tuple := make(ArgTuple, len(layout))
		for k, pos := range layout {
			tuple[k] = rec.components[pos]
		}
		rec.memberships[j] = w.tables[pid].Subscribe(tuple)
	}
	rec.handle = w.records[eid].records.Insert(rec)
	rec.state = Registered

	w.log.Debug("entity added", zap.String("kind", kind), zap.Stringer("handle", rec.handle))
	Publish(w.events, EntityAdded{Kind: kind, Record: rec})
	return rec, nil
}

// rollback removes the components inserted by a failed Add.
func (w *World) rollback(ep *entityPlan, inserted []Handle) {
	for i, h := range inserted {
		if err := w.columns[ep.components[i]].removeAny(h); err != nil {
			w.fail(&ConsistencyError{Entity: ep.name, Op: "rollback", Cause: err})
			return
		}
	}
}

// Remove releases every handle rec holds: its process memberships first, then
// its components, then its place in the entity registry.
//
// Removing a record that is not registered fails with ErrInvalidHandle. A
// registered record with a stale handle means add/remove symmetry was broken;
// Remove then returns a *ConsistencyError and the World is poisoned.
func (w *World) Remove(rec *EntityRecord) error {
	if rec == nil || rec.world != w || rec.state != Registered {
		return &HandleError{Kind: "entity record", Handle: rec.Handle()}
	}
	if w.failure != nil {
		return w.failure
	}
	ep := rec.plan
	w.mustBeIdle(ep, "remove")
	if err := w.checkRecord(rec); err != nil {
		return w.fail(&ConsistencyError{Entity: ep.name, Op: "remove", Cause: err})
	}

	for j, pid := range ep.processes {
		if err := w.tables[pid].Unsubscribe(rec.memberships[j]); err != nil {
			return w.fail(&ConsistencyError{Entity: ep.name, Op: "remove", Cause: err})
		}
	}
	for i, cid := range ep.components {
		if err := w.columns[cid].removeAny(rec.components[i]); err != nil {
			return w.fail(&ConsistencyError{Entity: ep.name, Op: "remove", Cause: err})
		}
	}
	if _, err := w.records[ep.id].records.Remove(rec.handle); err != nil {
		return w.fail(&ConsistencyError{Entity: ep.name, Op: "remove", Cause: err})
	}
	rec.state = Removed

	w.log.Debug("entity removed", zap.String("kind", ep.name), zap.Stringer("handle", rec.handle))
	Publish(w.events, EntityRemoved{Kind: ep.name, Record: rec})
	return nil
}

// mustBeIdle panics if a running process borrows any storage an add or
// remove of ep would touch. Checking up front keeps a misplaced call from
// leaving an entity half registered.
func (w *World) mustBeIdle(ep *entityPlan, op string) {
	busy := w.records[ep.id].records.busy()
	for _, cid := range ep.components {
		busy = busy || w.columns[cid].busy()
	}
	for _, pid := range ep.processes {
		busy = busy || w.tables[pid].rows.busy()
	}
	if busy {
		panic(fmt.Sprintf("complecs: cannot %s entity %q while a process borrows its storages", op, ep.name))
	}
}

// checkRecord verifies every handle of rec before anything is released.
func (w *World) checkRecord(rec *EntityRecord) error {
	ep := rec.plan
	for j, pid := range ep.processes {
		if h := rec.memberships[j]; !w.tables[pid].Contains(h) {
			return &HandleError{Kind: w.tables[pid].rows.kind, Handle: h}
		}
	}
	for i, cid := range ep.components {
		if h := rec.components[i]; !w.columns[cid].Contains(h) {
			return &HandleError{Kind: w.columns[cid].kindName(), Handle: h}
		}
	}
	if !w.records[ep.id].records.Contains(rec.handle) {
		return &HandleError{Kind: w.records[ep.id].records.kind, Handle: rec.handle}
	}
	return nil
}

// fail poisons the World with err and returns it.
func (w *World) fail(err *ConsistencyError) error {
	if w.failure == nil {
		w.failure = err
	}
	w.log.Error("world is inconsistent", zap.String("op", err.Op), zap.String("kind", err.Entity), zap.Error(err.Cause))
	return err
}

// Run executes a process over every subscribed entity, in subscription order.
// ext are the process's external arguments.
//
// Run panics on an unknown process, on external arguments that do not match
// the declaration, when a storage the process needs is already borrowed, and
// with a *ConsistencyError when a row refers to a removed component.
func (w *World) Run(process string, ext ...any) {
	pid, ok := w.plan.processIDs[process]
	if !ok {
		panic(fmt.Sprintf("complecs: unknown process %q", process))
	}
	w.runProcess(pid, ext)
}

// Tick runs every scheduled step in order.
func (w *World) Tick() {
	for _, st := range w.plan.schedule {
		w.runProcess(st.process, st.args)
	}
}

// TickOrder returns the process names Tick runs, in order.
func (w *World) TickOrder() []string {
	order := make([]string, len(w.plan.schedule))
	for i, st := range w.plan.schedule {
		order[i] = w.plan.processes[st.process].name
	}
	return order
}

func (w *World) runProcess(pid int, ext []any) {
	if w.failure != nil {
		panic(w.failure)
	}
	pp := w.plan.processes[pid]
	if err := pp.checkArgs(ext); err != nil {
		panic("complecs: " + err.Error())
	}
	rows := w.run(pp, ext)
	w.log.Debug("process ran", zap.String("process", pp.name), zap.Int("rows", rows))
	Publish(w.events, ProcessRan{Process: pp.name, Rows: rows})
}

// run borrows the storages of pp, writes first and reads second, each in
// declared order, and calls the body once per row.
func (w *World) run(pp *processPlan, ext []any) int {
	row := Row{
		process: pp.name,
		mut:     make([]column, len(pp.mut)),
		ref:     make([]column, len(pp.ref)),
		ext:     ext,
	}
	for i, cid := range pp.mut {
		c := w.columns[cid]
		c.borrowExclusive()
		defer c.releaseExclusive()
		row.mut[i] = c
	}
	for i, cid := range pp.ref {
		c := w.columns[cid]
		c.borrowShared()
		defer c.releaseShared()
		row.ref[i] = c
	}
	rows := w.tables[pp.id].rows
	rows.borrowShared()
	defer rows.releaseShared()

	cols := slices.Concat(row.mut, row.ref)
	n := 0
	for i := rows.head; i != 0; {
		sl := &rows.slots[i-1]
		row.tuple = sl.value
		row.index = n
		for k, h := range row.tuple {
			if !cols[k].Contains(h) {
				err := &ConsistencyError{Entity: pp.name, Op: "run", Cause: &HandleError{Kind: cols[k].kindName(), Handle: h}}
				panic(w.fail(err))
			}
		}
		pp.body(&row)
		n++
		i = sl.next
	}
	return n
}

// HasComponent reports whether the World stores the named component kind.
func (w *World) HasComponent(name string) bool {
	_, ok := w.plan.componentIDs[name]
	return ok
}

// HasProcess reports whether the World has a membership table for the named
// process kind.
func (w *World) HasProcess(name string) bool {
	_, ok := w.plan.processIDs[name]
	return ok
}

// HasEntity reports whether the World keeps records of the named entity kind.
func (w *World) HasEntity(name string) bool {
	_, ok := w.plan.entityIDs[name]
	return ok
}

// Membership returns the membership table of the named process.
func (w *World) Membership(process string) (*MembershipTable, error) {
	id, ok := w.plan.processIDs[process]
	if !ok {
		return nil, unknownKind("process", process)
	}
	return w.tables[id], nil
}

// Entities returns the registry of the named entity kind.
func (w *World) Entities(kind string) (*EntityRegistry, error) {
	id, ok := w.plan.entityIDs[kind]
	if !ok {
		return nil, unknownKind("entity", kind)
	}
	return w.records[id], nil
}

// ComponentStats returns the bookkeeping of the named component storage.
func (w *World) ComponentStats(name string) (StorageStats, error) {
	id, ok := w.plan.componentIDs[name]
	if !ok {
		return StorageStats{}, unknownKind("component", name)
	}
	return w.columns[id].Stats(), nil
}

// Value returns the value rec holds for the named component, without knowing
// its type.
func (w *World) Value(rec *EntityRecord, component string) (any, error) {
	h, err := w.recordHandle(rec, component)
	if err != nil {
		return nil, err
	}
	return w.columns[w.plan.componentIDs[component]].getAny(h)
}

// SetValue overwrites the value rec holds for the named component. v must
// have the component's exact type.
func (w *World) SetValue(rec *EntityRecord, component string, v any) error {
	h, err := w.recordHandle(rec, component)
	if err != nil {
		return err
	}
	return w.columns[w.plan.componentIDs[component]].setAny(h, v)
}
