package complecs

// EntityState is the lifecycle position of an entity record.
type EntityState uint8

const (
	// Unregistered records have not been committed to a World.
	Unregistered EntityState = iota
	// Registered records own live component and membership handles.
	Registered
	// Removed records released every handle. The state is terminal.
	Removed
)

func (s EntityState) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// EntityKind declares which component kinds an entity owns and which process
// kinds it takes part in. It may only join processes whose components it owns.
type EntityKind struct {
	Name       string
	Components []string
	Processes  []string
}

// entityPlan is a validated entity kind.
type entityPlan struct {
	id         int
	name       string
	components []ComponentID
	processes  []int
	mask       bitmask256
	// layouts[j][k] is the position in components of the handle that goes in
	// slot k of the argument tuple for processes[j].
	layouts [][]int
}

// EntityRecord is the only place that knows which handles an entity instance
// holds, so that removing it releases every one of them.
type EntityRecord struct {
	world       *World
	plan        *entityPlan
	handle      Handle
	components  []Handle
	memberships []Handle
	state       EntityState
}

// Kind returns the name of the record's entity kind.
func (r *EntityRecord) Kind() string {
	if r == nil || r.plan == nil {
		return ""
	}
	return r.plan.name
}

// State returns the record's lifecycle state.
func (r *EntityRecord) State() EntityState {
	if r == nil {
		return Unregistered
	}
	return r.state
}

// Handle returns the record's handle in its entity registry.
func (r *EntityRecord) Handle() Handle {
	if r == nil {
		return Handle{}
	}
	return r.handle
}

// Component returns the handle of the named component.
func (r *EntityRecord) Component(name string) (Handle, bool) {
	if r == nil || r.world == nil {
		return Handle{}, false
	}
	id, ok := r.world.plan.componentIDs[name]
	if !ok {
		return Handle{}, false
	}
	for i, cid := range r.plan.components {
		if cid == id {
			return r.components[i], true
		}
	}
	return Handle{}, false
}

// Membership returns the handle of the record's row in the named process.
func (r *EntityRecord) Membership(process string) (Handle, bool) {
	if r == nil || r.world == nil {
		return Handle{}, false
	}
	id, ok := r.world.plan.processIDs[process]
	if !ok {
		return Handle{}, false
	}
	for j, pid := range r.plan.processes {
		if pid == id {
			return r.memberships[j], true
		}
	}
	return Handle{}, false
}

// Components returns the component handles in the entity kind's order.
func (r *EntityRecord) Components() []Handle {
	return append([]Handle(nil), r.components...)
}

// Memberships returns the membership handles in the entity kind's order.
func (r *EntityRecord) Memberships() []Handle {
	return append([]Handle(nil), r.memberships...)
}

// EntityRegistry holds the records of every live entity of one kind, in the
// order they were added.
type EntityRegistry struct {
	kind    string
	records *Storage[*EntityRecord]
}

func newEntityRegistry(kind string, capacity int) *EntityRegistry {
	return &EntityRegistry{
		kind:    kind,
		records: newStorage[*EntityRecord]("entity registry of "+kind, capacity),
	}
}

// Kind returns the entity kind of the registry.
func (g *EntityRegistry) Kind() string {
	return g.kind
}

// Len returns the number of live records.
func (g *EntityRegistry) Len() int {
	return g.records.Len()
}

// Stats returns the bookkeeping of the underlying storage.
func (g *EntityRegistry) Stats() StorageStats {
	return g.records.Stats()
}

// Each calls fn with every live record in insertion order. Records must not
// be added or removed from fn; collect them, or use a Query.
func (g *EntityRegistry) Each(fn func(*EntityRecord)) {
	g.records.Each(func(_ Handle, rec *EntityRecord) {
		fn(rec)
	})
}

// Records returns the live records in insertion order.
func (g *EntityRegistry) Records() []*EntityRecord {
	out := make([]*EntityRecord, 0, g.records.Len())
	g.Each(func(rec *EntityRecord) {
		out = append(out, rec)
	})
	return out
}

// Query returns a cursor over the registry's records.
func (g *EntityRegistry) Query() *Query {
	q := &Query{registry: g}
	q.Reset()
	return q
}

// Query is a cursor over an entity registry. It snapshots the registry on
// Reset, so records may be removed while iterating; removed records are
// skipped.
type Query struct {
	registry *EntityRegistry
	handles  []Handle
	cur      int
	rec      *EntityRecord
}

// Reset rewinds the cursor and takes a fresh snapshot of the registry.
func (q *Query) Reset() {
	q.handles = q.registry.records.Handles()
	q.cur = -1
	q.rec = nil
}

// Next advances to the next live record.
func (q *Query) Next() bool {
	for q.cur+1 < len(q.handles) {
		q.cur++
		rec, err := q.registry.records.Get(q.handles[q.cur])
		if err == nil {
			q.rec = rec
			return true
		}
	}
	q.rec = nil
	return false
}

// Record returns the record at the cursor.
func (q *Query) Record() *EntityRecord {
	return q.rec
}
