package complecs

import (
	"fmt"
	"slices"
)

// Step is one entry of the per-tick schedule: a process and the external
// arguments it is run with.
type Step struct {
	Process string
	Args    []any
}

// Schema is the startup-time description of a simulation: its component,
// process and entity kinds and the order processes run in every tick.
//
// A Schema is only a declaration. NewWorld validates it and builds storages
// from it; nothing is checked until then, so declarations can come in any
// order.
type Schema struct {
	components []ComponentKind
	processes  []ProcessKind
	entities   []EntityKind
	schedule   []Step
	includes   []*Schema
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{}
}

// AddComponent declares a component kind made by NewComponentKind.
func (s *Schema) AddComponent(c ComponentKind) *Schema {
	s.components = append(s.components, c)
	return s
}

// AddProcess declares a process kind.
func (s *Schema) AddProcess(p ProcessKind) *Schema {
	s.processes = append(s.processes, p)
	return s
}

// AddEntity declares an entity kind.
func (s *Schema) AddEntity(e EntityKind) *Schema {
	s.entities = append(s.entities, e)
	return s
}

// Schedule appends steps to the per-tick process order.
func (s *Schema) Schedule(steps ...Step) *Schema {
	s.schedule = append(s.schedule, steps...)
	return s
}

// Include embeds every kind and schedule step of other into s. Included
// schemas come before s's own declarations. Two schemas supplying the same
// kind name is a schema violation; no schema takes precedence.
func (s *Schema) Include(other *Schema) *Schema {
	s.includes = append(s.includes, other)
	return s
}

// Bind sets the body of a declared process, searching included schemas too.
// Schemas decoded from files declare processes without bodies.
func (s *Schema) Bind(process string, body ProcessFunc) error {
	if s.bind(process, body, map[*Schema]bool{}) {
		return nil
	}
	return unknownKind("process", process)
}

func (s *Schema) bind(process string, body ProcessFunc, seen map[*Schema]bool) bool {
	if seen[s] {
		return false
	}
	seen[s] = true
	for i := range s.processes {
		if s.processes[i].Name == process {
			s.processes[i].Body = body
			return true
		}
	}
	for _, inc := range s.includes {
		if inc.bind(process, body, seen) {
			return true
		}
	}
	return false
}

// Validate checks every rule a schema must satisfy before a World can be
// built from it. The error is a *SchemaError listing all violations.
func (s *Schema) Validate() error {
	_, err := s.compile()
	return err
}

// plan is a validated schema with every name resolved to an index.
type plan struct {
	components   []ComponentKind
	componentIDs map[string]ComponentID
	processes    []*processPlan
	processIDs   map[string]int
	entities     []*entityPlan
	entityIDs    map[string]int
	schedule     []scheduledStep
}

type scheduledStep struct {
	process int
	args    []any
}

type sourced[T any] struct {
	item T
	from *Schema
}

type flatSchema struct {
	components []sourced[ComponentKind]
	processes  []sourced[ProcessKind]
	entities   []sourced[EntityKind]
	schedule   []Step
}

func (s *Schema) flatten(f *flatSchema, seen map[*Schema]bool) {
	if seen[s] {
		return
	}
	seen[s] = true
	for _, inc := range s.includes {
		inc.flatten(f, seen)
	}
	for _, c := range s.components {
		f.components = append(f.components, sourced[ComponentKind]{c, s})
	}
	for _, p := range s.processes {
		f.processes = append(f.processes, sourced[ProcessKind]{p, s})
	}
	for _, e := range s.entities {
		f.entities = append(f.entities, sourced[EntityKind]{e, s})
	}
	f.schedule = append(f.schedule, s.schedule...)
}

type violations []Violation

func (vs *violations) add(section, name, reason string, args ...any) {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	*vs = append(*vs, Violation{Section: section, Name: name, Reason: reason})
}

// claim records that from declares name. It reports a violation and returns
// false if the name is empty or already taken.
func (vs *violations) claim(owners map[string]*Schema, section, name string, from *Schema) bool {
	if name == "" {
		vs.add(section, name, "empty name")
		return false
	}
	if prev, taken := owners[name]; taken {
		if prev == from {
			vs.add(section, name, "declared twice")
		} else {
			vs.add("include", name, "%s supplied by more than one schema", section)
		}
		return false
	}
	owners[name] = from
	return true
}

func (s *Schema) compile() (*plan, error) {
	var f flatSchema
	s.flatten(&f, map[*Schema]bool{})

	var vs violations
	p := &plan{
		componentIDs: make(map[string]ComponentID, len(f.components)),
		processIDs:   make(map[string]int, len(f.processes)),
		entityIDs:    make(map[string]int, len(f.entities)),
	}

	owners := make(map[string]*Schema)
	for _, c := range f.components {
		if !vs.claim(owners, "component", c.item.Name, c.from) {
			continue
		}
		if c.item.Type == nil {
			vs.add("component", c.item.Name, "has no type")
			continue
		}
		if c.item.newColumn == nil {
			vs.add("component", c.item.Name, "has no storage, build it with NewComponentKind")
			continue
		}
		if len(p.components) == MaxComponentKinds {
			vs.add("component", c.item.Name, "exceeds the limit of %d component kinds", MaxComponentKinds)
			continue
		}
		p.componentIDs[c.item.Name] = ComponentID(len(p.components))
		p.components = append(p.components, c.item)
	}

	owners = make(map[string]*Schema)
	for _, sp := range f.processes {
		if vs.claim(owners, "process", sp.item.Name, sp.from) {
			pp := p.compileProcess(sp.item, &vs)
			p.processIDs[pp.name] = pp.id
			p.processes = append(p.processes, pp)
		}
	}

	owners = make(map[string]*Schema)
	for _, se := range f.entities {
		if vs.claim(owners, "entity", se.item.Name, se.from) {
			ep := p.compileEntity(se.item, &vs)
			p.entityIDs[ep.name] = ep.id
			p.entities = append(p.entities, ep)
		}
	}

	for _, st := range f.schedule {
		pid, ok := p.processIDs[st.Process]
		if !ok {
			vs.add("schedule", st.Process, "unknown process")
			continue
		}
		if err := p.processes[pid].checkArgs(st.Args); err != nil {
			vs.add("schedule", st.Process, err.Error())
			continue
		}
		p.schedule = append(p.schedule, scheduledStep{process: pid, args: slices.Clone(st.Args)})
	}

	if len(vs) > 0 {
		return nil, &SchemaError{Violations: vs}
	}
	return p, nil
}

func (p *plan) compileProcess(pk ProcessKind, vs *violations) *processPlan {
	pp := &processPlan{
		id:   len(p.processes),
		name: pk.Name,
		ext:  slices.Clone(pk.External),
		body: pk.Body,
	}
	var mutMask, refMask bitmask256
	resolve := func(names []string, mask *bitmask256, access string) []ComponentID {
		ids := make([]ComponentID, 0, len(names))
		for _, cn := range names {
			id, ok := p.componentIDs[cn]
			if !ok {
				vs.add("process", pk.Name, "unknown component %q", cn)
				continue
			}
			if mask.containsBit(id) {
				vs.add("process", pk.Name, "component %q listed twice as %s", cn, access)
				continue
			}
			mask.set(id)
			ids = append(ids, id)
		}
		return ids
	}
	pp.mut = resolve(pk.Mutable, &mutMask, "mutable")
	pp.ref = resolve(pk.Immutable, &refMask, "immutable")
	if mutMask.intersects(refMask) {
		for _, id := range pp.ref {
			if mutMask.containsBit(id) {
				vs.add("process", pk.Name, "component %q is both mutable and immutable", p.components[id].Name)
			}
		}
	}
	for i := range pp.mask {
		pp.mask[i] = mutMask[i] | refMask[i]
	}
	if pk.Body == nil {
		vs.add("process", pk.Name, "has no body")
	}
	for i, t := range pk.External {
		if t == nil {
			vs.add("process", pk.Name, "external argument %d has no type", i)
		}
	}
	return pp
}

func (p *plan) compileEntity(ek EntityKind, vs *violations) *entityPlan {
	ep := &entityPlan{id: len(p.entities), name: ek.Name}
	positions := make(map[ComponentID]int, len(ek.Components))
	for _, cn := range ek.Components {
		id, ok := p.componentIDs[cn]
		if !ok {
			vs.add("entity", ek.Name, "unknown component %q", cn)
			continue
		}
		if ep.mask.containsBit(id) {
			vs.add("entity", ek.Name, "component %q listed twice", cn)
			continue
		}
		ep.mask.set(id)
		positions[id] = len(ep.components)
		ep.components = append(ep.components, id)
	}

	joined := make(map[int]bool, len(ek.Processes))
	for _, pn := range ek.Processes {
		pid, ok := p.processIDs[pn]
		if !ok {
			vs.add("entity", ek.Name, "unknown process %q", pn)
			continue
		}
		if joined[pid] {
			vs.add("entity", ek.Name, "process %q listed twice", pn)
			continue
		}
		joined[pid] = true
		pp := p.processes[pid]
		if !ep.mask.contains(pp.mask) {
			for _, id := range slices.Concat(pp.mut, pp.ref) {
				if !ep.mask.containsBit(id) {
					vs.add("entity", ek.Name, "joins process %q without component %q", pn, p.components[id].Name)
				}
			}
			continue
		}
		layout := make([]int, 0, pp.arity())
		for _, id := range pp.mut {
			layout = append(layout, positions[id])
		}
		for _, id := range pp.ref {
			layout = append(layout, positions[id])
		}
		ep.processes = append(ep.processes, pid)
		ep.layouts = append(ep.layouts, layout)
	}
	return ep
}
