package complecs

import "fmt"

// EntityBuilder collects initial component values by name and adds entities
// of one kind. Values stay set between calls, so one builder can spawn many
// identical entities.
type EntityBuilder struct {
	world  *World
	plan   *entityPlan
	kind   string
	values map[string]any
	err    error
}

// Builder returns an EntityBuilder for the named entity kind. An unknown kind
// is reported by Add.
func (w *World) Builder(kind string) *EntityBuilder {
	b := &EntityBuilder{world: w, kind: kind, values: make(map[string]any)}
	if id, ok := w.plan.entityIDs[kind]; ok {
		b.plan = w.plan.entities[id]
	} else {
		b.err = unknownKind("entity", kind)
	}
	return b
}

// Set records the initial value of a component.
func (b *EntityBuilder) Set(component string, v any) *EntityBuilder {
	if b.err != nil {
		return b
	}
	if !b.owns(component) {
		b.err = fmt.Errorf("%w: entity %q has no component %q", ErrUnknownKind, b.kind, component)
		return b
	}
	b.values[component] = v
	return b
}

// Add adds one entity with the recorded values.
func (b *EntityBuilder) Add() (*EntityRecord, error) {
	values, err := b.ordered()
	if err != nil {
		return nil, err
	}
	return b.world.Add(b.kind, values...)
}

// AddN adds count entities with the recorded values. It stops at the first
// error and returns the records added so far.
func (b *EntityBuilder) AddN(count int) ([]*EntityRecord, error) {
	values, err := b.ordered()
	if err != nil {
		return nil, err
	}
	recs := make([]*EntityRecord, 0, count)
	for range count {
		rec, err := b.world.Add(b.kind, values...)
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Reset forgets every recorded value.
func (b *EntityBuilder) Reset() *EntityBuilder {
	clear(b.values)
	return b
}

func (b *EntityBuilder) owns(component string) bool {
	id, ok := b.world.plan.componentIDs[component]
	return ok && b.plan.mask.containsBit(id)
}

// ordered returns the values in the entity kind's component order.
func (b *EntityBuilder) ordered() ([]any, error) {
	if b.err != nil {
		return nil, b.err
	}
	values := make([]any, len(b.plan.components))
	for i, cid := range b.plan.components {
		name := b.world.plan.components[cid].Name
		v, ok := b.values[name]
		if !ok {
			return nil, fmt.Errorf("%w: entity %q needs a value for %q", ErrMissingValue, b.kind, name)
		}
		values[i] = v
	}
	return values, nil
}
