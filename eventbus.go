package complecs

import "reflect"

// MaxEventTypes defines the maximum number of unique event types that can be
// registered in the EventBus.
const MaxEventTypes = 256

// EntityAdded is published after an entity has been committed to a World.
type EntityAdded struct {
	Kind   string
	Record *EntityRecord
}

// EntityRemoved is published after an entity released all of its handles.
type EntityRemoved struct {
	Kind   string
	Record *EntityRecord
}

// ProcessRan is published after a process visited every subscribed row.
type ProcessRan struct {
	Process string
	Rows    int
}

// EventBus is a synchronous, typed event bus. A World publishes its lifecycle
// events on it once every borrow of the operation is released, so handlers
// may call back into the World.
//
// The zero value is ready to use.
type EventBus struct {
	eventTypeMap    map[reflect.Type]uint8
	handlers        [MaxEventTypes][]any
	nextEventTypeID int
}

// Subscribe registers handler for events of type T. Handlers are called in the
// order they subscribed.
func Subscribe[T any](bus *EventBus, handler func(T)) {
	id := bus.eventTypeID(reflect.TypeFor[T]())
	if cap(bus.handlers[id]) == 0 {
		bus.handlers[id] = make([]any, 0, 4)
	}
	bus.handlers[id] = append(bus.handlers[id], handler)
}

// Publish calls every handler subscribed to T with event.
func Publish[T any](bus *EventBus, event T) {
	if bus == nil {
		return
	}
	id, ok := bus.eventTypeMap[reflect.TypeFor[T]()]
	if !ok {
		return
	}
	for _, h := range bus.handlers[id] {
		h.(func(T))(event)
	}
}

// eventTypeID retrieves or assigns an ID for the event type.
func (bus *EventBus) eventTypeID(t reflect.Type) uint8 {
	if bus.eventTypeMap == nil {
		bus.eventTypeMap = make(map[reflect.Type]uint8)
	}
	if id, ok := bus.eventTypeMap[t]; ok {
		return id
	}
	if bus.nextEventTypeID >= MaxEventTypes {
		panic("complecs: too many event types")
	}
	id := uint8(bus.nextEventTypeID)
	bus.nextEventTypeID++
	bus.eventTypeMap[t] = id
	return id
}
