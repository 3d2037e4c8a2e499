package events

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Recordable events can render themselves into a flat Record for journals and
// streaming consumers.
type Recordable interface {
	Event
	Record() *Record
}

// Record is the transport form of an event: a type tag and string attributes.
type Record struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers (e.g. journals, streams).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) {
	if f != nil {
		f(e)
	}
}

// Fanout delivers every event to each of its emitters in order.
type Fanout []Emitter

func (f Fanout) Emit(e Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(e)
		}
	}
}

// Buffer holds events until Flush is called. Operations stage their events in
// a Buffer and only flush once the state change has been committed.
type Buffer struct {
	events []Event
}

func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.events = append(b.events, e)
}

// Events returns the staged events in emission order.
func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len reports the number of staged events.
func (b *Buffer) Len() int { return len(b.events) }

// Flush forwards staged events to dst and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	staged := b.events
	b.events = nil
	if dst == nil {
		return
	}
	for _, e := range staged {
		dst.Emit(e)
	}
}

// Reset drops staged events without delivering them.
func (b *Buffer) Reset() {
	b.events = nil
}
