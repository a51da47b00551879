package lifecycle

import "sync"

// Listener receives the payload of an emitted event.
type Listener func(payload interface{})

type emitted struct {
	event   string
	payload interface{}
}

type delivery struct {
	listener Listener
	payload  interface{}
}

// Emitter is a multi-subscriber notification stream keyed by event name.
//
// Every emission is recorded and replayed to listeners attached later, so a
// listener never misses an event because it was attached after the work
// started. Deliveries are queued and run one at a time in the order they
// were queued: listeners of one emission run in attachment order, and a
// listener may call On or Emit without deadlocking.
type Emitter struct {
	mtx       sync.Mutex
	listeners map[string][]Listener
	history   []emitted
	queue     []delivery
	draining  bool
}

// NewEmitter returns an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		mtx:       sync.Mutex{},
		listeners: make(map[string][]Listener),
	}
}

// On attaches l to event. Past emissions of event are delivered to l
// before any later ones.
func (e *Emitter) On(event string, l Listener) {
	e.mtx.Lock()
	e.listeners[event] = append(e.listeners[event], l)
	for _, h := range e.history {
		if h.event == event {
			e.queue = append(e.queue, delivery{listener: l, payload: h.payload})
		}
	}
	e.mtx.Unlock()

	e.drain()
}

// Emit delivers payload to every listener of event.
func (e *Emitter) Emit(event string, payload interface{}) {
	e.mtx.Lock()
	e.history = append(e.history, emitted{event: event, payload: payload})
	for _, l := range e.listeners[event] {
		e.queue = append(e.queue, delivery{listener: l, payload: payload})
	}
	e.mtx.Unlock()

	e.drain()
}

// ListenerCount returns the number of listeners attached to event.
func (e *Emitter) ListenerCount(event string) int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return len(e.listeners[event])
}

// Emitted returns the names of all events emitted so far, in order.
func (e *Emitter) Emitted() []string {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	names := make([]string, 0, len(e.history))
	for _, h := range e.history {
		names = append(names, h.event)
	}
	return names
}

// drain runs queued deliveries unless another call is already doing so, in
// which case that call picks up whatever was queued.
func (e *Emitter) drain() {
	e.mtx.Lock()
	if e.draining {
		e.mtx.Unlock()
		return
	}
	e.draining = true
	for len(e.queue) > 0 {
		d := e.queue[0]
		e.queue = e.queue[1:]
		e.mtx.Unlock()
		d.listener(d.payload)
		e.mtx.Lock()
	}
	e.draining = false
	e.mtx.Unlock()
}
