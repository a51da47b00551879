package base

import (
	"errors"
	"io"
	"reflect"
	"sync"
)

// SubscriptionOpt represents a subscriber option. Use the options exposed by the implementation of choice.
type SubscriptionOpt = func(interface{}) error

// Subscription represents a subscription to one or multiple event types.
type Subscription interface {
	io.Closer

	// Out returns the channel from which to consume events.
	Out() <-chan interface{}
}

// Bus is an interface for a type-based event delivery system.
type Bus interface {
	// Subscribe creates a new Subscription.
	//
	// eventType can be either a pointer to a single event type, or a slice of pointers to
	// subscribe to multiple event types at once, under a single subscription (and channel).
	// Events of different types delivered to one subscription keep their emission order.
	//
	// Failing to drain the channel may cause publishers to block.
	//
	//  sub, err := bus.Subscribe([]interface{}{new(BeforeProviderChangeEvent), new(ProviderChangedEvent)})
	//  defer sub.Close()
	//  for e := range sub.Out() {
	//    switch evt := e.(type) {
	//    case BeforeProviderChangeEvent:
	//      [...]
	//    case ProviderChangedEvent:
	//      [...]
	//    }
	//  }
	Subscribe(eventType interface{}, opts ...SubscriptionOpt) (Subscription, error)

	// Emit emits an event onto the bus. If any channel subscribed to the topic is blocked,
	// calls to Emit will block.
	Emit(evt interface{})
}

type (
	// BeforeProviderChangeEvent is emitted before the active provider is
	// replaced. Previous is nil when no provider was set.
	BeforeProviderChangeEvent struct {
		Previous interface{}
	}

	// ProviderChangedEvent is emitted after the active provider is replaced.
	ProviderChangedEvent struct {
		Provider interface{}
	}
)

// ErrNonPointerEvent is returned when Subscribe is given event values
// instead of pointers to them.
var ErrNonPointerEvent = errors.New("subscribe called with non-pointer type")

const defaultBufSize = 16

type subSettings struct {
	buffer int
}

// BufSize sets the buffer of a subscription's channel.
//
// Defaults to 16.
func BufSize(n int) SubscriptionOpt {
	return func(s interface{}) error {
		if n < 0 {
			return errors.New("negative buffer size")
		}
		s.(*subSettings).buffer = n
		return nil
	}
}

// NewBus returns an in-memory Bus keyed on the dynamic type of emitted
// events.
func NewBus() Bus {
	return &eventBus{
		mtx:  sync.RWMutex{},
		subs: make(map[reflect.Type][]*subscription),
	}
}

type eventBus struct {
	mtx  sync.RWMutex
	subs map[reflect.Type][]*subscription
}

var _ Bus = (*eventBus)(nil)

func (b *eventBus) Subscribe(eventType interface{}, opts ...SubscriptionOpt) (Subscription, error) {
	settings := subSettings{buffer: defaultBufSize}
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	eventTypes, ok := eventType.([]interface{})
	if !ok {
		eventTypes = []interface{}{eventType}
	}

	keys := make([]reflect.Type, 0, len(eventTypes))
	for _, et := range eventTypes {
		typ := reflect.TypeOf(et)
		if typ == nil || typ.Kind() != reflect.Ptr {
			return nil, ErrNonPointerEvent
		}
		// Events are emitted by value.
		keys = append(keys, typ.Elem())
	}

	s := &subscription{
		bus:  b,
		keys: keys,
		out:  make(chan interface{}, settings.buffer),
		done: make(chan struct{}),
	}

	b.mtx.Lock()
	for _, key := range keys {
		b.subs[key] = append(b.subs[key], s)
	}
	b.mtx.Unlock()
	return s, nil
}

func (b *eventBus) Emit(evt interface{}) {
	b.mtx.RLock()
	targets := append([]*subscription(nil), b.subs[reflect.TypeOf(evt)]...)
	b.mtx.RUnlock()

	for _, s := range targets {
		s.deliver(evt)
	}
}

func (b *eventBus) remove(s *subscription) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	for _, key := range s.keys {
		subs := b.subs[key]
		for i := range subs {
			if subs[i] == s {
				subs = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(b.subs, key)
		} else {
			b.subs[key] = subs
		}
	}
}

type subscription struct {
	bus  *eventBus
	keys []reflect.Type

	mtx    sync.RWMutex
	closed bool
	out    chan interface{}
	done   chan struct{}
	once   sync.Once
}

var _ Subscription = (*subscription)(nil)

func (s *subscription) Out() <-chan interface{} {
	return s.out
}

// deliver blocks until the event is accepted or the subscription is
// closed. out is never closed while a delivery holds the read lock.
func (s *subscription) deliver(evt interface{}) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.out <- evt:
	case <-s.done:
	}
}

// Close removes the subscription from the bus and closes Out. Pending
// deliveries are abandoned.
func (s *subscription) Close() error {
	s.bus.remove(s)

	s.once.Do(func() {
		close(s.done)

		s.mtx.Lock()
		s.closed = true
		close(s.out)
		s.mtx.Unlock()
	})
	return nil
}
