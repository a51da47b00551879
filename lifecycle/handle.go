package lifecycle

import (
	"context"
	"fmt"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"sync"
)

// State is a stage of a transaction's progress.
type State int

const (
	Created State = iota
	Sending
	Sent
	HashKnown
	ReceiptKnown
	Confirming
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Sending:
		return "SENDING"
	case Sent:
		return "SENT"
	case HashKnown:
		return "HASH_KNOWN"
	case ReceiptKnown:
		return "RECEIPT_KNOWN"
	case Confirming:
		return "CONFIRMING"
	case Settled:
		return "SETTLED"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Settled || s == Failed
}

// Event names.
const (
	EventSending         = "sending"
	EventSent            = "sent"
	EventTransactionHash = "transactionHash"
	EventReceipt         = "receipt"
	EventConfirmation    = "confirmation"
	EventError           = "error"
)

// Confirmation is the payload of the confirmation event.
type Confirmation struct {
	Count   uint64
	Receipt *types.Receipt
}

// Failed is reachable from every non-terminal state and is not listed.
var transitions = map[State][]State{
	Created:      {Sending},
	Sending:      {Sent},
	Sent:         {HashKnown},
	HashKnown:    {ReceiptKnown},
	ReceiptKnown: {Confirming, Settled},
	Confirming:   {Confirming, Settled},
}

// InvalidTransitionError is returned for a transition the state machine
// does not allow.
type InvalidTransitionError struct {
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// Handle tracks one transaction. It joins a Settlement carrying the final
// result with an Emitter carrying the named lifecycle events, and enforces
// the order in which they happen.
type Handle struct {
	ID string

	emitter    *Emitter
	settlement *Settlement

	mtx        sync.Mutex
	state      State
	resolved   bool
	terminated chan struct{}
}

// NewHandle returns a handle in the Created state.
func NewHandle() *Handle {
	return &Handle{
		ID:         uuid.New().String(),
		emitter:    NewEmitter(),
		settlement: NewSettlement(),
		state:      Created,
		terminated: make(chan struct{}),
	}
}

// On attaches a listener to event and returns the handle for chaining.
// Events emitted before the listener was attached are replayed to it.
func (h *Handle) On(event string, l Listener) *Handle {
	h.emitter.On(event, l)
	return h
}

// State returns the current state.
func (h *Handle) State() State {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.state
}

// Emitted returns the names of the events emitted so far.
func (h *Handle) Emitted() []string {
	return h.emitter.Emitted()
}

// Transition moves to state and emits event with payload.
func (h *Handle) Transition(to State, event string, payload interface{}) error {
	h.mtx.Lock()
	from := h.state
	if !allowed(from, to) {
		h.mtx.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	h.state = to
	h.mtx.Unlock()

	h.emitter.Emit(event, payload)
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Resolve settles the result with v. The state is unchanged, so
// confirmations may still follow.
func (h *Handle) Resolve(v interface{}) bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.state.Terminal() || !h.settlement.Resolve(v) {
		return false
	}
	h.resolved = true
	return true
}

// Fail emits the error event and ends tracking. It is a no-op in a terminal
// state.
//
// Before the result is resolved the handle moves to Failed and the result
// is rejected with err. Once resolved the result stands, so the handle moves
// to Settled instead and err is only reported through the event.
func (h *Handle) Fail(err error) bool {
	h.mtx.Lock()
	if h.state.Terminal() {
		h.mtx.Unlock()
		return false
	}
	resolved := h.resolved
	if resolved {
		h.state = Settled
	} else {
		h.state = Failed
	}
	h.mtx.Unlock()

	h.emitter.Emit(EventError, err)
	if !resolved {
		h.settlement.Reject(err)
	}
	close(h.terminated)
	return true
}

// Settle moves to Settled and ends tracking.
func (h *Handle) Settle() error {
	h.mtx.Lock()
	from := h.state
	if !allowed(from, Settled) {
		h.mtx.Unlock()
		return &InvalidTransitionError{From: from, To: Settled}
	}
	h.state = Settled
	h.mtx.Unlock()

	close(h.terminated)
	return nil
}

// Terminated is closed once the handle is Settled or Failed.
func (h *Handle) Terminated() <-chan struct{} {
	return h.terminated
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.settlement.Done()
}

// Result waits for the result.
func (h *Handle) Result(ctx context.Context) (interface{}, error) {
	return h.settlement.Wait(ctx)
}
