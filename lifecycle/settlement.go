package lifecycle

import (
	"context"
	"sync"
)

// Settlement is a one-shot result: it is either resolved with a value or
// rejected with an error, exactly once. Later attempts are ignored.
type Settlement struct {
	once  sync.Once
	done  chan struct{}
	value interface{}
	err   error
}

// NewSettlement returns an unsettled Settlement.
func NewSettlement() *Settlement {
	return &Settlement{done: make(chan struct{})}
}

// Resolve settles with v. It reports whether this call settled it.
func (s *Settlement) Resolve(v interface{}) bool {
	return s.settle(v, nil)
}

// Reject settles with err. It reports whether this call settled it.
func (s *Settlement) Reject(err error) bool {
	return s.settle(nil, err)
}

func (s *Settlement) settle(v interface{}, err error) bool {
	settled := false
	s.once.Do(func() {
		s.value = v
		s.err = err
		settled = true
		close(s.done)
	})
	return settled
}

// Done is closed once the settlement is resolved or rejected.
func (s *Settlement) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the settlement is settled or ctx is done.
func (s *Settlement) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-s.done:
		return s.value, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
