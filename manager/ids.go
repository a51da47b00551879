package manager

import "sync/atomic"

// IDGenerator hands out JSON-RPC request ids. Ids start at 1 and increase
// monotonically; it is safe for concurrent use.
type IDGenerator struct {
	last uint64
}

// DefaultIDs is shared by every RequestManager that is not given its own
// generator, so ids are unique across managers in the process.
var DefaultIDs = NewIDGenerator()

// NewIDGenerator returns a generator whose first id is 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next id.
func (g *IDGenerator) Next() uint64 {
	return atomic.AddUint64(&g.last, 1)
}

// Last returns the most recently issued id, or 0 if none was issued.
func (g *IDGenerator) Last() uint64 {
	return atomic.LoadUint64(&g.last)
}

// Reset makes the next id 1 again. Intended for tests.
func (g *IDGenerator) Reset() {
	atomic.StoreUint64(&g.last, 0)
}
