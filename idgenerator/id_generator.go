// Package idgenerator hands out process-unique identifiers for connections
// and queued jobs.
package idgenerator

import "sync/atomic"

// IdGenerator generates monotonically increasing uint64 IDs in a
// concurrency-safe manner. The first Id() returns startValue+1, so a
// generator started at 0 never yields 0 and 0 can mean "no id".
type IdGenerator struct {
	id atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first Id() is startValue+1.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint64) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next ID.
func (g *IdGenerator) Id() uint64 {
	return g.id.Add(1)
}

// Last returns the most recently issued ID without advancing, or the start
// value when nothing has been issued yet.
func (g *IdGenerator) Last() uint64 {
	return g.id.Load()
}
