// Package uop implements the unspent-output pool: the per-branch set of
// outputs available to be claimed by a future transaction.
package uop

import "github.com/vantage-ledger/epochchain/pkg/types"

// Output is an entry in the pool: everything needed to verify a future
// input that claims it. The teacher's token/stake/sub-chain script-type
// machinery has no home here — the core only needs a value and a payee
// script for P2PKH verification.
type Output struct {
	Value  uint64
	Script types.Script
}

// Pool maps an unspent-output reference to the output it names. A Pool
// belongs to exactly one branch of the block tree; it carries no internal
// locking because the core is single-writer (see internal/epoch and
// internal/blocktree) and copies happen only at fork points via Copy.
type Pool struct {
	entries map[types.Outpoint]Output
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{entries: make(map[types.Outpoint]Output)}
}

// Contains reports whether o is unspent in the pool.
func (p *Pool) Contains(o types.Outpoint) bool {
	_, ok := p.entries[o]
	return ok
}

// Get returns the output named by o, if unspent.
func (p *Pool) Get(o types.Outpoint) (Output, bool) {
	out, ok := p.entries[o]
	return out, ok
}

// Add inserts o as a new unspent output.
func (p *Pool) Add(o types.Outpoint, out Output) {
	p.entries[o] = out
}

// Remove marks o as spent.
func (p *Pool) Remove(o types.Outpoint) {
	delete(p.entries, o)
}

// Len returns the number of unspent outputs in the pool.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Copy returns an independent pool with the same entries. Fork points call
// this once per child so that no two nodes ever alias the same pool.
func (p *Pool) Copy() *Pool {
	cp := make(map[types.Outpoint]Output, len(p.entries))
	for k, v := range p.entries {
		cp[k] = v
	}
	return &Pool{entries: cp}
}
