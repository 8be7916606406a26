// Package mempool holds unconfirmed transactions awaiting inclusion in a
// block. Unlike the single-writer consensus core, the mempool is shared
// across producer and consumer goroutines and guards its own state.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vantage-ledger/epochchain/pkg/tx"
	"github.com/vantage-ledger/epochchain/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
)

// Pool holds unconfirmed transactions, indexed by hash and by the UORs
// they claim so that conflicting candidates can be detected on insertion.
// It performs no validation of its own: callers run a transaction through
// an epoch.Handler before adding it here.
type Pool struct {
	mu     sync.RWMutex
	txs    map[types.Hash]*tx.Transaction
	spends map[types.Outpoint]types.Hash // outpoint -> claimant tx hash
}

// New creates an empty mempool.
func New() *Pool {
	return &Pool{
		txs:    make(map[types.Hash]*tx.Transaction),
		spends: make(map[types.Outpoint]types.Hash),
	}
}

// Add inserts a transaction, rejecting exact duplicates and transactions
// that claim a UOR already claimed by a different pending transaction.
func (p *Pool) Add(transaction *tx.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	txHash := transaction.Hash()
	if _, exists := p.txs[txHash]; exists {
		return ErrAlreadyExists
	}

	for _, in := range transaction.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if conflict, exists := p.spends[in.PrevOut]; exists {
			return fmt.Errorf("%w: input %s already claimed by %s", ErrConflict, in.PrevOut, conflict)
		}
	}

	p.txs[txHash] = transaction
	for _, in := range transaction.Inputs {
		if !in.PrevOut.IsZero() {
			p.spends[in.PrevOut] = txHash
		}
	}
	return nil
}

// Remove drops a transaction by hash.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

func (p *Pool) removeLocked(txHash types.Hash) {
	t, exists := p.txs[txHash]
	if !exists {
		return
	}
	for _, in := range t.Inputs {
		if !in.PrevOut.IsZero() {
			delete(p.spends, in.PrevOut)
		}
	}
	delete(p.txs, txHash)
}

// RemoveConfirmed drops every transaction that a newly admitted block
// carried, whether or not it originated from this mempool.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.Hash())
	}
}

// Has reports whether a transaction is pending.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a pending transaction, or nil if absent.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.txs[txHash]
}

// Count returns the number of pending transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Hashes returns the hashes of all pending transactions, in no particular
// order.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([]types.Hash, 0, len(p.txs))
	for h := range p.txs {
		hashes = append(hashes, h)
	}
	return hashes
}

// All returns every pending transaction, in no particular order. Intended
// for a block producer to hand the whole set to an epoch.Handler.
func (p *Pool) All() []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*tx.Transaction, 0, len(p.txs))
	for _, t := range p.txs {
		out = append(out, t)
	}
	return out
}
