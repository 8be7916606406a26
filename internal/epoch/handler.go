// Package epoch implements the transaction handler: validating individual
// transactions against an unspent-output pool and selecting a maximal
// mutually-consistent subset from an unordered batch of candidates.
package epoch

import (
	"math"

	"github.com/vantage-ledger/epochchain/internal/log"
	"github.com/vantage-ledger/epochchain/internal/uop"
	"github.com/vantage-ledger/epochchain/pkg/crypto"
	"github.com/vantage-ledger/epochchain/pkg/tx"
	"github.com/vantage-ledger/epochchain/pkg/types"
)

// Handler owns one live unspent-output pool and validates/accepts
// transactions against it.
type Handler struct {
	pool *uop.Pool
}

// New creates a Handler over the given pool. The Handler takes ownership:
// HandleTxs mutates pool in place.
func New(pool *uop.Pool) *Handler {
	return &Handler{pool: pool}
}

// Pool returns the live pool owned by this handler.
func (h *Handler) Pool() *uop.Pool {
	return h.pool
}

// IsValidTx reports whether t is acceptable against the live pool: every
// input claims an existing, unconflicted UOR whose payee signs off on t,
// and the input total covers the output total.
func (h *Handler) IsValidTx(t *tx.Transaction) bool {
	return isValidAgainst(t, h.pool)
}

// isValidAgainst checks t against an arbitrary pool, without mutating it.
func isValidAgainst(t *tx.Transaction, pool *uop.Pool) bool {
	seen := make(map[types.Outpoint]bool, len(t.Inputs))
	var totalIn uint64

	for i, in := range t.Inputs {
		if seen[in.PrevOut] {
			return false // intra-transaction double-spend.
		}
		seen[in.PrevOut] = true

		out, exists := pool.Get(in.PrevOut)
		var payee types.Address
		if exists {
			copy(payee[:], out.Script.Data)
		}
		// When the UOR is absent, payee stays the null address: the
		// signature is still checked, against a payee that can never
		// match a real public key, so this always ends up false.
		sigHash := crypto.Hash(t.RawDataToSign(i))
		if !crypto.VerifySignature(sigHash[:], in.Signature, in.PubKey) {
			return false
		}
		if crypto.AddressFromPubKey(in.PubKey) != payee {
			return false
		}
		if !exists {
			return false
		}

		if totalIn > math.MaxUint64-out.Value {
			return false
		}
		totalIn += out.Value
	}

	var totalOut uint64
	for _, out := range t.Outputs {
		if totalOut > math.MaxUint64-out.Value {
			return false
		}
		totalOut += out.Value
	}

	return totalIn >= totalOut
}

// record is a candidate's entry in the dependency index built during
// Phase 0: it tracks who, among the same batch, spends its outputs.
type record struct {
	tx         *tx.Transaction
	dependents []types.Hash
}

// HandleTxs selects a maximal mutually-consistent subset of candidates and
// commits it to the live pool. The returned slice is in no particular
// order. Candidates that are dropped are simply absent from the result;
// HandleTxs never panics and never returns an error.
func (h *Handler) HandleTxs(candidates []*tx.Transaction) []*tx.Transaction {
	if len(candidates) == 0 {
		return nil
	}

	// Phase 0: dependency indexing.
	index := make(map[types.Hash]*record, len(candidates))
	for _, c := range candidates {
		index[c.Hash()] = &record{tx: c}
	}
	for hsh, rec := range index {
		for _, in := range rec.tx.Inputs {
			if parent, ok := index[in.PrevOut.TxID]; ok {
				parent.dependents = append(parent.dependents, hsh)
			}
		}
	}

	alive := make(map[types.Hash]bool, len(index))
	for hsh := range index {
		alive[hsh] = true
	}

	// Phase 1: self-inconsistency removal. A candidate is checked against
	// the live pool augmented with every candidate's own outputs, so that
	// a transaction may spend another candidate's not-yet-committed output.
	hypothetical := h.pool.Copy()
	for hsh, rec := range index {
		for i, out := range rec.tx.Outputs {
			hypothetical.Add(types.Outpoint{TxID: hsh, Index: uint32(i)}, uop.Output{Value: out.Value, Script: out.Script})
		}
	}

	var failing []types.Hash
	for hsh, rec := range index {
		if !isValidAgainst(rec.tx, hypothetical) {
			failing = append(failing, hsh)
		}
	}
	for _, f := range failing {
		removeWithDependents(f, alive, index)
	}

	// Phase 2: double-spend resolution among survivors.
	resolveDoubleSpends(alive, index)

	// Phase 3: commit. Insert every surviving output, then remove every
	// claimed input; insert-all-then-remove-all tolerates a surviving
	// transaction consuming another surviving transaction's output.
	survivors := make([]*tx.Transaction, 0, len(alive))
	for hsh, isAlive := range alive {
		if isAlive {
			survivors = append(survivors, index[hsh].tx)
		}
	}
	for _, t := range survivors {
		th := t.Hash()
		for i, out := range t.Outputs {
			h.pool.Add(types.Outpoint{TxID: th, Index: uint32(i)}, uop.Output{Value: out.Value, Script: out.Script})
		}
	}
	for _, t := range survivors {
		for _, in := range t.Inputs {
			h.pool.Remove(in.PrevOut)
		}
	}

	log.Epoch.Debug().
		Int("candidates", len(candidates)).
		Int("accepted", len(survivors)).
		Msg("handled batch")

	return survivors
}

// removeWithDependents drops start and every transitive dependent from
// alive, using an explicit worklist rather than recursion.
func removeWithDependents(start types.Hash, alive map[types.Hash]bool, index map[types.Hash]*record) {
	stack := []types.Hash{start}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if !alive[cur] {
			continue
		}
		alive[cur] = false
		if rec, ok := index[cur]; ok {
			stack = append(stack, rec.dependents...)
		}
	}
}

// conflictGroups returns, for every UOR claimed by more than one surviving
// candidate, the set of candidates claiming it.
func conflictGroups(alive map[types.Hash]bool, index map[types.Hash]*record) map[types.Outpoint][]types.Hash {
	groups := make(map[types.Outpoint][]types.Hash)
	for hsh, isAlive := range alive {
		if !isAlive {
			continue
		}
		for _, in := range index[hsh].tx.Inputs {
			groups[in.PrevOut] = append(groups[in.PrevOut], hsh)
		}
	}
	for o, members := range groups {
		if len(members) <= 1 {
			delete(groups, o)
		}
	}
	return groups
}

// resolveDoubleSpends drops members of every conflict group until at most
// one claimant of each UOR survives. It first collapses any member that is
// itself a dependent of another member of its own group, re-synchronizing
// after every removal, then breaks remaining ties arbitrarily.
func resolveDoubleSpends(alive map[types.Hash]bool, index map[types.Hash]*record) {
	for {
		groups := conflictGroups(alive, index)
		if len(groups) == 0 {
			return
		}

		collapsed := false
		for _, members := range groups {
			for _, m := range members {
				if !alive[m] {
					continue
				}
				if isDependentOfOther(m, members, alive, index) {
					removeWithDependents(m, alive, index)
					collapsed = true
				}
			}
		}
		if collapsed {
			continue // re-sync: groups may have changed shape.
		}

		progressed := false
		for _, members := range groups {
			var survivors []types.Hash
			for _, m := range members {
				if alive[m] {
					survivors = append(survivors, m)
				}
			}
			if len(survivors) < 2 {
				continue // already resolved by an earlier removal in this pass.
			}
			for _, m := range survivors[1:] {
				removeWithDependents(m, alive, index)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// isDependentOfOther reports whether m is a transitive dependent of some
// other alive member of the same conflict group.
func isDependentOfOther(m types.Hash, members []types.Hash, alive map[types.Hash]bool, index map[types.Hash]*record) bool {
	for _, other := range members {
		if other == m || !alive[other] {
			continue
		}
		if reachable(other, m, index) {
			return true
		}
	}
	return false
}

// reachable reports whether to is a descendant of from via dependent edges.
func reachable(from, to types.Hash, index map[types.Hash]*record) bool {
	visited := make(map[types.Hash]bool)
	stack := []types.Hash{from}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		rec, ok := index[cur]
		if !ok {
			continue
		}
		for _, d := range rec.dependents {
			if d == to {
				return true
			}
			if !visited[d] {
				stack = append(stack, d)
			}
		}
	}
	return false
}
