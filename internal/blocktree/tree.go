// Package blocktree maintains the fork-aware tree of admitted blocks: one
// unspent-output snapshot per live leaf, pruned to a bounded depth behind
// the tallest leaf, with canonical tip selection by height and recency.
package blocktree

import (
	"errors"
	"sort"

	"github.com/vantage-ledger/epochchain/config"
	"github.com/vantage-ledger/epochchain/internal/epoch"
	"github.com/vantage-ledger/epochchain/internal/log"
	"github.com/vantage-ledger/epochchain/internal/uop"
	"github.com/vantage-ledger/epochchain/pkg/block"
	"github.com/vantage-ledger/epochchain/pkg/types"
)

// ErrNotGenesis is returned by New when the supplied block is not a valid
// genesis block (zero PrevHash, a coinbase with exactly one output).
var ErrNotGenesis = errors.New("block is not a valid genesis block")

// node is a retained block together with the unspent-output snapshot that
// results from applying it. Snapshots are never aliased between nodes.
type node struct {
	block  *block.Block
	uop    *uop.Pool
	height uint64
}

// leaf is a branch tip: a weak reference, by hash, into the node map.
type leaf struct {
	tipHash     types.Hash
	tipHeight   uint64
	lastUpdated uint64
}

// Tree is the fork-aware block tree rooted at a genesis block.
type Tree struct {
	nodes  map[types.Hash]*node
	leaves []*leaf
	clock  uint64
}

// New creates a Tree rooted at genesis. genesis must have a zero PrevHash
// and a coinbase with exactly one output; its UOP becomes that one output.
func New(genesis *block.Block) (*Tree, error) {
	if genesis == nil || genesis.Header == nil || !genesis.Header.PrevHash.IsZero() {
		return nil, ErrNotGenesis
	}
	if genesis.Coinbase == nil || len(genesis.Coinbase.Outputs) != 1 {
		return nil, ErrNotGenesis
	}

	pool := uop.New()
	out := genesis.Coinbase.Outputs[0]
	pool.Add(types.Outpoint{TxID: genesis.Coinbase.Hash(), Index: 0}, uop.Output{Value: out.Value, Script: out.Script})

	hash := genesis.Hash()
	t := &Tree{
		nodes: map[types.Hash]*node{
			hash: {block: genesis, uop: pool, height: genesis.Header.Height},
		},
	}
	t.leaves = []*leaf{{tipHash: hash, tipHeight: genesis.Header.Height, lastUpdated: t.stamp()}}
	return t, nil
}

// stamp returns the next value of the Tree's monotonic clock.
func (t *Tree) stamp() uint64 {
	t.clock++
	return t.clock
}

// MaxHeightBlock returns the block referenced by the max-height leaf.
func (t *Tree) MaxHeightBlock() *block.Block {
	return t.nodes[t.leaves[0].tipHash].block
}

// MaxHeightUOP returns a copy of the snapshot owned by the max-height leaf.
func (t *Tree) MaxHeightUOP() *uop.Pool {
	return t.nodes[t.leaves[0].tipHash].uop.Copy()
}

// AddBlock attempts to admit b as a child of its declared parent. It
// returns true iff b was admitted; rejection mutates no state.
func (t *Tree) AddBlock(b *block.Block) bool {
	if b == nil || b.Header == nil || b.Header.PrevHash.IsZero() {
		return false // No second genesis.
	}
	parent, ok := t.nodes[b.Header.PrevHash]
	if !ok {
		return false // Unknown parent, or pruned below the cut-off.
	}
	if b.Coinbase == nil || len(b.Coinbase.Outputs) == 0 {
		return false
	}

	h := epoch.New(parent.uop.Copy())
	accepted := h.HandleTxs(b.Transactions)
	if len(accepted) != len(b.Transactions) {
		return false
	}

	pool := h.Pool()
	coinbaseOut := b.Coinbase.Outputs[0]
	pool.Add(types.Outpoint{TxID: b.Coinbase.Hash(), Index: 0}, uop.Output{Value: coinbaseOut.Value, Script: coinbaseOut.Script})

	height := parent.height + 1
	hash := b.Hash()
	t.nodes[hash] = &node{block: b, uop: pool, height: height}

	t.updateLeaves(b.Header.PrevHash, hash, height)
	t.prune()

	log.BlockTree.Debug().
		Str("hash", hash.String()).
		Uint64("height", height).
		Msg("admitted block")

	return true
}

// updateLeaves replaces the leaf at parentHash with the new tip, or
// appends a new leaf if the parent was not itself a leaf (a fork point),
// then re-sorts under the height/lastUpdated comparator.
func (t *Tree) updateLeaves(parentHash, newHash types.Hash, newHeight uint64) {
	stamp := t.stamp()
	replaced := false
	for _, l := range t.leaves {
		if l.tipHash == parentHash {
			l.tipHash = newHash
			l.tipHeight = newHeight
			l.lastUpdated = stamp
			replaced = true
			break
		}
	}
	if !replaced {
		t.leaves = append(t.leaves, &leaf{tipHash: newHash, tipHeight: newHeight, lastUpdated: stamp})
	}

	sort.Slice(t.leaves, func(i, j int) bool {
		a, b := t.leaves[i], t.leaves[j]
		if a.tipHeight != b.tipHeight {
			return a.tipHeight > b.tipHeight
		}
		return a.lastUpdated > b.lastUpdated
	})
}

// prune destroys nodes that have fallen more than config.CutOffAge behind
// the tallest leaf, and drops leaves whose tip no longer exists.
func (t *Tree) prune() {
	maxHeight := t.leaves[0].tipHeight
	for hash, n := range t.nodes {
		if maxHeight >= config.CutOffAge && n.height+1 <= maxHeight-config.CutOffAge {
			delete(t.nodes, hash)
		}
	}

	live := t.leaves[:0]
	for _, l := range t.leaves {
		if _, ok := t.nodes[l.tipHash]; ok {
			live = append(live, l)
		}
	}
	t.leaves = live
}
