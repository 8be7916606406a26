package uop

import (
	"encoding/binary"
	"sort"

	"github.com/vantage-ledger/epochchain/pkg/block"
	"github.com/vantage-ledger/epochchain/pkg/crypto"
	"github.com/vantage-ledger/epochchain/pkg/types"
)

// Commitment computes a merkle root over every entry in the pool. Each
// entry is hashed deterministically, the hashes are sorted, and a merkle
// tree is built from them, so two pools with identical contents always
// produce the same commitment regardless of map iteration order. Returns
// the zero hash for an empty pool.
func (p *Pool) Commitment() types.Hash {
	if len(p.entries) == 0 {
		return types.Hash{}
	}

	hashes := make([]types.Hash, 0, len(p.entries))
	for o, out := range p.entries {
		hashes = append(hashes, hashEntry(o, out))
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashLess(hashes[i], hashes[j])
	})

	return block.ComputeMerkleRoot(hashes)
}

// hashEntry produces a deterministic BLAKE3 hash of a pool entry.
// Format: txid(32) | index(4) | value(8) | script_type(1) | script_data
func hashEntry(o types.Outpoint, out Output) types.Hash {
	var buf []byte
	buf = append(buf, o.TxID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, o.Index)
	buf = binary.LittleEndian.AppendUint64(buf, out.Value)
	buf = append(buf, byte(out.Script.Type))
	buf = append(buf, out.Script.Data...)
	return crypto.Hash(buf)
}

func hashLess(a, b types.Hash) bool {
	for i := 0; i < types.HashSize; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
