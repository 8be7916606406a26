package blocktree

import (
	"fmt"
	"sort"

	"github.com/vantage-ledger/epochchain/pkg/block"
	"github.com/vantage-ledger/epochchain/pkg/tx"
	"github.com/vantage-ledger/epochchain/pkg/types"
)

// NewGenesisBlock builds the genesis block: height 1, a zero PrevHash, and
// a coinbase distributing the initial allocation across addresses. Addresses
// may be bech32 or raw hex, same as everywhere else addresses are parsed.
func NewGenesisBlock(alloc map[string]uint64, timestamp uint64) (*block.Block, error) {
	coinbase, err := buildGenesisCoinbase(alloc)
	if err != nil {
		return nil, fmt.Errorf("build genesis coinbase: %w", err)
	}

	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   types.Hash{},
		MerkleRoot: block.ComputeMerkleRoot([]types.Hash{coinbase.Hash()}),
		Timestamp:  timestamp,
		Height:     1,
	}

	return block.NewBlock(header, coinbase, nil), nil
}

func buildGenesisCoinbase(alloc map[string]uint64) (*tx.Transaction, error) {
	addrs := make([]string, 0, len(alloc))
	for addr := range alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var outputs []tx.Output
	for _, addrStr := range addrs {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		outputs = append(outputs, tx.Output{
			Value:  alloc[addrStr],
			Script: types.Script{Type: types.ScriptTypeP2PKH, Data: addr.Bytes()},
		})
	}
	if len(outputs) == 0 {
		outputs = []tx.Output{{
			Value:  0,
			Script: types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)},
		}}
	}

	return &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{}}},
		Outputs: outputs,
	}, nil
}
