// Package block defines block types and validation.
package block

import "github.com/vantage-ledger/epochchain/pkg/tx"

// Block represents a block in the chain. Coinbase is structurally distinct
// from the rest of the transactions rather than a convention of list order.
type Block struct {
	Header       *Header           `json:"header"`
	Coinbase     *tx.Transaction   `json:"coinbase"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a new block with the given header, coinbase, and transactions.
func NewBlock(header *Header, coinbase *tx.Transaction, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Coinbase:     coinbase,
		Transactions: txs,
	}
}
