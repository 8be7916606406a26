// Package config holds the consensus-critical constants shared by the
// transaction, block, and block-tree packages.
package config

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize  = 2_000_000 // 2 MB max block size (header + coinbase + all tx signing bytes)
	MaxBlockTxs   = 500       // Max non-coinbase transactions per block
	MaxTxInputs   = 2500      // Max inputs per transaction
	MaxTxOutputs  = 2500      // Max outputs per transaction
	MaxScriptData = 65_536    // 64 KB max script data per output
)

// CutOffAge bounds how far behind the tallest leaf a block-tree node may
// lag before it is pruned. A node at height h is destroyed once the
// tallest leaf reaches height h + CutOffAge + 1.
const CutOffAge = 10
