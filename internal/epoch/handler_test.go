package epoch

import (
	"testing"

	"github.com/vantage-ledger/epochchain/internal/uop"
	"github.com/vantage-ledger/epochchain/pkg/crypto"
	"github.com/vantage-ledger/epochchain/pkg/tx"
	"github.com/vantage-ledger/epochchain/pkg/types"
)

func script(addr types.Address) types.Script {
	return types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]}
}

// seedOutput inserts a spendable output owned by key into pool and returns
// the outpoint naming it.
func seedOutput(pool *uop.Pool, key *crypto.PrivateKey, value uint64) types.Outpoint {
	addr := crypto.AddressFromPubKey(key.PublicKey())
	o := types.Outpoint{TxID: crypto.Hash([]byte(addr.String())), Index: 0}
	pool.Add(o, uop.Output{Value: value, Script: script(addr)})
	return o
}

func spend(t *testing.T, key *crypto.PrivateKey, in types.Outpoint, value uint64, payee types.Address) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder().AddInput(in).AddOutput(value, script(payee))
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return b.Build()
}

func TestIsValidTx_Valid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	pool := uop.New()
	in := seedOutput(pool, key, 1000)
	h := New(pool)

	txn := spend(t, key, in, 900, types.Address{0x42})
	if !h.IsValidTx(txn) {
		t.Error("valid spend should be accepted")
	}
}

func TestIsValidTx_MissingInput(t *testing.T) {
	key, _ := crypto.GenerateKey()
	pool := uop.New()
	h := New(pool)

	txn := spend(t, key, types.Outpoint{TxID: types.Hash{0x99}}, 100, types.Address{0x42})
	if h.IsValidTx(txn) {
		t.Error("spend of a non-existent UOR should be rejected")
	}
}

func TestIsValidTx_WrongKey(t *testing.T) {
	owner, _ := crypto.GenerateKey()
	impostor, _ := crypto.GenerateKey()
	pool := uop.New()
	in := seedOutput(pool, owner, 1000)
	h := New(pool)

	txn := spend(t, impostor, in, 900, types.Address{0x42})
	if h.IsValidTx(txn) {
		t.Error("spend signed by the wrong key should be rejected")
	}
}

func TestIsValidTx_OutputsExceedInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	pool := uop.New()
	in := seedOutput(pool, key, 100)
	h := New(pool)

	txn := spend(t, key, in, 1000, types.Address{0x42})
	if h.IsValidTx(txn) {
		t.Error("spend whose outputs exceed its inputs should be rejected")
	}
}

func TestIsValidTx_IntraTxDoubleSpend(t *testing.T) {
	key, _ := crypto.GenerateKey()
	pool := uop.New()
	in := seedOutput(pool, key, 1000)
	h := New(pool)

	b := tx.NewBuilder().
		AddInput(in).
		AddInput(in).
		AddOutput(500, script(types.Address{0x42}))
	b.Sign(key)
	txn := b.Build()

	if h.IsValidTx(txn) {
		t.Error("transaction claiming the same UOR twice should be rejected")
	}
}

func TestHandleTxs_AcceptsIndependentValidTxs(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	pool := uop.New()
	in1 := seedOutput(pool, key1, 1000)
	in2 := seedOutput(pool, key2, 2000)
	h := New(pool)

	t1 := spend(t, key1, in1, 900, types.Address{0x01})
	t2 := spend(t, key2, in2, 1900, types.Address{0x02})

	accepted := h.HandleTxs([]*tx.Transaction{t1, t2})
	if len(accepted) != 2 {
		t.Fatalf("accepted = %d, want 2", len(accepted))
	}
	if pool.Contains(in1) || pool.Contains(in2) {
		t.Error("spent inputs should be removed from the pool")
	}
}

func TestHandleTxs_RejectsInvalidCandidate(t *testing.T) {
	key, _ := crypto.GenerateKey()
	pool := uop.New()
	in := seedOutput(pool, key, 100)
	h := New(pool)

	bad := spend(t, key, in, 1000, types.Address{0x01}) // outputs exceed input

	accepted := h.HandleTxs([]*tx.Transaction{bad})
	if len(accepted) != 0 {
		t.Errorf("invalid candidate should not be accepted, got %d", len(accepted))
	}
	if !pool.Contains(in) {
		t.Error("rejected candidate must not mutate the pool")
	}
}

func TestHandleTxs_ChainedDependencyWithinBatch(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	pool := uop.New()
	in1 := seedOutput(pool, key1, 1000)
	h := New(pool)

	addr2 := crypto.AddressFromPubKey(key2.PublicKey())
	parent := spend(t, key1, in1, 900, addr2)

	childOut := types.Outpoint{TxID: parent.Hash(), Index: 0}
	child := spend(t, key2, childOut, 800, types.Address{0x03})

	accepted := h.HandleTxs([]*tx.Transaction{parent, child})
	if len(accepted) != 2 {
		t.Fatalf("both parent and child should be accepted, got %d", len(accepted))
	}
	if pool.Contains(childOut) {
		t.Error("parent's output consumed within the batch should not remain unspent")
	}
}

func TestHandleTxs_DependentRemovedWithInvalidParent(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	pool := uop.New()
	in1 := seedOutput(pool, key1, 100)
	h := New(pool)

	addr2 := crypto.AddressFromPubKey(key2.PublicKey())
	// Parent tries to spend more than it has: invalid.
	badParent := spend(t, key1, in1, 1000, addr2)

	childOut := types.Outpoint{TxID: badParent.Hash(), Index: 0}
	child := spend(t, key2, childOut, 500, types.Address{0x03})

	accepted := h.HandleTxs([]*tx.Transaction{badParent, child})
	if len(accepted) != 0 {
		t.Errorf("both parent and dependent child should be dropped, got %d accepted", len(accepted))
	}
}

func TestHandleTxs_DoubleSpendResolvesToExactlyOne(t *testing.T) {
	key, _ := crypto.GenerateKey()
	pool := uop.New()
	in := seedOutput(pool, key, 1000)
	h := New(pool)

	candidateA := spend(t, key, in, 500, types.Address{0x01})
	candidateB := spend(t, key, in, 600, types.Address{0x02})

	accepted := h.HandleTxs([]*tx.Transaction{candidateA, candidateB})
	if len(accepted) != 1 {
		t.Fatalf("exactly one double-spending candidate should survive, got %d", len(accepted))
	}
	if pool.Contains(in) {
		t.Error("the winning candidate's input should be spent")
	}
}

func TestHandleTxs_DoubleSpendDependencyCollapse(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	pool := uop.New()
	in := seedOutput(pool, key1, 1000)
	h := New(pool)

	addr2 := crypto.AddressFromPubKey(key2.PublicKey())
	// A claims `in` directly.
	a := spend(t, key1, in, 500, addr2)
	aOut := types.Outpoint{TxID: a.Hash(), Index: 0}

	// B also claims `in` directly (conflicts with A) but additionally
	// spends A's own output, making B a transitive dependent of A within
	// the very conflict group {A, B} over `in`.
	bb := tx.NewBuilder().
		AddInput(in).
		AddInput(aOut).
		AddOutput(300, script(types.Address{0x09}))
	bb.SignMulti(
		map[types.Address]*crypto.PrivateKey{
			crypto.AddressFromPubKey(key1.PublicKey()): key1,
			addr2: key2,
		},
		map[types.Outpoint]types.Address{
			in:   crypto.AddressFromPubKey(key1.PublicKey()),
			aOut: addr2,
		},
	)
	b := bb.Build()

	accepted := h.HandleTxs([]*tx.Transaction{a, b})

	byHash := make(map[types.Hash]bool)
	for _, acc := range accepted {
		byHash[acc.Hash()] = true
	}
	if len(accepted) != 1 {
		t.Fatalf("conflict group should collapse to exactly one claimant, got %d", len(accepted))
	}
	if !byHash[a.Hash()] || byHash[b.Hash()] {
		t.Error("the dependent claimant (B) should be the one dropped by dependency-collapse")
	}
}

func TestHandleTxs_EmptyBatch(t *testing.T) {
	h := New(uop.New())
	if got := h.HandleTxs(nil); got != nil {
		t.Errorf("empty batch should return nil, got %v", got)
	}
}
