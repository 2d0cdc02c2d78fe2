package bank

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/types"
)

func testBank(t *testing.T) *Bank {
	t.Helper()
	b := New(nil)
	accounts := []Account{
		{Key: types.Pubkey{1}, Representative: types.Pubkey{1}},
		{Key: types.Pubkey{2}, Representative: types.Pubkey{1}},
		{Key: types.Pubkey{3}, Representative: types.Pubkey{3}},
	}
	balances := []uint64{100, 50, 10}
	for i, acct := range accounts {
		acct.Balance = *uint256.NewInt(balances[i])
		if _, err := b.PushAccount(acct); err != nil {
			t.Fatalf("push account: %v", err)
		}
	}
	return b
}

func TestWeightAggregation(t *testing.T) {
	b := testBank(t)

	// Accounts 1 and 2 delegate to rep 1: 100 + 50.
	if w := b.WeightOf(types.Pubkey{1}); w.Uint64() != 150 {
		t.Errorf("rep 1 weight = %d, want 150", w.Uint64())
	}
	if w := b.WeightOf(types.Pubkey{3}); w.Uint64() != 10 {
		t.Errorf("rep 3 weight = %d, want 10", w.Uint64())
	}
	if w := b.WeightOf(types.Pubkey{9}); !w.IsZero() {
		t.Errorf("unknown rep weight = %d, want 0", w.Uint64())
	}
}

func TestTransferLifecycle(t *testing.T) {
	b := testBank(t)
	id := TransferID{0xaa}

	if err := b.QueueTransfer(id, 0, 2, uint256.NewInt(40)); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if acct, _ := b.Account(0); acct.Balance.Uint64() != 60 {
		t.Errorf("sender balance = %d, want 60", acct.Balance.Uint64())
	}
	if w := b.WeightOf(types.Pubkey{1}); w.Uint64() != 110 {
		t.Errorf("rep 1 weight after debit = %d, want 110", w.Uint64())
	}

	if err := b.FinishTransfer(id); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if acct, _ := b.Account(2); acct.Balance.Uint64() != 50 {
		t.Errorf("recipient balance = %d, want 50", acct.Balance.Uint64())
	}
	if w := b.WeightOf(types.Pubkey{3}); w.Uint64() != 50 {
		t.Errorf("rep 3 weight after credit = %d, want 50", w.Uint64())
	}

	if err := b.FinalizeTransfer(id); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := b.FinalizeTransfer(id); !errors.Is(err, ErrUnknownTransfer) {
		t.Errorf("double finalize = %v, want ErrUnknownTransfer", err)
	}
}

func TestRevertTransfer(t *testing.T) {
	b := testBank(t)
	id := TransferID{0xbb}
	rootBefore := b.StateRoot()

	if err := b.QueueTransfer(id, 0, 2, uint256.NewInt(40)); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := b.RevertTransfer(id, false); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if b.StateRoot() != rootBefore {
		t.Error("state root changed after queue+revert")
	}
}

func TestQueueTransferInsufficient(t *testing.T) {
	b := testBank(t)
	err := b.QueueTransfer(TransferID{1}, 2, 0, uint256.NewInt(1000))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestChangeRep(t *testing.T) {
	b := testBank(t)
	if err := b.FinalizeChangeRep(1, types.Pubkey{3}); err != nil {
		t.Fatalf("change rep: %v", err)
	}
	if w := b.WeightOf(types.Pubkey{1}); w.Uint64() != 100 {
		t.Errorf("rep 1 weight = %d, want 100", w.Uint64())
	}
	if w := b.WeightOf(types.Pubkey{3}); w.Uint64() != 60 {
		t.Errorf("rep 3 weight = %d, want 60", w.Uint64())
	}
}

func TestStateRootTracksState(t *testing.T) {
	b := testBank(t)
	root := b.StateRoot()
	if root == (types.Hash{}) {
		t.Fatal("state root is zero for non-empty table")
	}
	if b.StateRoot() != root {
		t.Error("state root not deterministic")
	}
	if err := b.QueueTransfer(TransferID{2}, 0, 1, uint256.NewInt(1)); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if b.StateRoot() == root {
		t.Error("state root unchanged after balance change")
	}
}

func TestPushPopAccount(t *testing.T) {
	b := testBank(t)
	root := b.StateRoot()

	if _, err := b.PushAccount(Account{Key: types.Pubkey{4}, Balance: *uint256.NewInt(5), Representative: types.Pubkey{1}}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if w := b.WeightOf(types.Pubkey{1}); w.Uint64() != 155 {
		t.Errorf("weight after push = %d, want 155", w.Uint64())
	}
	if err := b.PopAccount(); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if b.StateRoot() != root {
		t.Error("state root changed after push+pop")
	}
	if _, err := b.PushAccount(Account{Key: types.Pubkey{1}}); !errors.Is(err, ErrAccountExists) {
		t.Errorf("duplicate push = %v, want ErrAccountExists", err)
	}
}

func TestSnapshotPrincipals(t *testing.T) {
	b := testBank(t)
	snap := b.Snapshot(uint256.NewInt(20))

	if !snap.IsPrincipal(types.Pubkey{1}) {
		t.Error("rep 1 (weight 150) not principal at threshold 20")
	}
	if snap.IsPrincipal(types.Pubkey{3}) {
		t.Error("rep 3 (weight 10) principal at threshold 20")
	}
	if snap.TotalPrincipalWeight.Uint64() != 150 {
		t.Errorf("total principal weight = %d, want 150", snap.TotalPrincipalWeight.Uint64())
	}
	if snap.StateRoot != b.StateRoot() {
		t.Error("snapshot root mismatch")
	}

	// Snapshot is immutable under later bank mutation.
	if err := b.FinalizeChangeRep(0, types.Pubkey{3}); err != nil {
		t.Fatalf("change rep: %v", err)
	}
	if w, _ := snap.Weight(types.Pubkey{1}); w.Uint64() != 150 {
		t.Error("snapshot weight mutated by bank change")
	}
}

func TestSnapshotStore(t *testing.T) {
	b := testBank(t)
	st := NewSnapshotStore()
	snap := b.Snapshot(uint256.NewInt(0))
	st.Put(snap)

	got, ok := st.Get(snap.StateRoot)
	if !ok || got != snap {
		t.Error("snapshot not retrievable by root")
	}
	if _, ok := st.Get(types.Hash{0xff}); ok {
		t.Error("unknown root retrievable")
	}
}
