package memory

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/bank"
	"github.com/solsticelabs/solstice/types"
)

func TestFinalizedSequence(t *testing.T) {
	s := New()

	if _, ok, err := s.FinalizedHead(); err != nil || ok {
		t.Fatalf("head of empty store = %v, %v", ok, err)
	}

	b1 := &types.Block{Slot: 1, StateRoot: types.Hash{1}}
	b2 := &types.Block{Slot: 2, StateRoot: types.Hash{2}}
	if err := s.PutFinalizedBlock(b2); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutFinalizedBlock(b1); err != nil {
		t.Fatalf("put: %v", err)
	}

	head, ok, err := s.FinalizedHead()
	if err != nil || !ok || head != 2 {
		t.Errorf("head = %d %v %v, want 2", head, ok, err)
	}
	got, ok, err := s.FinalizedBlock(1)
	if err != nil || !ok || got.StateRoot != b1.StateRoot {
		t.Errorf("block at slot 1 = %+v %v %v", got, ok, err)
	}
	if _, ok, _ := s.FinalizedBlock(9); ok {
		t.Error("missing slot reported present")
	}
}

func TestAccountTable(t *testing.T) {
	s := New()
	root := types.Hash{0x42}
	accounts := []bank.Account{
		{Key: types.Pubkey{1}, Balance: *uint256.NewInt(7), Representative: types.Pubkey{2}},
	}
	if err := s.PutAccountTable(root, accounts); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.AccountTable(root)
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if len(got) != 1 || got[0].Balance.Uint64() != 7 {
		t.Errorf("table = %+v", got)
	}

	// The stored copy is isolated from caller mutation.
	accounts[0].Balance = *uint256.NewInt(99)
	got, _, _ = s.AccountTable(root)
	if got[0].Balance.Uint64() != 7 {
		t.Error("stored table aliases caller slice")
	}
}
