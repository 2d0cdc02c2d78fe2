package directory

import (
	"testing"

	"github.com/solsticelabs/solstice/types"
)

func TestTryInsert(t *testing.T) {
	d := New()
	key := types.Pubkey{1}

	if !d.TryInsert(key, 0) {
		t.Fatal("first insert rejected")
	}
	if d.TryInsert(key, 7) {
		t.Fatal("second insert accepted")
	}

	indices, found := d.Retrieve([]types.Pubkey{key})
	if !found[0] || indices[0] != 0 {
		t.Errorf("retrieve = (%d, %v), want (0, true)", indices[0], found[0])
	}
}

func TestRetrieveBatch(t *testing.T) {
	d := New()
	d.TryInsert(types.Pubkey{1}, 0)
	d.TryInsert(types.Pubkey{2}, 1)

	indices, found := d.Retrieve([]types.Pubkey{{2}, {3}, {1}})
	if !found[0] || indices[0] != 1 {
		t.Errorf("entry 0 = (%d, %v)", indices[0], found[0])
	}
	if found[1] {
		t.Error("unknown key reported found")
	}
	if !found[2] || indices[2] != 0 {
		t.Errorf("entry 2 = (%d, %v)", indices[2], found[2])
	}
	if d.Len() != 2 {
		t.Errorf("len = %d", d.Len())
	}
}
