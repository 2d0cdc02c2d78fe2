package types

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) (Pubkey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pk Pubkey
	copy(pk[:], pub)
	return pk, priv
}

func testBlock(t *testing.T, priv ed25519.PrivateKey, author Pubkey) *Block {
	t.Helper()
	b := &Block{
		Author:     author,
		Slot:       7,
		ParentRoot: Hash{0xaa, 0xbb},
		Payload:    []byte("opaque payload"),
		StateRoot:  Hash{0x11},
	}
	b.Sign(priv)
	return b
}

func TestBlockRoundTrip(t *testing.T) {
	author, priv := testKey(t)
	b := testBlock(t, priv, author)

	data, err := b.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded := new(Block)
	if err := decoded.UnmarshalSSZ(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	redata, err := decoded.MarshalSSZ()
	if err != nil {
		t.Fatalf("remarshal: %v", err)
	}
	if !bytes.Equal(data, redata) {
		t.Error("serialize/deserialize is not byte-stable")
	}
	if decoded.Hash() != b.Hash() {
		t.Error("hash changed across round trip")
	}
}

func TestBlockRoundTripEmptyPayload(t *testing.T) {
	author, priv := testKey(t)
	b := &Block{Author: author, Slot: 1, ParentRoot: Hash{1}}
	b.Sign(priv)

	data, err := b.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded := new(Block)
	if err := decoded.UnmarshalSSZ(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Slot != 1 || len(decoded.Payload) != 0 {
		t.Errorf("decoded block mismatch: %+v", decoded)
	}
}

func TestBlockUnmarshalTruncated(t *testing.T) {
	author, priv := testKey(t)
	data, _ := testBlock(t, priv, author).MarshalSSZ()

	decoded := new(Block)
	if err := decoded.UnmarshalSSZ(data[:len(data)-1]); err == nil {
		t.Error("expected error for truncated input")
	}
	if err := decoded.UnmarshalSSZ(nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestBlockHashExcludesSignature(t *testing.T) {
	author, priv := testKey(t)
	b := testBlock(t, priv, author)
	hash := b.Hash()

	b.Signature[0] ^= 0xff
	if b.Hash() != hash {
		t.Error("hash must not depend on the signature")
	}
}

func TestBlockSignVerify(t *testing.T) {
	author, priv := testKey(t)
	b := testBlock(t, priv, author)

	if !b.VerifySignature() {
		t.Fatal("valid signature rejected")
	}
	b.Slot++
	if b.VerifySignature() {
		t.Error("signature valid after mutating slot")
	}
}

func TestVoteRoundTrip(t *testing.T) {
	author, priv := testKey(t)
	v := &Vote{
		Author: author,
		Source: Pair{Root: Hash{1}, Slot: 3},
		Target: Pair{Root: Hash{2}, Slot: 9},
	}
	v.Sign(priv)

	data, err := v.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) != v.SizeSSZ() {
		t.Fatalf("size mismatch: %d != %d", len(data), v.SizeSSZ())
	}

	decoded := new(Vote)
	if err := decoded.UnmarshalSSZ(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	redata, _ := decoded.MarshalSSZ()
	if !bytes.Equal(data, redata) {
		t.Error("serialize/deserialize is not byte-stable")
	}
	if !decoded.VerifySignature() {
		t.Error("signature broken across round trip")
	}
	if decoded.Slot() != 9 {
		t.Errorf("vote slot = %d, want target slot 9", decoded.Slot())
	}
}

func TestShredNoteRoundTrip(t *testing.T) {
	s := &ShredNote{
		BlockHash:   Hash{0xab},
		ShredIndex:  3,
		TotalShreds: 16,
		Data:        []byte("fragment"),
	}
	data, err := s.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded := new(ShredNote)
	if err := decoded.UnmarshalSSZ(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	redata, _ := decoded.MarshalSSZ()
	if !bytes.Equal(data, redata) {
		t.Error("serialize/deserialize is not byte-stable")
	}
	if decoded.ShredIndex != 3 || decoded.TotalShreds != 16 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestEpochMath(t *testing.T) {
	if e := Slot(0).EpochOf(10); e != 0 {
		t.Errorf("slot 0 epoch = %d", e)
	}
	if e := Slot(9).EpochOf(10); e != 0 {
		t.Errorf("slot 9 epoch = %d", e)
	}
	if e := Slot(10).EpochOf(10); e != 1 {
		t.Errorf("slot 10 epoch = %d", e)
	}
	if s := Epoch(2).Start(10); s != 20 {
		t.Errorf("epoch 2 start = %d", s)
	}
	if s := Epoch(2).End(10); s != 30 {
		t.Errorf("epoch 2 end = %d", s)
	}
}

func TestHashCompare(t *testing.T) {
	a := Hash{1}
	b := Hash{2}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Error("hash comparison is not lexicographic")
	}
}
