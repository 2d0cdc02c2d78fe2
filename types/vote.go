package types

import (
	"crypto/ed25519"

	ssz "github.com/ferranbt/fastssz"
	"lukechampine.com/blake3"
)

// voteSize is author(32) + source_hash(32) + source_slot(8) +
// target_hash(32) + target_slot(8) + signature(64).
const voteSize = 32 + 32 + 8 + 32 + 8 + 64

// Vote is a representative's vote from a source pair to a target pair.
// A vote's slot is its target slot.
type Vote struct {
	Author    Pubkey
	Source    Pair
	Target    Pair
	Signature Signature
}

// Slot returns the vote's slot, which equals its target slot.
func (v *Vote) Slot() Slot { return v.Target.Slot }

// MarshalSSZ serializes the vote into its canonical wire form.
func (v *Vote) MarshalSSZ() ([]byte, error) {
	return v.MarshalSSZTo(make([]byte, 0, voteSize))
}

// MarshalSSZTo appends the canonical serialization of v to buf.
func (v *Vote) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst := buf
	dst = append(dst, v.Author[:]...)
	dst = append(dst, v.Source.Root[:]...)
	dst = ssz.MarshalUint64(dst, uint64(v.Source.Slot))
	dst = append(dst, v.Target.Root[:]...)
	dst = ssz.MarshalUint64(dst, uint64(v.Target.Slot))
	dst = append(dst, v.Signature[:]...)
	return dst, nil
}

// SizeSSZ returns the serialized size of the vote.
func (v *Vote) SizeSSZ() int { return voteSize }

// UnmarshalSSZ deserializes a vote from its canonical wire form.
func (v *Vote) UnmarshalSSZ(buf []byte) error {
	if len(buf) != voteSize {
		return ssz.ErrSize
	}
	copy(v.Author[:], buf[0:32])
	copy(v.Source.Root[:], buf[32:64])
	v.Source.Slot = Slot(ssz.UnmarshallUint64(buf[64:72]))
	copy(v.Target.Root[:], buf[72:104])
	v.Target.Slot = Slot(ssz.UnmarshallUint64(buf[104:112]))
	copy(v.Signature[:], buf[112:176])
	return nil
}

// SigningBytes returns the canonical serialization of every field before
// the signature, in declaration order.
func (v *Vote) SigningBytes() []byte {
	buf := make([]byte, 0, voteSize-64)
	buf = append(buf, v.Author[:]...)
	buf = append(buf, v.Source.Root[:]...)
	buf = ssz.MarshalUint64(buf, uint64(v.Source.Slot))
	buf = append(buf, v.Target.Root[:]...)
	buf = ssz.MarshalUint64(buf, uint64(v.Target.Slot))
	return buf
}

// Hash returns the BLAKE3 hash of the vote's signing bytes.
func (v *Vote) Hash() Hash {
	return blake3.Sum256(v.SigningBytes())
}

// Sign signs the vote with the given ed25519 private key.
func (v *Vote) Sign(priv ed25519.PrivateKey) {
	copy(v.Signature[:], ed25519.Sign(priv, v.SigningBytes()))
}

// VerifySignature checks the vote's signature against its author key.
func (v *Vote) VerifySignature() bool {
	return ed25519.Verify(ed25519.PublicKey(v.Author[:]), v.SigningBytes(), v.Signature[:])
}
