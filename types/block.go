package types

import (
	"crypto/ed25519"

	ssz "github.com/ferranbt/fastssz"
	"lukechampine.com/blake3"
)

// MaxPayloadSize bounds the opaque payload carried by a block. The payload
// (transactions, opens, votes) is not interpreted by the consensus core.
const MaxPayloadSize = 1 << 20

// blockFixedSize is author(32) + slot(8) + parent(32) + payload_len(4) +
// state_root(32) + signature(64).
const blockFixedSize = 32 + 8 + 32 + 4 + 32 + 64

// Block is a consensus block. Genesis is the sole block with a zero parent
// and slot 0; every other block carries a defined parent.
type Block struct {
	Author     Pubkey
	Slot       Slot
	ParentRoot Hash
	Payload    []byte
	StateRoot  Hash
	Signature  Signature
}

// MarshalSSZ serializes the block into its canonical wire form: fixed-width
// little-endian integers, length-delimited payload, signature last.
func (b *Block) MarshalSSZ() ([]byte, error) {
	return b.MarshalSSZTo(make([]byte, 0, b.SizeSSZ()))
}

// MarshalSSZTo appends the canonical serialization of b to buf.
func (b *Block) MarshalSSZTo(buf []byte) ([]byte, error) {
	if len(b.Payload) > MaxPayloadSize {
		return nil, ssz.ErrBytesLength
	}
	dst := buf
	dst = append(dst, b.Author[:]...)
	dst = ssz.MarshalUint64(dst, uint64(b.Slot))
	dst = append(dst, b.ParentRoot[:]...)
	dst = ssz.MarshalUint32(dst, uint32(len(b.Payload)))
	dst = append(dst, b.Payload...)
	dst = append(dst, b.StateRoot[:]...)
	dst = append(dst, b.Signature[:]...)
	return dst, nil
}

// SizeSSZ returns the serialized size of the block.
func (b *Block) SizeSSZ() int {
	return blockFixedSize + len(b.Payload)
}

// UnmarshalSSZ deserializes a block from its canonical wire form.
func (b *Block) UnmarshalSSZ(buf []byte) error {
	if len(buf) < blockFixedSize {
		return ssz.ErrSize
	}
	copy(b.Author[:], buf[0:32])
	b.Slot = Slot(ssz.UnmarshallUint64(buf[32:40]))
	copy(b.ParentRoot[:], buf[40:72])
	payloadLen := ssz.UnmarshallUint32(buf[72:76])
	if payloadLen > MaxPayloadSize {
		return ssz.ErrBytesLength
	}
	if len(buf) != blockFixedSize+int(payloadLen) {
		return ssz.ErrSize
	}
	end := 76 + int(payloadLen)
	b.Payload = append([]byte(nil), buf[76:end]...)
	copy(b.StateRoot[:], buf[end:end+32])
	copy(b.Signature[:], buf[end+32:end+96])
	return nil
}

// SigningBytes returns the canonical serialization of every field before
// the signature, in declaration order. Signatures and hashes are computed
// over these bytes.
func (b *Block) SigningBytes() []byte {
	buf := make([]byte, 0, b.SizeSSZ()-64)
	buf = append(buf, b.Author[:]...)
	buf = ssz.MarshalUint64(buf, uint64(b.Slot))
	buf = append(buf, b.ParentRoot[:]...)
	buf = ssz.MarshalUint32(buf, uint32(len(b.Payload)))
	buf = append(buf, b.Payload...)
	buf = append(buf, b.StateRoot[:]...)
	return buf
}

// Hash returns the BLAKE3 hash of the block's signing bytes.
func (b *Block) Hash() Hash {
	return blake3.Sum256(b.SigningBytes())
}

// Sign signs the block with the given ed25519 private key.
func (b *Block) Sign(priv ed25519.PrivateKey) {
	copy(b.Signature[:], ed25519.Sign(priv, b.SigningBytes()))
}

// VerifySignature checks the block's signature against its author key.
func (b *Block) VerifySignature() bool {
	return ed25519.Verify(ed25519.PublicKey(b.Author[:]), b.SigningBytes(), b.Signature[:])
}

// IsGenesis reports whether the block is a genesis block (slot 0, no parent).
func (b *Block) IsGenesis() bool {
	return b.Slot == 0 && b.ParentRoot.IsZero()
}
