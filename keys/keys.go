// Package keys derives account signing keys from seeds.
//
// Private keys are derived from seeds via BLAKE2b-256 and expanded into
// ed25519 keypairs via BLAKE2b-512. The resulting keys are plain ed25519
// keys; signatures verify with crypto/ed25519.
package keys

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/solsticelabs/solstice/types"
)

// Keypair holds an account's signing material.
type Keypair struct {
	Public  types.Pubkey
	Private ed25519.PrivateKey
}

// FromSeed derives the keypair for a 32-byte seed.
func FromSeed(seed [32]byte) *Keypair {
	priv := blake2b.Sum256(seed[:])
	return fromPrivate(priv)
}

// FromSeedIndex derives the keypair for account index i under the seed,
// hashing seed || index_le64.
func FromSeedIndex(seed [32]byte, index uint64) (*Keypair, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("blake2b: %w", err)
	}
	h.Write(seed[:])
	var idx [8]byte
	for i := 0; i < 8; i++ {
		idx[i] = byte(index >> (8 * i))
	}
	h.Write(idx[:])
	var priv [32]byte
	copy(priv[:], h.Sum(nil))
	return fromPrivate(priv), nil
}

// fromPrivate expands a 32-byte private key with BLAKE2b-512 and builds the
// ed25519 keypair from the expansion.
func fromPrivate(priv [32]byte) *Keypair {
	expanded := blake2b.Sum512(priv[:])
	private := ed25519.NewKeyFromSeed(expanded[:32])
	var pub types.Pubkey
	copy(pub[:], private.Public().(ed25519.PublicKey))
	return &Keypair{Public: pub, Private: private}
}
