package bank

import (
	"lukechampine.com/blake3"

	"github.com/solsticelabs/solstice/types"
)

var zeroHash = types.Hash{}

func hashNodes(a, b types.Hash) types.Hash {
	h := blake3.New(32, nil)
	h.Write(a[:])
	h.Write(b[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// merkleize computes the binary merkle root of the leaves, padding to the
// next power of two with zero hashes.
func merkleize(leaves []types.Hash) types.Hash {
	n := len(leaves)
	if n == 0 {
		return zeroHash
	}
	width := nextPowerOfTwo(n)
	if width == 1 {
		return leaves[0]
	}

	level := make([]types.Hash, width)
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]types.Hash, len(level)/2)
		for i := range next {
			next[i] = hashNodes(level[i*2], level[i*2+1])
		}
		level = next
	}
	return level[0]
}

func nextPowerOfTwo(x int) int {
	if x <= 1 {
		return 1
	}
	n := x - 1
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}
