// Package directory maps account public keys to their durable integer
// indices. Lookups are batched; insertion is first-writer-wins.
package directory

import (
	"sync"

	"github.com/solsticelabs/solstice/types"
)

// Directory is the key -> index mapping. Reads are concurrent; writes are
// serialized.
type Directory struct {
	mu      sync.RWMutex
	indices map[types.Pubkey]uint64
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{indices: make(map[types.Pubkey]uint64)}
}

// Retrieve resolves a batch of keys. The result has one entry per input
// key; found reports which entries resolved.
func (d *Directory) Retrieve(keys []types.Pubkey) (indices []uint64, found []bool) {
	indices = make([]uint64, len(keys))
	found = make([]bool, len(keys))
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i, key := range keys {
		if idx, ok := d.indices[key]; ok {
			indices[i] = idx
			found[i] = true
		}
	}
	return indices, found
}

// TryInsert records key -> index. Returns false if the key already has an
// index; the existing mapping is kept.
func (d *Directory) TryInsert(key types.Pubkey, index uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.indices[key]; exists {
		return false
	}
	d.indices[key] = index
	return true
}

// Len returns the number of mapped keys.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.indices)
}
