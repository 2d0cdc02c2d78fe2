// Package memory is an in-memory implementation of storage.Store, used by
// tests and ephemeral nodes.
package memory

import (
	"sync"

	"github.com/solsticelabs/solstice/bank"
	"github.com/solsticelabs/solstice/types"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu       sync.RWMutex
	blocks   map[types.Slot]*types.Block
	accounts map[types.Hash][]bank.Account
	head     types.Slot
	hasHead  bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		blocks:   make(map[types.Slot]*types.Block),
		accounts: make(map[types.Hash][]bank.Account),
	}
}

func (m *Store) PutFinalizedBlock(b *types.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.Slot] = b
	if !m.hasHead || b.Slot > m.head {
		m.head = b.Slot
		m.hasHead = true
	}
	return nil
}

func (m *Store) FinalizedBlock(slot types.Slot) (*types.Block, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[slot]
	return b, ok, nil
}

func (m *Store) FinalizedHead() (types.Slot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head, m.hasHead, nil
}

func (m *Store) PutAccountTable(root types.Hash, accounts []bank.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]bank.Account, len(accounts))
	copy(cp, accounts)
	m.accounts[root] = cp
	return nil
}

func (m *Store) AccountTable(root types.Hash) ([]bank.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accounts, ok := m.accounts[root]
	return accounts, ok, nil
}

func (m *Store) Close() error { return nil }
