// Package pebbledb is the pebble-backed implementation of storage.Store.
package pebbledb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/bank"
	"github.com/solsticelabs/solstice/types"
)

// Key prefixes. Finalized blocks are keyed by big-endian slot so the
// sequence iterates in order.
var (
	prefixBlock    = []byte("b/")
	prefixAccounts = []byte("a/")
	keyHead        = []byte("h")
)

// accountSize is key(32) + balance(32) + representative(32).
const accountSize = 96

// Store is a pebble-backed storage.Store.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the store at the given path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

func blockKey(slot types.Slot) []byte {
	key := make([]byte, 0, len(prefixBlock)+8)
	key = append(key, prefixBlock...)
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], uint64(slot))
	return append(key, s[:]...)
}

func accountsKey(root types.Hash) []byte {
	key := make([]byte, 0, len(prefixAccounts)+32)
	key = append(key, prefixAccounts...)
	return append(key, root[:]...)
}

func (s *Store) PutFinalizedBlock(b *types.Block) error {
	data, err := b.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(blockKey(b.Slot), data, nil); err != nil {
		return err
	}
	head, ok, err := s.FinalizedHead()
	if err != nil {
		return err
	}
	if !ok || b.Slot > head {
		var hs [8]byte
		binary.BigEndian.PutUint64(hs[:], uint64(b.Slot))
		if err := batch.Set(keyHead, hs[:], nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) FinalizedBlock(slot types.Slot) (*types.Block, bool, error) {
	data, closer, err := s.db.Get(blockKey(slot))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	b := new(types.Block)
	if err := b.UnmarshalSSZ(data); err != nil {
		return nil, false, fmt.Errorf("unmarshal block at slot %d: %w", slot, err)
	}
	return b, true, nil
}

func (s *Store) FinalizedHead() (types.Slot, bool, error) {
	data, closer, err := s.db.Get(keyHead)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()
	return types.Slot(binary.BigEndian.Uint64(data)), true, nil
}

func (s *Store) PutAccountTable(root types.Hash, accounts []bank.Account) error {
	buf := make([]byte, 0, len(accounts)*accountSize)
	for i := range accounts {
		a := &accounts[i]
		buf = append(buf, a.Key[:]...)
		bal := a.Balance.Bytes32()
		buf = append(buf, bal[:]...)
		buf = append(buf, a.Representative[:]...)
	}
	return s.db.Set(accountsKey(root), buf, pebble.Sync)
}

func (s *Store) AccountTable(root types.Hash) ([]bank.Account, bool, error) {
	data, closer, err := s.db.Get(accountsKey(root))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	if len(data)%accountSize != 0 {
		return nil, false, fmt.Errorf("corrupt account table for root %s", root.Short())
	}
	accounts := make([]bank.Account, len(data)/accountSize)
	for i := range accounts {
		off := i * accountSize
		a := &accounts[i]
		copy(a.Key[:], data[off:off+32])
		var bal [32]byte
		copy(bal[:], data[off+32:off+64])
		a.Balance = *new(uint256.Int).SetBytes32(bal[:])
		copy(a.Representative[:], data[off+64:off+96])
	}
	return accounts, true, nil
}

func (s *Store) Close() error { return s.db.Close() }
