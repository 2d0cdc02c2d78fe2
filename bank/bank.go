// Package bank maintains the account table: balances, chosen
// representatives, per-representative delegated weight, and the state-root
// commitment (BLAKE3 merkle root of all accounts ordered by index).
//
// Transfers move through a queue/finish/revert lifecycle so block
// execution can be rolled back on fork switches, and are finalized
// permanently once the containing block finalizes.
package bank

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"github.com/solsticelabs/solstice/types"
)

// Account is one entry of the account table. Accounts are indexed by
// insertion order; the index is durable.
type Account struct {
	Key            types.Pubkey
	Balance        uint256.Int
	Representative types.Pubkey
}

// TransferID identifies a queued transfer.
type TransferID = types.Hash

type pendingTransfer struct {
	from   uint64
	to     uint64
	amount uint256.Int
}

// Bank is the account table. Single-writer.
type Bank struct {
	accounts []Account
	byKey    map[types.Pubkey]uint64
	weights  map[types.Pubkey]*uint256.Int // delegated weight per representative
	pending  map[TransferID]*pendingTransfer
	logger   *slog.Logger
}

// New creates an empty bank.
func New(logger *slog.Logger) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bank{
		byKey:   make(map[types.Pubkey]uint64),
		weights: make(map[types.Pubkey]*uint256.Int),
		pending: make(map[TransferID]*pendingTransfer),
		logger:  logger,
	}
}

// PushAccount appends an account and returns its durable index.
func (b *Bank) PushAccount(acct Account) (uint64, error) {
	if _, exists := b.byKey[acct.Key]; exists {
		return 0, fmt.Errorf("%w: %s", ErrAccountExists, acct.Key.Short())
	}
	idx := uint64(len(b.accounts))
	b.accounts = append(b.accounts, acct)
	b.byKey[acct.Key] = idx
	b.addWeight(acct.Representative, &acct.Balance)
	return idx, nil
}

// PopAccount removes the most recently pushed account. Used to unwind an
// open that was reverted before finalization.
func (b *Bank) PopAccount() error {
	if len(b.accounts) == 0 {
		return ErrNoAccounts
	}
	last := b.accounts[len(b.accounts)-1]
	b.subWeight(last.Representative, &last.Balance)
	delete(b.byKey, last.Key)
	b.accounts = b.accounts[:len(b.accounts)-1]
	return nil
}

// Lookup returns the index of an account key.
func (b *Bank) Lookup(key types.Pubkey) (uint64, bool) {
	idx, ok := b.byKey[key]
	return idx, ok
}

// Account returns a copy of the account at the index.
func (b *Bank) Account(index uint64) (Account, error) {
	if index >= uint64(len(b.accounts)) {
		return Account{}, fmt.Errorf("%w: %d", ErrUnknownAccount, index)
	}
	return b.accounts[index], nil
}

// Len returns the number of accounts.
func (b *Bank) Len() int { return len(b.accounts) }

// Accounts returns a copy of the account table ordered by index.
func (b *Bank) Accounts() []Account {
	cp := make([]Account, len(b.accounts))
	copy(cp, b.accounts)
	return cp
}

// QueueTransfer debits the sender and holds the amount pending until the
// transfer is finished or reverted.
func (b *Bank) QueueTransfer(id TransferID, from, to uint64, amount *uint256.Int) error {
	if from >= uint64(len(b.accounts)) || to >= uint64(len(b.accounts)) {
		return fmt.Errorf("%w: %d -> %d", ErrUnknownAccount, from, to)
	}
	if _, dup := b.pending[id]; dup {
		return fmt.Errorf("%w: %s", ErrTransferExists, id.Short())
	}
	sender := &b.accounts[from]
	if sender.Balance.Lt(amount) {
		return fmt.Errorf("%w: account %d", ErrInsufficientBalance, from)
	}
	sender.Balance.Sub(&sender.Balance, amount)
	b.subWeight(sender.Representative, amount)
	p := &pendingTransfer{from: from, to: to}
	p.amount.Set(amount)
	b.pending[id] = p
	return nil
}

// FinishTransfer credits the recipient of a queued transfer. The pending
// record is kept until FinalizeTransfer so the credit can be reverted.
func (b *Bank) FinishTransfer(id TransferID) error {
	p, ok := b.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransfer, id.Short())
	}
	recipient := &b.accounts[p.to]
	recipient.Balance.Add(&recipient.Balance, &p.amount)
	b.addWeight(recipient.Representative, &p.amount)
	return nil
}

// RevertTransfer undoes a queued (and possibly finished) transfer,
// restoring the sender's balance.
func (b *Bank) RevertTransfer(id TransferID, finished bool) error {
	p, ok := b.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransfer, id.Short())
	}
	if finished {
		recipient := &b.accounts[p.to]
		recipient.Balance.Sub(&recipient.Balance, &p.amount)
		b.subWeight(recipient.Representative, &p.amount)
	}
	sender := &b.accounts[p.from]
	sender.Balance.Add(&sender.Balance, &p.amount)
	b.addWeight(sender.Representative, &p.amount)
	delete(b.pending, id)
	return nil
}

// FinalizeTransfer drops the pending record; the transfer is permanent.
func (b *Bank) FinalizeTransfer(id TransferID) error {
	if _, ok := b.pending[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransfer, id.Short())
	}
	delete(b.pending, id)
	return nil
}

// FinalizeChangeRep moves an account's delegation to a new representative.
func (b *Bank) FinalizeChangeRep(index uint64, newRep types.Pubkey) error {
	if index >= uint64(len(b.accounts)) {
		return fmt.Errorf("%w: %d", ErrUnknownAccount, index)
	}
	acct := &b.accounts[index]
	b.subWeight(acct.Representative, &acct.Balance)
	acct.Representative = newRep
	b.addWeight(newRep, &acct.Balance)
	return nil
}

// WeightOf returns the delegated weight of a representative.
func (b *Bank) WeightOf(rep types.Pubkey) *uint256.Int {
	if w, ok := b.weights[rep]; ok {
		return new(uint256.Int).Set(w)
	}
	return new(uint256.Int)
}

// StateRoot commits the account table: the BLAKE3 merkle root of the
// account leaf hashes ordered by index.
func (b *Bank) StateRoot() types.Hash {
	leaves := make([]types.Hash, len(b.accounts))
	for i := range b.accounts {
		leaves[i] = accountLeaf(&b.accounts[i])
	}
	return merkleize(leaves)
}

func accountLeaf(a *Account) types.Hash {
	h := blake3.New(32, nil)
	h.Write(a.Key[:])
	bal := a.Balance.Bytes32()
	h.Write(bal[:])
	h.Write(a.Representative[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func (b *Bank) addWeight(rep types.Pubkey, amount *uint256.Int) {
	w, ok := b.weights[rep]
	if !ok {
		w = new(uint256.Int)
		b.weights[rep] = w
	}
	w.Add(w, amount)
}

func (b *Bank) subWeight(rep types.Pubkey, amount *uint256.Int) {
	if w, ok := b.weights[rep]; ok {
		w.Sub(w, amount)
	}
}
