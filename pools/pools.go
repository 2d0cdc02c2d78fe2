// Package pools buffers externally received transactions, opens and votes
// until the local representative's next leader slot.
package pools

import (
	"sync"

	"github.com/solsticelabs/solstice/types"
)

// Lists is the material handed to the slot driver on NewLeaderSlot.
type Lists struct {
	Transactions [][]byte
	Opens        [][]byte
	Votes        []*types.Vote
}

// Pools is a queue-backed implementation. Producers enqueue from network
// goroutines; the slot driver drains on leader slots.
type Pools struct {
	mu           sync.Mutex
	transactions [][]byte
	opens        [][]byte
	votes        []*types.Vote
}

// New creates empty pools.
func New() *Pools {
	return &Pools{}
}

// AddTransaction enqueues an opaque transaction.
func (p *Pools) AddTransaction(tx []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions = append(p.transactions, tx)
}

// AddOpen enqueues an opaque account open.
func (p *Pools) AddOpen(open []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens = append(p.opens, open)
}

// AddVote enqueues a vote for inclusion in the next produced block.
func (p *Pools) AddVote(v *types.Vote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votes = append(p.votes, v)
}

// Collect drains all queued material.
func (p *Pools) Collect() Lists {
	p.mu.Lock()
	defer p.mu.Unlock()
	lists := Lists{
		Transactions: p.transactions,
		Opens:        p.opens,
		Votes:        p.votes,
	}
	p.transactions = nil
	p.opens = nil
	p.votes = nil
	return lists
}
