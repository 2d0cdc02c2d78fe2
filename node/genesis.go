package node

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/bank"
	"github.com/solsticelabs/solstice/config"
	"github.com/solsticelabs/solstice/directory"
	"github.com/solsticelabs/solstice/types"
)

// GenesisAccount seeds one entry of the genesis account table.
type GenesisAccount struct {
	Key            types.Pubkey
	Balance        *uint256.Int
	Representative types.Pubkey
}

// BuildGenesis populates the bank and directory from the genesis account
// table and returns the genesis block committing it. The genesis block
// has no meaningful signature; it is trusted by construction.
func BuildGenesis(cfg *config.Config, b *bank.Bank, dir *directory.Directory, accounts []GenesisAccount) (*types.Block, error) {
	for _, ga := range accounts {
		rep := ga.Representative
		if rep.IsZero() {
			rep = ga.Key
		}
		acct := bank.Account{Key: ga.Key, Representative: rep}
		acct.Balance.Set(ga.Balance)
		idx, err := b.PushAccount(acct)
		if err != nil {
			return nil, fmt.Errorf("push genesis account: %w", err)
		}
		if !dir.TryInsert(ga.Key, idx) {
			return nil, fmt.Errorf("genesis account %s already indexed", ga.Key.Short())
		}
	}
	return &types.Block{
		Author:    cfg.GenesisKey,
		Slot:      0,
		StateRoot: b.StateRoot(),
	}, nil
}
