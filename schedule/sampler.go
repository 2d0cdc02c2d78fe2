package schedule

import (
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"github.com/solsticelabs/solstice/types"
)

func blake3Sum(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// sampleLeaders draws one leader per slot of the epoch by weighted
// sampling with replacement over the participants, which must already be
// sorted ascending by public key. Randomness is the BLAKE3 XOF of the
// epoch seed, so derivation is a pure function of (epoch, participants).
func sampleLeaders(epoch types.Epoch, participants []weighted, epochLength uint64) []types.Pubkey {
	total := new(uint256.Int)
	for _, p := range participants {
		total.Add(total, p.weight)
	}

	seed := seedFor(epoch)
	h := blake3.New(32, nil)
	h.Write(seed[:])
	xof := h.XOF()

	leaders := make([]types.Pubkey, epochLength)
	var draw [32]byte
	r := new(uint256.Int)
	for i := range leaders {
		xof.Read(draw[:])
		r.SetBytes(draw[:])
		r.Mod(r, total)
		leaders[i] = pick(participants, r)
	}
	return leaders
}

// pick walks the cumulative weights to the participant owning point r.
func pick(participants []weighted, r *uint256.Int) types.Pubkey {
	acc := new(uint256.Int)
	for _, p := range participants {
		acc.Add(acc, p.weight)
		if r.Lt(acc) {
			return p.key
		}
	}
	// r < total, so the walk always lands inside the list.
	return participants[len(participants)-1].key
}
