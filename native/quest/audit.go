package quest

import (
	"fmt"
	"math/big"

	"questvault/core/state"
	"questvault/crypto"
)

// VerifyConservation recomputes the allocated column of every fungible pool of
// the quest from the live allocations and checks the conservation law.
func (e *Engine) VerifyConservation(id uint64) error {
	return e.view(func(tx *state.Tx) error {
		q, err := e.loadQuest(tx, id)
		if err != nil {
			return err
		}
		var raw [][]byte
		if err := tx.KVGetList(e.winnersKey(id), &raw); err != nil {
			return err
		}
		live := make(map[[20]byte]*big.Int, len(q.FungibleAssets))
		for _, entry := range raw {
			var participant [20]byte
			copy(participant[:], entry)
			alloc, ok, err := e.loadAllocation(tx, id, participant)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: index lists %s without allocation", ErrConservation, crypto.Format(participant))
			}
			for _, r := range alloc.Fungible {
				total, seen := live[r.Asset]
				if !seen {
					total = big.NewInt(0)
					live[r.Asset] = total
				}
				total.Add(total, r.Amount)
			}
		}
		for _, asset := range q.FungibleAssets {
			pool, err := e.loadPool(tx, id, asset)
			if err != nil {
				return err
			}
			if !pool.Balanced() {
				return fmt.Errorf("%w: asset %s", ErrConservation, crypto.Format(asset))
			}
			expected := live[asset]
			if expected == nil {
				expected = big.NewInt(0)
			}
			if pool.Allocated.Cmp(expected) != 0 {
				return fmt.Errorf("%w: asset %s allocated %s, live allocations hold %s",
					ErrConservation, crypto.Format(asset), pool.Allocated, expected)
			}
		}
		return nil
	})
}
