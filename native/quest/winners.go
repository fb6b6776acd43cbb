package quest

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/crypto"
	"questvault/native/access"
	"questvault/native/assets"
)

// ZipWinnerRewards folds the parallel-array transport form into one record per
// participant. Every list must have one entry per participant.
func ZipWinnerRewards(participants [][20]byte, fungible [][]FungibleReward, unique [][]UniqueReward, hybrid [][]HybridReward) ([]WinnerRewards, error) {
	n := len(participants)
	if len(fungible) != n || len(unique) != n || len(hybrid) != n {
		return nil, fmt.Errorf("%w: %d participants, %d fungible, %d unique, %d hybrid",
			ErrLengthMismatch, n, len(fungible), len(unique), len(hybrid))
	}
	out := make([]WinnerRewards, n)
	for i := range participants {
		out[i] = WinnerRewards{
			Participant: participants[i],
			Fungible:    fungible[i],
			Unique:      unique[i],
			Hybrid:      hybrid[i],
		}
	}
	return out, nil
}

func validateWinner(q *Quest, w WinnerRewards) error {
	if w.Participant == ([20]byte{}) {
		return ErrInvalidParticipant
	}
	for _, reward := range w.Fungible {
		if !q.eligibleFungible(reward.Asset) {
			return fmt.Errorf("%w: fungible %s", ErrAssetNotEligible, crypto.Format(reward.Asset))
		}
		if err := assets.CheckAmount(reward.Amount); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
	}
	for _, reward := range w.Unique {
		if !q.eligibleUnique(reward.Asset) {
			return fmt.Errorf("%w: unique %s", ErrAssetNotEligible, crypto.Format(reward.Asset))
		}
		if err := assets.CheckTokenID(reward.TokenID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
	}
	for _, reward := range w.Hybrid {
		if !q.eligibleHybrid(reward.Asset) {
			return fmt.Errorf("%w: hybrid %s", ErrAssetNotEligible, crypto.Format(reward.Asset))
		}
		if err := assets.CheckTokenID(reward.TokenID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		if err := assets.CheckAmount(reward.Amount); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
	}
	return nil
}

func cloneAllocation(id uint64, w WinnerRewards) *Allocation {
	alloc := &Allocation{
		QuestID:     id,
		Participant: w.Participant,
		Fungible:    make([]FungibleReward, len(w.Fungible)),
		Unique:      make([]UniqueReward, len(w.Unique)),
		Hybrid:      make([]HybridReward, len(w.Hybrid)),
	}
	for i, r := range w.Fungible {
		alloc.Fungible[i] = FungibleReward{Asset: r.Asset, Amount: new(big.Int).Set(r.Amount)}
	}
	for i, r := range w.Unique {
		alloc.Unique[i] = UniqueReward{Asset: r.Asset, TokenID: new(big.Int).Set(r.TokenID)}
	}
	for i, r := range w.Hybrid {
		alloc.Hybrid[i] = HybridReward{Asset: r.Asset, TokenID: new(big.Int).Set(r.TokenID), Amount: new(big.Int).Set(r.Amount)}
	}
	return alloc
}

func (e *Engine) loadAllocation(tx *state.Tx, id uint64, participant [20]byte) (*Allocation, bool, error) {
	alloc := new(Allocation)
	ok, err := tx.KVGet(e.allocationKey(id, participant), alloc)
	if err != nil || !ok {
		return nil, false, err
	}
	return alloc, true, nil
}

// dropAllocation deletes alloc along with its unique reservations and index
// entry. Fungible accounting is left to the caller.
func (e *Engine) dropAllocation(tx *state.Tx, alloc *Allocation) error {
	for _, reward := range alloc.Unique {
		if err := tx.KVDelete(e.reservationKey(alloc.QuestID, reward.Asset, reward.TokenID)); err != nil {
			return err
		}
	}
	if err := tx.KVDelete(e.allocationKey(alloc.QuestID, alloc.Participant)); err != nil {
		return err
	}
	return tx.KVRemove(e.winnersKey(alloc.QuestID), alloc.Participant[:])
}

// adjustPools applies fn to the pool of every fungible asset in alloc with the
// per-asset total of the allocation.
func (e *Engine) adjustPools(tx *state.Tx, alloc *Allocation, fn func(pool *PoolAccounting, total *big.Int) error) error {
	order, totals := alloc.fungibleTotals()
	for _, asset := range order {
		pool, err := e.loadPool(tx, alloc.QuestID, asset)
		if err != nil {
			return err
		}
		if err := fn(pool, totals[asset]); err != nil {
			return fmt.Errorf("%w (asset %s)", err, crypto.Format(asset))
		}
		if err := e.storePool(tx, alloc.QuestID, asset, pool); err != nil {
			return err
		}
	}
	return nil
}

// SetWinnerRewards writes one allocation per participant as a single batch.
// Fungible amounts are carved out of the remaining pools; if any pool would go
// negative nothing from the batch is applied. An existing allocation is
// replaced in full and its fungible amounts are not returned to the pool.
func (e *Engine) SetWinnerRewards(caller [20]byte, id uint64, winners []WinnerRewards) error {
	start := time.Now()
	replaced := make(map[[20]byte]bool, len(winners))
	err := e.update(func(tx *state.Tx) error {
		if err := e.gate.Require(tx, caller, access.RoleAdmin); err != nil {
			return err
		}
		q, err := e.loadQuest(tx, id)
		if err != nil {
			return err
		}
		for _, w := range winners {
			if err := validateWinner(q, w); err != nil {
				return fmt.Errorf("participant %s: %w", crypto.Format(w.Participant), err)
			}
		}
		for _, w := range winners {
			if err := e.assignWinner(tx, id, w, replaced); err != nil {
				return fmt.Errorf("participant %s: %w", crypto.Format(w.Participant), err)
			}
		}
		return nil
	})
	e.finish("set_winner_rewards", start, err, slog.Uint64("quest", id), slog.Int("winners", len(winners)))
	if err != nil {
		return err
	}
	for _, w := range winners {
		e.emit(events.WinnerSet{
			Engine:      e.address,
			QuestID:     id,
			Participant: w.Participant,
			Fungible:    len(w.Fungible),
			Unique:      len(w.Unique),
			Hybrid:      len(w.Hybrid),
			Replaced:    replaced[w.Participant],
		})
	}
	e.logger.Info("quest: winners set", slog.Uint64("quest", id), slog.Int("winners", len(winners)))
	return nil
}

func (e *Engine) assignWinner(tx *state.Tx, id uint64, w WinnerRewards, replaced map[[20]byte]bool) error {
	previous, exists, err := e.loadAllocation(tx, id, w.Participant)
	if err != nil {
		return err
	}
	if exists {
		// Replacement strands the previous fungible amounts instead of
		// refunding them.
		err := e.adjustPools(tx, previous, func(pool *PoolAccounting, total *big.Int) error {
			pool.Allocated.Sub(pool.Allocated, total)
			pool.Stranded.Add(pool.Stranded, total)
			return nil
		})
		if err != nil {
			return err
		}
		if err := e.dropAllocation(tx, previous); err != nil {
			return err
		}
		replaced[w.Participant] = true
	}

	alloc := cloneAllocation(id, w)
	for _, reward := range alloc.Unique {
		key := e.reservationKey(id, reward.Asset, reward.TokenID)
		var holder [20]byte
		taken, err := tx.KVGet(key, &holder)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s #%s held by %s", ErrDuplicateUniqueReward,
				crypto.Format(reward.Asset), reward.TokenID, crypto.Format(holder))
		}
		if err := tx.KVPut(key, w.Participant); err != nil {
			return err
		}
	}
	err = e.adjustPools(tx, alloc, func(pool *PoolAccounting, total *big.Int) error {
		if pool.Remaining.Cmp(total) < 0 {
			return fmt.Errorf("%w: requested %s, remaining %s", ErrInsufficientReward, total, pool.Remaining)
		}
		pool.Remaining.Sub(pool.Remaining, total)
		pool.Allocated.Add(pool.Allocated, total)
		return nil
	})
	if err != nil {
		return err
	}
	if err := tx.KVPut(e.allocationKey(id, w.Participant), alloc); err != nil {
		return err
	}
	return tx.KVAppend(e.winnersKey(id), w.Participant[:])
}

// RemoveWinner deletes the live allocation of participant and returns its
// fungible amounts to the pool. An absent allocation is a no-op.
func (e *Engine) RemoveWinner(caller [20]byte, id uint64, participant [20]byte) error {
	return e.RemoveWinners(caller, id, [][20]byte{participant})
}

// RemoveWinners removes every listed participant in one transaction.
func (e *Engine) RemoveWinners(caller [20]byte, id uint64, participants [][20]byte) error {
	start := time.Now()
	var removed [][20]byte
	err := e.update(func(tx *state.Tx) error {
		if err := e.gate.Require(tx, caller, access.RoleAdmin); err != nil {
			return err
		}
		if _, err := e.loadQuest(tx, id); err != nil {
			return err
		}
		for _, participant := range participants {
			alloc, ok, err := e.loadAllocation(tx, id, participant)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			err = e.adjustPools(tx, alloc, func(pool *PoolAccounting, total *big.Int) error {
				pool.Allocated.Sub(pool.Allocated, total)
				pool.Remaining.Add(pool.Remaining, total)
				return nil
			})
			if err != nil {
				return err
			}
			if err := e.dropAllocation(tx, alloc); err != nil {
				return err
			}
			removed = append(removed, participant)
		}
		return nil
	})
	e.finish("remove_winners", start, err, slog.Uint64("quest", id), slog.Int("participants", len(participants)))
	if err != nil {
		return err
	}
	for _, participant := range removed {
		e.logger.Info("quest: winner removed", slog.Uint64("quest", id), slog.String("participant", crypto.Format(participant)))
		e.emit(events.WinnerRemoved{Engine: e.address, QuestID: id, Participant: participant})
	}
	return nil
}

// CheckWinner returns the live allocation of participant. Participants without
// one get an allocation with empty lists.
func (e *Engine) CheckWinner(id uint64, participant [20]byte) (*Allocation, error) {
	result := &Allocation{
		QuestID:     id,
		Participant: participant,
		Fungible:    []FungibleReward{},
		Unique:      []UniqueReward{},
		Hybrid:      []HybridReward{},
	}
	err := e.view(func(tx *state.Tx) error {
		alloc, ok, err := e.loadAllocation(tx, id, participant)
		if err != nil || !ok {
			return err
		}
		if alloc.Fungible != nil {
			result.Fungible = alloc.Fungible
		}
		if alloc.Unique != nil {
			result.Unique = alloc.Unique
		}
		if alloc.Hybrid != nil {
			result.Hybrid = alloc.Hybrid
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListWinners returns the participants holding a live allocation in the
// order they were first assigned.
func (e *Engine) ListWinners(id uint64) ([][20]byte, error) {
	var out [][20]byte
	err := e.view(func(tx *state.Tx) error {
		if _, err := e.loadQuest(tx, id); err != nil {
			return err
		}
		var raw [][]byte
		if err := tx.KVGetList(e.winnersKey(id), &raw); err != nil {
			return err
		}
		out = make([][20]byte, 0, len(raw))
		for _, entry := range raw {
			var participant [20]byte
			copy(participant[:], entry)
			out = append(out, participant)
		}
		return nil
	})
	return out, err
}
