package quest

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/crypto"
	"questvault/native/access"
	"questvault/native/assets"
	"questvault/native/custody"
	"questvault/observability"
)

// instructions expands an allocation into the custodian transfers it needs.
// Zero fungible amounts are recorded but never transferred.
func instructions(alloc *Allocation) []custody.Instruction {
	out := make([]custody.Instruction, 0, len(alloc.Fungible)+len(alloc.Unique)+len(alloc.Hybrid))
	for _, r := range alloc.Fungible {
		if r.Amount.Sign() == 0 {
			continue
		}
		out = append(out, custody.Instruction{Asset: r.Asset, Kind: assets.KindFungible, To: alloc.Participant, Amount: r.Amount})
	}
	for _, r := range alloc.Unique {
		out = append(out, custody.Instruction{Asset: r.Asset, Kind: assets.KindUnique, To: alloc.Participant, TokenID: r.TokenID})
	}
	for _, r := range alloc.Hybrid {
		out = append(out, custody.Instruction{Asset: r.Asset, Kind: assets.KindHybrid, To: alloc.Participant, TokenID: r.TokenID, Amount: r.Amount})
	}
	return out
}

// ClaimReward disburses the caller's allocation and deletes it. Every
// transfer and the deletion share one transaction, so a failing transfer
// leaves balances, pools and the allocation untouched for a later retry.
func (e *Engine) ClaimReward(caller [20]byte, id uint64) error {
	start := time.Now()
	var claimed *Allocation
	var transfers int
	err := e.update(func(tx *state.Tx) error {
		if caller == ([20]byte{}) {
			return fmt.Errorf("%w: zero caller", access.ErrUnauthorized)
		}
		q, err := e.loadQuest(tx, id)
		if errors.Is(err, ErrQuestNotFound) {
			return fmt.Errorf("%w: %d", ErrQuestNotClaimable, id)
		}
		if err != nil {
			return err
		}
		if !q.Claimable {
			return fmt.Errorf("%w: %d", ErrQuestNotClaimable, id)
		}
		alloc, ok, err := e.loadAllocation(tx, id, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrWinnerNotDefined
		}
		if e.custodian == nil {
			return fmt.Errorf("%w: custodian not configured", ErrTransferFailed)
		}
		moves := instructions(alloc)
		for _, ins := range moves {
			if err := e.custodian.Transfer(tx, e.address, ins); err != nil {
				return fmt.Errorf("%w: %s %s: %w", ErrTransferFailed, ins.Kind, crypto.Format(ins.Asset), err)
			}
		}
		err = e.adjustPools(tx, alloc, func(pool *PoolAccounting, total *big.Int) error {
			pool.Allocated.Sub(pool.Allocated, total)
			pool.Claimed.Add(pool.Claimed, total)
			return nil
		})
		if err != nil {
			return err
		}
		if err := e.dropAllocation(tx, alloc); err != nil {
			return err
		}
		claimed = alloc
		transfers = len(moves)
		return nil
	})
	e.finish("claim_reward", start, err, slog.Uint64("quest", id), slog.String("participant", crypto.Format(caller)))
	if err != nil {
		return err
	}
	metrics := observability.Quest()
	for _, r := range claimed.Fungible {
		metrics.RecordClaimed(crypto.Format(r.Asset), r.Amount)
	}
	e.logger.Info("quest: reward claimed",
		slog.Uint64("quest", id),
		slog.String("participant", crypto.Format(caller)),
		slog.Int("transfers", transfers))
	e.emit(events.RewardClaimed{Engine: e.address, QuestID: id, Participant: caller, Transfers: transfers})
	return nil
}
