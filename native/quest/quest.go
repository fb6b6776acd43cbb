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
	"questvault/observability"
)

func (e *Engine) loadQuest(tx *state.Tx, id uint64) (*Quest, error) {
	var q Quest
	ok, err := tx.KVGet(e.questKey(id), &q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrQuestNotFound, id)
	}
	return &q, nil
}

func (e *Engine) loadPool(tx *state.Tx, id uint64, asset [20]byte) (*PoolAccounting, error) {
	pool := new(PoolAccounting)
	ok, err := tx.KVGet(e.poolKey(id, asset), pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newPoolAccounting(), nil
	}
	return pool.normalize(), nil
}

func (e *Engine) storePool(tx *state.Tx, id uint64, asset [20]byte, pool *PoolAccounting) error {
	if !pool.Balanced() {
		return fmt.Errorf("%w: quest %d asset %s", ErrConservation, id, crypto.Format(asset))
	}
	return tx.KVPut(e.poolKey(id, asset), pool)
}

func dedupe(list [][20]byte) [][20]byte {
	seen := make(map[[20]byte]struct{}, len(list))
	out := make([][20]byte, 0, len(list))
	for _, addr := range list {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// probe resolves every contract in list and checks it exposes the capability
// set of kind.
func (e *Engine) probe(list [][20]byte, kind assets.Kind) error {
	for _, addr := range list {
		contract, err := e.registry.Contract(addr)
		if err != nil {
			return fmt.Errorf("%w: %s is not a %s contract", ErrInvalidAssetKind, crypto.Format(addr), kind)
		}
		if !assets.Supports(contract, kind) {
			return fmt.Errorf("%w: %s (%s) is not a %s contract", ErrInvalidAssetKind, contract.Name(), crypto.Format(addr), kind)
		}
	}
	return nil
}

// CreateQuest registers a quest with its eligible asset contracts. The admin
// must call it and at least one list must be non-empty.
func (e *Engine) CreateQuest(caller [20]byte, id uint64, fungible, unique, hybrid [][20]byte) error {
	start := time.Now()
	fungible, unique, hybrid = dedupe(fungible), dedupe(unique), dedupe(hybrid)
	q := &Quest{
		ID:             id,
		FungibleAssets: fungible,
		UniqueAssets:   unique,
		HybridAssets:   hybrid,
	}
	err := e.update(func(tx *state.Tx) error {
		if err := e.gate.Require(tx, caller, access.RoleAdmin); err != nil {
			return err
		}
		if ok, err := tx.KVGet(e.questKey(id), nil); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: %d", ErrQuestExists, id)
		}
		if len(fungible)+len(unique)+len(hybrid) == 0 {
			return ErrEmptyRewards
		}
		if err := e.probe(fungible, assets.KindFungible); err != nil {
			return err
		}
		if err := e.probe(unique, assets.KindUnique); err != nil {
			return err
		}
		if err := e.probe(hybrid, assets.KindHybrid); err != nil {
			return err
		}
		q.CreatedAt = uint64(e.nowFn().Unix())
		if err := tx.KVPut(e.questKey(id), q); err != nil {
			return err
		}
		for _, asset := range fungible {
			if err := e.storePool(tx, id, asset, newPoolAccounting()); err != nil {
				return err
			}
		}
		return tx.KVAppend(e.questIndexKey(), encodeQuestID(id))
	})
	e.finish("create_quest", start, err, slog.Uint64("quest", id))
	if err != nil {
		return err
	}
	e.logger.Info("quest: created",
		slog.Uint64("quest", id),
		slog.Int("fungible", len(fungible)),
		slog.Int("unique", len(unique)),
		slog.Int("hybrid", len(hybrid)))
	e.emit(events.QuestCreated{Engine: e.address, QuestID: id, Fungible: len(fungible), Unique: len(unique), Hybrid: len(hybrid)})
	return nil
}

// SetQuestClaimable toggles whether winners may claim. Allocations are not
// affected.
func (e *Engine) SetQuestClaimable(caller [20]byte, id uint64, claimable bool) error {
	start := time.Now()
	err := e.update(func(tx *state.Tx) error {
		if err := e.gate.Require(tx, caller, access.RoleAdmin); err != nil {
			return err
		}
		q, err := e.loadQuest(tx, id)
		if err != nil {
			return err
		}
		q.Claimable = claimable
		return tx.KVPut(e.questKey(id), q)
	})
	e.finish("set_claimable", start, err, slog.Uint64("quest", id))
	if err != nil {
		return err
	}
	e.logger.Info("quest: claim status set", slog.Uint64("quest", id), slog.Bool("claimable", claimable))
	e.emit(events.QuestClaimableSet{Engine: e.address, QuestID: id, Claimable: claimable})
	return nil
}

func (e *Engine) poolMutation(caller [20]byte, id uint64, asset [20]byte, amount *big.Int, apply func(pool *PoolAccounting)) (*PoolAccounting, error) {
	if err := assets.CheckAmount(amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	var updated *PoolAccounting
	err := e.update(func(tx *state.Tx) error {
		if err := e.gate.Require(tx, caller, access.RoleAdmin); err != nil {
			return err
		}
		q, err := e.loadQuest(tx, id)
		if err != nil {
			return err
		}
		if !q.eligibleFungible(asset) {
			return fmt.Errorf("%w: %s", ErrAssetNotEligible, crypto.Format(asset))
		}
		pool, err := e.loadPool(tx, id, asset)
		if err != nil {
			return err
		}
		apply(pool)
		if err := assets.CheckAmount(pool.Remaining); err != nil {
			return fmt.Errorf("%w: pool overflow", ErrInvalidAmount)
		}
		if err := assets.CheckAmount(pool.Funded); err != nil {
			return fmt.Errorf("%w: funding overflow", ErrInvalidAmount)
		}
		updated = pool
		return e.storePool(tx, id, asset, pool)
	})
	return updated, err
}

// FundFungiblePool adds amount to the remaining pool of asset.
func (e *Engine) FundFungiblePool(caller [20]byte, id uint64, asset [20]byte, amount *big.Int) error {
	start := time.Now()
	pool, err := e.poolMutation(caller, id, asset, amount, func(pool *PoolAccounting) {
		pool.Remaining.Add(pool.Remaining, amount)
		pool.Funded.Add(pool.Funded, amount)
	})
	e.finish("fund_pool", start, err, slog.Uint64("quest", id), slog.String("asset", crypto.Format(asset)))
	if err != nil {
		return err
	}
	e.logger.Info("quest: pool funded",
		slog.Uint64("quest", id),
		slog.String("asset", crypto.Format(asset)),
		slog.String("amount", amount.String()),
		slog.String("remaining", pool.Remaining.String()))
	e.recordRemaining(id, asset, pool.Remaining)
	e.emit(events.PoolFunded{Engine: e.address, QuestID: id, Asset: asset, Amount: new(big.Int).Set(amount), Remaining: pool.Remaining})
	return nil
}

// OverwriteFungiblePool sets the remaining pool of asset to amount. Funding is
// adjusted by the same delta so the accounting stays balanced.
func (e *Engine) OverwriteFungiblePool(caller [20]byte, id uint64, asset [20]byte, amount *big.Int) error {
	start := time.Now()
	previous := big.NewInt(0)
	pool, err := e.poolMutation(caller, id, asset, amount, func(pool *PoolAccounting) {
		previous.Set(pool.Remaining)
		delta := new(big.Int).Sub(amount, pool.Remaining)
		pool.Remaining.Set(amount)
		pool.Funded.Add(pool.Funded, delta)
	})
	e.finish("overwrite_pool", start, err, slog.Uint64("quest", id), slog.String("asset", crypto.Format(asset)))
	if err != nil {
		return err
	}
	e.logger.Info("quest: pool overwritten",
		slog.Uint64("quest", id),
		slog.String("asset", crypto.Format(asset)),
		slog.String("previous", previous.String()),
		slog.String("remaining", pool.Remaining.String()))
	e.recordRemaining(id, asset, pool.Remaining)
	e.emit(events.PoolOverwritten{Engine: e.address, QuestID: id, Asset: asset, Previous: previous, Remaining: pool.Remaining})
	return nil
}

func (e *Engine) recordRemaining(id uint64, asset [20]byte, remaining *big.Int) {
	observability.Quest().RecordRemaining(id, crypto.Format(asset), remaining)
}

// GetQuestData returns the quest record and the remaining pool of every
// eligible fungible asset.
func (e *Engine) GetQuestData(id uint64) (*QuestData, error) {
	var data *QuestData
	err := e.view(func(tx *state.Tx) error {
		q, err := e.loadQuest(tx, id)
		if err != nil {
			return err
		}
		data = &QuestData{Quest: q, Pools: make([]PoolBalance, 0, len(q.FungibleAssets))}
		for _, asset := range q.FungibleAssets {
			pool, err := e.loadPool(tx, id, asset)
			if err != nil {
				return err
			}
			data.Pools = append(data.Pools, PoolBalance{Asset: asset, Remaining: pool.Remaining})
		}
		return nil
	})
	return data, err
}

// GetRemainingFungiblePool returns the unallocated pool of asset. Assets not
// eligible for the quest report zero.
func (e *Engine) GetRemainingFungiblePool(id uint64, asset [20]byte) (*big.Int, error) {
	pool, err := e.PoolAccounting(id, asset)
	if err != nil {
		return nil, err
	}
	return pool.Remaining, nil
}

// PoolAccounting returns every accounting column of (quest, asset).
func (e *Engine) PoolAccounting(id uint64, asset [20]byte) (*PoolAccounting, error) {
	var pool *PoolAccounting
	err := e.view(func(tx *state.Tx) error {
		if _, err := e.loadQuest(tx, id); err != nil {
			return err
		}
		var err error
		pool, err = e.loadPool(tx, id, asset)
		return err
	})
	return pool, err
}

// ListQuests returns every quest id in creation order.
func (e *Engine) ListQuests() ([]uint64, error) {
	var ids []uint64
	err := e.view(func(tx *state.Tx) error {
		var raw [][]byte
		if err := tx.KVGetList(e.questIndexKey(), &raw); err != nil {
			return err
		}
		ids = make([]uint64, 0, len(raw))
		for _, entry := range raw {
			if len(entry) != 8 {
				return fmt.Errorf("quest: corrupt index entry")
			}
			ids = append(ids, binaryID(entry))
		}
		return nil
	})
	return ids, err
}
