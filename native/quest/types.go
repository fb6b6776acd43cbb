package quest

import (
	"math/big"
)

// Quest is the persisted campaign record. Eligible asset lists are probed once
// at creation and never re-checked on transfer.
type Quest struct {
	ID             uint64
	FungibleAssets [][20]byte
	UniqueAssets   [][20]byte
	HybridAssets   [][20]byte
	Claimable      bool
	CreatedAt      uint64
}

// Clone returns a deep copy of the quest.
func (q *Quest) Clone() *Quest {
	if q == nil {
		return nil
	}
	clone := *q
	clone.FungibleAssets = append([][20]byte(nil), q.FungibleAssets...)
	clone.UniqueAssets = append([][20]byte(nil), q.UniqueAssets...)
	clone.HybridAssets = append([][20]byte(nil), q.HybridAssets...)
	return &clone
}

func (q *Quest) eligibleFungible(asset [20]byte) bool { return contains(q.FungibleAssets, asset) }

func (q *Quest) eligibleUnique(asset [20]byte) bool { return contains(q.UniqueAssets, asset) }

func (q *Quest) eligibleHybrid(asset [20]byte) bool { return contains(q.HybridAssets, asset) }

func contains(list [][20]byte, asset [20]byte) bool {
	for _, candidate := range list {
		if candidate == asset {
			return true
		}
	}
	return false
}

type FungibleReward struct {
	Asset  [20]byte
	Amount *big.Int
}

type UniqueReward struct {
	Asset   [20]byte
	TokenID *big.Int
}

type HybridReward struct {
	Asset   [20]byte
	TokenID *big.Int
	Amount  *big.Int
}

// WinnerRewards bundles every reward list of one participant in a batch.
type WinnerRewards struct {
	Participant [20]byte
	Fungible    []FungibleReward
	Unique      []UniqueReward
	Hybrid      []HybridReward
}

// Allocation is a reserved, not yet claimed reward bundle.
type Allocation struct {
	QuestID     uint64
	Participant [20]byte
	Fungible    []FungibleReward
	Unique      []UniqueReward
	Hybrid      []HybridReward
}

// Empty reports whether the allocation carries no rewards at all.
func (a *Allocation) Empty() bool {
	return a == nil || len(a.Fungible)+len(a.Unique)+len(a.Hybrid) == 0
}

// fungibleTotals sums the allocation per asset preserving first-seen order.
func (a *Allocation) fungibleTotals() ([][20]byte, map[[20]byte]*big.Int) {
	order := make([][20]byte, 0, len(a.Fungible))
	totals := make(map[[20]byte]*big.Int, len(a.Fungible))
	for _, reward := range a.Fungible {
		total, ok := totals[reward.Asset]
		if !ok {
			total = big.NewInt(0)
			totals[reward.Asset] = total
			order = append(order, reward.Asset)
		}
		total.Add(total, reward.Amount)
	}
	return order, totals
}

// PoolAccounting tracks every fungible movement for one (quest, asset) pair.
// Remaining + Allocated always equals Funded - Claimed - Stranded.
type PoolAccounting struct {
	Funded    *big.Int
	Remaining *big.Int
	Allocated *big.Int
	Claimed   *big.Int
	Stranded  *big.Int
}

func newPoolAccounting() *PoolAccounting {
	return &PoolAccounting{
		Funded:    big.NewInt(0),
		Remaining: big.NewInt(0),
		Allocated: big.NewInt(0),
		Claimed:   big.NewInt(0),
		Stranded:  big.NewInt(0),
	}
}

func (p *PoolAccounting) normalize() *PoolAccounting {
	for _, field := range []**big.Int{&p.Funded, &p.Remaining, &p.Allocated, &p.Claimed, &p.Stranded} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return p
}

// Balanced reports whether the conservation law holds and no column is
// negative.
func (p *PoolAccounting) Balanced() bool {
	if p == nil {
		return false
	}
	for _, v := range []*big.Int{p.Funded, p.Remaining, p.Allocated, p.Claimed, p.Stranded} {
		if v == nil || v.Sign() < 0 {
			return false
		}
	}
	live := new(big.Int).Add(p.Remaining, p.Allocated)
	expected := new(big.Int).Sub(p.Funded, p.Claimed)
	expected.Sub(expected, p.Stranded)
	return live.Cmp(expected) == 0
}

// PoolBalance is the remaining pool of one eligible fungible asset.
type PoolBalance struct {
	Asset     [20]byte
	Remaining *big.Int
}

// QuestData is the read snapshot returned by GetQuestData.
type QuestData struct {
	Quest *Quest
	Pools []PoolBalance
}
