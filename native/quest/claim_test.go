package quest

import (
	"errors"
	"math/big"
	"testing"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/native/access"
	"questvault/native/custody"
)

func TestEndToEndFungibleClaims(t *testing.T) {
	env := newTestEnv(t)
	gold := env.gold.Address()
	a, b := newTestAddress(0x11), newTestAddress(0x12)
	env.mustCreate(1, [][20]byte{gold}, nil, nil)
	env.mustFund(1, gold, 1000)
	env.mustSetWinners(1, winner(a, fungible(gold, 400)), winner(b, fungible(gold, 500)))
	if env.remaining(1, gold) != 100 {
		t.Fatalf("expected 100 remaining, got %d", env.remaining(1, gold))
	}

	env.unchanged(ErrQuestNotClaimable, func() error { return env.engine.ClaimReward(a, 1) })
	env.mustClaimable(1)
	env.recorder.Reset()

	if err := env.engine.ClaimReward(a, 1); err != nil {
		t.Fatalf("claim a: %v", err)
	}
	if err := env.engine.ClaimReward(b, 1); err != nil {
		t.Fatalf("claim b: %v", err)
	}
	if env.balance(env.gold, a) != 400 || env.balance(env.gold, b) != 500 {
		t.Fatalf("unexpected participant balances")
	}
	if env.balance(env.gold, env.custodian.Address()) != 9100 {
		t.Fatalf("expected custody to drop to 9100, got %d", env.balance(env.gold, env.custodian.Address()))
	}
	if env.remaining(1, gold) != 100 {
		t.Fatalf("claims must not touch the remaining pool")
	}
	pool, err := env.engine.PoolAccounting(1, gold)
	if err != nil || pool.Claimed.Int64() != 900 || pool.Allocated.Sign() != 0 {
		t.Fatalf("unexpected accounting %+v %v", pool, err)
	}
	env.conserved(1)

	types := env.recorder.Types()
	if len(types) != 2 || types[0] != events.TypeRewardClaimed {
		t.Fatalf("unexpected events %v", types)
	}
	claimed := env.recorder.Events()[0].(events.RewardClaimed)
	if claimed.Participant != a || claimed.Transfers != 1 || claimed.QuestID != 1 {
		t.Fatalf("unexpected claim event %+v", claimed)
	}

	env.unchanged(ErrWinnerNotDefined, func() error { return env.engine.ClaimReward(a, 1) })
	alloc, err := env.engine.CheckWinner(1, a)
	if err != nil || !alloc.Empty() {
		t.Fatalf("claimed allocation must be gone, got %+v %v", alloc, err)
	}
}

func TestRemoveClaimedWinnerIsNoop(t *testing.T) {
	env := newTestEnv(t)
	gold := env.gold.Address()
	d := newTestAddress(0x14)
	env.mustCreate(6, [][20]byte{gold}, nil, nil)
	env.mustFund(6, gold, 1000)
	env.mustSetWinners(6, winner(d, fungible(gold, 250)))
	env.mustClaimable(6)
	if err := env.engine.ClaimReward(d, 6); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := env.engine.RemoveWinner(env.admin, 6, d); err != nil {
		t.Fatalf("remove claimed winner: %v", err)
	}
	if env.remaining(6, gold) != 750 {
		t.Fatalf("removing a claimed winner must not refund, got %d", env.remaining(6, gold))
	}
	if env.balance(env.gold, d) != 250 {
		t.Fatalf("claimed funds must stay with the participant")
	}
	env.conserved(6)
}

func TestClaimRejections(t *testing.T) {
	env := newTestEnv(t)
	gold := env.gold.Address()
	a := newTestAddress(0x11)
	env.mustCreate(1, [][20]byte{gold}, nil, nil)
	env.mustFund(1, gold, 100)
	env.mustSetWinners(1, winner(a, fungible(gold, 10)))
	env.mustClaimable(1)

	env.unchanged(ErrQuestNotClaimable, func() error { return env.engine.ClaimReward(a, 2) })
	env.unchanged(ErrWinnerNotDefined, func() error { return env.engine.ClaimReward(newTestAddress(0x12), 1) })
	env.unchanged(access.ErrUnauthorized, func() error { return env.engine.ClaimReward([20]byte{}, 1) })

	if err := env.engine.SetQuestClaimable(env.admin, 1, false); err != nil {
		t.Fatalf("close claims: %v", err)
	}
	env.unchanged(ErrQuestNotClaimable, func() error { return env.engine.ClaimReward(a, 1) })
}

func TestClaimRollsBackOnFailedTransfer(t *testing.T) {
	env := newTestEnv(t)
	gold := env.gold.Address()
	badge := env.badge.Address()
	a := newTestAddress(0x11)
	stranger := newTestAddress(0x30)
	if err := env.mgr.Update(func(tx *state.Tx) error {
		return env.badge.Mint(tx, stranger, big.NewInt(9))
	}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	env.mustCreate(1, [][20]byte{gold}, [][20]byte{badge}, nil)
	env.mustFund(1, gold, 1000)
	env.mustSetWinners(1, winner(a, fungible(gold, 100), unique(badge, 9)))
	env.mustClaimable(1)

	var claimErr error
	env.unchanged(ErrTransferFailed, func() error {
		claimErr = env.engine.ClaimReward(a, 1)
		return claimErr
	})
	if !errors.Is(claimErr, custody.ErrInsufficientCustody) {
		t.Fatalf("expected the custody cause to be kept, got %v", claimErr)
	}
	if Classify(claimErr) != ClassResource {
		t.Fatalf("expected resource class, got %s", Classify(claimErr))
	}
	if env.balance(env.gold, a) != 0 {
		t.Fatalf("no partial payout may survive")
	}
	alloc, err := env.engine.CheckWinner(1, a)
	if err != nil || alloc.Empty() {
		t.Fatalf("allocation must survive a failed claim, got %+v %v", alloc, err)
	}

	if err := env.mgr.Update(func(tx *state.Tx) error {
		return env.badge.SafeTransferFrom(tx, stranger, stranger, env.custodian.Address(), big.NewInt(9))
	}); err != nil {
		t.Fatalf("top up custody: %v", err)
	}
	if err := env.engine.ClaimReward(a, 1); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if env.balance(env.gold, a) != 100 || env.ownerOf(env.badge, 9) != a {
		t.Fatalf("retry must pay every reward")
	}
	env.conserved(1)
}

func TestMixedRewardClaim(t *testing.T) {
	env := newTestEnv(t)
	gold, silver := env.gold.Address(), env.silver.Address()
	a := newTestAddress(0x11)
	env.mustCreate(1, [][20]byte{gold, silver}, [][20]byte{env.badge.Address(), env.relic.Address()}, [][20]byte{env.items.Address()})
	env.mustFund(1, gold, 500)
	env.mustSetWinners(1, winner(a,
		fungible(gold, 200),
		fungible(silver, 0),
		unique(env.badge.Address(), 1),
		unique(env.relic.Address(), 2),
		hybrid(env.items.Address(), 5, 4)))
	env.mustClaimable(1)
	env.recorder.Reset()

	if err := env.engine.ClaimReward(a, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if env.balance(env.gold, a) != 200 || env.balance(env.silver, a) != 0 {
		t.Fatalf("unexpected fungible payout")
	}
	if env.ownerOf(env.badge, 1) != a || env.ownerOf(env.relic, 2) != a {
		t.Fatalf("unique rewards not delivered")
	}
	if env.hybridBalance(a, 5) != 4 || env.hybridBalance(env.custodian.Address(), 5) != 6 {
		t.Fatalf("hybrid reward not delivered")
	}
	claimed := env.recorder.Events()[0].(events.RewardClaimed)
	if claimed.Transfers != 4 {
		t.Fatalf("zero fungible entry must not be transferred, got %d transfers", claimed.Transfers)
	}
	env.conserved(1)
}

func TestEnginesShareCustodian(t *testing.T) {
	env := newTestEnv(t)
	gold := env.gold.Address()
	second := NewEngine(newTestAddress(0xE2), env.mgr, env.registry, env.custodian)
	if err := second.Init(env.owner, env.admin); err != nil {
		t.Fatalf("init second engine: %v", err)
	}
	a := newTestAddress(0x11)

	env.mustCreate(1, [][20]byte{gold}, nil, nil)
	if err := second.CreateQuest(env.admin, 1, [][20]byte{gold}, nil, nil); err != nil {
		t.Fatalf("engines keep separate quest spaces: %v", err)
	}
	for _, engine := range []*Engine{env.engine, second} {
		if err := engine.FundFungiblePool(env.admin, 1, gold, big.NewInt(100)); err != nil {
			t.Fatalf("fund: %v", err)
		}
		if err := engine.SetWinnerRewards(env.admin, 1, []WinnerRewards{winner(a, fungible(gold, 60))}); err != nil {
			t.Fatalf("set winners: %v", err)
		}
		if err := engine.SetQuestClaimable(env.admin, 1, true); err != nil {
			t.Fatalf("claimable: %v", err)
		}
	}

	if err := second.ClaimReward(a, 1); !errors.Is(err, custody.ErrNotApproved) {
		t.Fatalf("unapproved engine must not move custody, got %v", err)
	}
	if err := env.engine.ClaimReward(a, 1); err != nil {
		t.Fatalf("approved engine claim: %v", err)
	}
	if err := env.custodian.SetEngineApproval(env.owner, second.Address(), true); err != nil {
		t.Fatalf("approve second engine: %v", err)
	}
	if err := second.ClaimReward(a, 1); err != nil {
		t.Fatalf("second engine claim: %v", err)
	}
	if env.balance(env.gold, a) != 120 {
		t.Fatalf("expected 120 paid across engines, got %d", env.balance(env.gold, a))
	}
	if err := env.custodian.SetEngineApproval(env.admin, second.Address(), false); !errors.Is(err, custody.ErrUnauthorized) {
		t.Fatalf("only the custodian owner may change approvals, got %v", err)
	}
}
