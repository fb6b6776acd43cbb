package quest

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/native/assets"
	"questvault/native/custody"
	"questvault/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type plainContract struct{ address [20]byte }

func (p plainContract) Address() [20]byte { return p.address }
func (p plainContract) Name() string { return "plain" }

type testEnv struct {
	t         *testing.T
	db        *storage.MemDB
	mgr       *state.Manager
	registry  *assets.Registry
	custodian *custody.Custodian
	engine    *Engine
	recorder  *events.Recorder

	owner [20]byte
	admin [20]byte

	gold   *assets.Token
	silver *assets.Token
	badge  *assets.Collectible
	relic  *assets.Collectible
	items  *assets.MultiToken
	plain  plainContract
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	env := &testEnv{
		t:        t,
		db:       db,
		mgr:      state.NewManager(db),
		registry: assets.NewRegistry(),
		recorder: &events.Recorder{},
		owner:    newTestAddress(0x01),
		admin:    newTestAddress(0x02),
	}
	env.custodian = custody.NewCustodian(newTestAddress(0xC0), env.mgr, env.registry)
	env.engine = NewEngine(newTestAddress(0xE1), env.mgr, env.registry, env.custodian)
	env.engine.SetEmitter(env.recorder)

	env.gold = assets.NewToken(newTestAddress(0xA1), "gold")
	env.silver = assets.NewToken(newTestAddress(0xA2), "silver")
	env.badge = assets.NewCollectible(newTestAddress(0xB1), "badge", env.registry)
	env.relic = assets.NewCollectible(newTestAddress(0xB2), "relic", env.registry)
	env.items = assets.NewMultiToken(newTestAddress(0xD1), "items", env.registry)
	env.plain = plainContract{address: newTestAddress(0xF1)}
	for _, c := range []assets.Contract{env.gold, env.silver, env.badge, env.relic, env.items, env.plain} {
		if err := env.registry.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name(), err)
		}
	}

	vault := env.custodian.Address()
	err := env.mgr.Update(func(tx *state.Tx) error {
		if err := env.custodian.Init(tx, env.owner); err != nil {
			return err
		}
		if err := env.gold.Mint(tx, vault, big.NewInt(10_000)); err != nil {
			return err
		}
		if err := env.silver.Mint(tx, vault, big.NewInt(10_000)); err != nil {
			return err
		}
		for id := int64(1); id <= 4; id++ {
			if err := env.badge.Mint(tx, vault, big.NewInt(id)); err != nil {
				return err
			}
			if err := env.relic.Mint(tx, vault, big.NewInt(id)); err != nil {
				return err
			}
		}
		return env.items.Mint(tx, vault, big.NewInt(5), big.NewInt(10))
	})
	if err != nil {
		t.Fatalf("seed custody: %v", err)
	}
	if err := env.engine.Init(env.owner, env.admin); err != nil {
		t.Fatalf("init engine: %v", err)
	}
	if err := env.custodian.SetEngineApproval(env.owner, env.engine.Address(), true); err != nil {
		t.Fatalf("approve engine: %v", err)
	}
	return env
}

func (env *testEnv) mustCreate(id uint64, fungible, unique, hybrid [][20]byte) {
	env.t.Helper()
	if err := env.engine.CreateQuest(env.admin, id, fungible, unique, hybrid); err != nil {
		env.t.Fatalf("create quest %d: %v", id, err)
	}
}

func (env *testEnv) mustFund(id uint64, asset [20]byte, amount int64) {
	env.t.Helper()
	if err := env.engine.FundFungiblePool(env.admin, id, asset, big.NewInt(amount)); err != nil {
		env.t.Fatalf("fund quest %d: %v", id, err)
	}
}

func (env *testEnv) mustClaimable(id uint64) {
	env.t.Helper()
	if err := env.engine.SetQuestClaimable(env.admin, id, true); err != nil {
		env.t.Fatalf("set claimable %d: %v", id, err)
	}
}

func (env *testEnv) mustSetWinners(id uint64, winners ...WinnerRewards) {
	env.t.Helper()
	if err := env.engine.SetWinnerRewards(env.admin, id, winners); err != nil {
		env.t.Fatalf("set winners for quest %d: %v", id, err)
	}
}

func (env *testEnv) remaining(id uint64, asset [20]byte) int64 {
	env.t.Helper()
	value, err := env.engine.GetRemainingFungiblePool(id, asset)
	if err != nil {
		env.t.Fatalf("remaining pool: %v", err)
	}
	return value.Int64()
}

func (env *testEnv) balance(token *assets.Token, holder [20]byte) int64 {
	env.t.Helper()
	var out *big.Int
	if err := env.mgr.View(func(tx *state.Tx) error {
		var err error
		out, err = token.BalanceOf(tx, holder)
		return err
	}); err != nil {
		env.t.Fatalf("balance: %v", err)
	}
	return out.Int64()
}

func (env *testEnv) ownerOf(c *assets.Collectible, id int64) [20]byte {
	env.t.Helper()
	var owner [20]byte
	if err := env.mgr.View(func(tx *state.Tx) error {
		var err error
		owner, _, err = c.OwnerOf(tx, big.NewInt(id))
		return err
	}); err != nil {
		env.t.Fatalf("owner of: %v", err)
	}
	return owner
}

func (env *testEnv) hybridBalance(holder [20]byte, id int64) int64 {
	env.t.Helper()
	var out *big.Int
	if err := env.mgr.View(func(tx *state.Tx) error {
		var err error
		out, err = env.items.BalanceOfID(tx, holder, big.NewInt(id))
		return err
	}); err != nil {
		env.t.Fatalf("hybrid balance: %v", err)
	}
	return out.Int64()
}

func (env *testEnv) conserved(id uint64) {
	env.t.Helper()
	if err := env.engine.VerifyConservation(id); err != nil {
		env.t.Fatalf("conservation broken for quest %d: %v", id, err)
	}
}

// unchanged asserts fn fails with want and leaves the store byte-for-byte as
// it was.
func (env *testEnv) unchanged(want error, fn func() error) {
	env.t.Helper()
	before := env.db.Snapshot()
	err := fn()
	if !errors.Is(err, want) {
		env.t.Fatalf("expected %v, got %v", want, err)
	}
	after := env.db.Snapshot()
	if len(after) != len(before) {
		env.t.Fatalf("rejected operation changed key count: %d -> %d", len(before), len(after))
	}
	for k, v := range before {
		if !bytes.Equal(after[k], v) {
			env.t.Fatalf("rejected operation mutated state")
		}
	}
}

func fungible(asset [20]byte, amount int64) FungibleReward {
	return FungibleReward{Asset: asset, Amount: big.NewInt(amount)}
}

func unique(asset [20]byte, id int64) UniqueReward {
	return UniqueReward{Asset: asset, TokenID: big.NewInt(id)}
}

func hybrid(asset [20]byte, id, amount int64) HybridReward {
	return HybridReward{Asset: asset, TokenID: big.NewInt(id), Amount: big.NewInt(amount)}
}

func winner(participant [20]byte, rewards ...interface{}) WinnerRewards {
	w := WinnerRewards{Participant: participant}
	for _, r := range rewards {
		switch v := r.(type) {
		case FungibleReward:
			w.Fungible = append(w.Fungible, v)
		case UniqueReward:
			w.Unique = append(w.Unique, v)
		case HybridReward:
			w.Hybrid = append(w.Hybrid, v)
		}
	}
	return w
}
