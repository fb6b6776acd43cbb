package custody

import (
	"errors"
	"math/big"
	"testing"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/native/assets"
	"questvault/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

type fixture struct {
	mgr       *state.Manager
	registry  *assets.Registry
	custodian *Custodian
	token     *assets.Token
	badge     *assets.Collectible
	items     *assets.MultiToken
	owner     [20]byte
	engine    [20]byte
	recorder  *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mgr:      state.NewManager(storage.NewMemDB()),
		registry: assets.NewRegistry(),
		owner:    addr(1),
		engine:   addr(2),
		recorder: &events.Recorder{},
	}
	f.custodian = NewCustodian(addr(0xC0), f.mgr, f.registry)
	f.custodian.SetEmitter(f.recorder)
	f.token = assets.NewToken(addr(0xA1), "gold")
	f.badge = assets.NewCollectible(addr(0xA2), "badge", f.registry)
	f.items = assets.NewMultiToken(addr(0xA3), "items", f.registry)
	for _, c := range []assets.Contract{f.token, f.badge, f.items} {
		if err := f.registry.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name(), err)
		}
	}
	vault := f.custodian.Address()
	err := f.mgr.Update(func(tx *state.Tx) error {
		if err := f.custodian.Init(tx, f.owner); err != nil {
			return err
		}
		if err := f.token.Mint(tx, vault, big.NewInt(1000)); err != nil {
			return err
		}
		if err := f.badge.Mint(tx, vault, big.NewInt(7)); err != nil {
			return err
		}
		return f.items.Mint(tx, vault, big.NewInt(3), big.NewInt(10))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return f
}

func TestEngineApproval(t *testing.T) {
	f := newFixture(t)
	if err := f.custodian.SetEngineApproval(f.engine, f.engine, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.custodian.SetEngineApproval(f.owner, f.engine, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved, err := f.custodian.IsEngineApproved(f.engine)
	if err != nil || !approved {
		t.Fatalf("expected engine approved, got %v %v", approved, err)
	}
	if err := f.custodian.SetEngineApproval(f.owner, f.engine, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	approved, err = f.custodian.IsEngineApproved(f.engine)
	if err != nil || approved {
		t.Fatalf("expected engine revoked, got %v %v", approved, err)
	}
	if got := f.recorder.Types(); len(got) != 2 || got[0] != events.TypeEngineApprovalSet {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestTransferRequiresApproval(t *testing.T) {
	f := newFixture(t)
	err := f.mgr.Update(func(tx *state.Tx) error {
		return f.custodian.Transfer(tx, f.engine, Instruction{
			Asset: f.token.Address(), Kind: assets.KindFungible, To: addr(9), Amount: big.NewInt(1),
		})
	})
	if !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestTransferAllKinds(t *testing.T) {
	f := newFixture(t)
	if err := f.custodian.SetEngineApproval(f.owner, f.engine, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	winner := addr(9)
	err := f.mgr.Update(func(tx *state.Tx) error {
		for _, ins := range []Instruction{
			{Asset: f.token.Address(), Kind: assets.KindFungible, To: winner, Amount: big.NewInt(400)},
			{Asset: f.badge.Address(), Kind: assets.KindUnique, To: winner, TokenID: big.NewInt(7)},
			{Asset: f.items.Address(), Kind: assets.KindHybrid, To: winner, TokenID: big.NewInt(3), Amount: big.NewInt(4)},
		} {
			if err := f.custodian.Transfer(tx, f.engine, ins); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	held, err := f.custodian.FungibleHolding(f.token.Address())
	if err != nil || held.Int64() != 600 {
		t.Fatalf("unexpected fungible holding %v %v", held, err)
	}
	owns, err := f.custodian.HoldsUnique(f.badge.Address(), big.NewInt(7))
	if err != nil || owns {
		t.Fatalf("badge should have left custody: %v %v", owns, err)
	}
	hybrid, err := f.custodian.HybridHolding(f.items.Address(), big.NewInt(3))
	if err != nil || hybrid.Int64() != 6 {
		t.Fatalf("unexpected hybrid holding %v %v", hybrid, err)
	}
	holdings, err := f.custodian.FungibleHoldings()
	if err != nil || len(holdings) != 1 || holdings[0].Amount.Int64() != 600 {
		t.Fatalf("unexpected holdings %+v %v", holdings, err)
	}
}

func TestTransferInsufficientCustody(t *testing.T) {
	f := newFixture(t)
	if err := f.custodian.SetEngineApproval(f.owner, f.engine, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	cases := []Instruction{
		{Asset: f.token.Address(), Kind: assets.KindFungible, To: addr(9), Amount: big.NewInt(1001)},
		{Asset: f.badge.Address(), Kind: assets.KindUnique, To: addr(9), TokenID: big.NewInt(8)},
		{Asset: f.items.Address(), Kind: assets.KindHybrid, To: addr(9), TokenID: big.NewInt(3), Amount: big.NewInt(11)},
	}
	for _, ins := range cases {
		err := f.mgr.Update(func(tx *state.Tx) error { return f.custodian.Transfer(tx, f.engine, ins) })
		if !errors.Is(err, ErrInsufficientCustody) {
			t.Fatalf("%s: expected ErrInsufficientCustody, got %v", ins.Kind, err)
		}
	}
	err := f.mgr.Update(func(tx *state.Tx) error {
		return f.custodian.Transfer(tx, f.engine, Instruction{Asset: f.token.Address(), Kind: assets.KindUnique, To: addr(9), TokenID: big.NewInt(1)})
	})
	if !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
}

func TestReceiverInterface(t *testing.T) {
	f := newFixture(t)
	for _, id := range [][4]byte{assets.InterfaceIDUniqueReceiver, assets.InterfaceIDHybridReceiver, assets.InterfaceIDSupports} {
		if !f.custodian.SupportsInterface(id) {
			t.Fatalf("expected interface %x to be supported", id)
		}
	}
	if f.custodian.SupportsInterface([4]byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("unexpected interface support")
	}
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	next := addr(5)
	if err := f.custodian.TransferOwnership(next, next); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.custodian.TransferOwnership(f.owner, next); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	owner, ok, err := f.custodian.Owner()
	if err != nil || !ok || owner != next {
		t.Fatalf("unexpected owner %x %v %v", owner, ok, err)
	}
	if err := f.custodian.SetEngineApproval(f.owner, f.engine, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous owner must lose control, got %v", err)
	}
}
