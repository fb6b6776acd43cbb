package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"questvault/core/state"
	"questvault/native/assets"
	"questvault/native/custody"
	"questvault/native/quest"
)

var appliedKey = []byte("genesis/applied")

// Runtime is the wiring produced from a genesis spec.
type Runtime struct {
	Registry  *assets.Registry
	Custodian *custody.Custodian
	Engines   []*quest.Engine
	Tokens    map[[20]byte]*assets.Token
	Uniques   map[[20]byte]*assets.Collectible
	Hybrids   map[[20]byte]*assets.MultiToken
}

// Engine returns the engine stored under addr.
func (r *Runtime) Engine(addr [20]byte) (*quest.Engine, bool) {
	for _, engine := range r.Engines {
		if engine.Address() == addr {
			return engine, true
		}
	}
	return nil, false
}

// Fingerprint is the keccak256 of the canonical JSON encoding of the spec.
// It is recorded on first boot so a later boot with a different file fails.
func (s *Spec) Fingerprint() ([]byte, error) {
	encoded, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(encoded), nil
}

// Build constructs the contracts, custodian and engines described by spec
// without touching state.
func Build(spec *Spec, manager *state.Manager) (*Runtime, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return nil, fmt.Errorf("state manager must not be nil")
	}
	rt := &Runtime{
		Registry: assets.NewRegistry(),
		Tokens:   make(map[[20]byte]*assets.Token),
		Uniques:  make(map[[20]byte]*assets.Collectible),
		Hybrids:  make(map[[20]byte]*assets.MultiToken),
	}
	for _, a := range spec.Assets {
		var contract assets.Contract
		switch a.kind {
		case assets.KindFungible:
			token := assets.NewToken(a.addr, a.Name)
			rt.Tokens[a.addr] = token
			contract = token
		case assets.KindUnique:
			collectible := assets.NewCollectible(a.addr, a.Name, rt.Registry)
			rt.Uniques[a.addr] = collectible
			contract = collectible
		case assets.KindHybrid:
			multi := assets.NewMultiToken(a.addr, a.Name, rt.Registry)
			rt.Hybrids[a.addr] = multi
			contract = multi
		default:
			return nil, fmt.Errorf("asset %s: unsupported kind %s", a.Name, a.kind)
		}
		if err := rt.Registry.Register(contract); err != nil {
			return nil, fmt.Errorf("register %s: %w", a.Name, err)
		}
	}
	rt.Custodian = custody.NewCustodian(spec.Custodian.addr, manager, rt.Registry)
	for _, e := range spec.Engines {
		rt.Engines = append(rt.Engines, quest.NewEngine(e.addr, manager, rt.Registry, rt.Custodian))
	}
	return rt, nil
}

// Apply builds the runtime and, on first boot, installs roles, approvals and
// balances in one transaction. Later boots only check the recorded
// fingerprint.
func Apply(spec *Spec, manager *state.Manager) (*Runtime, bool, error) {
	rt, err := Build(spec, manager)
	if err != nil {
		return nil, false, err
	}
	fingerprint, err := spec.Fingerprint()
	if err != nil {
		return nil, false, err
	}
	applied := false
	err = manager.Update(func(tx *state.Tx) error {
		var recorded []byte
		ok, err := tx.KVGet(appliedKey, &recorded)
		if err != nil {
			return err
		}
		if ok {
			if !bytes.Equal(recorded, fingerprint) {
				return fmt.Errorf("genesis: state was initialised from a different spec")
			}
			return nil
		}
		if err := rt.Custodian.Init(tx, spec.Custodian.owner); err != nil {
			return fmt.Errorf("custodian: %w", err)
		}
		for i, e := range spec.Engines {
			if err := rt.Engines[i].Gate().Init(tx, e.owner, e.admin); err != nil {
				return fmt.Errorf("engine %s: %w", e.Address, err)
			}
			if !e.Approved {
				continue
			}
			if err := rt.Custodian.SetEngineApprovalIn(tx, spec.Custodian.owner, e.addr, true); err != nil {
				return fmt.Errorf("approve engine %s: %w", e.Address, err)
			}
		}
		if err := mintAlloc(tx, rt, spec.Alloc); err != nil {
			return err
		}
		applied = true
		return tx.KVPut(appliedKey, fingerprint)
	})
	if err != nil {
		return nil, false, err
	}
	return rt, applied, nil
}

func mintAlloc(tx *state.Tx, rt *Runtime, alloc []AllocSpec) error {
	ordered := append([]AllocSpec(nil), alloc...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].asset[:], ordered[j].asset[:]) < 0
	})
	for _, a := range ordered {
		var err error
		if token, ok := rt.Tokens[a.asset]; ok {
			err = token.Mint(tx, a.holder, a.amount)
		} else if collectible, ok := rt.Uniques[a.asset]; ok {
			err = collectible.Mint(tx, a.holder, a.tokenID)
		} else if multi, ok := rt.Hybrids[a.asset]; ok {
			err = multi.Mint(tx, a.holder, a.tokenID, a.amount)
		} else {
			err = fmt.Errorf("asset not built")
		}
		if err != nil {
			return fmt.Errorf("alloc %s to %s: %w", a.Asset, a.Holder, err)
		}
	}
	return nil
}
