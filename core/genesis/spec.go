package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"questvault/crypto"
	"questvault/native/assets"
)

// Spec describes the contracts, roles and balances a fresh ledger boots with.
type Spec struct {
	Assets    []AssetSpec   `json:"assets" yaml:"assets"`
	Custodian CustodianSpec `json:"custodian" yaml:"custodian"`
	Engines   []EngineSpec  `json:"engines" yaml:"engines"`
	Alloc     []AllocSpec   `json:"alloc" yaml:"alloc"`
}

type AssetSpec struct {
	Name    string `json:"name" yaml:"name"`
	Kind    string `json:"kind" yaml:"kind"`
	Address string `json:"address" yaml:"address"`

	kind assets.Kind
	addr [20]byte
}

type CustodianSpec struct {
	Address string `json:"address" yaml:"address"`
	Owner   string `json:"owner" yaml:"owner"`

	addr  [20]byte
	owner [20]byte
}

// EngineSpec installs one quest engine namespace. Approved engines may move
// assets held by the custodian.
type EngineSpec struct {
	Address  string `json:"address" yaml:"address"`
	Owner    string `json:"owner" yaml:"owner"`
	Admin    string `json:"admin" yaml:"admin"`
	Approved bool   `json:"approved" yaml:"approved"`

	addr  [20]byte
	owner [20]byte
	admin [20]byte
}

// AllocSpec mints an initial holding. Fungible assets use Amount, unique
// assets use TokenID and hybrid assets use both. The holder "custodian" is
// an alias for the custodian address.
type AllocSpec struct {
	Asset   string `json:"asset" yaml:"asset"`
	Holder  string `json:"holder" yaml:"holder"`
	Amount  string `json:"amount,omitempty" yaml:"amount,omitempty"`
	TokenID string `json:"tokenId,omitempty" yaml:"tokenId,omitempty"`

	asset   [20]byte
	holder  [20]byte
	amount  *big.Int
	tokenID *big.Int
}

// LoadSpec reads a genesis file. Files ending in .yaml or .yml are decoded
// as YAML, everything else as JSON. Unknown fields are rejected in both.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&spec)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&spec)
	}
	if err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// Validate resolves every address and amount and checks cross references.
func (s *Spec) Validate() error {
	var err error
	if s.Custodian.addr, err = parseAccount("custodian.address", s.Custodian.Address); err != nil {
		return err
	}
	if s.Custodian.owner, err = parseAccount("custodian.owner", s.Custodian.Owner); err != nil {
		return err
	}

	kinds := make(map[[20]byte]assets.Kind, len(s.Assets))
	names := make(map[string]int, len(s.Assets))
	for i := range s.Assets {
		a := &s.Assets[i]
		a.Name = normalizeName(a.Name)
		if a.Name == "" {
			return fmt.Errorf("assets[%d]: name required", i)
		}
		folded := strings.ToLower(a.Name)
		if prev, dup := names[folded]; dup {
			return fmt.Errorf("assets[%d]: name %q already used by assets[%d]", i, a.Name, prev)
		}
		names[folded] = i
		if a.kind, err = assets.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		if a.addr, err = parseAccount(fmt.Sprintf("assets[%d].address", i), a.Address); err != nil {
			return err
		}
		if _, dup := kinds[a.addr]; dup {
			return fmt.Errorf("assets[%d]: duplicate address %s", i, a.Address)
		}
		kinds[a.addr] = a.kind
	}

	seen := make(map[[20]byte]bool, len(s.Engines))
	for i := range s.Engines {
		e := &s.Engines[i]
		field := fmt.Sprintf("engines[%d]", i)
		if e.addr, err = parseAccount(field+".address", e.Address); err != nil {
			return err
		}
		if e.owner, err = parseAccount(field+".owner", e.Owner); err != nil {
			return err
		}
		if e.admin, err = parseAccount(field+".admin", e.Admin); err != nil {
			return err
		}
		if seen[e.addr] {
			return fmt.Errorf("%s: duplicate engine %s", field, e.Address)
		}
		seen[e.addr] = true
	}

	for i := range s.Alloc {
		a := &s.Alloc[i]
		field := fmt.Sprintf("alloc[%d]", i)
		if a.asset, err = parseAccount(field+".asset", a.Asset); err != nil {
			return err
		}
		kind, ok := kinds[a.asset]
		if !ok {
			return fmt.Errorf("%s: asset %s not declared", field, a.Asset)
		}
		if strings.EqualFold(strings.TrimSpace(a.Holder), "custodian") {
			a.holder = s.Custodian.addr
		} else if a.holder, err = parseAccount(field+".holder", a.Holder); err != nil {
			return err
		}
		if kind != assets.KindUnique {
			if a.amount, err = parseAmountString(a.Amount); err != nil {
				return fmt.Errorf("%s.amount: %w", field, err)
			}
		}
		if kind != assets.KindFungible {
			if a.tokenID, err = parseAmountString(a.TokenID); err != nil {
				return fmt.Errorf("%s.tokenId: %w", field, err)
			}
		}
	}
	return nil
}

// normalizeName folds compatibility forms so visually identical asset names
// compare equal.
func normalizeName(name string) string {
	return norm.NFKC.String(strings.TrimSpace(name))
}

func parseAccount(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s: address required", field)
	}
	addr, err := crypto.ParseAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	if addr == ([20]byte{}) {
		return [20]byte{}, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("value required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	if err := assets.CheckAmount(amount); err != nil {
		return nil, err
	}
	return amount, nil
}
