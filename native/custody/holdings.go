package custody

import (
	"fmt"
	"math/big"

	"questvault/core/state"
	"questvault/native/assets"
)

// Holding summarises what the custodian holds of one asset.
type Holding struct {
	Asset   [20]byte
	Kind    assets.Kind
	TokenID *big.Int
	Amount  *big.Int
}

// FungibleHolding returns the custodian balance of a fungible asset.
func (c *Custodian) FungibleHolding(asset [20]byte) (*big.Int, error) {
	var out *big.Int
	err := c.view(func(tx *state.Tx) error {
		contract, err := c.registry.Contract(asset)
		if err != nil {
			return err
		}
		token, ok := contract.(assets.Fungible)
		if !ok {
			return fmt.Errorf("%w: fungible", ErrKindMismatch)
		}
		out, err = token.BalanceOf(tx, c.address)
		return err
	})
	return out, err
}

// HoldsUnique reports whether the custodian owns id.
func (c *Custodian) HoldsUnique(asset [20]byte, id *big.Int) (bool, error) {
	var held bool
	err := c.view(func(tx *state.Tx) error {
		contract, err := c.registry.Contract(asset)
		if err != nil {
			return err
		}
		collectible, ok := contract.(assets.Unique)
		if !ok {
			return fmt.Errorf("%w: unique", ErrKindMismatch)
		}
		owner, exists, err := collectible.OwnerOf(tx, id)
		if err != nil {
			return err
		}
		held = exists && owner == c.address
		return nil
	})
	return held, err
}

// HybridHolding returns the custodian balance of one hybrid id.
func (c *Custodian) HybridHolding(asset [20]byte, id *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.view(func(tx *state.Tx) error {
		contract, err := c.registry.Contract(asset)
		if err != nil {
			return err
		}
		multi, ok := contract.(assets.Hybrid)
		if !ok {
			return fmt.Errorf("%w: hybrid", ErrKindMismatch)
		}
		out, err = multi.BalanceOfID(tx, c.address, id)
		return err
	})
	return out, err
}

// FungibleHoldings lists the custodian balance of every registered fungible
// asset with a non-zero holding.
func (c *Custodian) FungibleHoldings() ([]Holding, error) {
	var out []Holding
	err := c.view(func(tx *state.Tx) error {
		for _, contract := range c.registry.Contracts() {
			token, ok := contract.(assets.Fungible)
			if !ok {
				continue
			}
			balance, err := token.BalanceOf(tx, c.address)
			if err != nil {
				return err
			}
			if balance.Sign() == 0 {
				continue
			}
			out = append(out, Holding{Asset: contract.Address(), Kind: assets.KindFungible, Amount: balance})
		}
		return nil
	})
	return out, err
}

func (c *Custodian) view(fn func(tx *state.Tx) error) error {
	if c.manager == nil {
		return errNilManager
	}
	return c.manager.View(fn)
}
