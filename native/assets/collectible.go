package assets

import (
	"fmt"
	"math/big"
)

// Collectible is a unique-id asset ledger.
type Collectible struct {
	address  [20]byte
	name     string
	registry *Registry
}

// NewCollectible creates a collectible whose safe transfers consult the
// receiver hooks tracked by registry.
func NewCollectible(address [20]byte, name string, registry *Registry) *Collectible {
	return &Collectible{address: address, name: name, registry: registry}
}

func (c *Collectible) Address() [20]byte { return c.address }

func (c *Collectible) Name() string { return c.name }

func (c *Collectible) ownerKey(id *big.Int) []byte {
	key := make([]byte, 0, 80)
	key = append(key, "assets/unique/owner/"...)
	key = append(key, c.address[:]...)
	key = append(key, tokenKey(id)...)
	return key
}

func (c *Collectible) OwnerOf(l Ledger, id *big.Int) ([20]byte, bool, error) {
	var owner [20]byte
	if err := CheckTokenID(id); err != nil {
		return owner, false, err
	}
	ok, err := l.KVGet(c.ownerKey(id), &owner)
	if err != nil {
		return [20]byte{}, false, err
	}
	return owner, ok, nil
}

// SafeTransferFrom moves id from its owner to another account. Approvals are
// not modelled, so the operator must be the owner.
func (c *Collectible) SafeTransferFrom(l Ledger, operator, from, to [20]byte, id *big.Int) error {
	if err := CheckTokenID(id); err != nil {
		return err
	}
	if isZero(to) {
		return ErrZeroAddress
	}
	owner, ok, err := c.OwnerOf(l, id)
	if err != nil {
		return err
	}
	if !ok || owner != from || operator != from {
		return fmt.Errorf("%w: %s #%s", ErrNotOwner, c.name, id)
	}
	if err := l.KVPut(c.ownerKey(id), to); err != nil {
		return err
	}
	return c.registry.acceptUnique(operator, from, to, id)
}

// Mint creates id under to.
func (c *Collectible) Mint(l Ledger, to [20]byte, id *big.Int) error {
	if err := CheckTokenID(id); err != nil {
		return err
	}
	if isZero(to) {
		return ErrZeroAddress
	}
	if _, exists, err := c.OwnerOf(l, id); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s #%s", ErrTokenExists, c.name, id)
	}
	if err := l.KVPut(c.ownerKey(id), to); err != nil {
		return err
	}
	return c.registry.acceptUnique([20]byte{}, [20]byte{}, to, id)
}
