package assets

import (
	"fmt"
	"math/big"
)

// Token is a fungible asset ledger.
type Token struct {
	address [20]byte
	name    string
}

func NewToken(address [20]byte, name string) *Token {
	return &Token{address: address, name: name}
}

func (t *Token) Address() [20]byte { return t.address }

func (t *Token) Name() string { return t.name }

func (t *Token) balanceKey(holder [20]byte) []byte {
	key := make([]byte, 0, 64)
	key = append(key, "assets/fungible/balance/"...)
	key = append(key, t.address[:]...)
	key = append(key, holder[:]...)
	return key
}

func (t *Token) supplyKey() []byte {
	return append([]byte("assets/fungible/supply/"), t.address[:]...)
}

func (t *Token) BalanceOf(l Ledger, holder [20]byte) (*big.Int, error) {
	return l.LoadBigInt(t.balanceKey(holder))
}

// TotalSupply returns the minted amount.
func (t *Token) TotalSupply(l Ledger) (*big.Int, error) {
	return l.LoadBigInt(t.supplyKey())
}

// Transfer moves amount from one holder to another. A zero amount is a valid
// no-op.
func (t *Token) Transfer(l Ledger, from, to [20]byte, amount *big.Int) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if isZero(to) {
		return ErrZeroAddress
	}
	balance, err := t.BalanceOf(l, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficient, t.name, balance, amount)
	}
	if err := l.WriteBigInt(t.balanceKey(from), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	credit, err := t.BalanceOf(l, to)
	if err != nil {
		return err
	}
	return l.WriteBigInt(t.balanceKey(to), credit.Add(credit, amount))
}

// Mint credits amount to holder and grows the supply.
func (t *Token) Mint(l Ledger, to [20]byte, amount *big.Int) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if isZero(to) {
		return ErrZeroAddress
	}
	supply, err := t.TotalSupply(l)
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	if err := CheckAmount(supply); err != nil {
		return fmt.Errorf("%w: supply overflow", err)
	}
	if err := l.WriteBigInt(t.supplyKey(), supply); err != nil {
		return err
	}
	balance, err := t.BalanceOf(l, to)
	if err != nil {
		return err
	}
	return l.WriteBigInt(t.balanceKey(to), balance.Add(balance, amount))
}
