package assets

import (
	"fmt"
	"math/big"
)

// MultiToken is a hybrid ledger holding an amount per token id.
type MultiToken struct {
	address  [20]byte
	name     string
	registry *Registry
}

func NewMultiToken(address [20]byte, name string, registry *Registry) *MultiToken {
	return &MultiToken{address: address, name: name, registry: registry}
}

func (m *MultiToken) Address() [20]byte { return m.address }

func (m *MultiToken) Name() string { return m.name }

func (m *MultiToken) balanceKey(holder [20]byte, id *big.Int) []byte {
	key := make([]byte, 0, 100)
	key = append(key, "assets/hybrid/balance/"...)
	key = append(key, m.address[:]...)
	key = append(key, tokenKey(id)...)
	key = append(key, holder[:]...)
	return key
}

func (m *MultiToken) BalanceOfID(l Ledger, holder [20]byte, id *big.Int) (*big.Int, error) {
	if err := CheckTokenID(id); err != nil {
		return nil, err
	}
	return l.LoadBigInt(m.balanceKey(holder, id))
}

func (m *MultiToken) move(l Ledger, from, to [20]byte, id, amount *big.Int) error {
	if err := CheckTokenID(id); err != nil {
		return err
	}
	if err := CheckAmount(amount); err != nil {
		return err
	}
	balance, err := m.BalanceOfID(l, from, id)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s #%s has %s, needs %s", ErrInsufficient, m.name, id, balance, amount)
	}
	if err := l.WriteBigInt(m.balanceKey(from, id), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	credit, err := m.BalanceOfID(l, to, id)
	if err != nil {
		return err
	}
	return l.WriteBigInt(m.balanceKey(to, id), credit.Add(credit, amount))
}

// SafeTransferAmount moves amount of id between holders. The operator must be
// the sending holder.
func (m *MultiToken) SafeTransferAmount(l Ledger, operator, from, to [20]byte, id, amount *big.Int) error {
	if isZero(to) {
		return ErrZeroAddress
	}
	if operator != from {
		return fmt.Errorf("%w: operator is not the holder", ErrNotOwner)
	}
	if err := m.move(l, from, to, id, amount); err != nil {
		return err
	}
	return m.registry.acceptHybrid(operator, from, to, id, amount)
}

// SafeBatchTransfer moves several (id, amount) pairs with a single receiver
// acknowledgement.
func (m *MultiToken) SafeBatchTransfer(l Ledger, operator, from, to [20]byte, ids, amounts []*big.Int) error {
	if len(ids) != len(amounts) {
		return ErrBatchLengthMismatch
	}
	if isZero(to) {
		return ErrZeroAddress
	}
	if operator != from {
		return fmt.Errorf("%w: operator is not the holder", ErrNotOwner)
	}
	for i := range ids {
		if err := m.move(l, from, to, ids[i], amounts[i]); err != nil {
			return err
		}
	}
	return m.registry.acceptHybridBatch(operator, from, to, ids, amounts)
}

// Mint credits amount of id to holder.
func (m *MultiToken) Mint(l Ledger, to [20]byte, id, amount *big.Int) error {
	if err := CheckTokenID(id); err != nil {
		return err
	}
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if isZero(to) {
		return ErrZeroAddress
	}
	balance, err := m.BalanceOfID(l, to, id)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	if err := CheckAmount(balance); err != nil {
		return fmt.Errorf("%w: balance overflow", err)
	}
	if err := l.WriteBigInt(m.balanceKey(to, id), balance); err != nil {
		return err
	}
	return m.registry.acceptHybrid([20]byte{}, [20]byte{}, to, id, amount)
}
