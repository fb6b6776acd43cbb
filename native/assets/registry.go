package assets

import (
	"fmt"
	"math/big"
	"sync"
)

// Receiver interface identifiers answered by SupportsInterface.
var (
	InterfaceIDSupports       = [4]byte{0x01, 0xff, 0xc9, 0xa7}
	InterfaceIDUniqueReceiver = [4]byte{0x15, 0x0b, 0x7a, 0x02}
	InterfaceIDHybridReceiver = [4]byte{0x4e, 0x23, 0x12, 0xe0}
)

// UniqueReceiver acknowledges incoming unique tokens. Returning an error
// rejects the transfer.
type UniqueReceiver interface {
	OnUniqueReceived(operator, from [20]byte, id *big.Int) error
}

// HybridReceiver acknowledges incoming hybrid tokens.
type HybridReceiver interface {
	OnHybridReceived(operator, from [20]byte, id, amount *big.Int) error
	OnHybridBatchReceived(operator, from [20]byte, ids, amounts []*big.Int) error
}

// InterfaceSupporter answers interface identifier queries.
type InterfaceSupporter interface {
	SupportsInterface(id [4]byte) bool
}

// Registry resolves asset contracts by address and tracks which addresses are
// programmatic receivers. Safe transfers to a registered receiver must be
// acknowledged by the matching hook; other addresses accept unconditionally.
type Registry struct {
	mu        sync.RWMutex
	contracts map[[20]byte]Contract
	order     [][20]byte
	receivers map[[20]byte]interface{}
}

func NewRegistry() *Registry {
	return &Registry{
		contracts: make(map[[20]byte]Contract),
		receivers: make(map[[20]byte]interface{}),
	}
}

// Register adds contract under its address.
func (r *Registry) Register(contract Contract) error {
	if contract == nil {
		return fmt.Errorf("assets: nil contract")
	}
	addr := contract.Address()
	if isZero(addr) {
		return ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[addr]; exists {
		return fmt.Errorf("%w: %x", ErrContractExists, addr)
	}
	r.contracts[addr] = contract
	r.order = append(r.order, addr)
	return nil
}

// Contract returns the contract registered at addr.
func (r *Registry) Contract(addr [20]byte) (Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	contract, ok := r.contracts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownContract, addr)
	}
	return contract, nil
}

// Contracts lists the registered contracts in registration order.
func (r *Registry) Contracts() []Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Contract, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.contracts[addr])
	}
	return out
}

// RegisterReceiver marks addr as a programmatic account. receiver may
// implement UniqueReceiver, HybridReceiver or both.
func (r *Registry) RegisterReceiver(addr [20]byte, receiver interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[addr] = receiver
}

func (r *Registry) receiver(addr [20]byte) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	receiver, ok := r.receivers[addr]
	return receiver, ok
}

func (r *Registry) acceptUnique(operator, from, to [20]byte, id *big.Int) error {
	registered, ok := r.receiver(to)
	if !ok {
		return nil
	}
	hook, ok := registered.(UniqueReceiver)
	if !ok {
		return fmt.Errorf("%w: %x has no unique receiver hook", ErrReceiverRejected, to)
	}
	if err := hook.OnUniqueReceived(operator, from, id); err != nil {
		return fmt.Errorf("%w: %v", ErrReceiverRejected, err)
	}
	return nil
}

func (r *Registry) acceptHybrid(operator, from, to [20]byte, id, amount *big.Int) error {
	registered, ok := r.receiver(to)
	if !ok {
		return nil
	}
	hook, ok := registered.(HybridReceiver)
	if !ok {
		return fmt.Errorf("%w: %x has no hybrid receiver hook", ErrReceiverRejected, to)
	}
	if err := hook.OnHybridReceived(operator, from, id, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrReceiverRejected, err)
	}
	return nil
}

func (r *Registry) acceptHybridBatch(operator, from, to [20]byte, ids, amounts []*big.Int) error {
	registered, ok := r.receiver(to)
	if !ok {
		return nil
	}
	hook, ok := registered.(HybridReceiver)
	if !ok {
		return fmt.Errorf("%w: %x has no hybrid receiver hook", ErrReceiverRejected, to)
	}
	if err := hook.OnHybridBatchReceived(operator, from, ids, amounts); err != nil {
		return fmt.Errorf("%w: %v", ErrReceiverRejected, err)
	}
	return nil
}
