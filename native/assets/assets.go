package assets

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrUnknownContract     = errors.New("assets: unknown contract")
	ErrContractExists      = errors.New("assets: contract already registered")
	ErrInsufficient        = errors.New("assets: insufficient balance")
	ErrNotOwner            = errors.New("assets: caller does not own token")
	ErrTokenExists         = errors.New("assets: token already minted")
	ErrInvalidAmount       = errors.New("assets: invalid amount")
	ErrInvalidTokenID      = errors.New("assets: invalid token id")
	ErrZeroAddress         = errors.New("assets: zero address")
	ErrReceiverRejected    = errors.New("assets: receiver rejected transfer")
	ErrBatchLengthMismatch = errors.New("assets: ids and amounts length mismatch")
)

// Kind identifies the transfer semantics of an asset class.
type Kind uint8

const (
	KindFungible Kind = iota + 1
	KindUnique
	KindHybrid
)

func (k Kind) String() string {
	switch k {
	case KindFungible:
		return "fungible"
	case KindUnique:
		return "unique"
	case KindHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether the kind is one of the supported classes.
func (k Kind) Valid() bool {
	switch k {
	case KindFungible, KindUnique, KindHybrid:
		return true
	default:
		return false
	}
}

// ParseKind maps a configuration string onto a Kind. The token standard names
// are accepted as aliases.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "fungible", "erc20":
		return KindFungible, nil
	case "unique", "erc721":
		return KindUnique, nil
	case "hybrid", "erc1155":
		return KindHybrid, nil
	default:
		return 0, fmt.Errorf("assets: unsupported kind %q", value)
	}
}

// Ledger is the slice of the state transaction the asset contracts need.
type Ledger interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	LoadBigInt(key []byte) (*big.Int, error)
	WriteBigInt(key []byte, value *big.Int) error
}

// Contract is the identity every registered asset exposes.
type Contract interface {
	Address() [20]byte
	Name() string
}

// Fungible is an amount-only ledger.
type Fungible interface {
	Contract
	BalanceOf(l Ledger, holder [20]byte) (*big.Int, error)
	Transfer(l Ledger, from, to [20]byte, amount *big.Int) error
}

// Unique tracks a single owner per token id.
type Unique interface {
	Contract
	OwnerOf(l Ledger, id *big.Int) ([20]byte, bool, error)
	SafeTransferFrom(l Ledger, operator, from, to [20]byte, id *big.Int) error
}

// Hybrid tracks an amount per (token id, holder).
type Hybrid interface {
	Contract
	BalanceOfID(l Ledger, holder [20]byte, id *big.Int) (*big.Int, error)
	SafeTransferAmount(l Ledger, operator, from, to [20]byte, id, amount *big.Int) error
	SafeBatchTransfer(l Ledger, operator, from, to [20]byte, ids, amounts []*big.Int) error
}

// Supports probes whether contract exposes the capability set of kind.
func Supports(contract Contract, kind Kind) bool {
	if contract == nil {
		return false
	}
	switch kind {
	case KindFungible:
		_, ok := contract.(Fungible)
		return ok
	case KindUnique:
		_, ok := contract.(Unique)
		return ok
	case KindHybrid:
		_, ok := contract.(Hybrid)
		return ok
	default:
		return false
	}
}

// Kinds returns every class contract satisfies.
func Kinds(contract Contract) []Kind {
	var out []Kind
	for _, kind := range []Kind{KindFungible, KindUnique, KindHybrid} {
		if Supports(contract, kind) {
			out = append(out, kind)
		}
	}
	return out
}

// CheckAmount validates that v is a non-negative integer that fits in 256 bits.
func CheckAmount(v *big.Int) error {
	if !bounded(v) {
		return ErrInvalidAmount
	}
	return nil
}

// CheckTokenID validates a token identifier with the same bounds as amounts.
func CheckTokenID(v *big.Int) error {
	if !bounded(v) {
		return ErrInvalidTokenID
	}
	return nil
}

func bounded(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

func isZero(addr [20]byte) bool {
	return addr == [20]byte{}
}

func tokenKey(id *big.Int) []byte {
	// Callers validate ids before reaching the key helpers.
	value, _ := uint256.FromBig(id)
	buf := value.Bytes32()
	return buf[:]
}
