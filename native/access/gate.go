package access

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("access: unauthorized")
	ErrAlreadyInitialized = errors.New("access: already initialized")
	ErrZeroAddress        = errors.New("access: zero address")
)

// Role names the privilege a caller must hold.
type Role uint8

const (
	RoleOwner Role = iota + 1
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

type gateState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Gate stores one owner and one admin under a namespace, usually the address
// of the engine it protects.
type Gate struct {
	namespace [20]byte
}

func NewGate(namespace [20]byte) *Gate {
	return &Gate{namespace: namespace}
}

// Namespace returns the identity the roles are scoped to.
func (g *Gate) Namespace() [20]byte { return g.namespace }

func (g *Gate) key(role Role) []byte {
	key := make([]byte, 0, 48)
	key = append(key, "access/"...)
	key = append(key, g.namespace[:]...)
	key = append(key, '/')
	key = append(key, role.String()...)
	return key
}

func (g *Gate) holder(st gateState, role Role) ([20]byte, bool, error) {
	var out [20]byte
	ok, err := st.KVGet(g.key(role), &out)
	if err != nil {
		return [20]byte{}, false, err
	}
	if !ok || out == ([20]byte{}) {
		return [20]byte{}, false, nil
	}
	return out, true, nil
}

// Owner returns the current owner.
func (g *Gate) Owner(st gateState) ([20]byte, bool, error) {
	return g.holder(st, RoleOwner)
}

// Admin returns the current admin.
func (g *Gate) Admin(st gateState) ([20]byte, bool, error) {
	return g.holder(st, RoleAdmin)
}

// Init installs the first owner and admin. It fails once an owner exists.
func (g *Gate) Init(st gateState, owner, admin [20]byte) error {
	if owner == ([20]byte{}) {
		return ErrZeroAddress
	}
	if _, exists, err := g.Owner(st); err != nil {
		return err
	} else if exists {
		return ErrAlreadyInitialized
	}
	if err := st.KVPut(g.key(RoleOwner), owner); err != nil {
		return err
	}
	if admin == ([20]byte{}) {
		return nil
	}
	return st.KVPut(g.key(RoleAdmin), admin)
}

// Require fails closed unless caller currently holds role. A role that was
// never assigned matches nobody.
func (g *Gate) Require(st gateState, caller [20]byte, role Role) error {
	if caller == ([20]byte{}) {
		return fmt.Errorf("%w: zero caller", ErrUnauthorized)
	}
	if role != RoleOwner && role != RoleAdmin {
		return fmt.Errorf("%w: unknown %s", ErrUnauthorized, role)
	}
	holder, ok, err := g.holder(st, role)
	if err != nil {
		return err
	}
	if !ok || holder != caller {
		return fmt.Errorf("%w: caller is not %s", ErrUnauthorized, role)
	}
	return nil
}

// SetAdmin replaces the admin. Only the owner may call it. The previous admin
// is returned for event emission.
func (g *Gate) SetAdmin(st gateState, caller, admin [20]byte) ([20]byte, error) {
	if err := g.Require(st, caller, RoleOwner); err != nil {
		return [20]byte{}, err
	}
	if admin == ([20]byte{}) {
		return [20]byte{}, ErrZeroAddress
	}
	previous, _, err := g.Admin(st)
	if err != nil {
		return [20]byte{}, err
	}
	return previous, st.KVPut(g.key(RoleAdmin), admin)
}

// TransferOwnership hands the owner role to newOwner.
func (g *Gate) TransferOwnership(st gateState, caller, newOwner [20]byte) ([20]byte, error) {
	if err := g.Require(st, caller, RoleOwner); err != nil {
		return [20]byte{}, err
	}
	if newOwner == ([20]byte{}) {
		return [20]byte{}, ErrZeroAddress
	}
	return caller, st.KVPut(g.key(RoleOwner), newOwner)
}
