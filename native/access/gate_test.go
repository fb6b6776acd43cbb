package access

import (
	"errors"
	"testing"

	"questvault/core/state"
	"questvault/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestGateRoles(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	gate := NewGate(addr(0xEE))
	owner, admin, stranger := addr(1), addr(2), addr(3)

	// Nothing is authorised before initialisation.
	err := mgr.View(func(tx *state.Tx) error {
		return gate.Require(tx, owner, RoleOwner)
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected fail-closed check, got %v", err)
	}

	if err := mgr.Update(func(tx *state.Tx) error { return gate.Init(tx, owner, admin) }); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := mgr.Update(func(tx *state.Tx) error { return gate.Init(tx, stranger, stranger) }); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	checks := []struct {
		caller [20]byte
		role   Role
		ok     bool
	}{
		{owner, RoleOwner, true},
		{owner, RoleAdmin, false},
		{admin, RoleAdmin, true},
		{admin, RoleOwner, false},
		{stranger, RoleAdmin, false},
		{[20]byte{}, RoleAdmin, false},
		{owner, Role(9), false},
	}
	err = mgr.View(func(tx *state.Tx) error {
		for _, c := range checks {
			err := gate.Require(tx, c.caller, c.role)
			if c.ok && err != nil {
				t.Fatalf("expected %x to hold %s: %v", c.caller, c.role, err)
			}
			if !c.ok && !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected %x to be refused %s, got %v", c.caller, c.role, err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestGateOwnerOperations(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	gate := NewGate(addr(0xEE))
	owner, admin, next := addr(1), addr(2), addr(3)
	if err := mgr.Update(func(tx *state.Tx) error { return gate.Init(tx, owner, [20]byte{}) }); err != nil {
		t.Fatalf("init: %v", err)
	}

	err := mgr.Update(func(tx *state.Tx) error {
		_, err := gate.SetAdmin(tx, admin, admin)
		return err
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner must not set admin, got %v", err)
	}

	err = mgr.Update(func(tx *state.Tx) error {
		previous, err := gate.SetAdmin(tx, owner, admin)
		if err != nil {
			return err
		}
		if previous != ([20]byte{}) {
			t.Fatalf("expected no previous admin, got %x", previous)
		}
		_, err = gate.TransferOwnership(tx, owner, next)
		return err
	})
	if err != nil {
		t.Fatalf("owner operations: %v", err)
	}

	err = mgr.View(func(tx *state.Tx) error {
		got, ok, err := gate.Owner(tx)
		if err != nil {
			return err
		}
		if !ok || got != next {
			t.Fatalf("expected ownership to move, got %x", got)
		}
		if err := gate.Require(tx, owner, RoleOwner); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("previous owner must lose the role, got %v", err)
		}
		return gate.Require(tx, admin, RoleAdmin)
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	err = mgr.Update(func(tx *state.Tx) error {
		_, err := gate.TransferOwnership(tx, next, [20]byte{})
		return err
	})
	if !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}

func TestGatesAreNamespaced(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	first, second := NewGate(addr(0xA1)), NewGate(addr(0xA2))
	if err := mgr.Update(func(tx *state.Tx) error { return first.Init(tx, addr(1), addr(2)) }); err != nil {
		t.Fatalf("init: %v", err)
	}
	err := mgr.View(func(tx *state.Tx) error {
		return second.Require(tx, addr(2), RoleAdmin)
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("roles must not leak across namespaces, got %v", err)
	}
}
