package endless

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/crypto"
	"questvault/native/access"
	"questvault/native/assets"
)

var (
	ErrUnauthorized     = errors.New("endless: caller is not the participant")
	ErrInvalidSignature = errors.New("endless: invalid signature")
	ErrSignerMismatch   = errors.New("endless: signature not from admin")
	ErrAlreadyMinted    = errors.New("endless: already minted")
	ErrAdminUnset       = errors.New("endless: admin not configured")
	ErrMinterMissing    = errors.New("endless: minter not configured")
)

// Minter issues the endless-quest reward. It runs inside the redeem
// transaction and any error aborts the redeem.
type Minter interface {
	Mint(tx *state.Tx, questID uint64, participant [20]byte) error
}

// Request is a participant's redeem call.
type Request struct {
	QuestID     uint64
	Participant [20]byte
	Signature   []byte
}

// Authorizer verifies admin-signed mint requests and keeps a one-shot guard
// per (quest, participant). The guard is independent of quest allocations.
type Authorizer struct {
	domain  Domain
	manager *state.Manager
	gate    *access.Gate
	minter  Minter
	emitter events.Emitter
	logger  *slog.Logger
}

func NewAuthorizer(domain Domain, manager *state.Manager, gate *access.Gate, minter Minter) *Authorizer {
	return &Authorizer{
		domain:  domain,
		manager: manager,
		gate:    gate,
		minter:  minter,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

func (a *Authorizer) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

func (a *Authorizer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	a.logger = logger
}

// Domain returns the signing domain requests are checked against.
func (a *Authorizer) Domain() Domain { return a.domain }

func (a *Authorizer) guardKey(questID uint64, participant [20]byte) []byte {
	ns := a.gate.Namespace()
	key := make([]byte, 0, 64)
	key = append(key, "endless/"...)
	key = append(key, ns[:]...)
	key = binary.BigEndian.AppendUint64(key, questID)
	return append(key, participant[:]...)
}

// Minted reports whether participant already redeemed questID.
func (a *Authorizer) Minted(questID uint64, participant [20]byte) (bool, error) {
	var minted bool
	err := a.manager.View(func(tx *state.Tx) error {
		var err error
		minted, err = tx.KVGet(a.guardKey(questID, participant), nil)
		return err
	})
	return minted, err
}

// Redeem mints the endless reward for the caller once per quest.
func (a *Authorizer) Redeem(caller [20]byte, req Request) error {
	if a.minter == nil {
		return ErrMinterMissing
	}
	if caller == ([20]byte{}) || caller != req.Participant {
		return ErrUnauthorized
	}
	signer, err := Recover(a.domain, req.QuestID, req.Participant, req.Signature)
	if err != nil {
		return err
	}
	err = a.manager.Update(func(tx *state.Tx) error {
		admin, ok, err := a.gate.Admin(tx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAdminUnset
		}
		if signer != admin {
			return fmt.Errorf("%w: recovered %s", ErrSignerMismatch, crypto.Format(signer))
		}
		key := a.guardKey(req.QuestID, req.Participant)
		minted, err := tx.KVGet(key, nil)
		if err != nil {
			return err
		}
		if minted {
			return fmt.Errorf("%w: quest %d", ErrAlreadyMinted, req.QuestID)
		}
		if err := a.minter.Mint(tx, req.QuestID, req.Participant); err != nil {
			return err
		}
		return tx.KVPut(key, true)
	})
	if err != nil {
		a.logger.Debug("endless: redeem rejected",
			slog.Uint64("quest", req.QuestID),
			slog.String("participant", crypto.Format(req.Participant)),
			slog.Any("error", err))
		return err
	}
	a.logger.Info("endless: reward minted",
		slog.Uint64("quest", req.QuestID),
		slog.String("participant", crypto.Format(req.Participant)))
	a.emitter.Emit(events.EndlessMinted{Engine: a.gate.Namespace(), QuestID: req.QuestID, Participant: req.Participant})
	return nil
}

// CollectibleMinter mints sequential token ids of a unique-asset contract.
type CollectibleMinter struct {
	Collectible *assets.Collectible
}

func (m CollectibleMinter) counterKey() []byte {
	addr := m.Collectible.Address()
	return append([]byte("endless/next/"), addr[:]...)
}

// Mint issues the next free token id to participant.
func (m CollectibleMinter) Mint(tx *state.Tx, _ uint64, participant [20]byte) error {
	if m.Collectible == nil {
		return ErrMinterMissing
	}
	next, err := tx.LoadBigInt(m.counterKey())
	if err != nil {
		return err
	}
	next.Add(next, big.NewInt(1))
	for {
		_, taken, err := m.Collectible.OwnerOf(tx, next)
		if err != nil {
			return err
		}
		if !taken {
			break
		}
		next.Add(next, big.NewInt(1))
	}
	if err := m.Collectible.Mint(tx, participant, next); err != nil {
		return err
	}
	return tx.WriteBigInt(m.counterKey(), next)
}
