package custody

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/crypto"
	"questvault/native/assets"
)

var (
	ErrNotApproved         = errors.New("custody: engine not approved")
	ErrInsufficientCustody = errors.New("custody: insufficient custody")
	ErrUnauthorized        = errors.New("custody: unauthorized")
	ErrZeroAddress         = errors.New("custody: zero address")
	ErrKindMismatch        = errors.New("custody: asset does not support kind")
	errNilManager          = errors.New("custody: state not configured")
)

// Instruction describes one movement out of custody. TokenID is ignored for
// fungible assets and Amount is ignored for unique assets.
type Instruction struct {
	Asset   [20]byte
	Kind    assets.Kind
	To      [20]byte
	TokenID *big.Int
	Amount  *big.Int
}

// Custodian holds escrowed assets at its own address and moves them only on
// behalf of approved engines.
type Custodian struct {
	address  [20]byte
	manager  *state.Manager
	registry *assets.Registry
	emitter  events.Emitter
	logger   *slog.Logger
}

// NewCustodian registers the custodian as a receiver in registry so safe
// deposits are acknowledged.
func NewCustodian(address [20]byte, manager *state.Manager, registry *assets.Registry) *Custodian {
	c := &Custodian{
		address:  address,
		manager:  manager,
		registry: registry,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
	}
	if registry != nil {
		registry.RegisterReceiver(address, c)
	}
	return c
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Custodian) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetLogger overrides the logger used for approval changes.
func (c *Custodian) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}

func (c *Custodian) Address() [20]byte { return c.address }

func (c *Custodian) ownerKey() []byte {
	return append([]byte("custody/owner/"), c.address[:]...)
}

func (c *Custodian) approvalKey(engine [20]byte) []byte {
	key := make([]byte, 0, 60)
	key = append(key, "custody/engine/"...)
	key = append(key, c.address[:]...)
	key = append(key, engine[:]...)
	return key
}

// Init installs the first owner.
func (c *Custodian) Init(tx *state.Tx, owner [20]byte) error {
	if owner == ([20]byte{}) {
		return ErrZeroAddress
	}
	if _, ok, err := c.OwnerIn(tx); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("custody: owner already set")
	}
	return tx.KVPut(c.ownerKey(), owner)
}

// OwnerIn reads the owner inside an existing transaction.
func (c *Custodian) OwnerIn(tx *state.Tx) ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := tx.KVGet(c.ownerKey(), &owner)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return owner, owner != ([20]byte{}), nil
}

// Owner returns the committed owner.
func (c *Custodian) Owner() ([20]byte, bool, error) {
	if c.manager == nil {
		return [20]byte{}, false, errNilManager
	}
	var (
		owner [20]byte
		ok    bool
	)
	err := c.manager.View(func(tx *state.Tx) error {
		var err error
		owner, ok, err = c.OwnerIn(tx)
		return err
	})
	return owner, ok, err
}

func (c *Custodian) requireOwner(tx *state.Tx, caller [20]byte) error {
	owner, ok, err := c.OwnerIn(tx)
	if err != nil {
		return err
	}
	if !ok || caller != owner || caller == ([20]byte{}) {
		return ErrUnauthorized
	}
	return nil
}

// SetEngineApproval grants or revokes engine's right to move custodied assets.
func (c *Custodian) SetEngineApproval(caller, engine [20]byte, approved bool) error {
	if c.manager == nil {
		return errNilManager
	}
	err := c.manager.Update(func(tx *state.Tx) error {
		return c.SetEngineApprovalIn(tx, caller, engine, approved)
	})
	if err != nil {
		c.logger.Debug("custody: approval rejected",
			slog.String("engine", crypto.Format(engine)),
			slog.Any("error", err))
		return err
	}
	c.logger.Info("custody: engine approval updated",
		slog.String("engine", crypto.Format(engine)),
		slog.Bool("approved", approved))
	c.emitter.Emit(events.EngineApprovalSet{Custodian: c.address, Engine: engine, Approved: approved})
	return nil
}

// SetEngineApprovalIn applies an approval change inside tx without emitting.
func (c *Custodian) SetEngineApprovalIn(tx *state.Tx, caller, engine [20]byte, approved bool) error {
	if err := c.requireOwner(tx, caller); err != nil {
		return err
	}
	if engine == ([20]byte{}) {
		return ErrZeroAddress
	}
	if !approved {
		return tx.KVDelete(c.approvalKey(engine))
	}
	return tx.KVPut(c.approvalKey(engine), true)
}

// EngineApproved reports approval inside an existing transaction.
func (c *Custodian) EngineApproved(tx *state.Tx, engine [20]byte) (bool, error) {
	var approved bool
	ok, err := tx.KVGet(c.approvalKey(engine), &approved)
	if err != nil {
		return false, err
	}
	return ok && approved, nil
}

// IsEngineApproved reports whether engine may move custodied assets.
func (c *Custodian) IsEngineApproved(engine [20]byte) (bool, error) {
	if c.manager == nil {
		return false, errNilManager
	}
	var approved bool
	err := c.manager.View(func(tx *state.Tx) error {
		var err error
		approved, err = c.EngineApproved(tx, engine)
		return err
	})
	return approved, err
}

// TransferOwnership hands the custodian to newOwner.
func (c *Custodian) TransferOwnership(caller, newOwner [20]byte) error {
	if c.manager == nil {
		return errNilManager
	}
	if err := c.manager.Update(func(tx *state.Tx) error {
		if err := c.requireOwner(tx, caller); err != nil {
			return err
		}
		if newOwner == ([20]byte{}) {
			return ErrZeroAddress
		}
		return tx.KVPut(c.ownerKey(), newOwner)
	}); err != nil {
		return err
	}
	c.emitter.Emit(events.OwnershipTransferred{Namespace: c.address, Previous: caller, Owner: newOwner})
	return nil
}

// Transfer executes ins verbatim inside the caller's transaction. The engine
// must be approved and the holding must be present; the custodian applies no
// reward logic of its own.
func (c *Custodian) Transfer(tx *state.Tx, engine [20]byte, ins Instruction) error {
	approved, err := c.EngineApproved(tx, engine)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("%w: %s", ErrNotApproved, crypto.Format(engine))
	}
	contract, err := c.registry.Contract(ins.Asset)
	if err != nil {
		return err
	}
	switch ins.Kind {
	case assets.KindFungible:
		token, ok := contract.(assets.Fungible)
		if !ok {
			return fmt.Errorf("%w: %s", ErrKindMismatch, ins.Kind)
		}
		held, err := token.BalanceOf(tx, c.address)
		if err != nil {
			return err
		}
		if ins.Amount == nil || held.Cmp(ins.Amount) < 0 {
			return fmt.Errorf("%w: %s holds %s", ErrInsufficientCustody, contract.Name(), held)
		}
		return token.Transfer(tx, c.address, ins.To, ins.Amount)
	case assets.KindUnique:
		collectible, ok := contract.(assets.Unique)
		if !ok {
			return fmt.Errorf("%w: %s", ErrKindMismatch, ins.Kind)
		}
		owner, exists, err := collectible.OwnerOf(tx, ins.TokenID)
		if err != nil {
			return err
		}
		if !exists || owner != c.address {
			return fmt.Errorf("%w: %s #%s not held", ErrInsufficientCustody, contract.Name(), ins.TokenID)
		}
		return collectible.SafeTransferFrom(tx, c.address, c.address, ins.To, ins.TokenID)
	case assets.KindHybrid:
		multi, ok := contract.(assets.Hybrid)
		if !ok {
			return fmt.Errorf("%w: %s", ErrKindMismatch, ins.Kind)
		}
		held, err := multi.BalanceOfID(tx, c.address, ins.TokenID)
		if err != nil {
			return err
		}
		if ins.Amount == nil || held.Cmp(ins.Amount) < 0 {
			return fmt.Errorf("%w: %s #%s holds %s", ErrInsufficientCustody, contract.Name(), ins.TokenID, held)
		}
		return multi.SafeTransferAmount(tx, c.address, c.address, ins.To, ins.TokenID, ins.Amount)
	default:
		return fmt.Errorf("%w: %s", ErrKindMismatch, ins.Kind)
	}
}

// OnUniqueReceived accepts every unique deposit.
func (c *Custodian) OnUniqueReceived(operator, from [20]byte, id *big.Int) error {
	return nil
}

// OnHybridReceived accepts every hybrid deposit.
func (c *Custodian) OnHybridReceived(operator, from [20]byte, id, amount *big.Int) error {
	return nil
}

// OnHybridBatchReceived accepts every hybrid batch deposit.
func (c *Custodian) OnHybridBatchReceived(operator, from [20]byte, ids, amounts []*big.Int) error {
	return nil
}

// SupportsInterface answers the receiver interface identifiers.
func (c *Custodian) SupportsInterface(id [4]byte) bool {
	switch id {
	case assets.InterfaceIDSupports, assets.InterfaceIDUniqueReceiver, assets.InterfaceIDHybridReceiver:
		return true
	default:
		return false
	}
}
