package quest

import (
	"log/slog"
	"time"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/crypto"
	"questvault/native/access"
	"questvault/native/assets"
	"questvault/native/custody"
	"questvault/observability"
)

// Engine is the quest reward ledger bound to one namespace. Several engines
// may share a custodian as long as each one is approved there.
type Engine struct {
	address   [20]byte
	manager   *state.Manager
	registry  *assets.Registry
	custodian *custody.Custodian
	gate      *access.Gate
	emitter   events.Emitter
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewEngine wires an engine whose quest records, roles and allocations are
// stored under address.
func NewEngine(address [20]byte, manager *state.Manager, registry *assets.Registry, custodian *custody.Custodian) *Engine {
	return &Engine{
		address:   address,
		manager:   manager,
		registry:  registry,
		custodian: custodian,
		gate:      access.NewGate(address),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		nowFn:     time.Now,
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("engine", crypto.Format(e.address)))
}

// SetNowFunc overrides the time source used for quest creation timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// Address returns the engine namespace.
func (e *Engine) Address() [20]byte { return e.address }

// Gate exposes the authorization gate of the engine namespace.
func (e *Engine) Gate() *access.Gate { return e.gate }

// Custodian returns the custodian the engine disburses from.
func (e *Engine) Custodian() *custody.Custodian { return e.custodian }

func (e *Engine) update(fn func(tx *state.Tx) error) error {
	if e == nil || e.manager == nil {
		return errNilState
	}
	return e.manager.Update(fn)
}

func (e *Engine) view(fn func(tx *state.Tx) error) error {
	if e == nil || e.manager == nil {
		return errNilState
	}
	return e.manager.View(fn)
}

func (e *Engine) emit(evts ...events.Event) {
	for _, evt := range evts {
		e.emitter.Emit(evt)
	}
}

// finish records the metrics of one mutating operation and logs its
// rejection.
func (e *Engine) finish(op string, start time.Time, err error, attrs ...any) {
	outcome := "success"
	if err != nil {
		outcome = Classify(err).String()
		e.logger.Debug("quest: "+op+" rejected", append(attrs, slog.String("class", outcome), slog.Any("error", err))...)
	}
	observability.Quest().Observe(op, outcome, time.Since(start))
}

// Init installs the owner and admin of the engine namespace.
func (e *Engine) Init(owner, admin [20]byte) error {
	return e.update(func(tx *state.Tx) error {
		return e.gate.Init(tx, owner, admin)
	})
}

// Owner returns the current owner identity.
func (e *Engine) Owner() ([20]byte, bool, error) {
	return e.role(access.RoleOwner)
}

// Admin returns the current admin identity. The endless-quest authorizer
// verifies signatures against it.
func (e *Engine) Admin() ([20]byte, bool, error) {
	return e.role(access.RoleAdmin)
}

func (e *Engine) role(role access.Role) ([20]byte, bool, error) {
	var (
		holder [20]byte
		ok     bool
	)
	err := e.view(func(tx *state.Tx) error {
		var err error
		if role == access.RoleOwner {
			holder, ok, err = e.gate.Owner(tx)
		} else {
			holder, ok, err = e.gate.Admin(tx)
		}
		return err
	})
	return holder, ok, err
}

// SetAdmin replaces the admin. Owner only.
func (e *Engine) SetAdmin(caller, admin [20]byte) error {
	start := time.Now()
	var previous [20]byte
	err := e.update(func(tx *state.Tx) error {
		var err error
		previous, err = e.gate.SetAdmin(tx, caller, admin)
		return err
	})
	e.finish("set_admin", start, err)
	if err != nil {
		return err
	}
	e.logger.Info("quest: admin changed", slog.String("admin", crypto.Format(admin)))
	e.emit(events.AdminChanged{Namespace: e.address, Previous: previous, Admin: admin})
	return nil
}

// TransferOwnership hands the owner role to newOwner. Owner only.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	start := time.Now()
	var previous [20]byte
	err := e.update(func(tx *state.Tx) error {
		var err error
		previous, err = e.gate.TransferOwnership(tx, caller, newOwner)
		return err
	})
	e.finish("transfer_ownership", start, err)
	if err != nil {
		return err
	}
	e.logger.Info("quest: ownership transferred", slog.String("owner", crypto.Format(newOwner)))
	e.emit(events.OwnershipTransferred{Namespace: e.address, Previous: previous, Owner: newOwner})
	return nil
}
