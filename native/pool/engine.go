package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"thurman/core/events"
	"thurman/crypto"
	nativecommon "thurman/native/common"
)

// AssetTransfers moves the pool's underlying asset between accounts. It must
// report every failure; the engine never retries.
type AssetTransfers interface {
	TransferFrom(ctx context.Context, from, to crypto.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account crypto.Address) (*big.Int, error)
}

// OriginatorRegistry is the authorization view the engine consults for loan
// origination and sale proceeds.
type OriginatorRegistry interface {
	Address() crypto.Address
	IsActiveOriginator(addr crypto.Address) bool
	IsAccruer(addr crypto.Address) bool
}

// Store persists committed pool states.
type Store interface {
	SavePool(state *State) error
	LoadPools() ([]*State, error)
}

// CapabilityStore persists the capability table so admin grants and
// revocations survive restarts.
type CapabilityStore interface {
	SaveCapabilities(caps Capabilities) error
	LoadCapabilities() (Capabilities, bool, error)
}

// Observer receives per-operation telemetry.
type Observer interface {
	ObserveOperation(op string, poolID uint64, elapsed time.Duration, err error)
	ObservePool(view PoolView)
}

type poolEntry struct {
	mu      sync.Mutex
	current atomic.Pointer[State]
}

// Engine is the pool settlement and accounting engine. Each pool is guarded
// by its own mutex; operations on different pools run in parallel.
type Engine struct {
	mu         sync.RWMutex
	cfg        Config
	admin      crypto.Address
	operators  map[crypto.Address]struct{}
	pools      []*poolEntry
	registries map[crypto.Address]OriginatorRegistry

	assets   AssetTransfers
	store    Store
	caps     CapabilityStore
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	observer Observer
	nowFn    func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) { e.SetEmitter(emitter) }
}

func WithStore(store Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithCapabilityStore persists operator grants and revocations. Restore
// replaces the constructor's capability table with the persisted one.
func WithCapabilityStore(store CapabilityStore) Option {
	return func(e *Engine) { e.caps = store }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithPauses(p nativecommon.PauseView) Option {
	return func(e *Engine) { e.SetPauses(p) }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.nowFn = now
		}
	}
}

// WithRegistry attaches an originator registry pools can be bound to.
func WithRegistry(reg OriginatorRegistry) Option {
	return func(e *Engine) { e.AttachRegistry(reg) }
}

// NewEngine constructs an engine with the given capability table.
func NewEngine(caps Capabilities, cfg Config, assets AssetTransfers, opts ...Option) *Engine {
	cfg.EnsureDefaults()
	e := &Engine{
		cfg:        cfg,
		admin:      caps.Admin,
		operators:  make(map[crypto.Address]struct{}, len(caps.Operators)),
		registries: make(map[crypto.Address]OriginatorRegistry),
		assets:     assets,
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
		nowFn:      time.Now,
	}
	for _, op := range caps.Operators {
		e.operators[op] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// AttachRegistry makes reg available to AddPool.
func (e *Engine) AttachRegistry(reg OriginatorRegistry) {
	if e == nil || reg == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registries[reg.Address()] = reg
}

func (e *Engine) registry(addr crypto.Address) (OriginatorRegistry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	reg, ok := e.registries[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, addr)
	}
	return reg, nil
}

// IsAdmin reports whether addr holds the admin capability.
func (e *Engine) IsAdmin(addr crypto.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return addr == e.admin
}

// IsPoolOperator reports whether addr holds the operator capability. The
// admin is implicitly an operator.
func (e *Engine) IsPoolOperator(addr crypto.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if addr == e.admin {
		return true
	}
	_, ok := e.operators[addr]
	return ok
}

// Operators lists the accounts holding the operator capability.
func (e *Engine) Operators() []crypto.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedOperators(e.operators)
}

func sortedOperators(set map[crypto.Address]struct{}) []crypto.Address {
	out := make([]crypto.Address, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Capabilities returns a copy of the current capability table.
func (e *Engine) Capabilities() Capabilities {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Capabilities{Admin: e.admin, Operators: sortedOperators(e.operators)}
}

func (e *Engine) GrantOperator(caller, addr crypto.Address) error {
	return e.setOperatorCapability(caller, addr, true)
}

func (e *Engine) RevokeOperator(caller, addr crypto.Address) error {
	return e.setOperatorCapability(caller, addr, false)
}

func (e *Engine) setOperatorCapability(caller, addr crypto.Address, granted bool) error {
	if e == nil {
		return errNilEngine
	}
	e.mu.Lock()
	if caller != e.admin {
		e.mu.Unlock()
		e.logger.Warn("pool engine: operator change rejected", "caller", caller.String())
		return fmt.Errorf("%w: caller is not admin", ErrUnauthorized)
	}
	if addr.IsZero() {
		e.mu.Unlock()
		return fmt.Errorf("%w: zero address", ErrInvalidOperator)
	}
	next := make(map[crypto.Address]struct{}, len(e.operators)+1)
	for op := range e.operators {
		next[op] = struct{}{}
	}
	kind := events.TypeOperatorRevoked
	if granted {
		next[addr] = struct{}{}
		kind = events.TypeOperatorGranted
	} else {
		delete(next, addr)
	}
	if e.caps != nil {
		if err := e.caps.SaveCapabilities(Capabilities{Admin: e.admin, Operators: sortedOperators(next)}); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("pool engine: persist capabilities: %w", err)
		}
	}
	e.operators = next
	e.mu.Unlock()

	e.emitter.Emit(events.CapabilityChange{Kind: kind, Admin: caller, Account: addr})
	e.logger.Info("pool engine: operator capability changed", "account", addr.String(), "granted", granted)
	return nil
}

// PersistCapabilities writes the current capability table to the capability
// store, if one is configured.
func (e *Engine) PersistCapabilities() error {
	if e == nil {
		return errNilEngine
	}
	if e.caps == nil {
		return nil
	}
	if err := e.caps.SaveCapabilities(e.Capabilities()); err != nil {
		return fmt.Errorf("pool engine: persist capabilities: %w", err)
	}
	return nil
}

func (e *Engine) requireOperator(caller crypto.Address, op string) error {
	if !e.IsPoolOperator(caller) {
		e.logger.Warn("pool engine: privileged call rejected", "op", op, "caller", caller.String())
		return fmt.Errorf("%w: %s requires operator capability", ErrUnauthorized, op)
	}
	return nil
}

// AddPool creates a pool bound to vault and registry. Counters start at zero
// and every flag starts disabled.
func (e *Engine) AddPool(caller, vault, registry crypto.Address, marginFee *big.Int) (uint64, error) {
	if e == nil {
		return 0, errNilEngine
	}
	if !e.IsAdmin(caller) {
		e.logger.Warn("pool engine: add pool rejected", "caller", caller.String())
		return 0, fmt.Errorf("%w: caller is not admin", ErrUnauthorized)
	}
	if vault.IsZero() {
		return 0, fmt.Errorf("%w: vault required", ErrInvalidReceiver)
	}
	if marginFee == nil {
		marginFee = big.NewInt(0)
	}
	if marginFee.Sign() < 0 || marginFee.Cmp(nativecommon.Wad) > 0 {
		return 0, ErrInvalidMarginFee
	}
	if _, err := e.registry(registry); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := uint64(len(e.pools))
	state := newState(id, vault, registry, marginFee, e.cfg, e.nowFn())
	if e.store != nil {
		if err := e.store.SavePool(state); err != nil {
			return 0, fmt.Errorf("pool engine: persist pool: %w", err)
		}
	}
	entry := &poolEntry{}
	entry.current.Store(state)
	e.pools = append(e.pools, entry)
	e.emitter.Emit(events.PoolCreated{PoolID: id, Vault: vault, Registry: registry, MarginFee: state.MarginFee})
	e.logger.Info("pool engine: pool created", "pool", id, "vault", vault.String())
	return id, nil
}

// PoolCount returns the number of pools created so far.
func (e *Engine) PoolCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.pools))
}

// isPoolVault reports whether addr is the vault of any pool. Vaults are fixed
// at creation, so committed snapshots are read without the pool locks.
func (e *Engine) isPoolVault(addr crypto.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, entry := range e.pools {
		if entry.current.Load().Vault == addr {
			return true
		}
	}
	return false
}

func (e *Engine) entry(poolID uint64) (*poolEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if poolID >= uint64(len(e.pools)) {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, poolID)
	}
	return e.pools[poolID], nil
}

// snapshot returns the committed state of a pool. The returned value must be
// treated as read-only.
func (e *Engine) snapshot(poolID uint64) (*State, error) {
	entry, err := e.entry(poolID)
	if err != nil {
		return nil, err
	}
	return entry.current.Load(), nil
}

// Restore loads every persisted pool. It must run before the engine serves
// calls.
func (e *Engine) Restore(ctx context.Context) error {
	if e == nil {
		return errNilEngine
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.caps != nil {
		caps, ok, err := e.caps.LoadCapabilities()
		if err != nil {
			return fmt.Errorf("pool engine: load capabilities: %w", err)
		}
		if ok {
			operators := make(map[crypto.Address]struct{}, len(caps.Operators))
			for _, op := range caps.Operators {
				operators[op] = struct{}{}
			}
			e.mu.Lock()
			e.admin = caps.Admin
			e.operators = operators
			e.mu.Unlock()
		}
	}
	if e.store == nil {
		return nil
	}
	states, err := e.store.LoadPools()
	if err != nil {
		return fmt.Errorf("pool engine: load pools: %w", err)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	pools := make([]*poolEntry, 0, len(states))
	for i, st := range states {
		if st.ID != uint64(i) {
			return fmt.Errorf("pool engine: persisted pool ids not contiguous at %d", st.ID)
		}
		st.EnsureDefaults(e.cfg)
		entry := &poolEntry{}
		entry.current.Store(st)
		pools = append(pools, entry)
	}
	e.mu.Lock()
	e.pools = pools
	e.mu.Unlock()
	e.logger.Info("pool engine: restored pools", "count", len(pools))
	return nil
}

// opClass selects the pool flag guarding an operation.
type opClass int

const (
	classPauseOnly opClass = iota
	classDeposit
	classWithdrawal
	classBorrowing
)

func (e *Engine) guard(st *State, class opClass) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if st.Settings.Paused {
		return disabled(KindPaused)
	}
	switch class {
	case classDeposit:
		if !st.Settings.DepositsEnabled {
			return disabled(KindDeposits)
		}
	case classWithdrawal:
		if !st.Settings.WithdrawalsEnabled {
			return disabled(KindWithdrawals)
		}
	case classBorrowing:
		if !st.Settings.BorrowingEnabled {
			return disabled(KindBorrowing)
		}
	}
	return nil
}

type transfer struct {
	from, to crypto.Address
	amount   *big.Int
}

// txn is a staged pool mutation. Handlers mutate state (a clone), stage
// events and perform at most the transfers recorded in moves; nothing is
// visible until commit.
type txn struct {
	ctx    context.Context
	engine *Engine
	state  *State
	events events.Buffer
	moves  []transfer
}

// move executes an asset transfer and records it for compensation.
func (tx *txn) move(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if tx.engine.assets == nil {
		return errNilAssets
	}
	if err := tx.engine.assets.TransferFrom(tx.ctx, from, to, amount); err != nil {
		return &TransferError{From: from, To: to, Amount: new(big.Int).Set(amount), Err: err}
	}
	tx.moves = append(tx.moves, transfer{from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

// compensate reverses executed transfers, newest first. Failures are logged;
// the original error is what the caller sees.
func (tx *txn) compensate() {
	for i := len(tx.moves) - 1; i >= 0; i-- {
		m := tx.moves[i]
		if err := tx.engine.assets.TransferFrom(context.WithoutCancel(tx.ctx), m.to, m.from, m.amount); err != nil {
			tx.engine.logger.Error("pool engine: compensation transfer failed",
				"pool", tx.state.ID, "from", m.to.String(), "to", m.from.String(), "amount", m.amount.String(), "error", err)
		}
	}
	tx.moves = nil
}

func (tx *txn) emit(e events.Event) { tx.events.Emit(e) }

// execute runs handler against a clone of the pool under the pool lock and
// commits the clone only if the handler, its transfers and persistence all
// succeed.
func (e *Engine) execute(ctx context.Context, op string, poolID uint64, handler func(tx *txn) error) (err error) {
	if e == nil {
		return errNilEngine
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := e.nowFn()
	defer func() {
		if e.observer != nil {
			e.observer.ObserveOperation(op, poolID, time.Since(start), err)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, err := e.entry(poolID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	tx := &txn{ctx: ctx, engine: e, state: entry.current.Load().Clone()}
	if err := handler(tx); err != nil {
		tx.compensate()
		if isUnauthorized(err) {
			e.logger.Warn("pool engine: caller not authorized", "op", op, "pool", poolID, "error", err)
		} else {
			e.logger.Debug("pool engine: operation rejected", "op", op, "pool", poolID, "error", err)
		}
		return err
	}
	if e.store != nil {
		if err := e.store.SavePool(tx.state); err != nil {
			tx.compensate()
			return fmt.Errorf("pool engine: persist pool %d: %w", poolID, err)
		}
	}
	entry.current.Store(tx.state)
	tx.events.Flush(e.emitter)
	e.logger.Debug("pool engine: operation committed", "op", op, "pool", poolID)
	if e.observer != nil {
		e.observer.ObservePool(viewOf(tx.state))
	}
	return nil
}

// SetPoolOperationalSettings replaces the pool flags and limits. It is not
// blocked by the pool pause flag so a paused pool can be resumed.
func (e *Engine) SetPoolOperationalSettings(ctx context.Context, caller crypto.Address, poolID uint64, settings Settings) error {
	if err := e.requireOperator(caller, "setPoolOperationalSettings"); err != nil {
		return err
	}
	settings = settings.Clone()
	if err := settings.Validate(); err != nil {
		return err
	}
	return e.execute(ctx, "setPoolOperationalSettings", poolID, func(tx *txn) error {
		tx.state.Settings = settings
		tx.emit(events.PoolSettingsUpdated{
			PoolID:             poolID,
			DepositsEnabled:    settings.DepositsEnabled,
			WithdrawalsEnabled: settings.WithdrawalsEnabled,
			BorrowingEnabled:   settings.BorrowingEnabled,
			Paused:             settings.Paused,
			MaxDepositAmount:   settings.MaxDepositAmount,
			MinDepositAmount:   settings.MinDepositAmount,
			DepositCap:         settings.DepositCap,
		})
		return nil
	})
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return nil
}

func isUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotAuthorizedOperator)
}
