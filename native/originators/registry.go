package originators

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"thurman/core/events"
	"thurman/crypto"
	nativecommon "thurman/native/common"
)

var (
	errZeroAddress = errors.New("originator registry: zero address")
	// ErrUnknownOriginator is returned when deactivating an address that was
	// never registered.
	ErrUnknownOriginator = errors.New("originator registry: unknown originator")
)

// Originator is a registered origination counterparty.
type Originator struct {
	Address      crypto.Address
	Active       bool
	RegisteredAt time.Time
}

// Store persists registry snapshots. Save is called before a mutation becomes
// visible; an error aborts the mutation.
type Store interface {
	SaveRegistry(Snapshot) error
}

// Snapshot is the serialisable registry state.
type Snapshot struct {
	Address     crypto.Address
	Admin       crypto.Address
	Originators []Originator
	Accruers    []crypto.Address
}

// Registry is the admin-gated list of originators and accrual capability
// holders consulted by the pool engine. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	address     crypto.Address
	admin       crypto.Address
	originators map[crypto.Address]Originator
	accruers    map[crypto.Address]struct{}

	emitter events.Emitter
	store   Store
	nowFn   func() time.Time
}

// Option customises a Registry.
type Option func(*Registry)

func WithEmitter(emitter events.Emitter) Option {
	return func(r *Registry) { r.SetEmitter(emitter) }
}

func WithStore(store Store) Option {
	return func(r *Registry) { r.store = store }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.nowFn = now
		}
	}
}

// NewRegistry creates an empty registry identified by address and governed by
// admin.
func NewRegistry(address, admin crypto.Address, opts ...Option) *Registry {
	r := &Registry{
		address:     address,
		admin:       admin,
		originators: make(map[crypto.Address]Originator),
		accruers:    make(map[crypto.Address]struct{}),
		emitter:     events.NoopEmitter{},
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromSnapshot restores a registry previously captured with Snapshot.
func FromSnapshot(snap Snapshot, opts ...Option) *Registry {
	r := NewRegistry(snap.Address, snap.Admin, opts...)
	for _, o := range snap.Originators {
		r.originators[o.Address] = o
	}
	for _, a := range snap.Accruers {
		r.accruers[a] = struct{}{}
	}
	return r
}

func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// Address returns the registry reference pools are bound to.
func (r *Registry) Address() crypto.Address { return r.address }

// Admin returns the account allowed to mutate the registry.
func (r *Registry) Admin() crypto.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admin
}

// RegisterOriginator adds addr as an active originator, re-activating a
// previously deactivated entry.
func (r *Registry) RegisterOriginator(caller, addr crypto.Address) error {
	return r.mutate(caller, addr, events.TypeOriginatorRegistered, func(originators map[crypto.Address]Originator, _ map[crypto.Address]struct{}) error {
		entry, ok := originators[addr]
		if !ok {
			entry = Originator{Address: addr, RegisteredAt: r.nowFn().UTC()}
		}
		entry.Active = true
		originators[addr] = entry
		return nil
	})
}

// DeactivateOriginator marks addr inactive. The record is retained.
func (r *Registry) DeactivateOriginator(caller, addr crypto.Address) error {
	return r.mutate(caller, addr, events.TypeOriginatorDeactivated, func(originators map[crypto.Address]Originator, _ map[crypto.Address]struct{}) error {
		entry, ok := originators[addr]
		if !ok {
			return ErrUnknownOriginator
		}
		entry.Active = false
		originators[addr] = entry
		return nil
	})
}

// GrantAccruer gives addr the accrual capability required to originate loans
// against this registry.
func (r *Registry) GrantAccruer(caller, addr crypto.Address) error {
	return r.mutate(caller, addr, events.TypeAccruerGranted, func(_ map[crypto.Address]Originator, accruers map[crypto.Address]struct{}) error {
		accruers[addr] = struct{}{}
		return nil
	})
}

func (r *Registry) RevokeAccruer(caller, addr crypto.Address) error {
	return r.mutate(caller, addr, events.TypeAccruerRevoked, func(_ map[crypto.Address]Originator, accruers map[crypto.Address]struct{}) error {
		delete(accruers, addr)
		return nil
	})
}

func (r *Registry) mutate(caller, addr crypto.Address, kind string, apply func(map[crypto.Address]Originator, map[crypto.Address]struct{}) error) error {
	if r == nil {
		return fmt.Errorf("originator registry: not configured")
	}
	if addr.IsZero() {
		return errZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return fmt.Errorf("originator registry: %w: caller is not admin", nativecommon.ErrUnauthorized)
	}

	originators := make(map[crypto.Address]Originator, len(r.originators)+1)
	for k, v := range r.originators {
		originators[k] = v
	}
	accruers := make(map[crypto.Address]struct{}, len(r.accruers)+1)
	for k := range r.accruers {
		accruers[k] = struct{}{}
	}
	if err := apply(originators, accruers); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.SaveRegistry(snapshotOf(r.address, r.admin, originators, accruers)); err != nil {
			return fmt.Errorf("originator registry: persist: %w", err)
		}
	}
	r.originators = originators
	r.accruers = accruers
	r.emitter.Emit(events.RegistryChange{Kind: kind, Registry: r.address, Account: addr})
	return nil
}

// IsActiveOriginator reports whether addr may originate loans and receive
// sale proceeds.
func (r *Registry) IsActiveOriginator(addr crypto.Address) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.originators[addr]
	return ok && entry.Active
}

// IsAccruer reports whether addr holds the accrual capability.
func (r *Registry) IsAccruer(addr crypto.Address) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accruers[addr]
	return ok
}

// Originators lists every registered originator sorted by address.
func (r *Registry) Originators() []Originator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotOf(r.address, r.admin, r.originators, r.accruers).Originators
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotOf(r.address, r.admin, r.originators, r.accruers)
}

func snapshotOf(address, admin crypto.Address, originators map[crypto.Address]Originator, accruers map[crypto.Address]struct{}) Snapshot {
	snap := Snapshot{Address: address, Admin: admin}
	for _, o := range originators {
		snap.Originators = append(snap.Originators, o)
	}
	sort.Slice(snap.Originators, func(i, j int) bool {
		return bytes.Compare(snap.Originators[i].Address[:], snap.Originators[j].Address[:]) < 0
	})
	for a := range accruers {
		snap.Accruers = append(snap.Accruers, a)
	}
	sort.Slice(snap.Accruers, func(i, j int) bool {
		return bytes.Compare(snap.Accruers[i][:], snap.Accruers[j][:]) < 0
	})
	return snap
}
