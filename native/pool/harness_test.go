package pool

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"thurman/core/events"
	"thurman/crypto"
	"thurman/native/bank"
	"thurman/native/loans"
	"thurman/native/originators"
)

var errBoom = errors.New("boom")

func makeAddress(prefix, suffix byte) crypto.Address {
	var a crypto.Address
	a[0] = prefix
	a[19] = suffix
	return a
}

// flakyAssets wraps the in-memory bank and can be told to fail transfers.
type flakyAssets struct {
	*bank.Bank
	mu   sync.Mutex
	fail bool
}

func (f *flakyAssets) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakyAssets) TransferFrom(ctx context.Context, from, to crypto.Address, amount *big.Int) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errBoom
	}
	return f.Bank.TransferFrom(ctx, from, to, amount)
}

// memStore records every saved pool and can be told to fail.
type memStore struct {
	mu     sync.Mutex
	fail   bool
	states map[uint64]*State
}

func newMemStore() *memStore {
	return &memStore{states: make(map[uint64]*State)}
}

func (s *memStore) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func (s *memStore) SavePool(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errBoom
	}
	s.states[state.ID] = state.Clone()
	return nil
}

func (s *memStore) LoadPools() ([]*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st.Clone())
	}
	return out, nil
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	engine     *Engine
	assets     *flakyAssets
	store      *memStore
	registry   *originators.Registry
	admin      crypto.Address
	operator   crypto.Address
	manager    crypto.Address
	vault      crypto.Address
	originator crypto.Address
	investor   crypto.Address
	investor2  crypto.Address
	borrower   crypto.Address
	poolID     uint64

	mu     sync.Mutex
	events []events.Event
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// fraction returns num/den of 1e18.
func fraction(num, den int64) *big.Int {
	return new(big.Int).Div(wad(num), big.NewInt(den))
}

func newHarness(t *testing.T, marginFee *big.Int, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		ctx:        context.Background(),
		admin:      makeAddress(0xA0, 0x01),
		operator:   makeAddress(0xA0, 0x02),
		manager:    makeAddress(0xA0, 0x03),
		vault:      makeAddress(0xB0, 0x01),
		originator: makeAddress(0xC0, 0x01),
		investor:   makeAddress(0xD0, 0x01),
		investor2:  makeAddress(0xD0, 0x02),
		borrower:   makeAddress(0xE0, 0x01),
		store:      newMemStore(),
	}
	h.assets = &flakyAssets{Bank: bank.New("USDC", 6)}
	h.registry = originators.NewRegistry(makeAddress(0xF0, 0x01), h.admin)
	if err := h.registry.GrantAccruer(h.admin, h.manager); err != nil {
		t.Fatalf("grant accruer: %v", err)
	}
	if err := h.registry.RegisterOriginator(h.admin, h.originator); err != nil {
		t.Fatalf("register originator: %v", err)
	}

	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	base := []Option{
		WithRegistry(h.registry),
		WithStore(h.store),
		WithClock(func() time.Time { return fixed }),
		WithEmitter(events.EmitterFunc(func(e events.Event) {
			h.mu.Lock()
			h.events = append(h.events, e)
			h.mu.Unlock()
		})),
	}
	h.engine = NewEngine(
		Capabilities{Admin: h.admin, Operators: []crypto.Address{h.operator}},
		Config{ManagerAddress: h.manager},
		h.assets,
		append(base, opts...)...,
	)
	id, err := h.engine.AddPool(h.admin, h.vault, h.registry.Address(), marginFee)
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	h.poolID = id
	return h
}

func openSettings() Settings {
	return Settings{
		DepositsEnabled:    true,
		WithdrawalsEnabled: true,
		BorrowingEnabled:   true,
		MaxDepositAmount:   big.NewInt(0),
		MinDepositAmount:   big.NewInt(0),
		DepositCap:         big.NewInt(0),
	}
}

func (h *harness) configure(settings Settings) {
	h.t.Helper()
	if err := h.engine.SetPoolOperationalSettings(h.ctx, h.operator, h.poolID, settings); err != nil {
		h.t.Fatalf("configure pool: %v", err)
	}
}

func (h *harness) fund(account crypto.Address, amount int64) {
	h.t.Helper()
	if err := h.assets.Credit(account, big.NewInt(amount)); err != nil {
		h.t.Fatalf("fund: %v", err)
	}
}

func (h *harness) balance(account crypto.Address) int64 {
	h.t.Helper()
	bal, err := h.assets.BalanceOf(h.ctx, account)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (h *harness) pool() PoolView {
	h.t.Helper()
	view, err := h.engine.Pool(h.poolID)
	if err != nil {
		h.t.Fatalf("pool view: %v", err)
	}
	return view
}

func (h *harness) shares(account crypto.Address) int64 {
	h.t.Helper()
	bal, err := h.engine.ShareBalance(h.poolID, account)
	if err != nil {
		h.t.Fatalf("share balance: %v", err)
	}
	return bal.Int64()
}

// invest runs the full request, fulfil, claim cycle for investor.
func (h *harness) invest(investor crypto.Address, amount int64) {
	h.t.Helper()
	assets := big.NewInt(amount)
	if err := h.engine.RequestDeposit(h.ctx, investor, h.poolID, assets, investor, investor); err != nil {
		h.t.Fatalf("request deposit: %v", err)
	}
	if err := h.engine.FulfillDeposit(h.ctx, h.operator, h.poolID, assets, investor); err != nil {
		h.t.Fatalf("fulfill deposit: %v", err)
	}
	if err := h.engine.Deposit(h.ctx, investor, h.poolID, assets, investor, investor); err != nil {
		h.t.Fatalf("deposit: %v", err)
	}
}

// exit runs the full redemption cycle for every share investor holds.
func (h *harness) exit(investor crypto.Address) {
	h.t.Helper()
	shares := big.NewInt(h.shares(investor))
	if err := h.engine.RequestRedeem(h.ctx, investor, h.poolID, shares, investor, investor); err != nil {
		h.t.Fatalf("request redeem: %v", err)
	}
	if err := h.engine.FulfillRedeem(h.ctx, h.operator, h.poolID, shares, investor); err != nil {
		h.t.Fatalf("fulfill redeem: %v", err)
	}
	if err := h.engine.Redeem(h.ctx, investor, h.poolID, shares, investor, investor); err != nil {
		h.t.Fatalf("redeem: %v", err)
	}
}

func (h *harness) loan(principal int64) uint64 {
	h.t.Helper()
	id, err := h.engine.InitLoan(h.ctx, h.operator, h.poolID, loans.Terms{
		Borrower:     h.borrower,
		Principal:    big.NewInt(principal),
		TermMonths:   12,
		InterestRate: fraction(10, 100),
	}, h.originator)
	if err != nil {
		h.t.Fatalf("init loan: %v", err)
	}
	return id
}

func (h *harness) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.EventType()
	}
	return out
}

func (h *harness) resetEvents() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}

func requireErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
