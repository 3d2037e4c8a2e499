package pool

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"thurman/core/events"
	"thurman/crypto"
	nativecommon "thurman/native/common"
)

type recordingObserver struct {
	mu     sync.Mutex
	ops    map[string]int
	failed map[string]int
	last   PoolView
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{ops: make(map[string]int), failed: make(map[string]int)}
}

func (o *recordingObserver) ObserveOperation(op string, _ uint64, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops[op]++
	if err != nil {
		o.failed[op]++
	}
}

func (o *recordingObserver) ObservePool(view PoolView) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = view
}

func TestAddPoolValidation(t *testing.T) {
	h := newHarness(t, nil)
	vault := makeAddress(0xB0, 0x02)

	_, err := h.engine.AddPool(h.operator, vault, h.registry.Address(), nil)
	requireErr(t, err, ErrUnauthorized)
	_, err = h.engine.AddPool(h.admin, crypto.ZeroAddress, h.registry.Address(), nil)
	requireErr(t, err, ErrInvalidReceiver)
	tooHigh := new(big.Int).Add(nativecommon.Wad, big.NewInt(1))
	_, err = h.engine.AddPool(h.admin, vault, h.registry.Address(), tooHigh)
	requireErr(t, err, ErrInvalidMarginFee)
	_, err = h.engine.AddPool(h.admin, vault, makeAddress(0xF0, 0x09), nil)
	requireErr(t, err, ErrRegistryNotFound)

	id, err := h.engine.AddPool(h.admin, vault, h.registry.Address(), fraction(1, 10))
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	if id != 1 || h.engine.PoolCount() != 2 {
		t.Fatalf("expected second pool id 1, got %d (count %d)", id, h.engine.PoolCount())
	}
	view, err := h.engine.Pool(id)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	s := view.Settings
	if s.DepositsEnabled || s.WithdrawalsEnabled || s.BorrowingEnabled || s.Paused {
		t.Fatalf("expected every flag off, got %+v", s)
	}
	if view.ShareSymbol != "sUSDC" || view.DebtSymbol != "dUSDC" {
		t.Fatalf("unexpected token symbols %s/%s", view.ShareSymbol, view.DebtSymbol)
	}
	if got := len(h.engine.Pools()); got != 2 {
		t.Fatalf("expected 2 pools, got %d", got)
	}
	if _, err := h.engine.Pool(9); err == nil {
		t.Fatalf("expected missing pool error")
	}
}

func TestOperatorCapabilityManagement(t *testing.T) {
	h := newHarness(t, nil)
	newOp := makeAddress(0xA0, 0x09)

	requireErr(t, h.engine.GrantOperator(h.operator, newOp), ErrUnauthorized)
	if err := h.engine.GrantOperator(h.admin, newOp); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !h.engine.IsPoolOperator(newOp) || !h.engine.IsPoolOperator(h.admin) {
		t.Fatalf("expected operator capability")
	}
	if got := len(h.engine.Operators()); got != 2 {
		t.Fatalf("expected 2 operators, got %d", got)
	}
	if err := h.engine.RevokeOperator(h.admin, newOp); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if h.engine.IsPoolOperator(newOp) {
		t.Fatalf("expected capability revoked")
	}
	requireErr(t, h.engine.GrantOperator(h.admin, crypto.ZeroAddress), ErrInvalidOperator)
}

// capStore is an in-memory capability store that can be told to fail.
type capStore struct {
	mu    sync.Mutex
	fail  bool
	saved *Capabilities
}

func (s *capStore) SaveCapabilities(caps Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errBoom
	}
	s.saved = &Capabilities{Admin: caps.Admin, Operators: append([]crypto.Address{}, caps.Operators...)}
	return nil
}

func (s *capStore) LoadCapabilities() (Capabilities, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return Capabilities{}, false, nil
	}
	return *s.saved, true, nil
}

func TestOperatorCapabilityChangesArePersistedAndEmitted(t *testing.T) {
	store := &capStore{}
	h := newHarness(t, nil, WithCapabilityStore(store))
	newOp := makeAddress(0xA0, 0x09)
	h.resetEvents()

	if err := h.engine.GrantOperator(h.admin, newOp); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := h.engine.RevokeOperator(h.admin, h.operator); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got := h.eventTypes()
	if len(got) != 2 || got[0] != events.TypeOperatorGranted || got[1] != events.TypeOperatorRevoked {
		t.Fatalf("unexpected capability events %v", got)
	}
	if store.saved == nil || len(store.saved.Operators) != 1 || store.saved.Operators[0] != newOp {
		t.Fatalf("unexpected persisted table %+v", store.saved)
	}

	store.fail = true
	other := makeAddress(0xA0, 0x0A)
	requireErr(t, h.engine.GrantOperator(h.admin, other), errBoom)
	if h.engine.IsPoolOperator(other) {
		t.Fatalf("failed persistence must leave the table unchanged")
	}
	if len(h.eventTypes()) != 2 {
		t.Fatalf("failed grant must not emit")
	}

	restarted := NewEngine(Capabilities{Admin: h.admin, Operators: []crypto.Address{h.operator}}, Config{ManagerAddress: h.manager}, h.assets, WithCapabilityStore(store))
	if err := restarted.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restarted.IsPoolOperator(h.operator) || !restarted.IsPoolOperator(newOp) {
		t.Fatalf("expected persisted capability table after restore, got %v", restarted.Operators())
	}
}

func TestRestoreResumesFromStore(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)
	h.fund(h.borrower, 1_100)
	h.invest(h.investor, 1_000)
	id := h.loan(1_000)
	if _, err := h.engine.RepayLoan(h.ctx, h.borrower, h.poolID, h.borrower, id, big.NewInt(1_100), h.borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	before := h.pool()

	restored := NewEngine(
		Capabilities{Admin: h.admin, Operators: []crypto.Address{h.operator}},
		Config{ManagerAddress: h.manager},
		h.assets,
		WithStore(h.store),
		WithRegistry(h.registry),
	)
	if err := restored.Restore(h.ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	after, err := restored.Pool(h.poolID)
	if err != nil {
		t.Fatalf("restored pool: %v", err)
	}
	if after.Cumulative.Cmp(before.Cumulative) != 0 || after.TotalDeposits.Cmp(before.TotalDeposits) != 0 || after.LoanCount != before.LoanCount {
		t.Fatalf("restored pool differs: %+v vs %+v", after, before)
	}

	h.engine = restored
	h.exit(h.investor)
	if got := h.balance(h.investor); got != 1_100 {
		t.Fatalf("expected 1100 after restore, got %d", got)
	}
}

func TestObserverSeesOperations(t *testing.T) {
	obs := newRecordingObserver()
	h := newHarness(t, nil, WithObserver(obs))
	h.configure(openSettings())
	h.fund(h.investor, 500)
	h.invest(h.investor, 500)
	_ = h.engine.FulfillDeposit(h.ctx, h.operator, h.poolID, big.NewInt(1), h.investor)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.ops["deposit"] != 1 || obs.ops["fulfillDeposit"] != 2 {
		t.Fatalf("unexpected op counts %v", obs.ops)
	}
	if obs.failed["fulfillDeposit"] != 1 {
		t.Fatalf("expected one failed fulfill, got %v", obs.failed)
	}
	if obs.last.TotalDeposits.Int64() != 500 {
		t.Fatalf("expected last view with 500 deposits, got %s", obs.last.TotalDeposits)
	}
}

func TestConcurrentRequestsAcrossPools(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	second, err := h.engine.AddPool(h.admin, makeAddress(0xB0, 0x02), h.registry.Address(), nil)
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	if err := h.engine.SetPoolOperationalSettings(h.ctx, h.operator, second, openSettings()); err != nil {
		t.Fatalf("configure second pool: %v", err)
	}

	const investors = 16
	accounts := make([]crypto.Address, investors)
	for i := range accounts {
		accounts[i] = makeAddress(0xD1, byte(i+1))
		h.fund(accounts[i], 200)
	}

	var wg sync.WaitGroup
	errs := make(chan error, investors*2)
	for _, acct := range accounts {
		for _, poolID := range []uint64{h.poolID, second} {
			wg.Add(1)
			go func(acct crypto.Address, poolID uint64) {
				defer wg.Done()
				if err := h.engine.RequestDeposit(h.ctx, acct, poolID, big.NewInt(100), acct, acct); err != nil {
					errs <- fmt.Errorf("pool %d: %w", poolID, err)
				}
			}(acct, poolID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent request: %v", err)
	}

	for _, poolID := range []uint64{h.poolID, second} {
		view, err := h.engine.Pool(poolID)
		if err != nil {
			t.Fatalf("pool %d: %v", poolID, err)
		}
		if view.PendingDeposits.Int64() != investors*100 {
			t.Fatalf("pool %d: expected pending %d, got %s", poolID, investors*100, view.PendingDeposits)
		}
	}
}

func TestCancelledContextIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 100)
	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	if err := h.engine.RequestDeposit(ctx, h.investor, h.poolID, big.NewInt(100), h.investor, h.investor); err == nil {
		t.Fatalf("expected cancelled context to fail")
	}
	if got := h.balance(h.investor); got != 100 {
		t.Fatalf("expected funds untouched, got %d", got)
	}
}
