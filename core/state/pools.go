package state

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"thurman/crypto"
	nativecommon "thurman/native/common"
	"thurman/native/ledger"
	"thurman/native/loans"
	"thurman/native/pool"
)

var (
	poolCountKey  = []byte("pool/count")
	poolKeyPrefix = "pool/state/%d"
)

func poolKey(id uint64) []byte {
	return []byte(fmt.Sprintf(poolKeyPrefix, id))
}

type storedSettings struct {
	DepositsEnabled    bool
	WithdrawalsEnabled bool
	BorrowingEnabled   bool
	Paused             bool
	MaxDepositAmount   *big.Int
	MinDepositAmount   *big.Int
	DepositCap         *big.Int
}

type storedBalance struct {
	Account crypto.Address
	Amount  *big.Int
}

type storedAllowance struct {
	Owner   crypto.Address
	Spender crypto.Address
	Amount  *big.Int
}

type storedLedger struct {
	Name       string
	Symbol     string
	Decimals   uint8
	Balances   []storedBalance
	Allowances []storedAllowance
}

type storedLoan struct {
	ID            uint64
	Originator    crypto.Address
	Borrower      crypto.Address
	Principal     *big.Int
	Outstanding   *big.Int
	InterestRate  *big.Int
	TermMonths    uint32
	RetentionRate *big.Int
	TotalRepaid   *big.Int
	OriginatedAt  uint64
	RepaidAt      uint64
}

type storedCheckpoint struct {
	Account crypto.Address
	Index   *big.Int
	Accrued *big.Int
}

type storedDepositRequest struct {
	Controller crypto.Address
	Pending    *big.Int
	Claimable  *big.Int
}

type storedRedeemRequest struct {
	Controller      crypto.Address
	Pending         *big.Int
	Claimable       *big.Int
	ClaimableAssets *big.Int
	Entitlement     *big.Int
	Index           *big.Int
}

type storedOperator struct {
	Controller crypto.Address
	Delegate   crypto.Address
}

type storedPool struct {
	ID              uint64
	Vault           crypto.Address
	Registry        crypto.Address
	MarginFee       *big.Int
	Settings        storedSettings
	CreatedAt       uint64
	TotalPrincipal  *big.Int
	TotalDeposits   *big.Int
	PendingDeposits *big.Int
	LockedShares    *big.Int
	Cumulative      *big.Int
	Undistributed   *big.Int
	ProtocolFees    *big.Int
	Shares          storedLedger
	Debt            storedLedger
	Loans           []storedLoan
	Checkpoints     []storedCheckpoint
	DepositRequests []storedDepositRequest
	RedeemRequests  []storedRedeemRequest
	Operators       []storedOperator
}

func encodeTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}

func decodeTime(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v)).UTC()
}

func toStoredLedger(l *ledger.Ledger) storedLedger {
	snap := l.Snapshot()
	out := storedLedger{Name: snap.Name, Symbol: snap.Symbol, Decimals: snap.Decimals}
	for _, b := range snap.Balances {
		out.Balances = append(out.Balances, storedBalance{Account: b.Account, Amount: b.Amount})
	}
	for _, a := range snap.Allowances {
		out.Allowances = append(out.Allowances, storedAllowance{Owner: a.Owner, Spender: a.Spender, Amount: a.Amount})
	}
	return out
}

func (s storedLedger) ledger() (*ledger.Ledger, error) {
	snap := ledger.Snapshot{Name: s.Name, Symbol: s.Symbol, Decimals: s.Decimals}
	for _, b := range s.Balances {
		snap.Balances = append(snap.Balances, ledger.Balance{Account: b.Account, Amount: b.Amount})
	}
	for _, a := range s.Allowances {
		snap.Allowances = append(snap.Allowances, ledger.Allowance{Owner: a.Owner, Spender: a.Spender, Amount: a.Amount})
	}
	return ledger.FromSnapshot(snap)
}

func toStoredPool(st *pool.State) storedPool {
	out := storedPool{
		ID:        st.ID,
		Vault:     st.Vault,
		Registry:  st.Registry,
		MarginFee: nativecommon.Copy(st.MarginFee),
		Settings: storedSettings{
			DepositsEnabled:    st.Settings.DepositsEnabled,
			WithdrawalsEnabled: st.Settings.WithdrawalsEnabled,
			BorrowingEnabled:   st.Settings.BorrowingEnabled,
			Paused:             st.Settings.Paused,
			MaxDepositAmount:   nativecommon.Copy(st.Settings.MaxDepositAmount),
			MinDepositAmount:   nativecommon.Copy(st.Settings.MinDepositAmount),
			DepositCap:         nativecommon.Copy(st.Settings.DepositCap),
		},
		CreatedAt:       encodeTime(st.CreatedAt),
		TotalPrincipal:  nativecommon.Copy(st.TotalPrincipal),
		TotalDeposits:   nativecommon.Copy(st.TotalDeposits),
		PendingDeposits: nativecommon.Copy(st.PendingDeposits),
		LockedShares:    nativecommon.Copy(st.LockedShares),
		Cumulative:      nativecommon.Copy(st.Cumulative),
		Undistributed:   nativecommon.Copy(st.Undistributed),
		ProtocolFees:    nativecommon.Copy(st.ProtocolFees),
		Shares:          toStoredLedger(st.Shares),
		Debt:            toStoredLedger(st.Debt),
	}
	for _, loan := range st.Loans.All() {
		out.Loans = append(out.Loans, storedLoan{
			ID:            loan.ID,
			Originator:    loan.Originator,
			Borrower:      loan.Borrower,
			Principal:     nativecommon.Copy(loan.Principal),
			Outstanding:   nativecommon.Copy(loan.Outstanding),
			InterestRate:  nativecommon.Copy(loan.InterestRate),
			TermMonths:    loan.TermMonths,
			RetentionRate: nativecommon.Copy(loan.RetentionRate),
			TotalRepaid:   nativecommon.Copy(loan.TotalRepaid),
			OriginatedAt:  encodeTime(loan.OriginatedAt),
			RepaidAt:      encodeTime(loan.RepaidAt),
		})
	}
	for _, acct := range sortedKeys(st.Checkpoints) {
		cp := st.Checkpoints[acct]
		out.Checkpoints = append(out.Checkpoints, storedCheckpoint{Account: acct, Index: nativecommon.Copy(cp.Index), Accrued: nativecommon.Copy(cp.Accrued)})
	}
	for _, ctrl := range sortedKeys(st.DepositRequests) {
		req := st.DepositRequests[ctrl]
		out.DepositRequests = append(out.DepositRequests, storedDepositRequest{Controller: ctrl, Pending: nativecommon.Copy(req.Pending), Claimable: nativecommon.Copy(req.Claimable)})
	}
	for _, ctrl := range sortedKeys(st.RedeemRequests) {
		req := st.RedeemRequests[ctrl]
		out.RedeemRequests = append(out.RedeemRequests, storedRedeemRequest{
			Controller:      ctrl,
			Pending:         nativecommon.Copy(req.Pending),
			Claimable:       nativecommon.Copy(req.Claimable),
			ClaimableAssets: nativecommon.Copy(req.ClaimableAssets),
			Entitlement:     nativecommon.Copy(req.Entitlement),
			Index:           nativecommon.Copy(req.Index),
		})
	}
	for _, ctrl := range sortedKeys(st.Operators) {
		for _, delegate := range sortedKeys(st.Operators[ctrl]) {
			if st.Operators[ctrl][delegate] {
				out.Operators = append(out.Operators, storedOperator{Controller: ctrl, Delegate: delegate})
			}
		}
	}
	return out
}

func (s storedPool) state() (*pool.State, error) {
	shares, err := s.Shares.ledger()
	if err != nil {
		return nil, fmt.Errorf("pool %d shares: %w", s.ID, err)
	}
	debt, err := s.Debt.ledger()
	if err != nil {
		return nil, fmt.Errorf("pool %d debt: %w", s.ID, err)
	}
	records := make([]*loans.Loan, 0, len(s.Loans))
	for _, l := range s.Loans {
		records = append(records, &loans.Loan{
			ID:            l.ID,
			Originator:    l.Originator,
			Borrower:      l.Borrower,
			Principal:     l.Principal,
			Outstanding:   l.Outstanding,
			InterestRate:  l.InterestRate,
			TermMonths:    l.TermMonths,
			RetentionRate: l.RetentionRate,
			TotalRepaid:   l.TotalRepaid,
			OriginatedAt:  decodeTime(l.OriginatedAt),
			RepaidAt:      decodeTime(l.RepaidAt),
		})
	}
	book, err := loans.FromLoans(records)
	if err != nil {
		return nil, fmt.Errorf("pool %d loans: %w", s.ID, err)
	}
	st := &pool.State{
		ID:        s.ID,
		Vault:     s.Vault,
		Registry:  s.Registry,
		MarginFee: s.MarginFee,
		Settings: pool.Settings{
			DepositsEnabled:    s.Settings.DepositsEnabled,
			WithdrawalsEnabled: s.Settings.WithdrawalsEnabled,
			BorrowingEnabled:   s.Settings.BorrowingEnabled,
			Paused:             s.Settings.Paused,
			MaxDepositAmount:   s.Settings.MaxDepositAmount,
			MinDepositAmount:   s.Settings.MinDepositAmount,
			DepositCap:         s.Settings.DepositCap,
		},
		CreatedAt:       decodeTime(s.CreatedAt),
		TotalPrincipal:  s.TotalPrincipal,
		TotalDeposits:   s.TotalDeposits,
		PendingDeposits: s.PendingDeposits,
		LockedShares:    s.LockedShares,
		Cumulative:      s.Cumulative,
		Undistributed:   s.Undistributed,
		ProtocolFees:    s.ProtocolFees,
		Shares:          shares,
		Debt:            debt,
		Loans:           book,
		Checkpoints:     make(map[crypto.Address]*pool.Checkpoint, len(s.Checkpoints)),
		DepositRequests: make(map[crypto.Address]*pool.DepositRequest, len(s.DepositRequests)),
		RedeemRequests:  make(map[crypto.Address]*pool.RedeemRequest, len(s.RedeemRequests)),
		Operators:       make(map[crypto.Address]map[crypto.Address]bool),
	}
	for _, cp := range s.Checkpoints {
		st.Checkpoints[cp.Account] = &pool.Checkpoint{Index: cp.Index, Accrued: cp.Accrued}
	}
	for _, req := range s.DepositRequests {
		st.DepositRequests[req.Controller] = &pool.DepositRequest{Pending: req.Pending, Claimable: req.Claimable}
	}
	for _, req := range s.RedeemRequests {
		st.RedeemRequests[req.Controller] = &pool.RedeemRequest{
			Pending:         req.Pending,
			Claimable:       req.Claimable,
			ClaimableAssets: req.ClaimableAssets,
			Entitlement:     req.Entitlement,
			Index:           req.Index,
		}
	}
	for _, op := range s.Operators {
		inner, ok := st.Operators[op.Controller]
		if !ok {
			inner = make(map[crypto.Address]bool)
			st.Operators[op.Controller] = inner
		}
		inner[op.Delegate] = true
	}
	return st, nil
}

// PoolStore implements pool.Store on top of a Manager.
type PoolStore struct {
	mu      sync.Mutex
	manager *Manager
}

// Pools returns a pool store bound to the manager.
func (m *Manager) Pools() *PoolStore {
	return &PoolStore{manager: m}
}

func (s *PoolStore) count() (uint64, error) {
	var count uint64
	if _, err := s.manager.KVGet(poolCountKey, &count); err != nil {
		return 0, fmt.Errorf("pool store: read count: %w", err)
	}
	return count, nil
}

// SavePool writes the pool record and, for a new pool, the pool count in one
// batch.
func (s *PoolStore) SavePool(st *pool.State) error {
	if st == nil {
		return fmt.Errorf("pool store: nil state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count, err := s.count()
	if err != nil {
		return err
	}
	batch := kvBatch{}
	if err := batch.put(poolKey(st.ID), toStoredPool(st)); err != nil {
		return fmt.Errorf("pool store: encode pool %d: %w", st.ID, err)
	}
	if st.ID >= count {
		if err := batch.put(poolCountKey, st.ID+1); err != nil {
			return err
		}
	}
	return s.manager.commit(batch)
}

// LoadPools returns every persisted pool in id order.
func (s *PoolStore) LoadPools() ([]*pool.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, err := s.count()
	if err != nil {
		return nil, err
	}
	out := make([]*pool.State, 0, count)
	for id := uint64(0); id < count; id++ {
		var rec storedPool
		ok, err := s.manager.KVGet(poolKey(id), &rec)
		if err != nil {
			return nil, fmt.Errorf("pool store: decode pool %d: %w", id, err)
		}
		if !ok {
			return nil, fmt.Errorf("pool store: pool %d missing", id)
		}
		st, err := rec.state()
		if err != nil {
			return nil, fmt.Errorf("pool store: %w", err)
		}
		out = append(out, st)
	}
	return out, nil
}
