package pool

import (
	"math/big"
	"time"

	"thurman/crypto"
	nativecommon "thurman/native/common"
	"thurman/native/ledger"
	"thurman/native/loans"
)

// DepositRequest tracks a controller's asynchronous deposit. Amounts are in
// assets.
type DepositRequest struct {
	Pending   *big.Int
	Claimable *big.Int
}

func (r *DepositRequest) Clone() *DepositRequest {
	if r == nil {
		return nil
	}
	return &DepositRequest{Pending: nativecommon.Copy(r.Pending), Claimable: nativecommon.Copy(r.Claimable)}
}

func (r *DepositRequest) empty() bool {
	return r.Pending.Sign() == 0 && r.Claimable.Sign() == 0
}

// RedeemRequest tracks a controller's asynchronous redemption. Pending and
// Claimable are in shares; ClaimableAssets is the asset amount locked at
// fulfillment. Entitlement is the distribution income earned by the pending
// escrowed shares as of Index.
type RedeemRequest struct {
	Pending         *big.Int
	Claimable       *big.Int
	ClaimableAssets *big.Int
	Entitlement     *big.Int
	Index           *big.Int
}

func (r *RedeemRequest) Clone() *RedeemRequest {
	if r == nil {
		return nil
	}
	return &RedeemRequest{
		Pending:         nativecommon.Copy(r.Pending),
		Claimable:       nativecommon.Copy(r.Claimable),
		ClaimableAssets: nativecommon.Copy(r.ClaimableAssets),
		Entitlement:     nativecommon.Copy(r.Entitlement),
		Index:           nativecommon.Copy(r.Index),
	}
}

func (r *RedeemRequest) empty() bool {
	return r.Pending.Sign() == 0 && r.Claimable.Sign() == 0 && r.ClaimableAssets.Sign() == 0 && r.Entitlement.Sign() == 0
}

// Checkpoint is a share holder's position in the distribution accumulator.
type Checkpoint struct {
	Index   *big.Int
	Accrued *big.Int
}

func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	return &Checkpoint{Index: nativecommon.Copy(c.Index), Accrued: nativecommon.Copy(c.Accrued)}
}

// State is the complete accounting state of one pool. Committed states are
// never mutated; operations work on a Clone.
type State struct {
	ID        uint64
	Vault     crypto.Address
	Registry  crypto.Address
	MarginFee *big.Int
	Settings  Settings
	CreatedAt time.Time

	// TotalPrincipal is the outstanding principal of all loans.
	TotalPrincipal *big.Int
	// TotalDeposits is the net capital converted into shares.
	TotalDeposits *big.Int
	// PendingDeposits is the pending plus claimable deposit assets of every
	// controller. It counts against the deposit cap.
	PendingDeposits *big.Int
	// LockedShares are escrowed shares already fulfilled for redemption. They
	// no longer take part in distributions.
	LockedShares *big.Int
	// Cumulative is the distributions-per-share accumulator, scaled by 1e18.
	Cumulative *big.Int
	// Undistributed holds proceeds that could not be allocated yet, either
	// because no shares were eligible or as rounding remainder.
	Undistributed *big.Int
	// ProtocolFees are margin fees accrued and not yet withdrawn.
	ProtocolFees *big.Int

	Shares *ledger.Ledger
	Debt   *ledger.Ledger
	Loans  *loans.Book

	Checkpoints     map[crypto.Address]*Checkpoint
	DepositRequests map[crypto.Address]*DepositRequest
	RedeemRequests  map[crypto.Address]*RedeemRequest
	Operators       map[crypto.Address]map[crypto.Address]bool
}

func newState(id uint64, vault, registry crypto.Address, marginFee *big.Int, cfg Config, now time.Time) *State {
	return &State{
		ID:        id,
		Vault:     vault,
		Registry:  registry,
		MarginFee: nativecommon.Copy(marginFee),
		Settings: Settings{
			MaxDepositAmount: big.NewInt(0),
			MinDepositAmount: big.NewInt(0),
			DepositCap:       big.NewInt(0),
		},
		CreatedAt:       now.UTC(),
		TotalPrincipal:  big.NewInt(0),
		TotalDeposits:   big.NewInt(0),
		PendingDeposits: big.NewInt(0),
		LockedShares:    big.NewInt(0),
		Cumulative:      big.NewInt(0),
		Undistributed:   big.NewInt(0),
		ProtocolFees:    big.NewInt(0),
		Shares:          ledger.New(cfg.ShareName, cfg.ShareSymbol, cfg.Decimals),
		Debt:            ledger.New(cfg.DebtName, cfg.DebtSymbol, cfg.Decimals),
		Loans:           loans.NewBook(),
		Checkpoints:     make(map[crypto.Address]*Checkpoint),
		DepositRequests: make(map[crypto.Address]*DepositRequest),
		RedeemRequests:  make(map[crypto.Address]*RedeemRequest),
		Operators:       make(map[crypto.Address]map[crypto.Address]bool),
	}
}

// EnsureDefaults populates nil fields so restored states are safe to use.
func (s *State) EnsureDefaults(cfg Config) {
	for _, field := range []**big.Int{
		&s.MarginFee, &s.TotalPrincipal, &s.TotalDeposits, &s.PendingDeposits,
		&s.LockedShares, &s.Cumulative, &s.Undistributed, &s.ProtocolFees,
		&s.Settings.MaxDepositAmount, &s.Settings.MinDepositAmount, &s.Settings.DepositCap,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	if s.Shares == nil {
		s.Shares = ledger.New(cfg.ShareName, cfg.ShareSymbol, cfg.Decimals)
	}
	if s.Debt == nil {
		s.Debt = ledger.New(cfg.DebtName, cfg.DebtSymbol, cfg.Decimals)
	}
	if s.Loans == nil {
		s.Loans = loans.NewBook()
	}
	if s.Checkpoints == nil {
		s.Checkpoints = make(map[crypto.Address]*Checkpoint)
	}
	if s.DepositRequests == nil {
		s.DepositRequests = make(map[crypto.Address]*DepositRequest)
	}
	if s.RedeemRequests == nil {
		s.RedeemRequests = make(map[crypto.Address]*RedeemRequest)
	}
	if s.Operators == nil {
		s.Operators = make(map[crypto.Address]map[crypto.Address]bool)
	}
}

// Clone returns a deep copy of the pool state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := &State{
		ID:              s.ID,
		Vault:           s.Vault,
		Registry:        s.Registry,
		MarginFee:       nativecommon.Copy(s.MarginFee),
		Settings:        s.Settings.Clone(),
		CreatedAt:       s.CreatedAt,
		TotalPrincipal:  nativecommon.Copy(s.TotalPrincipal),
		TotalDeposits:   nativecommon.Copy(s.TotalDeposits),
		PendingDeposits: nativecommon.Copy(s.PendingDeposits),
		LockedShares:    nativecommon.Copy(s.LockedShares),
		Cumulative:      nativecommon.Copy(s.Cumulative),
		Undistributed:   nativecommon.Copy(s.Undistributed),
		ProtocolFees:    nativecommon.Copy(s.ProtocolFees),
		Shares:          s.Shares.Clone(),
		Debt:            s.Debt.Clone(),
		Loans:           s.Loans.Clone(),
		Checkpoints:     make(map[crypto.Address]*Checkpoint, len(s.Checkpoints)),
		DepositRequests: make(map[crypto.Address]*DepositRequest, len(s.DepositRequests)),
		RedeemRequests:  make(map[crypto.Address]*RedeemRequest, len(s.RedeemRequests)),
		Operators:       make(map[crypto.Address]map[crypto.Address]bool, len(s.Operators)),
	}
	for k, v := range s.Checkpoints {
		clone.Checkpoints[k] = v.Clone()
	}
	for k, v := range s.DepositRequests {
		clone.DepositRequests[k] = v.Clone()
	}
	for k, v := range s.RedeemRequests {
		clone.RedeemRequests[k] = v.Clone()
	}
	for controller, delegates := range s.Operators {
		inner := make(map[crypto.Address]bool, len(delegates))
		for d, ok := range delegates {
			inner[d] = ok
		}
		clone.Operators[controller] = inner
	}
	return clone
}

func (s *State) isOperator(controller, delegate crypto.Address) bool {
	if controller == delegate {
		return true
	}
	return s.Operators[controller][delegate]
}

func (s *State) depositRequest(controller crypto.Address) *DepositRequest {
	req, ok := s.DepositRequests[controller]
	if !ok {
		req = &DepositRequest{Pending: big.NewInt(0), Claimable: big.NewInt(0)}
		s.DepositRequests[controller] = req
	}
	return req
}

func (s *State) redeemRequest(controller crypto.Address) *RedeemRequest {
	req, ok := s.RedeemRequests[controller]
	if !ok {
		req = &RedeemRequest{
			Pending:         big.NewInt(0),
			Claimable:       big.NewInt(0),
			ClaimableAssets: big.NewInt(0),
			Entitlement:     big.NewInt(0),
			Index:           new(big.Int).Set(s.Cumulative),
		}
		s.RedeemRequests[controller] = req
	}
	return req
}

// prune drops request and checkpoint records that no longer carry value.
func (s *State) prune(accounts ...crypto.Address) {
	for _, acct := range accounts {
		if req, ok := s.DepositRequests[acct]; ok && req.empty() {
			delete(s.DepositRequests, acct)
		}
		if req, ok := s.RedeemRequests[acct]; ok && req.empty() {
			delete(s.RedeemRequests, acct)
		}
		if cp, ok := s.Checkpoints[acct]; ok && cp.Accrued.Sign() == 0 && s.Shares.BalanceOf(acct).Sign() == 0 {
			delete(s.Checkpoints, acct)
		}
	}
}
