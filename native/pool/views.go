package pool

import (
	"math/big"
	"time"

	"thurman/crypto"
	nativecommon "thurman/native/common"
	"thurman/native/loans"
)

// PoolView is a read-only copy of a pool's configuration and totals.
type PoolView struct {
	ID              uint64
	Vault           crypto.Address
	Registry        crypto.Address
	MarginFee       *big.Int
	Settings        Settings
	CreatedAt       time.Time
	TotalPrincipal  *big.Int
	TotalDeposits   *big.Int
	PendingDeposits *big.Int
	LockedShares    *big.Int
	TotalShares     *big.Int
	TotalDebt       *big.Int
	Cumulative      *big.Int
	Undistributed   *big.Int
	ProtocolFees    *big.Int
	LoanCount       int
	ShareSymbol     string
	DebtSymbol      string
}

func viewOf(st *State) PoolView {
	return PoolView{
		ID:              st.ID,
		Vault:           st.Vault,
		Registry:        st.Registry,
		MarginFee:       nativecommon.Copy(st.MarginFee),
		Settings:        st.Settings.Clone(),
		CreatedAt:       st.CreatedAt,
		TotalPrincipal:  nativecommon.Copy(st.TotalPrincipal),
		TotalDeposits:   nativecommon.Copy(st.TotalDeposits),
		PendingDeposits: nativecommon.Copy(st.PendingDeposits),
		LockedShares:    nativecommon.Copy(st.LockedShares),
		TotalShares:     st.Shares.TotalSupply(),
		TotalDebt:       st.Debt.TotalSupply(),
		Cumulative:      nativecommon.Copy(st.Cumulative),
		Undistributed:   nativecommon.Copy(st.Undistributed),
		ProtocolFees:    nativecommon.Copy(st.ProtocolFees),
		LoanCount:       st.Loans.Count(),
		ShareSymbol:     st.Shares.Symbol,
		DebtSymbol:      st.Debt.Symbol,
	}
}

// Pool returns a snapshot of the pool.
func (e *Engine) Pool(poolID uint64) (PoolView, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return PoolView{}, err
	}
	return viewOf(st), nil
}

// Pools returns a snapshot of every pool in id order.
func (e *Engine) Pools() []PoolView {
	count := e.PoolCount()
	out := make([]PoolView, 0, count)
	for id := uint64(0); id < count; id++ {
		if view, err := e.Pool(id); err == nil {
			out = append(out, view)
		}
	}
	return out
}

// DepositRequestView is a controller's deposit request in assets.
type DepositRequestView struct {
	Pending   *big.Int
	Claimable *big.Int
}

// RedeemRequestView is a controller's redemption request. Pending and
// Claimable are shares; ClaimableAssets is the locked payout and
// PendingIncome the income earned so far by the pending shares.
type RedeemRequestView struct {
	Pending         *big.Int
	Claimable       *big.Int
	ClaimableAssets *big.Int
	PendingIncome   *big.Int
}

// AccountView aggregates everything a pool knows about one account.
type AccountView struct {
	Shares      *big.Int
	Debt        *big.Int
	Entitlement *big.Int
	Deposit     DepositRequestView
	Redeem      RedeemRequestView
}

func (e *Engine) PendingDeposit(poolID uint64, controller crypto.Address) (DepositRequestView, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return DepositRequestView{}, err
	}
	return depositView(st, controller), nil
}

func depositView(st *State, controller crypto.Address) DepositRequestView {
	req, ok := st.DepositRequests[controller]
	if !ok {
		return DepositRequestView{Pending: big.NewInt(0), Claimable: big.NewInt(0)}
	}
	return DepositRequestView{Pending: nativecommon.Copy(req.Pending), Claimable: nativecommon.Copy(req.Claimable)}
}

func (e *Engine) PendingRedeem(poolID uint64, controller crypto.Address) (RedeemRequestView, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return RedeemRequestView{}, err
	}
	return redeemView(st, controller), nil
}

func redeemView(st *State, controller crypto.Address) RedeemRequestView {
	req, ok := st.RedeemRequests[controller]
	if !ok {
		return RedeemRequestView{Pending: big.NewInt(0), Claimable: big.NewInt(0), ClaimableAssets: big.NewInt(0), PendingIncome: big.NewInt(0)}
	}
	return RedeemRequestView{
		Pending:         nativecommon.Copy(req.Pending),
		Claimable:       nativecommon.Copy(req.Claimable),
		ClaimableAssets: nativecommon.Copy(req.ClaimableAssets),
		PendingIncome:   st.pendingEntitlement(req),
	}
}

// Account returns the full position of account in the pool.
func (e *Engine) Account(poolID uint64, account crypto.Address) (AccountView, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{
		Shares:      st.Shares.BalanceOf(account),
		Debt:        st.Debt.BalanceOf(account),
		Entitlement: st.entitlementOf(account),
		Deposit:     depositView(st, account),
		Redeem:      redeemView(st, account),
	}, nil
}

func (e *Engine) ShareBalance(poolID uint64, account crypto.Address) (*big.Int, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return nil, err
	}
	return st.Shares.BalanceOf(account), nil
}

func (e *Engine) TotalShares(poolID uint64) (*big.Int, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return nil, err
	}
	return st.Shares.TotalSupply(), nil
}

func (e *Engine) DebtBalance(poolID uint64, account crypto.Address) (*big.Int, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return nil, err
	}
	return st.Debt.BalanceOf(account), nil
}

// ShareAllowance returns how many of owner's shares spender may request to
// redeem.
func (e *Engine) ShareAllowance(poolID uint64, owner, spender crypto.Address) (*big.Int, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return nil, err
	}
	return st.Shares.Allowance(owner, spender), nil
}

// Entitlement returns the distribution income holder has earned and not yet
// carried into a redemption.
func (e *Engine) Entitlement(poolID uint64, holder crypto.Address) (*big.Int, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return nil, err
	}
	return st.entitlementOf(holder), nil
}

// IsOperator reports whether delegate may act for controller. Every account
// is its own operator.
func (e *Engine) IsOperator(poolID uint64, controller, delegate crypto.Address) (bool, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return false, err
	}
	return st.isOperator(controller, delegate), nil
}

func (e *Engine) Loan(poolID uint64, borrower crypto.Address, loanID uint64) (*loans.Loan, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return nil, err
	}
	return st.Loans.Get(borrower, loanID)
}

func (e *Engine) Loans(poolID uint64, borrower crypto.Address) ([]*loans.Loan, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return nil, err
	}
	return st.Loans.Loans(borrower), nil
}

// ConvertToShares returns the shares minted for assets. Deposits convert at
// a fixed 1:1 rate; income is paid through the distribution accumulator.
func (e *Engine) ConvertToShares(poolID uint64, assets *big.Int) (*big.Int, error) {
	if _, err := e.snapshot(poolID); err != nil {
		return nil, err
	}
	return nativecommon.Copy(assets), nil
}

// ConvertToAssets returns the principal value of shares.
func (e *Engine) ConvertToAssets(poolID uint64, shares *big.Int) (*big.Int, error) {
	if _, err := e.snapshot(poolID); err != nil {
		return nil, err
	}
	return nativecommon.Copy(shares), nil
}

// PreviewRedeem estimates the payout of redeeming shares currently held by
// holder: principal plus the pro-rata share of accrued income.
func (e *Engine) PreviewRedeem(poolID uint64, holder crypto.Address, shares *big.Int) (*big.Int, error) {
	st, err := e.snapshot(poolID)
	if err != nil {
		return nil, err
	}
	balance := st.Shares.BalanceOf(holder)
	if shares == nil || shares.Sign() <= 0 || balance.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	income := proRata(st.entitlementOf(holder), shares, balance)
	return income.Add(income, shares), nil
}
