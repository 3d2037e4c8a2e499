package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"thurman/core/events"
	"thurman/crypto"
	nativecommon "thurman/native/common"
	"thurman/native/loans"
)

// Repayment is one entry of a batch repayment.
type Repayment struct {
	Borrower crypto.Address
	LoanID   uint64
	Amount   *big.Int
}

// RepaymentResult summarises how repaid funds were applied.
type RepaymentResult struct {
	Total     *big.Int
	Principal *big.Int
	Yield     *big.Int
	Fee       *big.Int
	// PerShare is the accumulator increase, scaled by 1e18.
	PerShare *big.Int
}

func (e *Engine) checkOriginator(st *State, originator crypto.Address) error {
	reg, err := e.registry(st.Registry)
	if err != nil {
		return err
	}
	if !reg.IsActiveOriginator(originator) {
		return fmt.Errorf("%w: %s", ErrNotRegisteredOriginator, originator)
	}
	return nil
}

func (e *Engine) checkOrigination(st *State, originator crypto.Address) error {
	reg, err := e.registry(st.Registry)
	if err != nil {
		return err
	}
	if !reg.IsAccruer(e.cfg.ManagerAddress) {
		return fmt.Errorf("%w: engine %s lacks accrual capability on registry %s", ErrUnauthorized, e.cfg.ManagerAddress, st.Registry)
	}
	return e.checkOriginator(st, originator)
}

func (e *Engine) originate(tx *txn, originator crypto.Address, terms loans.Terms) (*loans.Loan, error) {
	st := tx.state
	if terms.Borrower == st.Vault {
		return nil, fmt.Errorf("%w: vault cannot borrow", ErrInvalidReceiver)
	}
	loan, err := st.Loans.Originate(originator, terms, e.nowFn())
	if err != nil {
		if errors.Is(err, loans.ErrInvalidTerms) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		return nil, err
	}
	if err := st.Debt.Mint(loan.Borrower, loan.Principal); err != nil {
		return nil, err
	}
	st.TotalPrincipal.Add(st.TotalPrincipal, loan.Principal)
	return loan, nil
}

// InitLoan originates a single loan and mints the matching debt tokens to the
// borrower. It returns the borrower-scoped loan id.
func (e *Engine) InitLoan(ctx context.Context, caller crypto.Address, poolID uint64, terms loans.Terms, originator crypto.Address) (uint64, error) {
	if err := e.requireOperator(caller, "initLoan"); err != nil {
		return 0, err
	}
	var id uint64
	err := e.execute(ctx, "initLoan", poolID, func(tx *txn) error {
		if err := e.guard(tx.state, classBorrowing); err != nil {
			return err
		}
		if err := e.checkOrigination(tx.state, originator); err != nil {
			return err
		}
		loan, err := e.originate(tx, originator, terms)
		if err != nil {
			return err
		}
		id = loan.ID
		tx.emit(events.LoanInitialized{PoolID: poolID, Originator: originator, LoanID: loan.ID, Borrower: loan.Borrower, Principal: loan.Principal})
		tx.emit(events.TokenSupply{PoolID: poolID, Token: tx.state.Debt.Symbol, Total: tx.state.Debt.TotalSupply(), Delta: loan.Principal, Reason: events.SupplyReasonMint})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// BatchInitLoan originates every entry or none. Ids are returned in input
// order.
func (e *Engine) BatchInitLoan(ctx context.Context, caller crypto.Address, poolID uint64, batch []loans.Terms, originator crypto.Address) ([]uint64, error) {
	if err := e.requireOperator(caller, "batchInitLoan"); err != nil {
		return nil, err
	}
	var ids []uint64
	err := e.execute(ctx, "batchInitLoan", poolID, func(tx *txn) error {
		if err := e.guard(tx.state, classBorrowing); err != nil {
			return err
		}
		if err := nativecommon.CheckBatch(e.cfg.MaxBatchSize, len(batch)); err != nil {
			return err
		}
		if err := e.checkOrigination(tx.state, originator); err != nil {
			return err
		}
		evt := events.BatchLoanInitialized{PoolID: poolID, Originator: originator}
		minted := big.NewInt(0)
		for i, terms := range batch {
			loan, err := e.originate(tx, originator, terms)
			if err != nil {
				return nativecommon.WrapBatch(i, err)
			}
			evt.LoanIDs = append(evt.LoanIDs, loan.ID)
			evt.Borrowers = append(evt.Borrowers, loan.Borrower)
			evt.Principals = append(evt.Principals, loan.Principal)
			minted.Add(minted, loan.Principal)
		}
		ids = evt.LoanIDs
		tx.emit(evt)
		tx.emit(events.TokenSupply{PoolID: poolID, Token: tx.state.Debt.Symbol, Total: tx.state.Debt.TotalSupply(), Delta: minted, Reason: events.SupplyReasonMint})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// authorizePayer admits the payer itself or an operator the payer delegated
// to in this pool. Pool vaults never pay repayments.
func (e *Engine) authorizePayer(st *State, caller, payer crypto.Address) error {
	if err := rejectVault(st, payer); err != nil {
		return err
	}
	if e.isPoolVault(payer) {
		return fmt.Errorf("%w: %s is a pool vault", ErrInvalidReceiver, payer)
	}
	if caller == payer || st.isOperator(payer, caller) {
		return nil
	}
	return fmt.Errorf("%w: %s for payer %s", ErrNotAuthorizedOperator, caller, payer)
}

// applyRepayments books every entry against the staged loan book, then takes
// the margin fee and updates the accumulator once for the combined yield.
func (e *Engine) applyRepayments(tx *txn, entries []Repayment, payer crypto.Address, batch bool) (RepaymentResult, error) {
	st := tx.state
	res := RepaymentResult{Total: big.NewInt(0), Principal: big.NewInt(0), Yield: big.NewInt(0), Fee: big.NewInt(0), PerShare: big.NewInt(0)}
	now := e.nowFn()
	wrap := func(i int, err error) error {
		if batch {
			return nativecommon.WrapBatch(i, err)
		}
		return err
	}
	for i, entry := range entries {
		if err := positive(entry.Amount); err != nil {
			return res, wrap(i, err)
		}
		app, err := st.Loans.Repay(entry.Borrower, entry.LoanID, entry.Amount, now)
		if err != nil {
			return res, wrap(i, err)
		}
		if err := st.Debt.Burn(entry.Borrower, app.Principal); err != nil {
			return res, wrap(i, fmt.Errorf("pool engine: burn debt: %w", err))
		}
		st.TotalPrincipal.Sub(st.TotalPrincipal, app.Principal)
		res.Total.Add(res.Total, entry.Amount)
		res.Principal.Add(res.Principal, app.Principal)
		res.Yield.Add(res.Yield, app.Yield)
		tx.emit(events.LoanRepaid{
			PoolID:      st.ID,
			Borrower:    entry.Borrower,
			LoanID:      entry.LoanID,
			Payer:       payer,
			Amount:      new(big.Int).Set(entry.Amount),
			Principal:   app.Principal,
			Yield:       app.Yield,
			Outstanding: app.Outstanding,
		})
	}
	if res.Principal.Sign() > 0 {
		tx.emit(events.TokenSupply{PoolID: st.ID, Token: st.Debt.Symbol, Total: st.Debt.TotalSupply(), Delta: new(big.Int).Set(res.Principal), Reason: events.SupplyReasonBurn})
	}
	if res.Yield.Sign() > 0 {
		res.Fee = st.marginFeeOn(res.Yield)
		st.ProtocolFees.Add(st.ProtocolFees, res.Fee)
		distributable := new(big.Int).Sub(res.Yield, res.Fee)
		if distributable.Sign() > 0 {
			res.PerShare = st.distribute(distributable)
		}
		tx.emit(events.Distribution{
			PoolID:        st.ID,
			Amount:        distributable,
			Fee:           new(big.Int).Set(res.Fee),
			Cumulative:    new(big.Int).Set(st.Cumulative),
			Undistributed: new(big.Int).Set(st.Undistributed),
		})
	}
	return res, nil
}

// RepayLoan pulls amount from payer into the vault and applies it to the
// loan: principal first, the remainder is yield for share holders.
func (e *Engine) RepayLoan(ctx context.Context, caller crypto.Address, poolID uint64, borrower crypto.Address, loanID uint64, amount *big.Int, payer crypto.Address) (RepaymentResult, error) {
	payer = defaultTo(payer, caller)
	var res RepaymentResult
	err := e.execute(ctx, "repayLoan", poolID, func(tx *txn) error {
		if err := e.guard(tx.state, classPauseOnly); err != nil {
			return err
		}
		if err := e.authorizePayer(tx.state, caller, payer); err != nil {
			return err
		}
		var err error
		res, err = e.applyRepayments(tx, []Repayment{{Borrower: borrower, LoanID: loanID, Amount: amount}}, payer, false)
		if err != nil {
			return err
		}
		return tx.move(payer, tx.state.Vault, res.Total)
	})
	return res, err
}

// BatchRepayLoans applies every entry or none, with one transfer for the
// total and one accumulator update for the combined yield.
func (e *Engine) BatchRepayLoans(ctx context.Context, caller crypto.Address, poolID uint64, entries []Repayment, payer crypto.Address) (RepaymentResult, error) {
	payer = defaultTo(payer, caller)
	var res RepaymentResult
	err := e.execute(ctx, "batchRepayLoans", poolID, func(tx *txn) error {
		if err := e.guard(tx.state, classPauseOnly); err != nil {
			return err
		}
		if err := nativecommon.CheckBatch(e.cfg.MaxBatchSize, len(entries)); err != nil {
			return err
		}
		if err := e.authorizePayer(tx.state, caller, payer); err != nil {
			return err
		}
		var err error
		res, err = e.applyRepayments(tx, entries, payer, true)
		if err != nil {
			return err
		}
		tx.emit(events.BatchRepaymentCompleted{
			PoolID:    poolID,
			Payer:     payer,
			Count:     len(entries),
			Total:     new(big.Int).Set(res.Total),
			Principal: new(big.Int).Set(res.Principal),
			Yield:     new(big.Int).Set(res.Yield),
			Fee:       new(big.Int).Set(res.Fee),
		})
		return tx.move(payer, tx.state.Vault, res.Total)
	})
	return res, err
}

// TransferSaleProceeds pays amount of vault custody to an active originator.
// Pool totals are unchanged.
func (e *Engine) TransferSaleProceeds(ctx context.Context, caller crypto.Address, poolID uint64, originator crypto.Address, amount *big.Int) error {
	if err := e.requireOperator(caller, "transferSaleProceeds"); err != nil {
		return err
	}
	return e.execute(ctx, "transferSaleProceeds", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classBorrowing); err != nil {
			return err
		}
		if err := positive(amount); err != nil {
			return err
		}
		if err := e.checkOriginator(st, originator); err != nil {
			return err
		}
		tx.emit(events.SaleProceedsTransferred{PoolID: poolID, Originator: originator, Amount: new(big.Int).Set(amount)})
		return tx.move(st.Vault, originator, amount)
	})
}

// WithdrawProtocolFees pays accrued margin fees to recipient.
func (e *Engine) WithdrawProtocolFees(ctx context.Context, caller crypto.Address, poolID uint64, recipient crypto.Address, amount *big.Int) error {
	if !e.IsAdmin(caller) {
		return fmt.Errorf("%w: caller is not admin", ErrUnauthorized)
	}
	return e.execute(ctx, "withdrawProtocolFees", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classPauseOnly); err != nil {
			return err
		}
		if err := positive(amount); err != nil {
			return err
		}
		if err := rejectVault(st, recipient); err != nil {
			return err
		}
		if st.ProtocolFees.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s available", ErrInsufficientFees, st.ProtocolFees)
		}
		st.ProtocolFees.Sub(st.ProtocolFees, amount)
		tx.emit(events.ProtocolFeesWithdrawn{PoolID: poolID, Recipient: recipient, Amount: new(big.Int).Set(amount)})
		return tx.move(st.Vault, recipient, amount)
	})
}
