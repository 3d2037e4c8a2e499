package pool

import (
	"errors"
	"math/big"
	"testing"

	"thurman/core/events"
	nativecommon "thurman/native/common"
	"thurman/native/loans"
)

func TestDepositLoanRepayRedeemLifecycle(t *testing.T) {
	h := newHarness(t, big.NewInt(0))
	settings := openSettings()
	settings.DepositCap = big.NewInt(10_000)
	settings.MinDepositAmount = big.NewInt(1_000)
	h.configure(settings)
	h.fund(h.investor, 5_000)
	h.fund(h.borrower, 4_400)

	h.invest(h.investor, 5_000)
	if got := h.shares(h.investor); got != 5_000 {
		t.Fatalf("expected 5000 shares, got %d", got)
	}
	if got := h.pool().TotalDeposits.Int64(); got != 5_000 {
		t.Fatalf("expected total deposits 5000, got %d", got)
	}

	ids, err := h.engine.BatchInitLoan(h.ctx, h.operator, h.poolID, []loans.Terms{
		{Borrower: h.borrower, Principal: big.NewInt(4_000), TermMonths: 12, InterestRate: fraction(10, 100)},
	}, h.originator)
	if err != nil {
		t.Fatalf("batch init loan: %v", err)
	}
	if len(ids) != 1 || ids[0] != 0 {
		t.Fatalf("unexpected loan ids %v", ids)
	}
	if got := h.pool().TotalPrincipal.Int64(); got != 4_000 {
		t.Fatalf("expected total principal 4000, got %d", got)
	}

	res, err := h.engine.BatchRepayLoans(h.ctx, h.borrower, h.poolID, []Repayment{
		{Borrower: h.borrower, LoanID: 0, Amount: big.NewInt(4_400)},
	}, h.borrower)
	if err != nil {
		t.Fatalf("batch repay: %v", err)
	}
	if res.Principal.Int64() != 4_000 || res.Yield.Int64() != 400 {
		t.Fatalf("unexpected application %+v", res)
	}
	view := h.pool()
	if view.TotalPrincipal.Sign() != 0 {
		t.Fatalf("expected principal cleared, got %s", view.TotalPrincipal)
	}
	if view.Cumulative.Cmp(fraction(8, 100)) != 0 {
		t.Fatalf("expected cumulative 0.08e18, got %s", view.Cumulative)
	}

	preview, err := h.engine.PreviewRedeem(h.poolID, h.investor, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("preview redeem: %v", err)
	}
	if preview.Int64() != 5_400 {
		t.Fatalf("expected preview 5400, got %s", preview)
	}

	h.exit(h.investor)
	if got := h.balance(h.investor); got != 5_400 {
		t.Fatalf("expected investor to receive 5400, got %d", got)
	}
	if got := h.balance(h.vault); got != 4_000 {
		t.Fatalf("expected vault to retain 4000, got %d", got)
	}
	view = h.pool()
	if view.TotalShares.Sign() != 0 || view.TotalDeposits.Sign() != 0 || view.LockedShares.Sign() != 0 {
		t.Fatalf("expected pool drained, got %+v", view)
	}
}

func TestDepositCapBoundary(t *testing.T) {
	h := newHarness(t, nil)
	settings := openSettings()
	settings.DepositCap = big.NewInt(10_000)
	h.configure(settings)
	h.fund(h.investor, 6_001)
	h.fund(h.investor2, 4_000)

	if err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(6_000), h.investor, h.investor); err != nil {
		t.Fatalf("request 6000: %v", err)
	}
	if err := h.engine.RequestDeposit(h.ctx, h.investor2, h.poolID, big.NewInt(4_000), h.investor2, h.investor2); err != nil {
		t.Fatalf("request up to cap: %v", err)
	}
	err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(1), h.investor, h.investor)
	requireErr(t, err, ErrCapExceeded)
	if got := h.pool().PendingDeposits.Int64(); got != 10_000 {
		t.Fatalf("expected pending 10000, got %d", got)
	}
	if got := h.balance(h.investor); got != 1 {
		t.Fatalf("rejected request moved funds, balance %d", got)
	}
}

func TestDepositLimits(t *testing.T) {
	h := newHarness(t, nil)
	settings := openSettings()
	settings.MinDepositAmount = big.NewInt(100)
	settings.MaxDepositAmount = big.NewInt(1_000)
	h.configure(settings)
	h.fund(h.investor, 5_000)

	requireErr(t, h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(99), h.investor, h.investor), ErrInvalidAmount)
	requireErr(t, h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(0), h.investor, h.investor), ErrInvalidAmount)
	requireErr(t, h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(1_001), h.investor, h.investor), ErrCapExceeded)
	if err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor); err != nil {
		t.Fatalf("request at max: %v", err)
	}
}

func TestSettingsValidation(t *testing.T) {
	h := newHarness(t, nil)
	settings := openSettings()
	settings.MinDepositAmount = big.NewInt(10)
	settings.MaxDepositAmount = big.NewInt(5)
	requireErr(t, h.engine.SetPoolOperationalSettings(h.ctx, h.operator, h.poolID, settings), ErrInvalidSettings)

	settings = openSettings()
	settings.DepositCap = big.NewInt(-1)
	requireErr(t, h.engine.SetPoolOperationalSettings(h.ctx, h.operator, h.poolID, settings), ErrInvalidSettings)

	requireErr(t, h.engine.SetPoolOperationalSettings(h.ctx, h.investor, h.poolID, openSettings()), ErrUnauthorized)
	requireErr(t, h.engine.SetPoolOperationalSettings(h.ctx, h.operator, 7, openSettings()), ErrPoolNotFound)
}

func TestFulfillAndClaimBounds(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)

	if err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor); err != nil {
		t.Fatalf("request: %v", err)
	}
	requireErr(t, h.engine.Deposit(h.ctx, h.investor, h.poolID, big.NewInt(1), h.investor, h.investor), ErrInsufficientClaimable)
	requireErr(t, h.engine.FulfillDeposit(h.ctx, h.operator, h.poolID, big.NewInt(1_001), h.investor), ErrInsufficientPending)
	requireErr(t, h.engine.FulfillDeposit(h.ctx, h.investor, h.poolID, big.NewInt(10), h.investor), ErrUnauthorized)

	if err := h.engine.FulfillDeposit(h.ctx, h.operator, h.poolID, big.NewInt(400), h.investor); err != nil {
		t.Fatalf("partial fulfill: %v", err)
	}
	req, err := h.engine.PendingDeposit(h.poolID, h.investor)
	if err != nil {
		t.Fatalf("pending deposit: %v", err)
	}
	if req.Pending.Int64() != 600 || req.Claimable.Int64() != 400 {
		t.Fatalf("unexpected request %+v", req)
	}
	requireErr(t, h.engine.Deposit(h.ctx, h.investor, h.poolID, big.NewInt(401), h.investor, h.investor), ErrInsufficientClaimable)
	if err := h.engine.Deposit(h.ctx, h.investor, h.poolID, big.NewInt(400), h.investor, h.investor); err != nil {
		t.Fatalf("claim: %v", err)
	}
	view := h.pool()
	if view.PendingDeposits.Int64() != 600 || view.TotalDeposits.Int64() != 400 {
		t.Fatalf("unexpected totals pending=%s deposits=%s", view.PendingDeposits, view.TotalDeposits)
	}
}

func TestRoundTripReturnsPrincipal(t *testing.T) {
	h := newHarness(t, fraction(5, 100))
	h.configure(openSettings())
	h.fund(h.investor, 2_500)

	h.invest(h.investor, 2_500)
	h.exit(h.investor)
	if got := h.balance(h.investor); got != 2_500 {
		t.Fatalf("expected 2500 back, got %d", got)
	}
	acct, err := h.engine.Account(h.poolID, h.investor)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.Shares.Sign() != 0 || acct.Entitlement.Sign() != 0 || acct.Redeem.Claimable.Sign() != 0 {
		t.Fatalf("expected empty position, got %+v", acct)
	}
}

func TestRedeemValueLockedAtFulfillment(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)
	h.fund(h.investor2, 1_000)
	h.fund(h.borrower, 1_800)
	h.invest(h.investor, 1_000)
	h.invest(h.investor2, 1_000)

	if err := h.engine.RequestRedeem(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor); err != nil {
		t.Fatalf("request redeem: %v", err)
	}
	// Pending escrowed shares still earn.
	first := h.loan(1_000)
	if _, err := h.engine.RepayLoan(h.ctx, h.borrower, h.poolID, h.borrower, first, big.NewInt(1_200), h.borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	pending, err := h.engine.PendingRedeem(h.poolID, h.investor)
	if err != nil {
		t.Fatalf("pending redeem: %v", err)
	}
	if pending.PendingIncome.Int64() != 100 {
		t.Fatalf("expected pending income 100, got %s", pending.PendingIncome)
	}

	if err := h.engine.FulfillRedeem(h.ctx, h.operator, h.poolID, big.NewInt(1_000), h.investor); err != nil {
		t.Fatalf("fulfill redeem: %v", err)
	}
	// Locked shares no longer earn; the remaining holder takes the full yield.
	second := h.loan(500)
	if _, err := h.engine.RepayLoan(h.ctx, h.borrower, h.poolID, h.borrower, second, big.NewInt(600), h.borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	entitlement, err := h.engine.Entitlement(h.poolID, h.investor2)
	if err != nil {
		t.Fatalf("entitlement: %v", err)
	}
	if entitlement.Int64() != 200 {
		t.Fatalf("expected investor2 entitlement 200, got %s", entitlement)
	}

	if err := h.engine.Redeem(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := h.balance(h.investor); got != 1_100 {
		t.Fatalf("expected locked payout 1100, got %d", got)
	}
}

func TestPartialRedeemSplitsLockedAssets(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)
	h.fund(h.borrower, 1_100)
	h.invest(h.investor, 1_000)
	id := h.loan(1_000)
	if _, err := h.engine.RepayLoan(h.ctx, h.borrower, h.poolID, h.borrower, id, big.NewInt(1_100), h.borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}

	if err := h.engine.RequestRedeem(h.ctx, h.investor, h.poolID, big.NewInt(500), h.investor, h.investor); err != nil {
		t.Fatalf("request redeem: %v", err)
	}
	if got, _ := h.engine.Entitlement(h.poolID, h.investor); got.Int64() != 50 {
		t.Fatalf("expected remaining entitlement 50, got %s", got)
	}
	if err := h.engine.FulfillRedeem(h.ctx, h.operator, h.poolID, big.NewInt(500), h.investor); err != nil {
		t.Fatalf("fulfill redeem: %v", err)
	}
	if err := h.engine.Redeem(h.ctx, h.investor, h.poolID, big.NewInt(200), h.investor, h.investor); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := h.balance(h.investor); got != 220 {
		t.Fatalf("expected 220, got %d", got)
	}
	if err := h.engine.Redeem(h.ctx, h.investor, h.poolID, big.NewInt(300), h.investor, h.investor); err != nil {
		t.Fatalf("redeem rest: %v", err)
	}
	if got := h.balance(h.investor); got != 550 {
		t.Fatalf("expected 550, got %d", got)
	}
	requireErr(t, h.engine.Redeem(h.ctx, h.investor, h.poolID, big.NewInt(1), h.investor, h.investor), ErrInsufficientClaimable)
	requireErr(t, h.engine.FulfillRedeem(h.ctx, h.operator, h.poolID, big.NewInt(1), h.investor), ErrInsufficientPending)
}

func TestDisabledOperations(t *testing.T) {
	h := newHarness(t, nil)
	h.fund(h.investor, 1_000)

	// Fresh pools start with every flag off.
	err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(100), h.investor, h.investor)
	var disabledErr *OperationDisabledError
	if !errors.As(err, &disabledErr) || disabledErr.Kind != KindDeposits {
		t.Fatalf("expected deposits disabled, got %v", err)
	}
	requireErr(t, err, ErrOperationDisabled)

	settings := openSettings()
	settings.WithdrawalsEnabled = false
	settings.BorrowingEnabled = false
	h.configure(settings)
	h.invest(h.investor, 1_000)

	err = h.engine.RequestRedeem(h.ctx, h.investor, h.poolID, big.NewInt(1), h.investor, h.investor)
	if !errors.As(err, &disabledErr) || disabledErr.Kind != KindWithdrawals {
		t.Fatalf("expected withdrawals disabled, got %v", err)
	}
	_, err = h.engine.InitLoan(h.ctx, h.operator, h.poolID, loans.Terms{Borrower: h.borrower, Principal: big.NewInt(1), TermMonths: 1}, h.originator)
	if !errors.As(err, &disabledErr) || disabledErr.Kind != KindBorrowing {
		t.Fatalf("expected borrowing disabled, got %v", err)
	}

	settings = openSettings()
	settings.Paused = true
	h.configure(settings)
	err = h.engine.SetOperator(h.ctx, h.investor, h.poolID, h.investor2, true)
	if !errors.As(err, &disabledErr) || disabledErr.Kind != KindPaused {
		t.Fatalf("expected paused, got %v", err)
	}

	// Settings stay writable while paused.
	h.configure(openSettings())
	if err := h.engine.SetOperator(h.ctx, h.investor, h.poolID, h.investor2, true); err != nil {
		t.Fatalf("set operator after resume: %v", err)
	}
}

func TestModulePauseBlocksEveryOperation(t *testing.T) {
	pauses := nativecommon.NewPauseSet()
	h := newHarness(t, nil, WithPauses(pauses))
	h.configure(openSettings())
	h.fund(h.investor, 100)

	pauses.Set(ModuleName, true)
	requireErr(t, h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(100), h.investor, h.investor), ErrModulePaused)
	pauses.Set(ModuleName, false)
	if err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(100), h.investor, h.investor); err != nil {
		t.Fatalf("request after unpause: %v", err)
	}
}

func TestOperatorDelegation(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 2_000)
	delegate := makeAddress(0xD0, 0x09)

	requireErr(t, h.engine.RequestDeposit(h.ctx, delegate, h.poolID, big.NewInt(100), h.investor, h.investor), ErrNotAuthorizedOperator)
	requireErr(t, h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(100), h.investor2, h.investor), ErrInvalidController)
	requireErr(t, h.engine.SetOperator(h.ctx, h.investor, h.poolID, h.investor, true), ErrInvalidOperator)

	if err := h.engine.SetOperator(h.ctx, h.investor, h.poolID, delegate, true); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	if ok, _ := h.engine.IsOperator(h.poolID, h.investor, delegate); !ok {
		t.Fatalf("expected delegate to be operator")
	}
	if err := h.engine.RequestDeposit(h.ctx, delegate, h.poolID, big.NewInt(1_000), h.investor, h.investor); err != nil {
		t.Fatalf("delegated request: %v", err)
	}
	if err := h.engine.FulfillDeposit(h.ctx, h.operator, h.poolID, big.NewInt(1_000), h.investor); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	// The delegate claims on behalf of the controller; shares go to the receiver.
	if err := h.engine.Deposit(h.ctx, delegate, h.poolID, big.NewInt(1_000), h.investor, h.investor); err != nil {
		t.Fatalf("delegated claim: %v", err)
	}
	if got := h.shares(h.investor); got != 1_000 {
		t.Fatalf("expected 1000 shares, got %d", got)
	}

	if err := h.engine.SetOperator(h.ctx, h.investor, h.poolID, delegate, false); err != nil {
		t.Fatalf("revoke operator: %v", err)
	}
	requireErr(t, h.engine.RequestDeposit(h.ctx, delegate, h.poolID, big.NewInt(100), h.investor, h.investor), ErrNotAuthorizedOperator)
	requireErr(t, h.engine.Deposit(h.ctx, delegate, h.poolID, big.NewInt(1), h.investor, h.investor), ErrNotAuthorizedOperator)
}

func TestRedeemRequestWithShareAllowance(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)
	h.invest(h.investor, 1_000)
	spender := makeAddress(0xD0, 0x0A)

	requireErr(t, h.engine.RequestRedeem(h.ctx, spender, h.poolID, big.NewInt(300), h.investor, h.investor), ErrNotAuthorizedOperator)
	h.resetEvents()
	if err := h.engine.ApproveShares(h.ctx, h.investor, h.poolID, spender, big.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := h.eventTypes(); len(got) != 1 || got[0] != events.TypeSharesApproved {
		t.Fatalf("expected a share approval event, got %v", got)
	}
	if err := h.engine.RequestRedeem(h.ctx, spender, h.poolID, big.NewInt(300), h.investor, h.investor); err != nil {
		t.Fatalf("request with allowance: %v", err)
	}
	allowance, err := h.engine.ShareAllowance(h.poolID, h.investor, spender)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if allowance.Sign() != 0 {
		t.Fatalf("expected allowance spent, got %s", allowance)
	}
	if got := h.shares(h.investor); got != 700 {
		t.Fatalf("expected 700 shares left, got %d", got)
	}
	if got := h.shares(h.vault); got != 300 {
		t.Fatalf("expected 300 escrowed shares, got %d", got)
	}
}

func TestRejectsVaultAsCounterparty(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)
	if err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := h.engine.FulfillDeposit(h.ctx, h.operator, h.poolID, big.NewInt(1_000), h.investor); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	requireErr(t, h.engine.Deposit(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.vault, h.investor), ErrInvalidReceiver)
}

func TestCancelDepositRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 2_000)

	if err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(2_000), h.investor, h.investor); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := h.engine.FulfillDeposit(h.ctx, h.operator, h.poolID, big.NewInt(500), h.investor); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := h.engine.CancelDepositRequest(h.ctx, h.investor, h.poolID, h.investor, h.investor); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.balance(h.investor); got != 1_500 {
		t.Fatalf("expected pending 1500 refunded, got %d", got)
	}
	view := h.pool()
	if view.PendingDeposits.Int64() != 500 {
		t.Fatalf("expected claimable 500 to stay counted, got %s", view.PendingDeposits)
	}
	requireErr(t, h.engine.CancelDepositRequest(h.ctx, h.investor, h.poolID, h.investor, h.investor), ErrInsufficientPending)
}

func TestCancelRedeemRequestRestoresIncome(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)
	h.fund(h.borrower, 1_100)
	h.invest(h.investor, 1_000)

	if err := h.engine.RequestRedeem(h.ctx, h.investor, h.poolID, big.NewInt(400), h.investor, h.investor); err != nil {
		t.Fatalf("request redeem: %v", err)
	}
	id := h.loan(1_000)
	if _, err := h.engine.RepayLoan(h.ctx, h.borrower, h.poolID, h.borrower, id, big.NewInt(1_100), h.borrower); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if err := h.engine.CancelRedeemRequest(h.ctx, h.investor, h.poolID, h.investor, h.investor); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.shares(h.investor); got != 1_000 {
		t.Fatalf("expected shares restored, got %d", got)
	}
	entitlement, _ := h.engine.Entitlement(h.poolID, h.investor)
	if entitlement.Int64() != 100 {
		t.Fatalf("expected full entitlement 100, got %s", entitlement)
	}
	requireErr(t, h.engine.CancelRedeemRequest(h.ctx, h.investor, h.poolID, h.investor, h.investor), ErrInsufficientPending)
}

func TestTransferFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)
	h.resetEvents()

	h.assets.setFail(true)
	err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor)
	requireErr(t, err, ErrTransferFailed)
	requireErr(t, err, errBoom)
	var transferErr *TransferError
	if !errors.As(err, &transferErr) || transferErr.Amount.Int64() != 1_000 {
		t.Fatalf("expected transfer error details, got %v", err)
	}
	if got := h.pool().PendingDeposits.Sign(); got != 0 {
		t.Fatalf("expected no pending deposits, got sign %d", got)
	}
	if types := h.eventTypes(); len(types) != 0 {
		t.Fatalf("expected no events, got %v", types)
	}

	h.assets.setFail(false)
	h.invest(h.investor, 1_000)
	if err := h.engine.RequestRedeem(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor); err != nil {
		t.Fatalf("request redeem: %v", err)
	}
	if err := h.engine.FulfillRedeem(h.ctx, h.operator, h.poolID, big.NewInt(1_000), h.investor); err != nil {
		t.Fatalf("fulfill redeem: %v", err)
	}
	h.assets.setFail(true)
	requireErr(t, h.engine.Redeem(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor), ErrTransferFailed)
	req, _ := h.engine.PendingRedeem(h.poolID, h.investor)
	if req.Claimable.Int64() != 1_000 || req.ClaimableAssets.Int64() != 1_000 {
		t.Fatalf("expected claimable untouched, got %+v", req)
	}
	if got := h.pool().LockedShares.Int64(); got != 1_000 {
		t.Fatalf("expected locked shares untouched, got %d", got)
	}
}

func TestPersistenceFailureCompensatesTransfers(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)

	h.store.setFail(true)
	err := h.engine.RequestDeposit(h.ctx, h.investor, h.poolID, big.NewInt(1_000), h.investor, h.investor)
	requireErr(t, err, errBoom)
	if got := h.balance(h.investor); got != 1_000 {
		t.Fatalf("expected refund after failed commit, got %d", got)
	}
	if got := h.balance(h.vault); got != 0 {
		t.Fatalf("expected empty vault, got %d", got)
	}
	if got := h.pool().PendingDeposits.Sign(); got != 0 {
		t.Fatalf("expected pending unchanged")
	}
}

func TestEventsFollowCommit(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(openSettings())
	h.fund(h.investor, 1_000)
	h.resetEvents()

	h.invest(h.investor, 1_000)
	want := []string{
		events.TypeDepositRequested,
		events.TypeDepositClaimable,
		events.TypeDeposit,
		events.TypeTokenSupply,
	}
	got := h.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
