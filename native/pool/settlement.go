package pool

import (
	"context"
	"fmt"
	"math/big"

	"thurman/core/events"
	"thurman/crypto"
)

func defaultTo(addr, fallback crypto.Address) crypto.Address {
	if addr.IsZero() {
		return fallback
	}
	return addr
}

// authorizeController checks that caller may act for controller.
func authorizeController(st *State, caller, controller crypto.Address) error {
	if !st.isOperator(controller, caller) {
		return fmt.Errorf("%w: %s for controller %s", ErrNotAuthorizedOperator, caller, controller)
	}
	return nil
}

// checkControllerBinding enforces that a request is filed for the owner
// unless the named controller delegated to the caller.
func checkControllerBinding(st *State, caller, controller, owner crypto.Address) error {
	if controller != owner && !st.isOperator(controller, caller) {
		return fmt.Errorf("%w: controller %s differs from owner %s", ErrInvalidController, controller, owner)
	}
	return nil
}

func rejectVault(st *State, accounts ...crypto.Address) error {
	for _, acct := range accounts {
		if acct == st.Vault || acct.IsZero() {
			return fmt.Errorf("%w: %s", ErrInvalidReceiver, acct)
		}
	}
	return nil
}

// SetOperator toggles whether delegate may act for the caller in this pool.
func (e *Engine) SetOperator(ctx context.Context, caller crypto.Address, poolID uint64, delegate crypto.Address, approved bool) error {
	if delegate == caller || delegate.IsZero() {
		return fmt.Errorf("%w: %s", ErrInvalidOperator, delegate)
	}
	return e.execute(ctx, "setOperator", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classPauseOnly); err != nil {
			return err
		}
		if approved {
			inner, ok := st.Operators[caller]
			if !ok {
				inner = make(map[crypto.Address]bool)
				st.Operators[caller] = inner
			}
			inner[delegate] = true
		} else if inner, ok := st.Operators[caller]; ok {
			delete(inner, delegate)
			if len(inner) == 0 {
				delete(st.Operators, caller)
			}
		}
		tx.emit(events.OperatorSet{PoolID: poolID, Controller: caller, Operator: delegate, Approved: approved})
		return nil
	})
}

// ApproveShares lets spender file redemption requests against the caller's
// shares up to amount.
func (e *Engine) ApproveShares(ctx context.Context, caller crypto.Address, poolID uint64, spender crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: allowance must not be negative", ErrInvalidAmount)
	}
	return e.execute(ctx, "approveShares", poolID, func(tx *txn) error {
		if err := e.guard(tx.state, classPauseOnly); err != nil {
			return err
		}
		if err := tx.state.Shares.Approve(caller, spender, amount); err != nil {
			return err
		}
		tx.emit(events.SharesApproved{PoolID: poolID, Owner: caller, Spender: spender, Amount: new(big.Int).Set(amount)})
		return nil
	})
}

// RequestDeposit moves assets from owner into the pool vault and records
// them as pending for controller. Zero owner defaults to the caller and zero
// controller defaults to the owner.
func (e *Engine) RequestDeposit(ctx context.Context, caller crypto.Address, poolID uint64, assets *big.Int, controller, owner crypto.Address) error {
	owner = defaultTo(owner, caller)
	controller = defaultTo(controller, owner)
	return e.execute(ctx, "requestDeposit", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classDeposit); err != nil {
			return err
		}
		if caller != owner && !st.isOperator(owner, caller) {
			return fmt.Errorf("%w: %s for owner %s", ErrNotAuthorizedOperator, caller, owner)
		}
		if err := checkControllerBinding(st, caller, controller, owner); err != nil {
			return err
		}
		if err := rejectVault(st, owner, controller); err != nil {
			return err
		}
		if err := positive(assets); err != nil {
			return err
		}
		cfg := st.Settings
		if cfg.MinDepositAmount != nil && assets.Cmp(cfg.MinDepositAmount) < 0 {
			return fmt.Errorf("%w: %s below minimum deposit %s", ErrInvalidAmount, assets, cfg.MinDepositAmount)
		}
		if bounded(cfg.MaxDepositAmount) && assets.Cmp(cfg.MaxDepositAmount) > 0 {
			return fmt.Errorf("%w: %s above maximum deposit %s", ErrCapExceeded, assets, cfg.MaxDepositAmount)
		}
		if bounded(cfg.DepositCap) {
			projected := new(big.Int).Add(st.TotalDeposits, st.PendingDeposits)
			projected.Add(projected, assets)
			if projected.Cmp(cfg.DepositCap) > 0 {
				return fmt.Errorf("%w: %s would exceed cap %s", ErrCapExceeded, projected, cfg.DepositCap)
			}
		}

		req := st.depositRequest(controller)
		req.Pending.Add(req.Pending, assets)
		st.PendingDeposits.Add(st.PendingDeposits, assets)
		tx.emit(events.DepositRequested{PoolID: poolID, Controller: controller, Owner: owner, Assets: new(big.Int).Set(assets)})
		return tx.move(owner, st.Vault, assets)
	})
}

// FulfillDeposit moves assets of controller's pending deposit to claimable.
// Shares are reserved 1:1.
func (e *Engine) FulfillDeposit(ctx context.Context, caller crypto.Address, poolID uint64, assets *big.Int, controller crypto.Address) error {
	if err := e.requireOperator(caller, "fulfillDeposit"); err != nil {
		return err
	}
	return e.execute(ctx, "fulfillDeposit", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classDeposit); err != nil {
			return err
		}
		if err := positive(assets); err != nil {
			return err
		}
		req, ok := st.DepositRequests[controller]
		if !ok || req.Pending.Cmp(assets) < 0 {
			return fmt.Errorf("%w: controller %s", ErrInsufficientPending, controller)
		}
		req.Pending.Sub(req.Pending, assets)
		req.Claimable.Add(req.Claimable, assets)
		shares := new(big.Int).Set(assets)
		tx.emit(events.DepositClaimable{PoolID: poolID, Controller: controller, Assets: new(big.Int).Set(assets), Shares: shares})
		return nil
	})
}

// Deposit claims fulfilled assets and mints the matching shares to receiver.
func (e *Engine) Deposit(ctx context.Context, caller crypto.Address, poolID uint64, assets *big.Int, receiver, controller crypto.Address) error {
	controller = defaultTo(controller, caller)
	receiver = defaultTo(receiver, controller)
	return e.execute(ctx, "deposit", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classDeposit); err != nil {
			return err
		}
		if err := authorizeController(st, caller, controller); err != nil {
			return err
		}
		if err := rejectVault(st, receiver); err != nil {
			return err
		}
		if err := positive(assets); err != nil {
			return err
		}
		req, ok := st.DepositRequests[controller]
		if !ok || req.Claimable.Cmp(assets) < 0 {
			return fmt.Errorf("%w: controller %s", ErrInsufficientClaimable, controller)
		}
		req.Claimable.Sub(req.Claimable, assets)
		st.PendingDeposits.Sub(st.PendingDeposits, assets)

		shares := new(big.Int).Set(assets)
		st.settleHolder(receiver)
		if err := st.Shares.Mint(receiver, shares); err != nil {
			return err
		}
		st.TotalDeposits.Add(st.TotalDeposits, assets)
		st.prune(controller)

		tx.emit(events.Deposit{PoolID: poolID, Controller: controller, Receiver: receiver, Assets: new(big.Int).Set(assets), Shares: shares})
		tx.emit(events.TokenSupply{PoolID: poolID, Token: st.Shares.Symbol, Total: st.Shares.TotalSupply(), Delta: shares, Reason: events.SupplyReasonMint})
		return nil
	})
}

// CancelDepositRequest returns controller's pending (unfulfilled) deposit
// assets to receiver.
func (e *Engine) CancelDepositRequest(ctx context.Context, caller crypto.Address, poolID uint64, controller, receiver crypto.Address) error {
	controller = defaultTo(controller, caller)
	receiver = defaultTo(receiver, controller)
	return e.execute(ctx, "cancelDepositRequest", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classPauseOnly); err != nil {
			return err
		}
		if err := authorizeController(st, caller, controller); err != nil {
			return err
		}
		if err := rejectVault(st, receiver); err != nil {
			return err
		}
		req, ok := st.DepositRequests[controller]
		if !ok || req.Pending.Sign() == 0 {
			return fmt.Errorf("%w: controller %s has no pending deposit", ErrInsufficientPending, controller)
		}
		assets := new(big.Int).Set(req.Pending)
		req.Pending.SetInt64(0)
		st.PendingDeposits.Sub(st.PendingDeposits, assets)
		st.prune(controller)
		tx.emit(events.DepositRequestCancelled{PoolID: poolID, Controller: controller, Receiver: receiver, Assets: assets})
		return tx.move(st.Vault, receiver, assets)
	})
}

// RequestRedeem escrows shares of owner in the vault for controller. The
// owner's accrued distribution income moves pro rata with the shares.
func (e *Engine) RequestRedeem(ctx context.Context, caller crypto.Address, poolID uint64, shares *big.Int, controller, owner crypto.Address) error {
	owner = defaultTo(owner, caller)
	controller = defaultTo(controller, owner)
	return e.execute(ctx, "requestRedeem", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classWithdrawal); err != nil {
			return err
		}
		if err := positive(shares); err != nil {
			return err
		}
		if err := rejectVault(st, owner, controller); err != nil {
			return err
		}
		if caller != owner && !st.isOperator(owner, caller) {
			if err := st.Shares.SpendAllowance(owner, caller, shares); err != nil {
				return fmt.Errorf("%w: %s for owner %s", ErrNotAuthorizedOperator, caller, owner)
			}
		}
		if err := checkControllerBinding(st, caller, controller, owner); err != nil {
			return err
		}
		balance := st.Shares.BalanceOf(owner)
		if balance.Cmp(shares) < 0 {
			return fmt.Errorf("%w: owner %s holds %s", ErrInsufficientShares, owner, balance)
		}

		cp := st.settleHolder(owner)
		carried := proRata(cp.Accrued, shares, balance)
		cp.Accrued.Sub(cp.Accrued, carried)

		req := st.redeemRequest(controller)
		st.settleRedeem(req)
		req.Pending.Add(req.Pending, shares)
		req.Entitlement.Add(req.Entitlement, carried)
		if err := st.Shares.Transfer(owner, st.Vault, shares); err != nil {
			return err
		}
		st.prune(owner)
		tx.emit(events.RedeemRequested{PoolID: poolID, Controller: controller, Owner: owner, Shares: new(big.Int).Set(shares)})
		return nil
	})
}

// FulfillRedeem locks the asset value of shares of controller's pending
// redemption: the shares plus their pro-rata distribution income as of now.
// Locked shares stop earning distributions.
func (e *Engine) FulfillRedeem(ctx context.Context, caller crypto.Address, poolID uint64, shares *big.Int, controller crypto.Address) error {
	if err := e.requireOperator(caller, "fulfillRedeem"); err != nil {
		return err
	}
	return e.execute(ctx, "fulfillRedeem", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classWithdrawal); err != nil {
			return err
		}
		if err := positive(shares); err != nil {
			return err
		}
		req, ok := st.RedeemRequests[controller]
		if !ok || req.Pending.Cmp(shares) < 0 {
			return fmt.Errorf("%w: controller %s", ErrInsufficientPending, controller)
		}
		st.settleRedeem(req)
		carried := proRata(req.Entitlement, shares, req.Pending)
		req.Entitlement.Sub(req.Entitlement, carried)
		req.Pending.Sub(req.Pending, shares)
		req.Claimable.Add(req.Claimable, shares)

		assets := new(big.Int).Add(shares, carried)
		req.ClaimableAssets.Add(req.ClaimableAssets, assets)
		st.LockedShares.Add(st.LockedShares, shares)
		tx.emit(events.RedeemClaimable{PoolID: poolID, Controller: controller, Shares: new(big.Int).Set(shares), Assets: assets})
		return nil
	})
}

// Redeem burns claimable escrowed shares and pays their locked asset value to
// receiver.
func (e *Engine) Redeem(ctx context.Context, caller crypto.Address, poolID uint64, shares *big.Int, receiver, controller crypto.Address) error {
	controller = defaultTo(controller, caller)
	receiver = defaultTo(receiver, controller)
	return e.execute(ctx, "redeem", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classWithdrawal); err != nil {
			return err
		}
		if err := authorizeController(st, caller, controller); err != nil {
			return err
		}
		if err := rejectVault(st, receiver); err != nil {
			return err
		}
		if err := positive(shares); err != nil {
			return err
		}
		req, ok := st.RedeemRequests[controller]
		if !ok || req.Claimable.Cmp(shares) < 0 {
			return fmt.Errorf("%w: controller %s", ErrInsufficientClaimable, controller)
		}
		if st.TotalDeposits.Cmp(shares) < 0 {
			return fmt.Errorf("pool engine: redeem of %s shares exceeds total deposits %s", shares, st.TotalDeposits)
		}
		assets := proRata(req.ClaimableAssets, shares, req.Claimable)
		req.Claimable.Sub(req.Claimable, shares)
		req.ClaimableAssets.Sub(req.ClaimableAssets, assets)
		st.LockedShares.Sub(st.LockedShares, shares)
		if err := st.Shares.Burn(st.Vault, shares); err != nil {
			return fmt.Errorf("pool engine: burn escrowed shares: %w", err)
		}
		st.TotalDeposits.Sub(st.TotalDeposits, shares)
		st.prune(controller)

		tx.emit(events.Withdraw{PoolID: poolID, Controller: controller, Receiver: receiver, Assets: assets, Shares: new(big.Int).Set(shares)})
		tx.emit(events.TokenSupply{PoolID: poolID, Token: st.Shares.Symbol, Total: st.Shares.TotalSupply(), Delta: new(big.Int).Set(shares), Reason: events.SupplyReasonBurn})
		return tx.move(st.Vault, receiver, assets)
	})
}

// CancelRedeemRequest returns controller's pending (unfulfilled) escrowed
// shares, with the income they earned, to receiver.
func (e *Engine) CancelRedeemRequest(ctx context.Context, caller crypto.Address, poolID uint64, controller, receiver crypto.Address) error {
	controller = defaultTo(controller, caller)
	receiver = defaultTo(receiver, controller)
	return e.execute(ctx, "cancelRedeemRequest", poolID, func(tx *txn) error {
		st := tx.state
		if err := e.guard(st, classPauseOnly); err != nil {
			return err
		}
		if err := authorizeController(st, caller, controller); err != nil {
			return err
		}
		if err := rejectVault(st, receiver); err != nil {
			return err
		}
		req, ok := st.RedeemRequests[controller]
		if !ok || req.Pending.Sign() == 0 {
			return fmt.Errorf("%w: controller %s has no pending redemption", ErrInsufficientPending, controller)
		}
		st.settleRedeem(req)
		shares := new(big.Int).Set(req.Pending)
		income := new(big.Int).Set(req.Entitlement)
		req.Pending.SetInt64(0)
		req.Entitlement.SetInt64(0)

		cp := st.settleHolder(receiver)
		if err := st.Shares.Transfer(st.Vault, receiver, shares); err != nil {
			return fmt.Errorf("pool engine: release escrowed shares: %w", err)
		}
		cp.Accrued.Add(cp.Accrued, income)
		st.prune(controller)
		tx.emit(events.RedeemRequestCancelled{PoolID: poolID, Controller: controller, Receiver: receiver, Shares: shares})
		return nil
	})
}
