package pool

import (
	"math/big"

	"thurman/crypto"
	nativecommon "thurman/native/common"
)

// earned returns floor(balance * (cumulative - index) / 1e18).
func earned(balance, index, cumulative *big.Int) *big.Int {
	if balance == nil || balance.Sign() == 0 {
		return big.NewInt(0)
	}
	delta := new(big.Int).Sub(cumulative, index)
	if delta.Sign() <= 0 {
		return big.NewInt(0)
	}
	return nativecommon.MulDiv(balance, delta, nativecommon.Wad)
}

// settleHolder folds a holder's unrealised income into Accrued and moves the
// checkpoint to the current accumulator. It must run before any change to the
// holder's share balance.
func (s *State) settleHolder(holder crypto.Address) *Checkpoint {
	cp, ok := s.Checkpoints[holder]
	if !ok {
		cp = &Checkpoint{Index: new(big.Int).Set(s.Cumulative), Accrued: big.NewInt(0)}
		s.Checkpoints[holder] = cp
		return cp
	}
	cp.Accrued.Add(cp.Accrued, earned(s.Shares.BalanceOf(holder), cp.Index, s.Cumulative))
	cp.Index.Set(s.Cumulative)
	return cp
}

// settleRedeem brings the escrowed pending shares of a redeem request up to
// the current accumulator.
func (s *State) settleRedeem(req *RedeemRequest) {
	req.Entitlement.Add(req.Entitlement, earned(req.Pending, req.Index, s.Cumulative))
	req.Index.Set(s.Cumulative)
}

// eligibleShares are the shares that participate in new distributions: every
// outstanding share except those already locked for redemption.
func (s *State) eligibleShares() *big.Int {
	eligible := s.Shares.TotalSupply()
	eligible.Sub(eligible, s.LockedShares)
	if eligible.Sign() < 0 {
		return big.NewInt(0)
	}
	return eligible
}

// marginFeeOn returns the protocol fee on yield, rounded up.
func (s *State) marginFeeOn(yield *big.Int) *big.Int {
	if yield == nil || yield.Sign() <= 0 || s.MarginFee.Sign() == 0 {
		return big.NewInt(0)
	}
	return nativecommon.MulDivUp(yield, s.MarginFee, nativecommon.Wad)
}

// distribute adds proceeds, together with anything previously held back, to
// the accumulator. It returns the accumulator increase. When no shares are
// eligible the whole amount stays undistributed.
func (s *State) distribute(proceeds *big.Int) *big.Int {
	total := new(big.Int).Add(s.Undistributed, proceeds)
	eligible := s.eligibleShares()
	if total.Sign() == 0 || eligible.Sign() == 0 {
		s.Undistributed = total
		return big.NewInt(0)
	}
	delta := nativecommon.MulDiv(total, nativecommon.Wad, eligible)
	allocated := nativecommon.MulDiv(delta, eligible, nativecommon.Wad)
	s.Cumulative.Add(s.Cumulative, delta)
	s.Undistributed = total.Sub(total, allocated)
	return delta
}

// entitlementOf reports the income attributable to holder right now without
// mutating state.
func (s *State) entitlementOf(holder crypto.Address) *big.Int {
	cp, ok := s.Checkpoints[holder]
	if !ok {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(cp.Accrued)
	return out.Add(out, earned(s.Shares.BalanceOf(holder), cp.Index, s.Cumulative))
}

// pendingEntitlement reports the income of a redeem request's pending shares.
func (s *State) pendingEntitlement(req *RedeemRequest) *big.Int {
	out := new(big.Int).Set(req.Entitlement)
	return out.Add(out, earned(req.Pending, req.Index, s.Cumulative))
}

// proRata returns floor(total * part / whole), or total when part == whole.
func proRata(total, part, whole *big.Int) *big.Int {
	if part.Cmp(whole) >= 0 {
		return new(big.Int).Set(total)
	}
	return nativecommon.MulDiv(total, part, whole)
}
