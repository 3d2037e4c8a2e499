package loans

import (
	"math/big"
	"time"

	nativecommon "thurman/native/common"
)

const (
	secondsPerYear = 365 * 24 * 60 * 60
	monthsPerYear  = 12
)

// ScheduledInterest is the simple, amortization-free interest owed over the
// full term: principal * rate * termMonths / 12. Rounds down.
func ScheduledInterest(l *Loan) *big.Int {
	if l == nil || l.Principal == nil || l.InterestRate == nil || l.InterestRate.Sign() == 0 {
		return big.NewInt(0)
	}
	interest := new(big.Rat).SetFrac(l.InterestRate, nativecommon.Wad)
	interest.Mul(interest, new(big.Rat).SetInt(l.Principal))
	interest.Mul(interest, big.NewRat(int64(l.TermMonths), monthsPerYear))
	return floorRat(interest)
}

// AccruedInterest is the simple interest accrued on the outstanding principal
// between origination and now, capped at the end of the term. Rounds down.
func AccruedInterest(l *Loan, now time.Time) *big.Int {
	if l == nil || l.Outstanding == nil || l.Outstanding.Sign() == 0 || l.InterestRate == nil || l.InterestRate.Sign() == 0 {
		return big.NewInt(0)
	}
	elapsed := now.Sub(l.OriginatedAt)
	if elapsed <= 0 {
		return big.NewInt(0)
	}
	termEnd := TermEnd(l)
	if now.After(termEnd) {
		elapsed = termEnd.Sub(l.OriginatedAt)
	}
	seconds := int64(elapsed / time.Second)
	interest := new(big.Rat).SetFrac(l.InterestRate, nativecommon.Wad)
	interest.Mul(interest, new(big.Rat).SetInt(l.Outstanding))
	interest.Mul(interest, big.NewRat(seconds, secondsPerYear))
	return floorRat(interest)
}

// TermEnd returns the maturity of the loan using 1/12 of a 365 day year per
// month.
func TermEnd(l *Loan) time.Time {
	if l == nil {
		return time.Time{}
	}
	termSeconds := int64(l.TermMonths) * secondsPerYear / monthsPerYear
	return l.OriginatedAt.Add(time.Duration(termSeconds) * time.Second)
}

// RetainedAmount is principal * retentionRate, rounded down.
func RetainedAmount(l *Loan) *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	return nativecommon.MulDiv(l.Principal, l.RetentionRate, nativecommon.Wad)
}

func floorRat(r *big.Rat) *big.Int {
	if r.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(r.Num(), r.Denom())
}
