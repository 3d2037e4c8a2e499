package loans

import (
	"math/big"
	"time"

	"thurman/crypto"
)

// Terms describes a loan to originate. Rates are 1e18 fixed-point fractions.
type Terms struct {
	Borrower      crypto.Address
	RetentionRate *big.Int
	Principal     *big.Int
	TermMonths    uint32
	InterestRate  *big.Int
}

// Loan is a single origination, addressed by (Borrower, ID).
type Loan struct {
	// ID is scoped to the borrower and assigned sequentially from zero.
	ID         uint64
	Originator crypto.Address
	Borrower   crypto.Address
	// Principal is fixed at origination.
	Principal *big.Int
	// Outstanding decreases as repayments are applied to principal.
	Outstanding *big.Int
	// InterestRate is the annualised simple rate.
	InterestRate *big.Int
	TermMonths   uint32
	// RetentionRate is the share of principal held back as reserve.
	RetentionRate *big.Int
	// TotalRepaid counts every unit paid against the loan, yield included.
	TotalRepaid  *big.Int
	OriginatedAt time.Time
	// RepaidAt is zero until Outstanding reaches zero.
	RepaidAt time.Time
}

// Repaid reports whether the loan has no outstanding principal. Repaid loans
// are immutable.
func (l *Loan) Repaid() bool {
	return l != nil && l.Outstanding != nil && l.Outstanding.Sign() == 0
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Principal = copyInt(l.Principal)
	clone.Outstanding = copyInt(l.Outstanding)
	clone.InterestRate = copyInt(l.InterestRate)
	clone.RetentionRate = copyInt(l.RetentionRate)
	clone.TotalRepaid = copyInt(l.TotalRepaid)
	return &clone
}

// Application is the outcome of applying one repayment to a loan.
type Application struct {
	Principal   *big.Int
	Yield       *big.Int
	Outstanding *big.Int
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
