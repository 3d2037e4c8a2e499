package loans

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"thurman/crypto"
	nativecommon "thurman/native/common"
)

var (
	ErrInvalidTerms     = errors.New("loan book: invalid terms")
	ErrLoanNotFound     = errors.New("loan book: loan not found")
	ErrLoanRepaid       = errors.New("loan book: loan already repaid")
	ErrInvalidRepayment = errors.New("loan book: repayment must be positive")
)

// Book owns the loan records of a single pool. It is not safe for concurrent
// use; the pool engine serializes access.
type Book struct {
	loans map[crypto.Address][]*Loan
}

func NewBook() *Book {
	return &Book{loans: make(map[crypto.Address][]*Loan)}
}

// NextID returns the id the next loan for borrower will receive.
func (b *Book) NextID(borrower crypto.Address) uint64 {
	return uint64(len(b.loans[borrower]))
}

// ValidateTerms checks the origination preconditions that do not depend on
// pool state.
func ValidateTerms(terms Terms) error {
	if terms.Borrower.IsZero() {
		return fmt.Errorf("%w: borrower required", ErrInvalidTerms)
	}
	if terms.Principal == nil || terms.Principal.Sign() <= 0 {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidTerms)
	}
	if terms.TermMonths == 0 {
		return fmt.Errorf("%w: term must be at least one month", ErrInvalidTerms)
	}
	if terms.InterestRate != nil && terms.InterestRate.Sign() < 0 {
		return fmt.Errorf("%w: negative interest rate", ErrInvalidTerms)
	}
	if terms.RetentionRate != nil && (terms.RetentionRate.Sign() < 0 || terms.RetentionRate.Cmp(nativecommon.Wad) > 0) {
		return fmt.Errorf("%w: retention rate out of range", ErrInvalidTerms)
	}
	return nil
}

// Originate records a new loan with Outstanding equal to Principal.
func (b *Book) Originate(originator crypto.Address, terms Terms, now time.Time) (*Loan, error) {
	if err := ValidateTerms(terms); err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:            b.NextID(terms.Borrower),
		Originator:    originator,
		Borrower:      terms.Borrower,
		Principal:     copyInt(terms.Principal),
		Outstanding:   copyInt(terms.Principal),
		InterestRate:  copyInt(terms.InterestRate),
		TermMonths:    terms.TermMonths,
		RetentionRate: copyInt(terms.RetentionRate),
		TotalRepaid:   big.NewInt(0),
		OriginatedAt:  now.UTC(),
	}
	b.loans[terms.Borrower] = append(b.loans[terms.Borrower], loan)
	return loan.Clone(), nil
}

// Repay applies amount to the loan: min(amount, outstanding) reduces
// principal and any remainder is reported as yield.
func (b *Book) Repay(borrower crypto.Address, id uint64, amount *big.Int, now time.Time) (Application, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Application{}, ErrInvalidRepayment
	}
	loan, err := b.lookup(borrower, id)
	if err != nil {
		return Application{}, err
	}
	if loan.Repaid() {
		return Application{}, fmt.Errorf("%w: borrower %s loan %d", ErrLoanRepaid, borrower, id)
	}
	principal := nativecommon.MinInt(amount, loan.Outstanding)
	yield := new(big.Int).Sub(amount, principal)

	loan.Outstanding.Sub(loan.Outstanding, principal)
	loan.TotalRepaid.Add(loan.TotalRepaid, amount)
	if loan.Outstanding.Sign() == 0 {
		loan.RepaidAt = now.UTC()
	}
	return Application{
		Principal:   principal,
		Yield:       yield,
		Outstanding: new(big.Int).Set(loan.Outstanding),
	}, nil
}

func (b *Book) lookup(borrower crypto.Address, id uint64) (*Loan, error) {
	list := b.loans[borrower]
	if id >= uint64(len(list)) {
		return nil, fmt.Errorf("%w: borrower %s loan %d", ErrLoanNotFound, borrower, id)
	}
	return list[id], nil
}

// Get returns a copy of the loan.
func (b *Book) Get(borrower crypto.Address, id uint64) (*Loan, error) {
	loan, err := b.lookup(borrower, id)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// Loans returns copies of every loan for borrower in id order.
func (b *Book) Loans(borrower crypto.Address) []*Loan {
	list := b.loans[borrower]
	out := make([]*Loan, len(list))
	for i, loan := range list {
		out[i] = loan.Clone()
	}
	return out
}

// All returns copies of every loan ordered by borrower then id.
func (b *Book) All() []*Loan {
	borrowers := make([]crypto.Address, 0, len(b.loans))
	for borrower := range b.loans {
		borrowers = append(borrowers, borrower)
	}
	sort.Slice(borrowers, func(i, j int) bool {
		return bytes.Compare(borrowers[i][:], borrowers[j][:]) < 0
	})
	var out []*Loan
	for _, borrower := range borrowers {
		out = append(out, b.Loans(borrower)...)
	}
	return out
}

// Count returns the total number of loans in the book.
func (b *Book) Count() int {
	n := 0
	for _, list := range b.loans {
		n += len(list)
	}
	return n
}

func (b *Book) Clone() *Book {
	out := NewBook()
	for borrower, list := range b.loans {
		copied := make([]*Loan, len(list))
		for i, loan := range list {
			copied[i] = loan.Clone()
		}
		out.loans[borrower] = copied
	}
	return out
}

// FromLoans rebuilds a book from persisted records. Each borrower's ids must
// be contiguous from zero.
func FromLoans(records []*Loan) (*Book, error) {
	book := NewBook()
	for _, loan := range records {
		if loan == nil {
			continue
		}
		if loan.ID != book.NextID(loan.Borrower) {
			return nil, fmt.Errorf("loan book: borrower %s loan %d out of sequence", loan.Borrower, loan.ID)
		}
		book.loans[loan.Borrower] = append(book.loans[loan.Borrower], loan.Clone())
	}
	return book, nil
}
