package loans

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"thurman/crypto"
	nativecommon "thurman/native/common"
)

func makeAddress(prefix, suffix byte) crypto.Address {
	var a crypto.Address
	a[0] = prefix
	a[19] = suffix
	return a
}

func pct(n int64) *big.Int {
	return new(big.Int).Div(new(big.Int).Mul(big.NewInt(n), nativecommon.Wad), big.NewInt(100))
}

func TestOriginateAssignsPerBorrowerIDs(t *testing.T) {
	book := NewBook()
	originator := makeAddress(0x10, 0x01)
	alice := makeAddress(0x20, 0x01)
	bob := makeAddress(0x20, 0x02)
	now := time.Unix(1_700_000_000, 0)

	for i, borrower := range []crypto.Address{alice, alice, bob, alice} {
		loan, err := book.Originate(originator, Terms{Borrower: borrower, Principal: big.NewInt(100), TermMonths: 12}, now)
		if err != nil {
			t.Fatalf("originate %d: %v", i, err)
		}
		want := map[int]uint64{0: 0, 1: 1, 2: 0, 3: 2}[i]
		if loan.ID != want {
			t.Fatalf("entry %d: expected id %d, got %d", i, want, loan.ID)
		}
	}
	if book.Count() != 4 || book.NextID(alice) != 3 || book.NextID(bob) != 1 {
		t.Fatalf("unexpected book counters")
	}
}

func TestOriginateValidatesTerms(t *testing.T) {
	book := NewBook()
	borrower := makeAddress(0x20, 0x01)
	cases := []Terms{
		{Borrower: borrower, Principal: big.NewInt(0), TermMonths: 12},
		{Borrower: borrower, Principal: big.NewInt(10), TermMonths: 0},
		{Principal: big.NewInt(10), TermMonths: 1},
		{Borrower: borrower, Principal: big.NewInt(10), TermMonths: 1, RetentionRate: pct(101)},
		{Borrower: borrower, Principal: big.NewInt(10), TermMonths: 1, InterestRate: big.NewInt(-1)},
	}
	for i, terms := range cases {
		if _, err := book.Originate(makeAddress(0x10, 0x01), terms, time.Now()); !errors.Is(err, ErrInvalidTerms) {
			t.Fatalf("case %d: expected invalid terms, got %v", i, err)
		}
	}
	if book.Count() != 0 {
		t.Fatalf("invalid terms must not create loans")
	}
}

func TestRepaySplitsPrincipalAndYield(t *testing.T) {
	book := NewBook()
	borrower := makeAddress(0x20, 0x01)
	start := time.Unix(1_700_000_000, 0)
	if _, err := book.Originate(makeAddress(0x10, 0x01), Terms{Borrower: borrower, Principal: big.NewInt(4000), TermMonths: 6}, start); err != nil {
		t.Fatalf("originate: %v", err)
	}

	app, err := book.Repay(borrower, 0, big.NewInt(1000), start)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if app.Principal.Int64() != 1000 || app.Yield.Sign() != 0 || app.Outstanding.Int64() != 3000 {
		t.Fatalf("unexpected application %+v", app)
	}

	end := start.Add(time.Hour)
	app, err = book.Repay(borrower, 0, big.NewInt(3400), end)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if app.Principal.Int64() != 3000 || app.Yield.Int64() != 400 || app.Outstanding.Sign() != 0 {
		t.Fatalf("unexpected application %+v", app)
	}
	loan, err := book.Get(borrower, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !loan.Repaid() || !loan.RepaidAt.Equal(end.UTC()) || loan.TotalRepaid.Int64() != 4400 {
		t.Fatalf("unexpected loan state %+v", loan)
	}

	if _, err := book.Repay(borrower, 0, big.NewInt(1), end); !errors.Is(err, ErrLoanRepaid) {
		t.Fatalf("expected repaid error, got %v", err)
	}
	if _, err := book.Repay(borrower, 5, big.NewInt(1), end); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	book := NewBook()
	borrower := makeAddress(0x20, 0x01)
	if _, err := book.Originate(makeAddress(0x10, 0x01), Terms{Borrower: borrower, Principal: big.NewInt(50), TermMonths: 3}, time.Now()); err != nil {
		t.Fatalf("originate: %v", err)
	}
	clone := book.Clone()
	if _, err := clone.Repay(borrower, 0, big.NewInt(50), time.Now()); err != nil {
		t.Fatalf("repay clone: %v", err)
	}
	loan, _ := book.Get(borrower, 0)
	if loan.Outstanding.Int64() != 50 {
		t.Fatalf("clone mutation leaked into original")
	}
}

func TestFromLoansRejectsGaps(t *testing.T) {
	borrower := makeAddress(0x20, 0x01)
	records := []*Loan{{ID: 1, Borrower: borrower, Principal: big.NewInt(1), Outstanding: big.NewInt(1)}}
	if _, err := FromLoans(records); err == nil {
		t.Fatalf("expected sequence error")
	}
	records[0].ID = 0
	book, err := FromLoans(records)
	if err != nil {
		t.Fatalf("from loans: %v", err)
	}
	if len(book.All()) != 1 {
		t.Fatalf("expected one loan")
	}
}

func TestInterestViews(t *testing.T) {
	start := time.Unix(1_700_000_000, 0).UTC()
	loan := &Loan{
		Principal:     big.NewInt(1_200_000),
		Outstanding:   big.NewInt(1_200_000),
		InterestRate:  pct(10),
		RetentionRate: pct(5),
		TermMonths:    6,
		OriginatedAt:  start,
	}
	if got := ScheduledInterest(loan); got.Int64() != 60_000 {
		t.Fatalf("scheduled interest: got %s", got)
	}
	if got := RetainedAmount(loan); got.Int64() != 60_000 {
		t.Fatalf("retained amount: got %s", got)
	}
	if got := AccruedInterest(loan, start); got.Sign() != 0 {
		t.Fatalf("no interest at origination, got %s", got)
	}
	halfYear := start.Add(time.Duration(secondsPerYear/2) * time.Second)
	if got := AccruedInterest(loan, halfYear); got.Int64() != 60_000 {
		t.Fatalf("accrued at maturity: got %s", got)
	}
	if got := AccruedInterest(loan, halfYear.Add(90*24*time.Hour)); got.Int64() != 60_000 {
		t.Fatalf("accrual should stop at maturity, got %s", got)
	}
}
