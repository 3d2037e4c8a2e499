package events

import (
	"math/big"
	"strconv"

	"thurman/crypto"
)

const (
	TypeLoanInitialized         = "loan.initialized"
	TypeBatchLoanInitialized    = "loan.batch_initialized"
	TypeLoanRepaid              = "loan.repaid"
	TypeBatchRepaymentCompleted = "loan.batch_repaid"
	TypeSaleProceedsTransferred = "pool.sale_proceeds_transferred"
	TypeProtocolFeesWithdrawn   = "pool.protocol_fees_withdrawn"
)

type LoanInitialized struct {
	PoolID     uint64
	Originator crypto.Address
	LoanID     uint64
	Borrower   crypto.Address
	Principal  *big.Int
}

func (LoanInitialized) EventType() string { return TypeLoanInitialized }

func (e LoanInitialized) Record() *Record {
	return &Record{Type: TypeLoanInitialized, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"originator": formatAddress(e.Originator),
		"loanId":     strconv.FormatUint(e.LoanID, 10),
		"borrower":   formatAddress(e.Borrower),
		"principal":  formatAmount(e.Principal),
	}}
}

// BatchLoanInitialized lists the originated loans as parallel slices in input
// order.
type BatchLoanInitialized struct {
	PoolID     uint64
	Originator crypto.Address
	LoanIDs    []uint64
	Borrowers  []crypto.Address
	Principals []*big.Int
}

func (BatchLoanInitialized) EventType() string { return TypeBatchLoanInitialized }

func (e BatchLoanInitialized) Record() *Record {
	return &Record{Type: TypeBatchLoanInitialized, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"originator": formatAddress(e.Originator),
		"loanIds":    joinIDs(e.LoanIDs),
		"borrowers":  joinAddresses(e.Borrowers),
		"principals": joinAmounts(e.Principals),
	}}
}

type LoanRepaid struct {
	PoolID      uint64
	Borrower    crypto.Address
	LoanID      uint64
	Payer       crypto.Address
	Amount      *big.Int
	Principal   *big.Int
	Yield       *big.Int
	Outstanding *big.Int
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Record() *Record {
	return &Record{Type: TypeLoanRepaid, Attributes: map[string]string{
		"pool":        formatPool(e.PoolID),
		"borrower":    formatAddress(e.Borrower),
		"loanId":      strconv.FormatUint(e.LoanID, 10),
		"payer":       formatAddress(e.Payer),
		"amount":      formatAmount(e.Amount),
		"principal":   formatAmount(e.Principal),
		"yield":       formatAmount(e.Yield),
		"outstanding": formatAmount(e.Outstanding),
	}}
}

type BatchRepaymentCompleted struct {
	PoolID    uint64
	Payer     crypto.Address
	Count     int
	Total     *big.Int
	Principal *big.Int
	Yield     *big.Int
	Fee       *big.Int
}

func (BatchRepaymentCompleted) EventType() string { return TypeBatchRepaymentCompleted }

func (e BatchRepaymentCompleted) Record() *Record {
	return &Record{Type: TypeBatchRepaymentCompleted, Attributes: map[string]string{
		"pool":      formatPool(e.PoolID),
		"payer":     formatAddress(e.Payer),
		"count":     strconv.Itoa(e.Count),
		"total":     formatAmount(e.Total),
		"principal": formatAmount(e.Principal),
		"yield":     formatAmount(e.Yield),
		"fee":       formatAmount(e.Fee),
	}}
}

type SaleProceedsTransferred struct {
	PoolID     uint64
	Originator crypto.Address
	Amount     *big.Int
}

func (SaleProceedsTransferred) EventType() string { return TypeSaleProceedsTransferred }

func (e SaleProceedsTransferred) Record() *Record {
	return &Record{Type: TypeSaleProceedsTransferred, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"originator": formatAddress(e.Originator),
		"amount":     formatAmount(e.Amount),
	}}
}

type ProtocolFeesWithdrawn struct {
	PoolID    uint64
	Recipient crypto.Address
	Amount    *big.Int
}

func (ProtocolFeesWithdrawn) EventType() string { return TypeProtocolFeesWithdrawn }

func (e ProtocolFeesWithdrawn) Record() *Record {
	return &Record{Type: TypeProtocolFeesWithdrawn, Attributes: map[string]string{
		"pool":      formatPool(e.PoolID),
		"recipient": formatAddress(e.Recipient),
		"amount":    formatAmount(e.Amount),
	}}
}
