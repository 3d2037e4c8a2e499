package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"thurman/crypto"
	nativecommon "thurman/native/common"
	"thurman/native/loans"
	"thurman/native/pool"
)

type loanTermsBody struct {
	Borrower      string `json:"borrower"`
	Principal     string `json:"principal"`
	TermMonths    uint32 `json:"termMonths"`
	InterestRate  string `json:"interestRate"`
	RetentionRate string `json:"retentionRate"`
}

func (b loanTermsBody) terms() (loans.Terms, error) {
	borrower, err := parseAddress("borrower", b.Borrower)
	if err != nil {
		return loans.Terms{}, err
	}
	principal, err := parseAmount("principal", b.Principal)
	if err != nil {
		return loans.Terms{}, err
	}
	rate, err := parseFraction("interestRate", b.InterestRate)
	if err != nil {
		return loans.Terms{}, err
	}
	retention, err := parseFraction("retentionRate", b.RetentionRate)
	if err != nil {
		return loans.Terms{}, err
	}
	return loans.Terms{
		Borrower:      borrower,
		Principal:     principal,
		TermMonths:    b.TermMonths,
		InterestRate:  rate,
		RetentionRate: retention,
	}, nil
}

type loanResponse struct {
	ID                uint64     `json:"id"`
	Originator        string     `json:"originator"`
	Borrower          string     `json:"borrower"`
	Principal         string     `json:"principal"`
	Outstanding       string     `json:"outstanding"`
	InterestRate      string     `json:"interestRate"`
	TermMonths        uint32     `json:"termMonths"`
	RetentionRate     string     `json:"retentionRate"`
	TotalRepaid       string     `json:"totalRepaid"`
	AccruedInterest   string     `json:"accruedInterest"`
	ScheduledInterest string     `json:"scheduledInterest"`
	Retained          string     `json:"retained"`
	OriginatedAt      time.Time  `json:"originatedAt"`
	MaturesAt         time.Time  `json:"maturesAt"`
	RepaidAt          *time.Time `json:"repaidAt,omitempty"`
}

func loanResponseOf(l *loans.Loan, now time.Time) loanResponse {
	resp := loanResponse{
		ID:                l.ID,
		Originator:        l.Originator.String(),
		Borrower:          l.Borrower.String(),
		Principal:         amountString(l.Principal),
		Outstanding:       amountString(l.Outstanding),
		InterestRate:      amountString(l.InterestRate),
		TermMonths:        l.TermMonths,
		RetentionRate:     amountString(l.RetentionRate),
		TotalRepaid:       amountString(l.TotalRepaid),
		AccruedInterest:   amountString(loans.AccruedInterest(l, now)),
		ScheduledInterest: amountString(loans.ScheduledInterest(l)),
		Retained:          amountString(loans.RetainedAmount(l)),
		OriginatedAt:      l.OriginatedAt.UTC(),
		MaturesAt:         loans.TermEnd(l).UTC(),
	}
	if !l.RepaidAt.IsZero() {
		repaid := l.RepaidAt.UTC()
		resp.RepaidAt = &repaid
	}
	return resp
}

func (s *Server) initLoan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Originator string `json:"originator"`
		loanTermsBody
	}
	s.mutate(w, r, "init_loan", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		originator, err := parseAddress("originator", body.Originator)
		if err != nil {
			return nil, err
		}
		terms, err := body.terms()
		if err != nil {
			return nil, err
		}
		loanID, err := s.engine.InitLoan(ctx, caller, id, terms, originator)
		if err != nil {
			return nil, err
		}
		return map[string]any{"loanId": loanID, "borrower": terms.Borrower.String()}, nil
	})
}

func (s *Server) batchInitLoan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Originator string          `json:"originator"`
		Loans      []loanTermsBody `json:"loans"`
	}
	s.mutate(w, r, "batch_init_loan", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		originator, err := parseAddress("originator", body.Originator)
		if err != nil {
			return nil, err
		}
		batch := make([]loans.Terms, 0, len(body.Loans))
		for i, entry := range body.Loans {
			terms, err := entry.terms()
			if err != nil {
				return nil, nativecommon.WrapBatch(i, err)
			}
			batch = append(batch, terms)
		}
		ids, err := s.engine.BatchInitLoan(ctx, caller, id, batch, originator)
		if err != nil {
			return nil, err
		}
		return map[string]any{"loanIds": ids}, nil
	})
}

type repaymentResponse struct {
	Total     string `json:"total"`
	Principal string `json:"principal"`
	Yield     string `json:"yield"`
	Fee       string `json:"fee"`
	PerShare  string `json:"perShare"`
}

func repaymentResponseOf(res pool.RepaymentResult) repaymentResponse {
	return repaymentResponse{
		Total:     amountString(res.Total),
		Principal: amountString(res.Principal),
		Yield:     amountString(res.Yield),
		Fee:       amountString(res.Fee),
		PerShare:  amountString(res.PerShare),
	}
}

type repaymentBody struct {
	Borrower string `json:"borrower"`
	LoanID   uint64 `json:"loanId"`
	Amount   string `json:"amount"`
}

func (b repaymentBody) repayment() (pool.Repayment, error) {
	borrower, err := parseAddress("borrower", b.Borrower)
	if err != nil {
		return pool.Repayment{}, err
	}
	amount, err := parseAmount("amount", b.Amount)
	if err != nil {
		return pool.Repayment{}, err
	}
	return pool.Repayment{Borrower: borrower, LoanID: b.LoanID, Amount: amount}, nil
}

func (s *Server) repayLoan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		repaymentBody
		Payer string `json:"payer,omitempty"`
	}
	s.mutate(w, r, "repay_loan", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		entry, err := body.repayment()
		if err != nil {
			return nil, err
		}
		payer, err := optionalAddress("payer", body.Payer)
		if err != nil {
			return nil, err
		}
		res, err := s.engine.RepayLoan(ctx, caller, id, entry.Borrower, entry.LoanID, entry.Amount, payer)
		if err != nil {
			return nil, err
		}
		return repaymentResponseOf(res), nil
	})
}

func (s *Server) batchRepay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Payer      string          `json:"payer,omitempty"`
		Repayments []repaymentBody `json:"repayments"`
	}
	s.mutate(w, r, "batch_repay", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		payer, err := optionalAddress("payer", body.Payer)
		if err != nil {
			return nil, err
		}
		entries := make([]pool.Repayment, 0, len(body.Repayments))
		for i, raw := range body.Repayments {
			entry, err := raw.repayment()
			if err != nil {
				return nil, nativecommon.WrapBatch(i, err)
			}
			entries = append(entries, entry)
		}
		res, err := s.engine.BatchRepayLoans(ctx, caller, id, entries, payer)
		if err != nil {
			return nil, err
		}
		return repaymentResponseOf(res), nil
	})
}

func (s *Server) transferSaleProceeds(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Originator string `json:"originator"`
		Amount     string `json:"amount"`
	}
	s.mutate(w, r, "transfer_sale_proceeds", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		originator, err := parseAddress("originator", body.Originator)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", body.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.TransferSaleProceeds(ctx, caller, id, originator, amount)
	})
}

func (s *Server) withdrawFees(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	}
	s.mutate(w, r, "withdraw_fees", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		recipient, err := parseAddress("recipient", body.Recipient)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", body.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.WithdrawProtocolFees(ctx, caller, id, recipient, amount)
	})
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	borrower, err := addressParam(r, "borrower")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.engine.Loans(id, borrower)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now := time.Now()
	out := make([]loanResponse, 0, len(records))
	for _, l := range records {
		out = append(out, loanResponseOf(l, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": out})
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	borrower, err := addressParam(r, "borrower")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loanID, err := strconv.ParseUint(chi.URLParam(r, "loanID"), 10, 64)
	if err != nil {
		s.writeError(w, r, badRequest("invalid loan id"))
		return
	}
	l, err := s.engine.Loan(id, borrower, loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanResponseOf(l, time.Now()))
}
