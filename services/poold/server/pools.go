package server

import (
	"context"
	"net/http"
	"time"

	"thurman/crypto"
	"thurman/native/pool"
)

type settingsBody struct {
	DepositsEnabled    bool   `json:"depositsEnabled"`
	WithdrawalsEnabled bool   `json:"withdrawalsEnabled"`
	BorrowingEnabled   bool   `json:"borrowingEnabled"`
	Paused             bool   `json:"paused"`
	MaxDepositAmount   string `json:"maxDepositAmount"`
	MinDepositAmount   string `json:"minDepositAmount"`
	DepositCap         string `json:"depositCap"`
}

func (b settingsBody) settings() (pool.Settings, error) {
	out := pool.Settings{
		DepositsEnabled:    b.DepositsEnabled,
		WithdrawalsEnabled: b.WithdrawalsEnabled,
		BorrowingEnabled:   b.BorrowingEnabled,
		Paused:             b.Paused,
	}
	var err error
	if out.MaxDepositAmount, err = optionalAmount("maxDepositAmount", b.MaxDepositAmount); err != nil {
		return pool.Settings{}, err
	}
	if out.MinDepositAmount, err = optionalAmount("minDepositAmount", b.MinDepositAmount); err != nil {
		return pool.Settings{}, err
	}
	if out.DepositCap, err = optionalAmount("depositCap", b.DepositCap); err != nil {
		return pool.Settings{}, err
	}
	return out, nil
}

func settingsOf(s pool.Settings) settingsBody {
	return settingsBody{
		DepositsEnabled:    s.DepositsEnabled,
		WithdrawalsEnabled: s.WithdrawalsEnabled,
		BorrowingEnabled:   s.BorrowingEnabled,
		Paused:             s.Paused,
		MaxDepositAmount:   amountString(s.MaxDepositAmount),
		MinDepositAmount:   amountString(s.MinDepositAmount),
		DepositCap:         amountString(s.DepositCap),
	}
}

type poolResponse struct {
	ID              uint64       `json:"id"`
	Vault           string       `json:"vault"`
	Registry        string       `json:"registry"`
	MarginFee       string       `json:"marginFee"`
	Settings        settingsBody `json:"settings"`
	CreatedAt       time.Time    `json:"createdAt"`
	TotalPrincipal  string       `json:"totalPrincipal"`
	TotalDeposits   string       `json:"totalDeposits"`
	PendingDeposits string       `json:"pendingDeposits"`
	LockedShares    string       `json:"lockedShares"`
	TotalShares     string       `json:"totalShares"`
	TotalDebt       string       `json:"totalDebt"`
	Cumulative      string       `json:"cumulativeDistributionsPerShare"`
	Undistributed   string       `json:"undistributed"`
	ProtocolFees    string       `json:"protocolFees"`
	LoanCount       int          `json:"loanCount"`
	ShareSymbol     string       `json:"shareSymbol"`
	DebtSymbol      string       `json:"debtSymbol"`
}

func poolResponseOf(v pool.PoolView) poolResponse {
	return poolResponse{
		ID:              v.ID,
		Vault:           v.Vault.String(),
		Registry:        v.Registry.String(),
		MarginFee:       amountString(v.MarginFee),
		Settings:        settingsOf(v.Settings),
		CreatedAt:       v.CreatedAt.UTC(),
		TotalPrincipal:  amountString(v.TotalPrincipal),
		TotalDeposits:   amountString(v.TotalDeposits),
		PendingDeposits: amountString(v.PendingDeposits),
		LockedShares:    amountString(v.LockedShares),
		TotalShares:     amountString(v.TotalShares),
		TotalDebt:       amountString(v.TotalDebt),
		Cumulative:      amountString(v.Cumulative),
		Undistributed:   amountString(v.Undistributed),
		ProtocolFees:    amountString(v.ProtocolFees),
		LoanCount:       v.LoanCount,
		ShareSymbol:     v.ShareSymbol,
		DebtSymbol:      v.DebtSymbol,
	}
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	views := s.engine.Pools()
	out := make([]poolResponse, 0, len(views))
	for _, v := range views {
		out = append(out, poolResponseOf(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": out})
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.engine.Pool(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponseOf(view))
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Vault     string `json:"vault"`
		Registry  string `json:"registry"`
		MarginFee string `json:"marginFee"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	vault, err := parseAddress("vault", body.Vault)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	registry, err := parseAddress("registry", body.Registry)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fee, err := parseFraction("marginFee", body.MarginFee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.engine.AddPool(caller, vault, registry, fee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.engine.Pool(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, poolResponseOf(view))
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	s.mutate(w, r, "set_settings", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		settings, err := body.settings()
		if err != nil {
			return nil, err
		}
		if err := s.engine.SetPoolOperationalSettings(ctx, caller, id, settings); err != nil {
			return nil, err
		}
		view, err := s.engine.Pool(id)
		if err != nil {
			return nil, err
		}
		return settingsOf(view.Settings), nil
	})
}

// mutate decodes body, resolves caller and pool id and runs fn inside a span.
// A nil result is answered with 204.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op string, body any, fn func(ctx context.Context, caller crypto.Address, id uint64) (any, error)) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := poolIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if body != nil {
		if err := decode(r, body); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	var result any
	err = s.traced(r.Context(), op, id, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx, caller, id)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type accountResponse struct {
	Address     string `json:"address"`
	Assets      string `json:"assets,omitempty"`
	Shares      string `json:"shares"`
	Debt        string `json:"debt"`
	Entitlement string `json:"entitlement"`
	Deposit     struct {
		Pending   string `json:"pending"`
		Claimable string `json:"claimable"`
	} `json:"deposit"`
	Redeem struct {
		Pending         string `json:"pending"`
		Claimable       string `json:"claimable"`
		ClaimableAssets string `json:"claimableAssets"`
		PendingIncome   string `json:"pendingIncome"`
	} `json:"redeem"`
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.engine.Account(id, addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var resp accountResponse
	resp.Address = addr.String()
	resp.Shares = amountString(view.Shares)
	resp.Debt = amountString(view.Debt)
	resp.Entitlement = amountString(view.Entitlement)
	resp.Deposit.Pending = amountString(view.Deposit.Pending)
	resp.Deposit.Claimable = amountString(view.Deposit.Claimable)
	resp.Redeem.Pending = amountString(view.Redeem.Pending)
	resp.Redeem.Claimable = amountString(view.Redeem.Claimable)
	resp.Redeem.ClaimableAssets = amountString(view.Redeem.ClaimableAssets)
	resp.Redeem.PendingIncome = amountString(view.Redeem.PendingIncome)
	if s.assets != nil {
		if bal, err := s.assets.BalanceOf(r.Context(), addr); err == nil {
			resp.Assets = amountString(bal)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
