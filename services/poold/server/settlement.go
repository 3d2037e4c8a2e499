package server

import (
	"context"
	"net/http"

	"thurman/crypto"
)

type requestBody struct {
	Assets     string `json:"assets,omitempty"`
	Shares     string `json:"shares,omitempty"`
	Controller string `json:"controller,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Receiver   string `json:"receiver,omitempty"`
}

// parties resolves the optional controller, owner and receiver fields.
func (b requestBody) parties() (controller, owner, receiver crypto.Address, err error) {
	if controller, err = optionalAddress("controller", b.Controller); err != nil {
		return
	}
	if owner, err = optionalAddress("owner", b.Owner); err != nil {
		return
	}
	receiver, err = optionalAddress("receiver", b.Receiver)
	return
}

func (s *Server) requestDeposit(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	s.mutate(w, r, "request_deposit", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		assets, err := parseAmount("assets", body.Assets)
		if err != nil {
			return nil, err
		}
		controller, owner, _, err := body.parties()
		if err != nil {
			return nil, err
		}
		return nil, s.engine.RequestDeposit(ctx, caller, id, assets, controller, owner)
	})
}

func (s *Server) fulfillDeposit(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	s.mutate(w, r, "fulfill_deposit", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		assets, err := parseAmount("assets", body.Assets)
		if err != nil {
			return nil, err
		}
		controller, err := parseAddress("controller", body.Controller)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.FulfillDeposit(ctx, caller, id, assets, controller)
	})
}

func (s *Server) claimDeposit(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	s.mutate(w, r, "deposit", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		assets, err := parseAmount("assets", body.Assets)
		if err != nil {
			return nil, err
		}
		controller, _, receiver, err := body.parties()
		if err != nil {
			return nil, err
		}
		return nil, s.engine.Deposit(ctx, caller, id, assets, receiver, controller)
	})
}

func (s *Server) cancelDeposit(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	s.mutate(w, r, "cancel_deposit", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		controller, _, receiver, err := body.parties()
		if err != nil {
			return nil, err
		}
		return nil, s.engine.CancelDepositRequest(ctx, caller, id, controller, receiver)
	})
}

func (s *Server) requestRedeem(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	s.mutate(w, r, "request_redeem", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		shares, err := parseAmount("shares", body.Shares)
		if err != nil {
			return nil, err
		}
		controller, owner, _, err := body.parties()
		if err != nil {
			return nil, err
		}
		return nil, s.engine.RequestRedeem(ctx, caller, id, shares, controller, owner)
	})
}

func (s *Server) fulfillRedeem(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	s.mutate(w, r, "fulfill_redeem", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		shares, err := parseAmount("shares", body.Shares)
		if err != nil {
			return nil, err
		}
		controller, err := parseAddress("controller", body.Controller)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.FulfillRedeem(ctx, caller, id, shares, controller)
	})
}

func (s *Server) claimRedeem(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	s.mutate(w, r, "redeem", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		shares, err := parseAmount("shares", body.Shares)
		if err != nil {
			return nil, err
		}
		controller, _, receiver, err := body.parties()
		if err != nil {
			return nil, err
		}
		return nil, s.engine.Redeem(ctx, caller, id, shares, receiver, controller)
	})
}

func (s *Server) cancelRedeem(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	s.mutate(w, r, "cancel_redeem", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		controller, _, receiver, err := body.parties()
		if err != nil {
			return nil, err
		}
		return nil, s.engine.CancelRedeemRequest(ctx, caller, id, controller, receiver)
	})
}

func (s *Server) setOperator(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Operator string `json:"operator"`
		Approved bool   `json:"approved"`
	}
	s.mutate(w, r, "set_operator", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		operator, err := parseAddress("operator", body.Operator)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.SetOperator(ctx, caller, id, operator, body.Approved)
	})
}

func (s *Server) approveShares(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	s.mutate(w, r, "approve_shares", &body, func(ctx context.Context, caller crypto.Address, id uint64) (any, error) {
		spender, err := parseAddress("spender", body.Spender)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", body.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.ApproveShares(ctx, caller, id, spender, amount)
	})
}
