package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"thurman/crypto"
	"thurman/native/originators"
	"thurman/native/pool"
	"thurman/observability"
	"thurman/services/poold/config"
	"thurman/services/poold/middleware"
)

const maxBodyBytes = 1 << 20

var (
	errUnauthenticated = errors.New("caller identity required")
	errBadRequest      = errors.New("bad request")
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Index *int   `json:"index,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps engine failures onto HTTP status codes.
func statusFor(err error) int {
	var disabled *pool.OperationDisabledError
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrUnauthorized), errors.Is(err, pool.ErrNotAuthorizedOperator):
		return http.StatusForbidden
	case errors.Is(err, pool.ErrPoolNotFound), errors.Is(err, pool.ErrLoanNotFound),
		errors.Is(err, pool.ErrRegistryNotFound), errors.Is(err, originators.ErrUnknownOriginator):
		return http.StatusNotFound
	case errors.As(err, &disabled), errors.Is(err, pool.ErrModulePaused), errors.Is(err, pool.ErrLoanRepaid),
		errors.Is(err, pool.ErrInsufficientPending), errors.Is(err, pool.ErrInsufficientClaimable),
		errors.Is(err, pool.ErrInsufficientShares), errors.Is(err, pool.ErrInsufficientFees),
		errors.Is(err, pool.ErrCapExceeded):
		return http.StatusConflict
	case errors.Is(err, pool.ErrInvalidAmount), errors.Is(err, pool.ErrInvalidController),
		errors.Is(err, pool.ErrInvalidOperator), errors.Is(err, pool.ErrInvalidReceiver),
		errors.Is(err, pool.ErrNotRegisteredOriginator), errors.Is(err, pool.ErrEmptyBatch),
		errors.Is(err, pool.ErrBatchTooLarge), errors.Is(err, pool.ErrInvalidSettings),
		errors.Is(err, pool.ErrInvalidMarginFee):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pool.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: observability.RejectionReason(err)}
	switch status {
	case http.StatusUnauthorized:
		resp.Code = "unauthenticated"
	case http.StatusBadRequest:
		resp.Code = "bad_request"
	case http.StatusNotFound:
		resp.Code = "not_found"
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "route", r.URL.Path, "error", err)
		resp.Error = http.StatusText(status)
		resp.Code = "internal"
	}
	var batchErr *pool.BatchError
	if errors.As(err, &batchErr) {
		index := batchErr.Index
		resp.Index = &index
	}
	writeJSON(w, status, resp)
}

func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func callerOf(r *http.Request) (crypto.Address, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok || caller.IsZero() {
		return crypto.Address{}, errUnauthenticated
	}
	return caller, nil
}

func poolIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid pool id %q", raw)
	}
	return id, nil
}

func addressParam(r *http.Request, name string) (crypto.Address, error) {
	raw := chi.URLParam(r, name)
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, badRequest("invalid %s %q", name, raw)
	}
	return addr, nil
}

// parseAddress decodes a required bech32 address.
func parseAddress(field, value string) (crypto.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return crypto.Address{}, badRequest("%s required", field)
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, badRequest("invalid %s: %v", field, err)
	}
	return addr, nil
}

// optionalAddress returns the zero address for an empty value, which the
// engine resolves to the caller or owner.
func optionalAddress(field, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, nil
	}
	return parseAddress(field, value)
}

func parseAmount(field, value string) (*big.Int, error) {
	v, err := config.ParseAmount(value)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return v, nil
}

func optionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, value)
}

func parseFraction(field, value string) (*big.Int, error) {
	v, err := config.ParseFraction(value)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return v, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
