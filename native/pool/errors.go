package pool

import (
	"errors"
	"fmt"
	"math/big"

	"thurman/crypto"
	nativecommon "thurman/native/common"
	"thurman/native/loans"
)

var (
	ErrUnauthorized            = nativecommon.ErrUnauthorized
	ErrModulePaused            = nativecommon.ErrModulePaused
	ErrEmptyBatch              = nativecommon.ErrEmptyBatch
	ErrBatchTooLarge           = nativecommon.ErrBatchTooLarge
	ErrLoanNotFound            = loans.ErrLoanNotFound
	ErrLoanRepaid              = loans.ErrLoanRepaid
	ErrOperationDisabled       = errors.New("pool engine: operation disabled")
	ErrInvalidAmount           = errors.New("pool engine: invalid amount")
	ErrInsufficientPending     = errors.New("pool engine: insufficient pending")
	ErrInsufficientClaimable   = errors.New("pool engine: insufficient claimable")
	ErrInsufficientShares      = errors.New("pool engine: insufficient shares")
	ErrInsufficientFees        = errors.New("pool engine: insufficient protocol fees")
	ErrNotAuthorizedOperator   = errors.New("pool engine: caller is not an authorized operator")
	ErrInvalidController       = errors.New("pool engine: invalid controller")
	ErrInvalidOperator         = errors.New("pool engine: invalid operator")
	ErrInvalidReceiver         = errors.New("pool engine: invalid receiver")
	ErrNotRegisteredOriginator = errors.New("pool engine: originator not registered")
	ErrCapExceeded             = errors.New("pool engine: deposit cap exceeded")
	ErrTransferFailed          = errors.New("pool engine: asset transfer failed")
	ErrPoolNotFound            = errors.New("pool engine: pool not found")
	ErrRegistryNotFound        = errors.New("pool engine: originator registry not attached")
	ErrInvalidSettings         = errors.New("pool engine: invalid settings")
	ErrInvalidMarginFee        = errors.New("pool engine: margin fee exceeds 100%")
	errNilEngine               = errors.New("pool engine: not configured")
	errNilAssets               = errors.New("pool engine: asset transfer service not configured")
)

// DisabledKind names the guard that rejected an operation.
type DisabledKind string

const (
	KindPaused      DisabledKind = "paused"
	KindDeposits    DisabledKind = "deposits"
	KindWithdrawals DisabledKind = "withdrawals"
	KindBorrowing   DisabledKind = "borrowing"
)

// OperationDisabledError is returned when a pool flag blocks an operation.
type OperationDisabledError struct {
	Kind DisabledKind
}

func (e *OperationDisabledError) Error() string {
	return fmt.Sprintf("pool engine: operation disabled: %s", e.Kind)
}

func (e *OperationDisabledError) Is(target error) bool {
	return target == ErrOperationDisabled
}

func disabled(kind DisabledKind) error {
	return &OperationDisabledError{Kind: kind}
}

// TransferError wraps a failure reported by the asset transfer service. The
// original error is preserved for errors.Is/As.
type TransferError struct {
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("pool engine: transfer %s from %s to %s failed: %v", e.Amount, e.From, e.To, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}

// BatchError identifies the failing entry of an aborted batch.
type BatchError = nativecommon.BatchError
