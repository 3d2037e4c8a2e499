package events

import (
	"math/big"
	"strconv"

	"thurman/crypto"
)

const (
	TypePoolCreated             = "pool.created"
	TypePoolSettingsUpdated     = "pool.settings_updated"
	TypeOperatorSet             = "pool.operator_set"
	TypeSharesApproved          = "pool.shares_approved"
	TypeDepositRequested        = "pool.deposit_requested"
	TypeDepositClaimable        = "pool.deposit_claimable"
	TypeDeposit                 = "pool.deposit"
	TypeDepositRequestCancelled = "pool.deposit_request_cancelled"
	TypeRedeemRequested         = "pool.redeem_requested"
	TypeRedeemClaimable         = "pool.redeem_claimable"
	TypeWithdraw                = "pool.withdraw"
	TypeRedeemRequestCancelled  = "pool.redeem_request_cancelled"
	TypeDistribution            = "pool.distribution"
)

// PoolCreated is emitted once when a pool is added.
type PoolCreated struct {
	PoolID    uint64
	Vault     crypto.Address
	Registry  crypto.Address
	MarginFee *big.Int
}

func (PoolCreated) EventType() string { return TypePoolCreated }

func (e PoolCreated) Record() *Record {
	return &Record{Type: TypePoolCreated, Attributes: map[string]string{
		"pool":      formatPool(e.PoolID),
		"vault":     formatAddress(e.Vault),
		"registry":  formatAddress(e.Registry),
		"marginFee": formatAmount(e.MarginFee),
	}}
}

// PoolSettingsUpdated carries the full replacement configuration.
type PoolSettingsUpdated struct {
	PoolID             uint64
	DepositsEnabled    bool
	WithdrawalsEnabled bool
	BorrowingEnabled   bool
	Paused             bool
	MaxDepositAmount   *big.Int
	MinDepositAmount   *big.Int
	DepositCap         *big.Int
}

func (PoolSettingsUpdated) EventType() string { return TypePoolSettingsUpdated }

func (e PoolSettingsUpdated) Record() *Record {
	return &Record{Type: TypePoolSettingsUpdated, Attributes: map[string]string{
		"pool":               formatPool(e.PoolID),
		"depositsEnabled":    strconv.FormatBool(e.DepositsEnabled),
		"withdrawalsEnabled": strconv.FormatBool(e.WithdrawalsEnabled),
		"borrowingEnabled":   strconv.FormatBool(e.BorrowingEnabled),
		"paused":             strconv.FormatBool(e.Paused),
		"maxDepositAmount":   formatAmount(e.MaxDepositAmount),
		"minDepositAmount":   formatAmount(e.MinDepositAmount),
		"depositCap":         formatAmount(e.DepositCap),
	}}
}

// OperatorSet records a controller toggling a delegate.
type OperatorSet struct {
	PoolID     uint64
	Controller crypto.Address
	Operator   crypto.Address
	Approved   bool
}

func (OperatorSet) EventType() string { return TypeOperatorSet }

func (e OperatorSet) Record() *Record {
	return &Record{Type: TypeOperatorSet, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"operator":   formatAddress(e.Operator),
		"approved":   strconv.FormatBool(e.Approved),
	}}
}

// SharesApproved records an owner setting a spender's share allowance.
type SharesApproved struct {
	PoolID  uint64
	Owner   crypto.Address
	Spender crypto.Address
	Amount  *big.Int
}

func (SharesApproved) EventType() string { return TypeSharesApproved }

func (e SharesApproved) Record() *Record {
	return &Record{Type: TypeSharesApproved, Attributes: map[string]string{
		"pool":    formatPool(e.PoolID),
		"owner":   formatAddress(e.Owner),
		"spender": formatAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}

type DepositRequested struct {
	PoolID     uint64
	Controller crypto.Address
	Owner      crypto.Address
	Assets     *big.Int
}

func (DepositRequested) EventType() string { return TypeDepositRequested }

func (e DepositRequested) Record() *Record {
	return &Record{Type: TypeDepositRequested, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"owner":      formatAddress(e.Owner),
		"assets":     formatAmount(e.Assets),
	}}
}

type DepositClaimable struct {
	PoolID     uint64
	Controller crypto.Address
	Assets     *big.Int
	Shares     *big.Int
}

func (DepositClaimable) EventType() string { return TypeDepositClaimable }

func (e DepositClaimable) Record() *Record {
	return &Record{Type: TypeDepositClaimable, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"assets":     formatAmount(e.Assets),
		"shares":     formatAmount(e.Shares),
	}}
}

// Deposit is emitted when claimable deposit assets are converted to shares.
type Deposit struct {
	PoolID     uint64
	Controller crypto.Address
	Receiver   crypto.Address
	Assets     *big.Int
	Shares     *big.Int
}

func (Deposit) EventType() string { return TypeDeposit }

func (e Deposit) Record() *Record {
	return &Record{Type: TypeDeposit, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"receiver":   formatAddress(e.Receiver),
		"assets":     formatAmount(e.Assets),
		"shares":     formatAmount(e.Shares),
	}}
}

type DepositRequestCancelled struct {
	PoolID     uint64
	Controller crypto.Address
	Receiver   crypto.Address
	Assets     *big.Int
}

func (DepositRequestCancelled) EventType() string { return TypeDepositRequestCancelled }

func (e DepositRequestCancelled) Record() *Record {
	return &Record{Type: TypeDepositRequestCancelled, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"receiver":   formatAddress(e.Receiver),
		"assets":     formatAmount(e.Assets),
	}}
}

type RedeemRequested struct {
	PoolID     uint64
	Controller crypto.Address
	Owner      crypto.Address
	Shares     *big.Int
}

func (RedeemRequested) EventType() string { return TypeRedeemRequested }

func (e RedeemRequested) Record() *Record {
	return &Record{Type: TypeRedeemRequested, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"owner":      formatAddress(e.Owner),
		"shares":     formatAmount(e.Shares),
	}}
}

type RedeemClaimable struct {
	PoolID     uint64
	Controller crypto.Address
	Shares     *big.Int
	Assets     *big.Int
}

func (RedeemClaimable) EventType() string { return TypeRedeemClaimable }

func (e RedeemClaimable) Record() *Record {
	return &Record{Type: TypeRedeemClaimable, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"shares":     formatAmount(e.Shares),
		"assets":     formatAmount(e.Assets),
	}}
}

// Withdraw is emitted when escrowed shares are burned and assets paid out.
type Withdraw struct {
	PoolID     uint64
	Controller crypto.Address
	Receiver   crypto.Address
	Assets     *big.Int
	Shares     *big.Int
}

func (Withdraw) EventType() string { return TypeWithdraw }

func (e Withdraw) Record() *Record {
	return &Record{Type: TypeWithdraw, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"receiver":   formatAddress(e.Receiver),
		"assets":     formatAmount(e.Assets),
		"shares":     formatAmount(e.Shares),
	}}
}

type RedeemRequestCancelled struct {
	PoolID     uint64
	Controller crypto.Address
	Receiver   crypto.Address
	Shares     *big.Int
}

func (RedeemRequestCancelled) EventType() string { return TypeRedeemRequestCancelled }

func (e RedeemRequestCancelled) Record() *Record {
	return &Record{Type: TypeRedeemRequestCancelled, Attributes: map[string]string{
		"pool":       formatPool(e.PoolID),
		"controller": formatAddress(e.Controller),
		"receiver":   formatAddress(e.Receiver),
		"shares":     formatAmount(e.Shares),
	}}
}

// Distribution is emitted whenever repayment proceeds move the per-share
// accumulator or are parked as undistributed.
type Distribution struct {
	PoolID        uint64
	Amount        *big.Int
	Fee           *big.Int
	Cumulative    *big.Int
	Undistributed *big.Int
}

func (Distribution) EventType() string { return TypeDistribution }

func (e Distribution) Record() *Record {
	return &Record{Type: TypeDistribution, Attributes: map[string]string{
		"pool":          formatPool(e.PoolID),
		"amount":        formatAmount(e.Amount),
		"fee":           formatAmount(e.Fee),
		"cumulative":    formatAmount(e.Cumulative),
		"undistributed": formatAmount(e.Undistributed),
	}}
}
