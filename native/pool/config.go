package pool

import (
	"fmt"
	"math/big"
	"strings"

	"thurman/crypto"
	nativecommon "thurman/native/common"
)

const moduleName = "pool"

// ModuleName is the key checked against the protocol-wide pause view.
const ModuleName = moduleName

// Config captures the runtime configuration for the pool engine.
type Config struct {
	// ManagerAddress is the engine's own identity. It must hold the accrual
	// capability of a pool's originator registry before loans can be
	// originated against that pool.
	ManagerAddress crypto.Address `toml:"ManagerAddress"`
	// MaxBatchSize bounds BatchInitLoan and BatchRepayLoans. Zero means the
	// default of 100 entries.
	MaxBatchSize int    `toml:"MaxBatchSize"`
	ShareName    string `toml:"ShareName"`
	ShareSymbol  string `toml:"ShareSymbol"`
	DebtName     string `toml:"DebtName"`
	DebtSymbol   string `toml:"DebtSymbol"`
	Decimals     uint8  `toml:"Decimals"`
}

// EnsureDefaults fills unset fields.
func (c *Config) EnsureDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = nativecommon.DefaultBatchLimit
	}
	if strings.TrimSpace(c.ShareSymbol) == "" {
		c.ShareSymbol = "sUSDC"
	}
	if strings.TrimSpace(c.ShareName) == "" {
		c.ShareName = "Pool Share"
	}
	if strings.TrimSpace(c.DebtSymbol) == "" {
		c.DebtSymbol = "dUSDC"
	}
	if strings.TrimSpace(c.DebtName) == "" {
		c.DebtName = "Pool Debt"
	}
	if c.Decimals == 0 {
		c.Decimals = 6
	}
}

// Capabilities is the explicit role table handed to the engine. The admin
// creates pools and manages operators; operators configure pools, fulfil
// requests and originate loans.
type Capabilities struct {
	Admin     crypto.Address
	Operators []crypto.Address
}

// Settings is the operator-controlled configuration of a pool. A zero
// MaxDepositAmount or DepositCap means unbounded.
type Settings struct {
	DepositsEnabled    bool
	WithdrawalsEnabled bool
	BorrowingEnabled   bool
	Paused             bool
	MaxDepositAmount   *big.Int
	MinDepositAmount   *big.Int
	DepositCap         *big.Int
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	clone := s
	clone.MaxDepositAmount = nativecommon.Copy(s.MaxDepositAmount)
	clone.MinDepositAmount = nativecommon.Copy(s.MinDepositAmount)
	clone.DepositCap = nativecommon.Copy(s.DepositCap)
	return clone
}

// Validate rejects negative limits and a minimum above a bounded maximum.
func (s Settings) Validate() error {
	for name, v := range map[string]*big.Int{
		"max deposit": s.MaxDepositAmount,
		"min deposit": s.MinDepositAmount,
		"deposit cap": s.DepositCap,
	} {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("%w: negative %s", ErrInvalidSettings, name)
		}
	}
	if s.MaxDepositAmount != nil && s.MaxDepositAmount.Sign() > 0 && s.MinDepositAmount != nil &&
		s.MinDepositAmount.Cmp(s.MaxDepositAmount) > 0 {
		return fmt.Errorf("%w: min deposit above max deposit", ErrInvalidSettings)
	}
	return nil
}

func bounded(limit *big.Int) bool {
	return limit != nil && limit.Sign() > 0
}
