package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"thurman/crypto"
	"thurman/native/pool"
)

// Genesis describes the initial capability table, registries, pools and
// balances applied when the daemon starts against an empty store.
type Genesis struct {
	Admin     crypto.Address    `toml:"Admin"`
	Operators []crypto.Address  `toml:"Operators"`
	Engine    pool.Config       `toml:"Engine"`
	Asset     GenesisAsset      `toml:"Asset"`
	Registry  []GenesisRegistry `toml:"Registry"`
	Pool      []GenesisPool     `toml:"Pool"`
	Balance   []GenesisBalance  `toml:"Balance"`
	Paused    []string          `toml:"PausedModules"`
}

type GenesisAsset struct {
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
}

type GenesisRegistry struct {
	Address     crypto.Address   `toml:"Address"`
	Admin       crypto.Address   `toml:"Admin"`
	Originators []crypto.Address `toml:"Originators"`
	Accruers    []crypto.Address `toml:"Accruers"`
}

type GenesisPool struct {
	Vault    crypto.Address `toml:"Vault"`
	Registry crypto.Address `toml:"Registry"`
	// MarginFee is a decimal fraction of yield, e.g. "0.1" for 10%.
	MarginFee string          `toml:"MarginFee"`
	Settings  GenesisSettings `toml:"Settings"`
}

type GenesisSettings struct {
	DepositsEnabled    bool   `toml:"DepositsEnabled"`
	WithdrawalsEnabled bool   `toml:"WithdrawalsEnabled"`
	BorrowingEnabled   bool   `toml:"BorrowingEnabled"`
	Paused             bool   `toml:"Paused"`
	MaxDepositAmount   string `toml:"MaxDepositAmount"`
	MinDepositAmount   string `toml:"MinDepositAmount"`
	DepositCap         string `toml:"DepositCap"`
}

type GenesisBalance struct {
	Account crypto.Address `toml:"Account"`
	Amount  string         `toml:"Amount"`
}

var wad = decimal.New(1, 18)

// LoadGenesis decodes and validates a TOML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	var g Genesis
	meta, err := toml.DecodeFile(path, &g)
	if err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode genesis: unknown key %q", undecoded[0].String())
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks addresses and amounts without touching any state.
func (g *Genesis) Validate() error {
	if g.Admin.IsZero() {
		return fmt.Errorf("genesis: admin address required")
	}
	if strings.TrimSpace(g.Asset.Symbol) == "" {
		g.Asset.Symbol = "USDC"
	}
	if g.Asset.Decimals == 0 {
		g.Asset.Decimals = 6
	}
	registries := make(map[crypto.Address]struct{}, len(g.Registry))
	for i, reg := range g.Registry {
		if reg.Address.IsZero() || reg.Admin.IsZero() {
			return fmt.Errorf("genesis: registry %d: address and admin required", i)
		}
		if _, dup := registries[reg.Address]; dup {
			return fmt.Errorf("genesis: registry %d: duplicate address %s", i, reg.Address)
		}
		registries[reg.Address] = struct{}{}
	}
	for i, p := range g.Pool {
		if p.Vault.IsZero() {
			return fmt.Errorf("genesis: pool %d: vault required", i)
		}
		if _, ok := registries[p.Registry]; !ok {
			return fmt.Errorf("genesis: pool %d: unknown registry %s", i, p.Registry)
		}
		if _, err := ParseFraction(p.MarginFee); err != nil {
			return fmt.Errorf("genesis: pool %d: %w", i, err)
		}
		if _, err := p.Settings.Settings(); err != nil {
			return fmt.Errorf("genesis: pool %d: %w", i, err)
		}
	}
	for i, b := range g.Balance {
		if _, err := ParseAmount(b.Amount); err != nil {
			return fmt.Errorf("genesis: balance %d: %w", i, err)
		}
	}
	return nil
}

// Settings converts the TOML form to engine settings.
func (s GenesisSettings) Settings() (pool.Settings, error) {
	out := pool.Settings{
		DepositsEnabled:    s.DepositsEnabled,
		WithdrawalsEnabled: s.WithdrawalsEnabled,
		BorrowingEnabled:   s.BorrowingEnabled,
		Paused:             s.Paused,
	}
	var err error
	if out.MaxDepositAmount, err = optionalAmount(s.MaxDepositAmount); err != nil {
		return pool.Settings{}, fmt.Errorf("max deposit: %w", err)
	}
	if out.MinDepositAmount, err = optionalAmount(s.MinDepositAmount); err != nil {
		return pool.Settings{}, fmt.Errorf("min deposit: %w", err)
	}
	if out.DepositCap, err = optionalAmount(s.DepositCap); err != nil {
		return pool.Settings{}, fmt.Errorf("deposit cap: %w", err)
	}
	if err := out.Validate(); err != nil {
		return pool.Settings{}, err
	}
	return out, nil
}

// ParseFraction converts a decimal fraction such as "0.125" into its 1e18
// fixed point representation. Empty means zero.
func ParseFraction(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0), nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid fraction %q: %w", value, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fraction %q outside [0,1]", value)
	}
	scaled := d.Mul(wad)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("fraction %q has more than 18 decimals", value)
	}
	return scaled.BigInt(), nil
}

// ParseAmount parses a non-negative base-10 integer bounded to 256 bits.
func ParseAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("amount required")
	}
	v, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return v.ToBig(), nil
}

func optionalAmount(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return ParseAmount(value)
}
