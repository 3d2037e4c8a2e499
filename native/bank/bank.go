package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"thurman/crypto"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAmount     = errors.New("bank: invalid amount")
)

// Store persists account balances after every successful movement.
type Store interface {
	SaveBalances(map[crypto.Address]*big.Int) error
}

// Bank is an in-process custody ledger for the pool's underlying asset. It
// implements the asset transfer capability the pool engine consumes and is
// safe for concurrent use.
type Bank struct {
	mu       sync.Mutex
	symbol   string
	decimals uint8
	balances map[crypto.Address]*big.Int
	store    Store
}

func New(symbol string, decimals uint8) *Bank {
	return &Bank{
		symbol:   symbol,
		decimals: decimals,
		balances: make(map[crypto.Address]*big.Int),
	}
}

// WithStore attaches persistence. Balances written before the call are not
// flushed until the next movement.
func (b *Bank) WithStore(store Store) *Bank {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = store
	return b
}

func (b *Bank) Symbol() string  { return b.symbol }
func (b *Bank) Decimals() uint8 { return b.decimals }

// Credit mints amount to account, used for genesis funding and tests.
func (b *Bank) Credit(account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.copyBalances()
	bal := balanceIn(next, account)
	bal.Add(bal, amount)
	return b.commit(next)
}

// TransferFrom moves amount from one account to another. It never partially
// applies: either both balances change or neither does.
func (b *Bank) TransferFrom(ctx context.Context, from, to crypto.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.balances[from]
	if current == nil || current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from, balanceString(current), amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	next := b.copyBalances()
	src := balanceIn(next, from)
	src.Sub(src, amount)
	if src.Sign() == 0 {
		delete(next, from)
	}
	dst := balanceIn(next, to)
	dst.Add(dst, amount)
	return b.commit(next)
}

// BalanceOf returns a copy of the account balance.
func (b *Bank) BalanceOf(ctx context.Context, account crypto.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

// Restore replaces every balance, used when loading persisted state.
func (b *Bank) Restore(balances map[crypto.Address]*big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = make(map[crypto.Address]*big.Int, len(balances))
	for acct, bal := range balances {
		if bal != nil && bal.Sign() > 0 {
			b.balances[acct] = new(big.Int).Set(bal)
		}
	}
}

func (b *Bank) commit(next map[crypto.Address]*big.Int) error {
	if b.store != nil {
		if err := b.store.SaveBalances(next); err != nil {
			return fmt.Errorf("bank: persist balances: %w", err)
		}
	}
	b.balances = next
	return nil
}

func (b *Bank) copyBalances() map[crypto.Address]*big.Int {
	out := make(map[crypto.Address]*big.Int, len(b.balances)+1)
	for acct, bal := range b.balances {
		out[acct] = new(big.Int).Set(bal)
	}
	return out
}

func balanceIn(balances map[crypto.Address]*big.Int, account crypto.Address) *big.Int {
	bal, ok := balances[account]
	if !ok {
		bal = big.NewInt(0)
		balances[account] = bal
	}
	return bal
}

func balanceString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
