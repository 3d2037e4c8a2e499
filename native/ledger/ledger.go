package ledger

import (
	"bytes"
	"errors"
	"math/big"
	"sort"

	"thurman/crypto"
)

var (
	ErrInvalidAmount         = errors.New("ledger: invalid amount")
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
)

// Ledger is a fungible balance book used for both pool shares and borrower
// debt tokens. It carries no policy: callers decide who may mint or burn.
// A Ledger is not safe for concurrent use; owners serialize access.
type Ledger struct {
	Name     string
	Symbol   string
	Decimals uint8

	balances    map[crypto.Address]*big.Int
	allowances  map[crypto.Address]map[crypto.Address]*big.Int
	totalSupply *big.Int
}

func New(name, symbol string, decimals uint8) *Ledger {
	return &Ledger{
		Name:        name,
		Symbol:      symbol,
		Decimals:    decimals,
		balances:    make(map[crypto.Address]*big.Int),
		allowances:  make(map[crypto.Address]map[crypto.Address]*big.Int),
		totalSupply: big.NewInt(0),
	}
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() >= 0
}

// BalanceOf returns a copy of the account balance.
func (l *Ledger) BalanceOf(account crypto.Address) *big.Int {
	if bal, ok := l.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalSupply returns a copy of the outstanding supply.
func (l *Ledger) TotalSupply() *big.Int {
	return new(big.Int).Set(l.totalSupply)
}

func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.credit(to, amount)
	l.totalSupply.Add(l.totalSupply, amount)
	return nil
}

func (l *Ledger) Burn(from crypto.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.totalSupply.Sub(l.totalSupply, amount)
	return nil
}

// Transfer moves amount between accounts without touching supply.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		if l.BalanceOf(from).Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		return nil
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

// Approve sets the allowance spender may consume from owner.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		if inner, ok := l.allowances[owner]; ok {
			delete(inner, spender)
			if len(inner) == 0 {
				delete(l.allowances, owner)
			}
		}
		return nil
	}
	inner, ok := l.allowances[owner]
	if !ok {
		inner = make(map[crypto.Address]*big.Int)
		l.allowances[owner] = inner
	}
	inner[spender] = new(big.Int).Set(amount)
	return nil
}

func (l *Ledger) Allowance(owner, spender crypto.Address) *big.Int {
	if inner, ok := l.allowances[owner]; ok {
		if v, ok := inner[spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return big.NewInt(0)
}

// SpendAllowance consumes amount of the allowance owner granted spender.
func (l *Ledger) SpendAllowance(owner, spender crypto.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	current := l.Allowance(owner, spender)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	return l.Approve(owner, spender, current.Sub(current, amount))
}

// TransferFrom moves owner funds on behalf of spender, consuming allowance.
func (l *Ledger) TransferFrom(spender, owner, to crypto.Address, amount *big.Int) error {
	if l.BalanceOf(owner).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.SpendAllowance(owner, spender, amount); err != nil {
		return err
	}
	return l.Transfer(owner, to, amount)
}

// BurnFrom burns owner funds on behalf of spender, consuming allowance.
func (l *Ledger) BurnFrom(spender, owner crypto.Address, amount *big.Int) error {
	if l.BalanceOf(owner).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.SpendAllowance(owner, spender, amount); err != nil {
		return err
	}
	return l.Burn(owner, amount)
}

func (l *Ledger) credit(account crypto.Address, amount *big.Int) {
	bal, ok := l.balances[account]
	if !ok {
		bal = big.NewInt(0)
		l.balances[account] = bal
	}
	bal.Add(bal, amount)
}

func (l *Ledger) debit(account crypto.Address, amount *big.Int) error {
	bal, ok := l.balances[account]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(l.balances, account)
	}
	return nil
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	out := New(l.Name, l.Symbol, l.Decimals)
	for acct, bal := range l.balances {
		out.balances[acct] = new(big.Int).Set(bal)
	}
	for owner, inner := range l.allowances {
		copied := make(map[crypto.Address]*big.Int, len(inner))
		for spender, v := range inner {
			copied[spender] = new(big.Int).Set(v)
		}
		out.allowances[owner] = copied
	}
	out.totalSupply.Set(l.totalSupply)
	return out
}

// Balance is a single holder entry in a snapshot.
type Balance struct {
	Account crypto.Address
	Amount  *big.Int
}

// Allowance is a single approval entry in a snapshot.
type Allowance struct {
	Owner   crypto.Address
	Spender crypto.Address
	Amount  *big.Int
}

// Snapshot is the deterministic, serialisable form of a Ledger. Entries are
// sorted by account bytes.
type Snapshot struct {
	Name       string
	Symbol     string
	Decimals   uint8
	Balances   []Balance
	Allowances []Allowance
}

func (l *Ledger) Snapshot() Snapshot {
	snap := Snapshot{Name: l.Name, Symbol: l.Symbol, Decimals: l.Decimals}
	for acct, bal := range l.balances {
		snap.Balances = append(snap.Balances, Balance{Account: acct, Amount: new(big.Int).Set(bal)})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return bytes.Compare(snap.Balances[i].Account[:], snap.Balances[j].Account[:]) < 0
	})
	for owner, inner := range l.allowances {
		for spender, v := range inner {
			snap.Allowances = append(snap.Allowances, Allowance{Owner: owner, Spender: spender, Amount: new(big.Int).Set(v)})
		}
	}
	sort.Slice(snap.Allowances, func(i, j int) bool {
		a, b := snap.Allowances[i], snap.Allowances[j]
		if c := bytes.Compare(a.Owner[:], b.Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Spender[:], b.Spender[:]) < 0
	})
	return snap
}

// FromSnapshot rebuilds a ledger; total supply is recomputed from balances.
func FromSnapshot(snap Snapshot) (*Ledger, error) {
	l := New(snap.Name, snap.Symbol, snap.Decimals)
	for _, b := range snap.Balances {
		if err := l.Mint(b.Account, b.Amount); err != nil {
			return nil, err
		}
	}
	for _, a := range snap.Allowances {
		if err := l.Approve(a.Owner, a.Spender, a.Amount); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Holders returns the number of accounts with a non-zero balance.
func (l *Ledger) Holders() int {
	return len(l.balances)
}
