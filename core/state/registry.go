package state

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"thurman/crypto"
	"thurman/native/originators"
)

var (
	registryKeyPrefix = []byte("registry/")
	balancesKey       = []byte("bank/balances")
)

func registryKey(addr crypto.Address) []byte {
	buf := make([]byte, len(registryKeyPrefix)+crypto.AddressLength)
	copy(buf, registryKeyPrefix)
	copy(buf[len(registryKeyPrefix):], addr[:])
	return buf
}

func sortedKeys[V any](m map[crypto.Address]V) []crypto.Address {
	out := make([]crypto.Address, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

type storedOriginator struct {
	Address      crypto.Address
	Active       bool
	RegisteredAt uint64
}

type storedRegistry struct {
	Address     crypto.Address
	Admin       crypto.Address
	Originators []storedOriginator
	Accruers    []crypto.Address
}

// SaveRegistry implements originators.Store.
func (m *Manager) SaveRegistry(snap originators.Snapshot) error {
	rec := storedRegistry{Address: snap.Address, Admin: snap.Admin, Accruers: snap.Accruers}
	for _, o := range snap.Originators {
		rec.Originators = append(rec.Originators, storedOriginator{Address: o.Address, Active: o.Active, RegisteredAt: encodeTime(o.RegisteredAt)})
	}
	if err := m.KVPut(registryKey(snap.Address), rec); err != nil {
		return fmt.Errorf("registry store: %w", err)
	}
	return nil
}

// LoadRegistry returns the persisted snapshot of the registry at addr.
func (m *Manager) LoadRegistry(addr crypto.Address) (originators.Snapshot, bool, error) {
	var rec storedRegistry
	ok, err := m.KVGet(registryKey(addr), &rec)
	if err != nil || !ok {
		return originators.Snapshot{}, ok, err
	}
	snap := originators.Snapshot{Address: rec.Address, Admin: rec.Admin, Accruers: rec.Accruers}
	for _, o := range rec.Originators {
		snap.Originators = append(snap.Originators, originators.Originator{Address: o.Address, Active: o.Active, RegisteredAt: decodeTime(o.RegisteredAt)})
	}
	return snap, true, nil
}

// SaveBalances implements bank.Store.
func (m *Manager) SaveBalances(balances map[crypto.Address]*big.Int) error {
	list := make([]storedBalance, 0, len(balances))
	for _, acct := range sortedKeys(balances) {
		list = append(list, storedBalance{Account: acct, Amount: new(big.Int).Set(balances[acct])})
	}
	return m.KVPut(balancesKey, list)
}

// LoadBalances returns the persisted asset balances.
func (m *Manager) LoadBalances() (map[crypto.Address]*big.Int, error) {
	var list []storedBalance
	if _, err := m.KVGet(balancesKey, &list); err != nil {
		return nil, err
	}
	out := make(map[crypto.Address]*big.Int, len(list))
	for _, b := range list {
		out[b.Account] = b.Amount
	}
	return out, nil
}
