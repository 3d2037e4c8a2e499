package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"thurman/crypto"
)

func makeAddress(prefix, suffix byte) crypto.Address {
	var a crypto.Address
	a[0] = prefix
	a[19] = suffix
	return a
}

type failingStore struct{}

func (failingStore) SaveBalances(map[crypto.Address]*big.Int) error { return errors.New("disk full") }

func TestTransferFromMovesFunds(t *testing.T) {
	ctx := context.Background()
	b := New("USDC", 6)
	alice, vault := makeAddress(0x01, 0x01), makeAddress(0x02, 0x01)
	if err := b.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := b.TransferFrom(ctx, alice, vault, big.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := b.BalanceOf(ctx, alice)
	vaultBal, _ := b.BalanceOf(ctx, vault)
	if aliceBal.Int64() != 40 || vaultBal.Int64() != 60 {
		t.Fatalf("unexpected balances alice=%s vault=%s", aliceBal, vaultBal)
	}
	if err := b.TransferFrom(ctx, alice, vault, big.NewInt(41)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	aliceBal, _ = b.BalanceOf(ctx, alice)
	if aliceBal.Int64() != 40 {
		t.Fatalf("failed transfer changed balance: %s", aliceBal)
	}
}

func TestTransferHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := New("USDC", 6)
	if err := b.TransferFrom(ctx, makeAddress(1, 1), makeAddress(1, 2), big.NewInt(0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestPersistFailureAborts(t *testing.T) {
	b := New("USDC", 6).WithStore(failingStore{})
	acct := makeAddress(0x03, 0x01)
	if err := b.Credit(acct, big.NewInt(5)); err == nil {
		t.Fatalf("expected persistence error")
	}
	bal, _ := b.BalanceOf(context.Background(), acct)
	if bal.Sign() != 0 {
		t.Fatalf("failed credit must not apply")
	}
}

func TestRestoreDropsEmptyBalances(t *testing.T) {
	b := New("USDC", 6)
	a1, a2 := makeAddress(0x04, 0x01), makeAddress(0x04, 0x02)
	b.Restore(map[crypto.Address]*big.Int{a1: big.NewInt(9), a2: big.NewInt(0)})
	bal, _ := b.BalanceOf(context.Background(), a1)
	if bal.Int64() != 9 {
		t.Fatalf("unexpected restored balance %s", bal)
	}
	if len(b.balances) != 1 {
		t.Fatalf("zero balance should be dropped")
	}
}
