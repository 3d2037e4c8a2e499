package observability

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"thurman/core/events"
	"thurman/native/pool"
)

func TestRejectionReason(t *testing.T) {
	cases := map[error]string{
		&pool.OperationDisabledError{Kind: pool.KindDeposits}: "disabled_deposits",
		fmt.Errorf("wrap: %w", pool.ErrCapExceeded):          "cap_exceeded",
		pool.ErrNotAuthorizedOperator:                         "unauthorized",
		&pool.TransferError{Amount: big.NewInt(1)}:            "transfer_failed",
		fmt.Errorf("x"):                                       "other",
	}
	for err, want := range cases {
		if got := RejectionReason(err); got != want {
			t.Fatalf("RejectionReason(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestPoolMetricsObserve(t *testing.T) {
	m := Pools()
	m.ObserveOperation("deposit", 0, time.Millisecond, nil)
	m.ObserveOperation("deposit", 0, time.Millisecond, pool.ErrInvalidAmount)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("deposit", "error")); got < 1 {
		t.Fatalf("expected error counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("deposit", "invalid_amount")); got < 1 {
		t.Fatalf("expected rejection counted, got %v", got)
	}

	m.ObservePool(pool.PoolView{
		ID:            4,
		TotalDeposits: big.NewInt(5_000),
		Cumulative:    new(big.Int).Mul(big.NewInt(8), big.NewInt(10_000_000_000_000_000)),
	})
	if got := testutil.ToFloat64(m.totals.WithLabelValues("4", "deposits")); got != 5_000 {
		t.Fatalf("expected deposits gauge 5000, got %v", got)
	}
	if got := testutil.ToFloat64(m.cumulative.WithLabelValues("4")); got < 0.0799 || got > 0.0801 {
		t.Fatalf("expected cumulative 0.08, got %v", got)
	}
}

func TestEventCounter(t *testing.T) {
	e := Events()
	before := testutil.ToFloat64(e.emitted.WithLabelValues(events.TypeDeposit))
	events.Fanout{e}.Emit(events.Deposit{PoolID: 1})
	if got := testutil.ToFloat64(e.emitted.WithLabelValues(events.TypeDeposit)); got != before+1 {
		t.Fatalf("expected counter to advance, got %v", got)
	}
}
