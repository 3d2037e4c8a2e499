package otel

import (
	"context"
	"fmt"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"thurman/native/pool"
)

// PoolSource lists the pools reported on each metric collection.
type PoolSource interface {
	Pools() []pool.PoolView
}

// RegisterPoolGauges reports the pool count and per-pool totals through
// meter. Values are read from src at collection time; unregister the
// returned registration on shutdown.
func RegisterPoolGauges(meter metric.Meter, src PoolSource) (metric.Registration, error) {
	count, err := meter.Int64ObservableGauge("poold.pools",
		metric.WithDescription("Pools created on the engine"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: pools gauge: %w", err)
	}
	totals := map[string]metric.Float64ObservableGauge{}
	for _, name := range []string{"total_deposits", "total_principal", "pending_deposits", "protocol_fees", "undistributed"} {
		g, err := meter.Float64ObservableGauge("poold.pool."+name, metric.WithUnit("{asset}"))
		if err != nil {
			return nil, fmt.Errorf("telemetry: %s gauge: %w", name, err)
		}
		totals[name] = g
	}
	instruments := []metric.Observable{count}
	for _, g := range totals {
		instruments = append(instruments, g)
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		views := src.Pools()
		o.ObserveInt64(count, int64(len(views)))
		for _, v := range views {
			attrs := metric.WithAttributes(attribute.Int64("pool.id", int64(v.ID)))
			o.ObserveFloat64(totals["total_deposits"], asFloat(v.TotalDeposits), attrs)
			o.ObserveFloat64(totals["total_principal"], asFloat(v.TotalPrincipal), attrs)
			o.ObserveFloat64(totals["pending_deposits"], asFloat(v.PendingDeposits), attrs)
			o.ObserveFloat64(totals["protocol_fees"], asFloat(v.ProtocolFees), attrs)
			o.ObserveFloat64(totals["undistributed"], asFloat(v.Undistributed), attrs)
		}
		return nil
	}, instruments...)
}

func asFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
