package events

import (
	"math/big"
	"strings"
)

const (
	// TypeTokenSupply is emitted whenever a share or debt token supply changes.
	TypeTokenSupply = "token.supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
)

// TokenSupply captures a supply delta for one of a pool's ledgers.
type TokenSupply struct {
	PoolID uint64
	Token  string
	Total  *big.Int
	Delta  *big.Int
	Reason string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Record renders the structured supply change event for downstream consumers.
func (e TokenSupply) Record() *Record {
	attrs := map[string]string{"pool": formatPool(e.PoolID)}
	token := strings.ToUpper(strings.TrimSpace(e.Token))
	if token == "" {
		token = "UNKNOWN"
	}
	attrs["token"] = token
	attrs["total"] = formatAmount(e.Total)

	if e.Delta != nil {
		attrs["delta"] = e.Delta.String()
	}

	reason := strings.TrimSpace(e.Reason)
	if reason != "" {
		attrs["reason"] = reason
	}

	return &Record{Type: TypeTokenSupply, Attributes: attrs}
}
