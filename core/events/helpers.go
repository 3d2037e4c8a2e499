package events

import (
	"math/big"
	"strconv"
	"strings"

	"thurman/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(a crypto.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

func formatPool(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func joinAmounts(values []*big.Int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatAmount(v)
	}
	return strings.Join(parts, ",")
}

func joinAddresses(values []crypto.Address) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

func joinIDs(values []uint64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ",")
}
