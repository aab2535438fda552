package monero

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AtomicUnitsPerXMR is the number of piconero in one XMR.
const AtomicUnitsPerXMR = 1e12

// BuildURI constructs a monero: payment URI for the given subaddress. When
// amount is non-nil the requested XMR amount is appended as tx_amount.
func BuildURI(subaddress string, amount *decimal.Decimal) string {
	uri := "monero:" + subaddress
	if amount != nil {
		uri += "?tx_amount=" + amount.String()
	}
	return uri
}

// FromAtomic converts an atomic (piconero) amount to XMR.
func FromAtomic(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -12)
}
