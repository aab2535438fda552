package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"xmrbridge/pkg/monero"
)

// Tier selects the confirmation policy for a swap.
type Tier int

const (
	// TierZeroConf accepts unconfirmed pool transfers, trading confirmation
	// safety for latency on low-value swaps.
	TierZeroConf Tier = iota

	// TierConfirmed accepts confirmed incoming transfers only.
	TierConfirmed
)

func (t Tier) String() string {
	if t == TierZeroConf {
		return "zero-conf"
	}
	return "confirmed"
}

// TierFor returns the confirmation tier for an amount due. The boundary is
// exclusive on the low side: an amount equal to the threshold is confirmed-only.
func TierFor(amountDue, threshold decimal.Decimal) Tier {
	if amountDue.LessThan(threshold) {
		return TierZeroConf
	}
	return TierConfirmed
}

// TransferSource lists incoming transfers per subaddress. The Monero client
// implements it.
type TransferSource interface {
	GetTransfers(ctx context.Context, subaddressIndex uint32) (*monero.Transfers, error)
}

// PaymentStatus is one observation of a swap's subaddress.
type PaymentStatus struct {
	// Received is true once the accepted total covers the amount due.
	Received bool

	// AcceptedTotal is the XMR total counting toward settlement under the
	// applied tier.
	AcceptedTotal decimal.Decimal

	// PendingTotal is the unconfirmed pool total, reported for display only.
	// It never drives settlement decisions in the confirmed tier.
	PendingTotal decimal.Decimal

	Tier      Tier
	CheckedAt time.Time
}

// PaymentMonitor polls the Monero wallet for payments to a swap's subaddress
// and applies the amount-tiered confirmation policy.
type PaymentMonitor struct {
	wallet    TransferSource
	threshold decimal.Decimal
}

// NewPaymentMonitor creates a monitor with the given zero-conf threshold.
func NewPaymentMonitor(wallet TransferSource, threshold decimal.Decimal) *PaymentMonitor {
	return &PaymentMonitor{
		wallet:    wallet,
		threshold: threshold,
	}
}

// Check fetches the subaddress's transfers and evaluates them against the
// amount due. Transport failures are returned as-is; the caller retries on
// the next poll.
func (m *PaymentMonitor) Check(ctx context.Context, subaddressIndex uint32, amountDue decimal.Decimal) (*PaymentStatus, error) {
	transfers, err := m.wallet.GetTransfers(ctx, subaddressIndex)
	if err != nil {
		return nil, fmt.Errorf("payment check failed: %w", err)
	}

	tier := TierFor(amountDue, m.threshold)

	accepted := sumValid(transfers.In)
	if tier == TierZeroConf {
		accepted = accepted.Add(sumValid(transfers.Pool))
	}

	var pendingAtomic uint64
	for _, t := range transfers.Pool {
		pendingAtomic += t.Amount
	}

	return &PaymentStatus{
		Received:      accepted.GreaterThanOrEqual(amountDue),
		AcceptedTotal: accepted,
		PendingTotal:  monero.FromAtomic(pendingAtomic),
		Tier:          tier,
		CheckedAt:     time.Now(),
	}, nil
}

// sumValid totals the transfers that may count toward settlement: immediately
// spendable and not flagged as a double spend.
func sumValid(transfers []monero.Transfer) decimal.Decimal {
	var atomic uint64
	for _, t := range transfers {
		if t.UnlockTime != 0 || t.DoubleSpendSeen {
			continue
		}
		atomic += t.Amount
	}
	return monero.FromAtomic(atomic)
}
