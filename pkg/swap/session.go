package swap

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the current state of a swap session.
type Status string

const (
	StatusQuoted          Status = "QUOTED"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaymentDetected Status = "PAYMENT_DETECTED"
	StatusSettling        Status = "SETTLING"
	StatusSettled         Status = "SETTLED"
	StatusExpired         Status = "EXPIRED"
	StatusFailed          Status = "FAILED"
)

// Terminal reports whether the status allows no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusExpired || s == StatusFailed
}

// validTransitions encodes the swap state machine. Any transition not listed
// here is illegal.
var validTransitions = map[Status][]Status{
	StatusQuoted:          {StatusAwaitingPayment},
	StatusAwaitingPayment: {StatusPaymentDetected, StatusExpired},
	StatusPaymentDetected: {StatusSettling},
	StatusSettling:        {StatusSettled, StatusFailed},
}

// Session holds the state of one in-flight swap, from quote to terminal
// outcome. It is owned by the swap service for the session's lifetime.
type Session struct {
	// ID identifies the session and keys any settlement record it produces.
	ID string

	// Invoice is the original bolt11 invoice string being bridged.
	Invoice     string
	PaymentHash string
	AmountBTC   decimal.Decimal
	Description string

	// ExchangeRate is the XMR/BTC rate at quote time; FeeRate the margin
	// applied on top of it. XMRAmountDue is computed from them exactly once
	// and never recomputed.
	ExchangeRate decimal.Decimal
	FeeRate      decimal.Decimal
	XMRAmountDue decimal.Decimal

	// Subaddress and SubaddressIndex are assigned once at accept time and
	// immutable thereafter.
	Subaddress      string
	SubaddressIndex uint32

	// RefundAddress is the payer-supplied Monero address funds return to on
	// failure or expiry.
	RefundAddress string

	CreatedAt time.Time
	ExpiresAt time.Time

	Status Status

	// ObservedBalance is the last-seen accepted XMR total for the
	// subaddress.
	ObservedBalance decimal.Decimal
}

// Expired reports whether the session's payment window has closed at the
// given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// transition moves the session to the given status, enforcing the state
// machine. Callers hold the service's session lock.
func (s *Session) transition(to Status) error {
	for _, allowed := range validTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", s.Status, to)
}
