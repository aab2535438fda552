package swap

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when no in-flight swap matches the given id.
var ErrSessionNotFound = errors.New("swap session not found")

// InvoiceDecodeError reports a malformed Lightning invoice. It is fatal to the
// quote attempt; the caller must submit a new invoice.
type InvoiceDecodeError struct {
	Err error
}

func (e *InvoiceDecodeError) Error() string {
	return fmt.Sprintf("failed to decode invoice: %v", e.Err)
}

func (e *InvoiceDecodeError) Unwrap() error {
	return e.Err
}

// RejectionError is a business refusal: the service will not take on the swap.
// It is distinct from transport errors, which are retryable.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// IsBusinessError reports whether err is a validation or admission failure
// rather than a transport problem.
func IsBusinessError(err error) bool {
	var rejection *RejectionError
	var decode *InvoiceDecodeError
	return errors.As(err, &rejection) || errors.As(err, &decode)
}
