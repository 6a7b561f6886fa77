// Package payment charges orders through an external payment processor.
package payment

import "context"

// ChargeRequest is a single charge for an order, in minor currency units.
type ChargeRequest struct {
	OrderID       int64
	AmountMinor   int64
	CustomerEmail string
	CustomerName  string
}

// ChargeResult is the terminal, synchronous outcome of a charge.
type ChargeResult struct {
	Succeeded     bool
	ProviderRef   string
	DeclineReason string
}

// Gateway charges a payment. A decline is a result with Succeeded=false;
// an error means the processor itself could not be used.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}
