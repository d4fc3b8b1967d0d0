package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrDuplicateOwner     = errors.New("cart owner already has a cart")
	ErrPaymentInFlight    = errors.New("cart has an order with a payment in progress")
	ErrStaleOrder         = errors.New("order was modified concurrently")
	ErrDuplicateReference = errors.New("transaction reference already used")
)

type EmptyCartError struct {
	CartID string
}

func (e *EmptyCartError) Error() string { return "cart is empty" }

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// GatewayTransportError wraps network and timeout failures talking to the
// payment provider. Error returns the underlying message as-is.
type GatewayTransportError struct {
	Op  string
	Err error
}

func (e *GatewayTransportError) Error() string { return e.Err.Error() }

func (e *GatewayTransportError) Unwrap() error { return e.Err }

// GatewayRejectedError is an explicit failure reported by the provider.
// Reason is the provider's text, unmodified.
type GatewayRejectedError struct {
	Op         string
	StatusCode int
	Reason     string
}

func (e *GatewayRejectedError) Error() string { return e.Reason }

type MissingReferenceError struct {
	OrderID string
}

func (e *MissingReferenceError) Error() string { return "No payment reference found" }
