package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"shop-service/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials is returned when a username/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid username or password")

	ErrCategoryInUse = errors.New("category cannot be deleted because it includes one or more products")

	// ErrCheckoutInProgress is returned while another checkout of the same cart is running.
	ErrCheckoutInProgress = errors.New("checkout already in progress for this cart")
)

// ValidationError carries field-level messages for bad input. The
// "non_field_errors" key holds messages not tied to one field.
type ValidationError struct {
	Fields map[string][]string
}

const nonFieldErrors = "non_field_errors"

func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = map[string][]string{}
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

// OrNil returns nil when no messages were added.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(v.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// PaymentError reports that the payment processor could not be used. The
// order has already been marked FAILED and is attached for the caller.
type PaymentError struct {
	Order *models.OrderDetail
	Err   error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment processor error for order %d: %v", e.Order.ID, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}
