package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for failures that need no extra context.
var (
	ErrMethodDisabled      = errors.New("payment method is disabled")
	ErrMethodNotSupported  = errors.New("payment method is not supported")
	ErrVoucherInvalid      = errors.New("voucher is invalid or exhausted")
	ErrVoucherInapplicable = errors.New("voucher does not apply to this transaction type")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrDuplicateWebhook    = errors.New("webhook already processed")
	ErrInvalidSignature    = errors.New("webhook signature verification failed")
)

// ValidationError reports bad input: format, range, or mutually exclusive
// fields. Raised before any persistence.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConfigurationError reports a disabled method or a misconfigured provider.
type ConfigurationError struct {
	Method  PaymentMethod
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Method, e.Message)
}

// RecipientResolutionError reports a failed vendor or admin account lookup.
type RecipientResolutionError struct {
	Message string
	Cause   error
}

func (e *RecipientResolutionError) Error() string {
	return "recipient resolution failed: " + e.Message
}

func (e *RecipientResolutionError) Unwrap() error {
	return e.Cause
}

// GatewayError reports a remote provider rejection or timeout. Code and
// Message come from the provider envelope when available.
type GatewayError struct {
	Provider GatewayProvider
	Code     string
	Message  string
	Cause    error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s gateway error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s gateway error: %s", e.Provider, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// AmountMismatchError reports a disagreement between the stored amount and a
// gateway- or webhook-reported amount. Always escalates to PENDING_MANUAL
// plus a fraud alert, never auto-resolved.
type AmountMismatchError struct {
	TransactionRef string
	Expected       float64
	Reported       float64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch on %s: stored %.2f, gateway reported %.2f",
		e.TransactionRef, e.Expected, e.Reported)
}

// RefundIneligibleError names the status blocking a refund.
type RefundIneligibleError struct {
	TransactionRef string
	Status         TransactionStatus
	Reason         string
}

func (e *RefundIneligibleError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("payment %s cannot be refunded: %s", e.TransactionRef, e.Reason)
	}
	return fmt.Sprintf("payment %s cannot be refunded from status %s", e.TransactionRef, e.Status)
}

// CancellationIneligibleError names the status blocking a cancellation.
type CancellationIneligibleError struct {
	TransactionRef string
	Status         TransactionStatus
}

func (e *CancellationIneligibleError) Error() string {
	return fmt.Sprintf("payment %s cannot be cancelled from status %s", e.TransactionRef, e.Status)
}
