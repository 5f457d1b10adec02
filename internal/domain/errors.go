package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Payment Errors (PAYMENT_*)
	ErrorCodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	ErrorCodePaymentInvalidState ErrorCode = "PAYMENT_INVALID_STATE"

	// Refund Errors (REFUND_*)
	ErrorCodeRefundExceedsPayment ErrorCode = "REFUND_EXCEEDS_PAYMENT"
	ErrorCodeRefundMissingIdemKey ErrorCode = "REFUND_MISSING_IDEMPOTENCY_KEY"
	ErrorCodeRefundNotFound       ErrorCode = "REFUND_NOT_FOUND"

	// Settlement Errors (SETTLEMENT_*)
	ErrorCodeSettlementNotFound          ErrorCode = "SETTLEMENT_NOT_FOUND"
	ErrorCodeSettlementInvalidTransition ErrorCode = "SETTLEMENT_INVALID_TRANSITION"
	ErrorCodeSettlementAlreadyExists     ErrorCode = "SETTLEMENT_ALREADY_EXISTS"

	// Adjustment Errors (ADJUSTMENT_*)
	ErrorCodeAdjustmentNotFound  ErrorCode = "ADJUSTMENT_NOT_FOUND"
	ErrorCodeAdjustmentDuplicate ErrorCode = "ADJUSTMENT_DUPLICATE"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Refund Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayError    ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout  ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeGatewayDeclined ErrorCode = "GATEWAY_DECLINED"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail returns a copy of the error with the detail field added. The
// receiver is never mutated; the shared error instances below stay immutable.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{
		Err:     e.Err,
		Details: details,
		Code:    e.Code,
		Message: e.Message,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodePaymentNotFound ||
		code == ErrorCodeRefundNotFound ||
		code == ErrorCodeSettlementNotFound ||
		code == ErrorCodeAdjustmentNotFound
}

// IsConflictError checks if an error represents a state conflict rejected after
// lock acquisition (no partial mutation occurred)
func IsConflictError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodePaymentInvalidState ||
		code == ErrorCodeRefundExceedsPayment ||
		code == ErrorCodeSettlementInvalidTransition ||
		code == ErrorCodeSettlementAlreadyExists
}

// IsValidationError checks if an error is a caller error rejected before any mutation
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodeRefundMissingIdemKey
}

// IsGatewayError checks if an error is a refund gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError ||
		code == ErrorCodeGatewayTimeout ||
		code == ErrorCodeGatewayDeclined
}

// Structured error instances
var (
	ErrPaymentNotFound     = NewDomainError(ErrorCodePaymentNotFound, "payment not found")
	ErrPaymentInvalidState = NewDomainError(ErrorCodePaymentInvalidState, "payment is not in a refundable state")

	ErrRefundExceedsPayment  = NewDomainError(ErrorCodeRefundExceedsPayment, "refund amount exceeds refundable balance")
	ErrMissingIdempotencyKey = NewDomainError(ErrorCodeRefundMissingIdemKey, "idempotency key is required")
	ErrRefundNotFound        = NewDomainError(ErrorCodeRefundNotFound, "refund not found")

	ErrSettlementNotFound          = NewDomainError(ErrorCodeSettlementNotFound, "settlement not found")
	ErrSettlementInvalidTransition = NewDomainError(ErrorCodeSettlementInvalidTransition, "settlement status transition not allowed")
	ErrSettlementAlreadyExists     = NewDomainError(ErrorCodeSettlementAlreadyExists, "settlement already exists for payment")

	ErrAdjustmentNotFound  = NewDomainError(ErrorCodeAdjustmentNotFound, "settlement adjustment not found")
	ErrAdjustmentDuplicate = NewDomainError(ErrorCodeAdjustmentDuplicate, "adjustment already exists for refund")

	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrGatewayError    = NewDomainError(ErrorCodeGatewayError, "refund gateway error")
	ErrGatewayTimedOut = NewDomainError(ErrorCodeGatewayTimeout, "refund gateway timeout")
	ErrGatewayDeclined = NewDomainError(ErrorCodeGatewayDeclined, "refund declined by gateway")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
