package domain

import (
	"fmt"
	"time"
)

// ErrorKind classifies trade failures for the calling layer.
type ErrorKind string

const (
	// ErrInvalidRequest - malformed input (non-positive shares, unknown side)
	ErrInvalidRequest ErrorKind = "invalid_request"
	// ErrCompanyNotFound - unknown company ID
	ErrCompanyNotFound ErrorKind = "company_not_found"
	// ErrInsufficientFunds - buy exceeds cash balance
	ErrInsufficientFunds ErrorKind = "insufficient_funds"
	// ErrInsufficientShares - sell exceeds total held shares
	ErrInsufficientShares ErrorKind = "insufficient_shares"
	// ErrSharesLocked - sell exceeds sellable (vesting-adjusted) shares
	ErrSharesLocked ErrorKind = "shares_locked"
	// ErrContention - per-company serialization could not be acquired in time
	ErrContention ErrorKind = "contention"
	// ErrStorageFailure - underlying ledger store error
	ErrStorageFailure ErrorKind = "storage_failure"
)

// TradeError is a typed trade failure. Validation and insufficiency
// failures never mutate ledger state; Retryable marks the kinds the
// caller may safely retry.
type TradeError struct {
	Details   map[string]interface{} `json:"details,omitempty"`
	Kind      ErrorKind              `json:"kind"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	cause     error
}

func (e *TradeError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause (storage failures only).
func (e *TradeError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest reports malformed trade input.
func NewInvalidRequest(message string) *TradeError {
	return &TradeError{
		Kind:    ErrInvalidRequest,
		Message: message,
	}
}

// NewCompanyNotFound reports an unknown company ID.
func NewCompanyNotFound(companyID string) *TradeError {
	return &TradeError{
		Kind:    ErrCompanyNotFound,
		Message: fmt.Sprintf("company %q not found", companyID),
		Details: map[string]interface{}{
			"company_id": companyID,
		},
	}
}

// NewInsufficientFunds reports a buy that exceeds the cash balance.
// Required and available are decimal strings so the calling layer can
// show exact numbers.
func NewInsufficientFunds(required, available string) *TradeError {
	return &TradeError{
		Kind:    ErrInsufficientFunds,
		Message: fmt.Sprintf("insufficient funds: trade requires %s, balance is %s", required, available),
		Details: map[string]interface{}{
			"required":  required,
			"available": available,
		},
	}
}

// NewInsufficientShares reports a sell that exceeds total held shares.
func NewInsufficientShares(held, requested int64) *TradeError {
	return &TradeError{
		Kind:    ErrInsufficientShares,
		Message: fmt.Sprintf("insufficient shares: holding %d, sell requested %d", held, requested),
		Details: map[string]interface{}{
			"held":      held,
			"requested": requested,
		},
	}
}

// NewSharesLocked reports a sell that exceeds the sellable
// (vesting-adjusted) share count. nextUnlock is nil when no future
// tranche exists (data inconsistency edge).
func NewSharesLocked(sellable, locked, requested int64, nextUnlock *time.Time) *TradeError {
	msg := fmt.Sprintf("%d shares are locked by vesting: %d sellable, sell requested %d", locked, sellable, requested)
	details := map[string]interface{}{
		"sellable":  sellable,
		"locked":    locked,
		"requested": requested,
		"shortfall": requested - sellable,
	}
	if nextUnlock != nil {
		msg += fmt.Sprintf(", next tranche unlocks %s", nextUnlock.UTC().Format("2006-01-02"))
		details["next_unlock"] = nextUnlock.UTC().Format(time.RFC3339)
	}
	return &TradeError{
		Kind:    ErrSharesLocked,
		Message: msg,
		Details: details,
	}
}

// NewContention reports that the per-company serialization scope could
// not be acquired within the configured timeout.
func NewContention(companyID string, waited time.Duration) *TradeError {
	return &TradeError{
		Kind:      ErrContention,
		Message:   fmt.Sprintf("trade for company %q timed out waiting for serialization after %s", companyID, waited),
		Retryable: true,
		Details: map[string]interface{}{
			"company_id": companyID,
			"waited_ms":  waited.Milliseconds(),
		},
	}
}

// NewStorageFailure wraps a ledger store error. The transaction is
// guaranteed to have rolled back, so a retry is always safe.
func NewStorageFailure(err error) *TradeError {
	return &TradeError{
		Kind:      ErrStorageFailure,
		Message:   fmt.Sprintf("ledger store failure: %v", err),
		Retryable: true,
		cause:     err,
	}
}
