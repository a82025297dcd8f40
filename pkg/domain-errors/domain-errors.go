// Package domainerrors defines the typed error vocabulary shared across the
// engine. Services attach a stable machine-readable code; the HTTP layer maps
// codes to status codes without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error category.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"
)

// Engine-specific conflict and ledger codes. Each one is distinguishable so
// callers can render an accurate message instead of a generic failure.
const (
	CodeDuplicateIdentity       Code = "duplicate_identity"
	CodeDuplicateWallet         Code = "duplicate_wallet"
	CodeWalletInUse             Code = "wallet_in_use"
	CodeDuplicateCertificate    Code = "duplicate_certificate"
	CodeAlreadyRevoked          Code = "already_revoked"
	CodeDuplicatePendingRequest Code = "duplicate_pending_request"
	CodeAlreadyResolved         Code = "already_resolved"
	CodeNotAuthorizedIssuer     Code = "not_authorized_issuer"
	CodeLedgerUnavailable       Code = "ledger_unavailable"
	CodeLedgerRejected          Code = "ledger_rejected"
)

// Error is a coded domain error. Message is safe for API responses; Err holds
// the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code, so errors.Is(err, &Error{Code: CodeNotFound})
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New builds a coded error with a caller-facing message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause. If err already
// carries a domain code, that code is preserved so translation layers do not
// overwrite a more specific classification.
func Wrap(err error, code Code, message string) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: message, Err: err}
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
