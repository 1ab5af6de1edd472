package tipjar

import (
	"errors"
	"fmt"
)

// Code is the numeric error code callers of the ledger observe.
type Code uint32

const (
	CodeUnauthorized      Code = 100
	CodeAlreadyRegistered Code = 101
	CodeNotRegistered     Code = 102
	CodeInvalidAmount     Code = 103
	CodeTransferFailed    Code = 104
	CodeInvalidName       Code = 105
	CodeMessageTooLong    Code = 106
)

// Error is a rejected ledger operation. Every rejection leaves state untouched.
type Error struct {
	Code Code
	Name string
	msg  string
}

func (e *Error) Error() string { return "tipjar: " + e.msg }

var (
	ErrUnauthorized      = &Error{Code: CodeUnauthorized, Name: "unauthorized", msg: "tipper and recipient must differ"}
	ErrAlreadyRegistered = &Error{Code: CodeAlreadyRegistered, Name: "already-registered", msg: "account already registered"}
	ErrNotRegistered     = &Error{Code: CodeNotRegistered, Name: "not-registered", msg: "account not registered"}
	ErrInvalidAmount     = &Error{Code: CodeInvalidAmount, Name: "invalid-amount", msg: fmt.Sprintf("amount must be between %d and %d", MinTipAmount, MaxTipAmount)}
	ErrTransferFailed    = &Error{Code: CodeTransferFailed, Name: "transfer-failed", msg: "token transfer failed"}
	ErrInvalidName       = &Error{Code: CodeInvalidName, Name: "invalid-name", msg: fmt.Sprintf("display name must be 1-%d characters", MaxDisplayNameLength)}
	ErrMessageTooLong    = &Error{Code: CodeMessageTooLong, Name: "message-too-long", msg: fmt.Sprintf("message exceeds %d characters", MaxMessageLength)}
)

// CodeOf extracts the ledger error code from err, if it carries one.
func CodeOf(err error) (Code, bool) {
	var ledgerErr *Error
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Code, true
	}
	return 0, false
}

func transferFailed(cause error) error {
	return fmt.Errorf("%w: %v", ErrTransferFailed, cause)
}
