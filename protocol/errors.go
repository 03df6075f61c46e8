package protocol

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	KISR_ERR_INVALID_CODE       ErrorCode = "KISR_ERR_INVALID_CODE"
	KISR_ERR_INVALID_DEEPLINK   ErrorCode = "KISR_ERR_INVALID_DEEPLINK"
	KISR_ERR_PAYLOAD_INVALID    ErrorCode = "KISR_ERR_PAYLOAD_INVALID"
	KISR_ERR_DECRYPTION_FAILED  ErrorCode = "KISR_ERR_DECRYPTION_FAILED"
	KISR_ERR_INSUFFICIENT_FUNDS ErrorCode = "KISR_ERR_INSUFFICIENT_FUNDS"
	KISR_ERR_UTXO_NOT_FOUND     ErrorCode = "KISR_ERR_UTXO_NOT_FOUND"
	KISR_ERR_FEE_TOO_HIGH       ErrorCode = "KISR_ERR_FEE_TOO_HIGH"
	KISR_ERR_NETWORK_MISMATCH   ErrorCode = "KISR_ERR_NETWORK_MISMATCH"
	KISR_ERR_CRYPTO_UNAVAILABLE ErrorCode = "KISR_ERR_CRYPTO_UNAVAILABLE"
	KISR_ERR_ADAPTER            ErrorCode = "KISR_ERR_ADAPTER"
)

// Error is the single error type surfaced by every KISR operation. Err carries
// the adapter or backend failure behind KISR_ERR_ADAPTER and
// KISR_ERR_CRYPTO_UNAVAILABLE.
type Error struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports a match against another *Error by code alone, so
// errors.Is(err, &Error{Code: KISR_ERR_FEE_TOO_HIGH}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func kerr(code ErrorCode, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// NewError builds an *Error for packages layered on top of protocol.
func NewError(code ErrorCode, msg string) error {
	return kerr(code, msg)
}

// WrapError attaches cause to a coded error. A cause that already carries a
// KISR code is returned unchanged.
func WrapError(code ErrorCode, msg string, cause error) error {
	if cause == nil {
		return kerr(code, msg)
	}
	var ke *Error
	if errors.As(cause, &ke) {
		return cause
	}
	return &Error{Code: code, Msg: msg, Err: cause}
}

// AdapterError wraps a wallet or node failure.
func AdapterError(op string, cause error) error {
	return WrapError(KISR_ERR_ADAPTER, op, cause)
}

// CodeOf extracts the KISR code from err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code, true
	}
	return "", false
}

// HasCode reports whether err carries code.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
