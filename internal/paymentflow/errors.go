package paymentflow

import "fmt"

// Code classifies the error kinds enumerated in spec §7. None of them
// propagate as unhandled faults — every operation that can fail returns a
// *FlowError rather than panicking. AddressCollision and an unsupported
// network are programmer errors; they are returned the same way, with
// Fatal set.
type Code string

const (
	CodeUnknownPayment        Code = "unknown_payment"
	CodeUnsupportedNetwork    Code = "unsupported_network"
	CodeUnsupportedCurrency   Code = "unsupported_currency"
	CodeDuplicatePayment      Code = "duplicate_payment"
	CodeAddressCollision      Code = "address_collision"
	CodeInvalidTxHash         Code = "invalid_tx_hash"
	CodeInvalidTransition     Code = "invalid_transition"
	CodeVersionMismatch       Code = "version_mismatch"
	CodeNotYetExpired         Code = "not_yet_expired"
	CodeNotExpirable          Code = "not_expirable"
)

// FlowError is the structured error type every paymentflow operation
// returns. Grounded on the teacher's ChainError: a code, a message, an
// optional wrapped cause, and a Fatal bit for the handful of conditions
// (address collision, unsupported network) that are programmer errors rather than recoverable
// user-level failures.
type FlowError struct {
	Code    Code
	Message string
	Cause   error
	Fatal   bool
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

func newError(code Code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func newFatalError(code Code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...), Fatal: true}
}

func wrapError(code Code, cause error, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsUnknownPayment reports whether err is a FlowError of CodeUnknownPayment.
func IsUnknownPayment(err error) bool {
	return hasCode(err, CodeUnknownPayment)
}

// IsVersionMismatch reports whether err is a FlowError of
// CodeVersionMismatch.
func IsVersionMismatch(err error) bool {
	return hasCode(err, CodeVersionMismatch)
}

func hasCode(err error, code Code) bool {
	fe, ok := err.(*FlowError)
	return ok && fe.Code == code
}
