package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why a recipient or a batch failed.
type Kind string

const (
	KindInsufficientFunds   Kind = "InsufficientFunds"
	KindWalletRejected      Kind = "WalletRejected"
	KindAccountLookupFailed Kind = "AccountLookupFailed"
	KindInstructionTooLarge Kind = "InstructionTooLarge"
	KindBlockhashExpired    Kind = "BlockhashExpired"
	KindNetworkTimeout      Kind = "NetworkTimeout"
	KindConfirmationTimeout Kind = "ConfirmationTimeout"
	KindSubmissionRejected  Kind = "SubmissionRejected"
)

// Retryable reports whether the Submission Engine may spend retry budget on
// errors of this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindBlockhashExpired, KindNetworkTimeout:
		return true
	}
	return false
}

type Error struct {
	Kind Kind
	Err  error
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Newf(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, a...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable is false for nil errors and errors without a Kind.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.Retryable()
}

type NilConfigError struct{}

func (e *NilConfigError) Error() string {
	return "MainConfig can not be nil"
}
