package solana_helpers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	errs "github.com/sol-hydraulics/multisender/service/errors"
)

var ErrAlreadyProcessed = errors.New("transaction already processed")

var alreadyProcessedPatterns = []string{
	"already been processed",
	"alreadyprocessed",
}

var blockhashPatterns = []string{
	"blockhash not found",
	"blockhashnotfound",
	"block height exceeded",
}

var insufficientFundsPatterns = []string{
	"insufficient funds",
	"insufficient lamports",
	"insufficientfundsforfee",
	"insufficientfundsforrent",
	"found no record of a prior credit",
	// spl token error 1 is InsufficientFunds
	"custom program error: 0x1\"",
	"custom program error: 0x1 ",
	`"custom":1}`,
}

var rejectedPatterns = []string{
	"signature verification",
	"invalid signature",
	"missing signature",
	"signaturefailure",
	"invalid transaction",
}

var networkPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"eof",
	"no such host",
	"too many requests",
	"bad gateway",
	"service unavailable",
	"rate limit",
	"node is behind",
	"node is unhealthy",
	"temporarily unavailable",
	"internal error",
	"internal server error",
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// IsAlreadyProcessed reports whether the cluster rejected a send because the
// exact same transaction was already processed.
func IsAlreadyProcessed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyProcessed) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), alreadyProcessedPatterns)
}

// Classify maps an RPC or wallet error to an error Kind.
// Errors already carrying a Kind are returned as is. Unknown errors are
// SubmissionRejected so they never consume retry budget.
func Classify(err error) *errs.Error {
	if err == nil {
		return nil
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, ErrWalletRejected):
		return errs.New(errs.KindWalletRejected, err)
	case errors.Is(err, ErrWalletDisconnected):
		return errs.New(errs.KindNetworkTimeout, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.New(errs.KindNetworkTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, blockhashPatterns):
		return errs.New(errs.KindBlockhashExpired, err)
	case containsAny(msg+" ", insufficientFundsPatterns):
		return errs.New(errs.KindInsufficientFunds, err)
	case containsAny(msg, rejectedPatterns):
		return errs.New(errs.KindSubmissionRejected, err)
	case containsAny(msg, networkPatterns):
		return errs.New(errs.KindNetworkTimeout, err)
	}

	return errs.New(errs.KindSubmissionRejected, err)
}

// ClassifyOnChain maps the execution error of a landed transaction, as
// returned in a signature status, to an error Kind.
func ClassifyOnChain(txErr interface{}) *errs.Error {
	raw, err := json.Marshal(txErr)
	if err != nil {
		return errs.Newf(errs.KindSubmissionRejected, "transaction failed: %v", txErr)
	}

	cause := errors.New("transaction failed: " + string(raw))
	msg := strings.ToLower(string(raw))
	switch {
	case containsAny(msg, insufficientFundsPatterns):
		return errs.New(errs.KindInsufficientFunds, cause)
	case containsAny(msg, blockhashPatterns):
		return errs.New(errs.KindBlockhashExpired, cause)
	}
	return errs.New(errs.KindSubmissionRejected, cause)
}
