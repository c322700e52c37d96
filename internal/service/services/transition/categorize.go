package transition

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Category buckets a failed contract write for display.
type Category string

const (
	CategoryUserCancelled     Category = "user_cancelled"
	CategoryInsufficientFunds Category = "insufficient_funds"
	CategoryNetwork           Category = "network"
	CategoryGeneric           Category = "generic"
)

// Failure is a categorized write failure with a message fit for end users.
type Failure struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Categorize maps a raw write error onto a failure category. Signer backends
// report rejection and balance problems as plain strings, so matching is on
// the message text.
func Categorize(err error) Failure {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "user denied"),
		strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "cancelled by user"):
		return Failure{
			Category: CategoryUserCancelled,
			Message:  "Transaction was cancelled.",
		}
	case strings.Contains(msg, "insufficient funds"):
		return Failure{
			Category: CategoryInsufficientFunds,
			Message:  "Insufficient funds to cover the transaction.",
		}
	case isNetworkError(err, msg):
		return Failure{
			Category: CategoryNetwork,
			Message:  "Network error while sending the transaction. Please try again.",
		}
	default:
		return Failure{
			Category: CategoryGeneric,
			Message:  "Transaction failed. Please try again.",
		}
	}
}

func isNetworkError(err error, msg string) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	for _, marker := range []string{"connection refused", "connection reset", "timeout", "no such host", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
