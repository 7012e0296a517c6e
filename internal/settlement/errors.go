package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Definite failures: the transfer did not and will not happen.
var (
	ErrRejected          = errors.New("transfer rejected")
	ErrInsufficientFunds = errors.New("insufficient funds in treasury wallet")
	ErrUnavailable       = errors.New("settlement unavailable, nothing was sent")
	ErrInvalidAddress    = errors.New("invalid destination address")
)

// Indeterminate failures: the transfer may or may not have been applied.
var (
	ErrTimeout = errors.New("transfer timed out before confirmation")
	ErrNetwork = errors.New("connection lost before confirmation")
)

// IsIndeterminate reports whether err leaves the transfer outcome unknown.
func IsIndeterminate(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork)
}

// classifyBeforeSend maps failures that happen before the transaction is
// broadcast. Nothing left the process, so every outcome is definite.
func classifyBeforeSend(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "exceeds balance"):
		return fmt.Errorf("%s: %w: %v", op, ErrInsufficientFunds, err)
	case strings.Contains(msg, "execution reverted"):
		return fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
}

// classifySend maps failures returned by the node while broadcasting or
// awaiting the receipt.
func classifySend(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%s: %w: %v", op, ErrInsufficientFunds, err)
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "underpriced"),
		strings.Contains(msg, "intrinsic gas"),
		strings.Contains(msg, "exceeds block gas limit"),
		strings.Contains(msg, "invalid sender"):
		return fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrNetwork, err)
	}
}
