package ton

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies wallet bridge failures.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	Cancelled
	Rejected
	NetworkError
)

func (k ErrorKind) String() string {
	switch k {
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	case NetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// Bridge error codes reported by TON Connect wallets.
const (
	BridgeUnknown            = 0
	BridgeBadRequest         = 1
	BridgeUnknownApp         = 100
	BridgeUserRejects        = 300
	BridgeMethodNotSupported = 400
)

// WalletError is a typed wallet bridge failure.
type WalletError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *WalletError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("wallet %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("wallet %s: %v", e.Kind, e.Err)
	}
	return "wallet " + e.Kind.String()
}

func (e *WalletError) Unwrap() error { return e.Err }

// FromBridge converts a wallet bridge error report into a WalletError.
// Only the message of code 0 is inspected, since closing the wallet modal carries no code.
func FromBridge(code int, message string) *WalletError {
	we := &WalletError{Code: code, Message: message}
	switch code {
	case BridgeUserRejects:
		we.Kind = Rejected
	case BridgeBadRequest, BridgeUnknownApp, BridgeMethodNotSupported:
		we.Kind = Unknown
	default:
		lower := strings.ToLower(message)
		switch {
		case strings.Contains(lower, "cancel"), strings.Contains(lower, "closed"):
			we.Kind = Cancelled
		case strings.Contains(lower, "reject"), strings.Contains(lower, "declin"):
			we.Kind = Rejected
		case strings.Contains(lower, "timeout"), strings.Contains(lower, "network"):
			we.Kind = NetworkError
		}
	}
	return we
}

// Classify returns the kind of err.
func Classify(err error) ErrorKind {
	if err == nil {
		return Unknown
	}
	var we *WalletError
	if errors.As(err, &we) {
		return we.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return NetworkError
	}
	return Unknown
}

// NotifyLevel maps a kind to the notification severity shown to the user.
func NotifyLevel(kind ErrorKind) string {
	if kind == Cancelled {
		return "info"
	}
	return "error"
}
