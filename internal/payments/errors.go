package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnknownGateway is returned for a gateway selector outside
// {mpesa, stripe}.
var ErrUnknownGateway = errors.New("unknown payment gateway")

// GatewayError wraps a non-2xx or malformed provider response. The raw
// provider body is kept for logging only; handlers never show it to the
// payer.
type GatewayError struct {
	Gateway    string
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed: http=%d body=%s", e.Gateway, e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Gateway, e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying failure was a timeout, so callers
// can distinguish a slow provider from a rejecting one.
func (e *GatewayError) Timeout() bool {
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
