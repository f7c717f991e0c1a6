package gateway

import (
	"errors"
	"fmt"
)

// GatewayError indicates a transport, auth, or server-side failure talking
// to the remote store. Cached data must not be cleared because of one.
type GatewayError struct {
	Op         string
	Collection string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s %s: status %d: %s", e.Op, e.Collection, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("gateway %s %s: %s", e.Op, e.Collection, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NotFoundError indicates a single-row query matched zero rows.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Collection, e.ID)
}

// SubscriptionError indicates the push channel could not be established or
// was dropped. It is silent to the user; the router reconnects with backoff
// and interval polling covers the gap.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
