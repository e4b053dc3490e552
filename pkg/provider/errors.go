package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrRateLimited signals the provider refused the call on quota grounds.
	// Not a fault: the caller rotates credential or skips the provider.
	ErrRateLimited = errors.New("provider: rate limited")

	// ErrCircuitOpen is a local decision to skip a degraded provider
	// without making a network call.
	ErrCircuitOpen = errors.New("provider: circuit open")
)

// ErrorKind buckets a call failure for retry/failover decisions.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindRateLimited
	KindTransient
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// StatusError carries a provider HTTP status outside the 2xx range.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d: %s", e.Provider, e.Status, e.Body)
}

// Classify maps an adapter error onto the retry taxonomy. Rate limits rotate
// credentials, transient errors retry with backoff on the same credential,
// permanent errors abandon the unit for this provider.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, ErrRateLimited) {
		return KindRateLimited
	}
	if errors.Is(err, ErrCircuitOpen) {
		return KindPermanent
	}
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Status == http.StatusTooManyRequests:
			return KindRateLimited
		case statusErr.Status == http.StatusRequestTimeout:
			return KindTransient
		case statusErr.Status >= 500:
			return KindTransient
		case statusErr.Status >= 400:
			return KindPermanent
		default:
			return KindTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}

	// Malformed-but-retryable responses land here.
	return KindTransient
}
