package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	timeoutErr := &net.OpError{Op: "dial", Err: &timeoutNetErr{}}

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"rate limited sentinel", ErrRateLimited, KindRateLimited},
		{"wrapped rate limit", fmt.Errorf("fetch: %w", ErrRateLimited), KindRateLimited},
		{"circuit open", ErrCircuitOpen, KindPermanent},
		{"context canceled", context.Canceled, KindPermanent},
		{"deadline exceeded", context.DeadlineExceeded, KindTransient},
		{"http 429", &StatusError{Provider: "p", Status: http.StatusTooManyRequests}, KindRateLimited},
		{"http 500", &StatusError{Provider: "p", Status: http.StatusInternalServerError}, KindTransient},
		{"http 503", &StatusError{Provider: "p", Status: http.StatusServiceUnavailable}, KindTransient},
		{"http 408", &StatusError{Provider: "p", Status: http.StatusRequestTimeout}, KindTransient},
		{"http 400", &StatusError{Provider: "p", Status: http.StatusBadRequest}, KindPermanent},
		{"http 404 unknown symbol", &StatusError{Provider: "p", Status: http.StatusNotFound}, KindPermanent},
		{"network op error", timeoutErr, KindTransient},
		{"decode failure", errors.New("unexpected end of JSON input"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorKindString(t *testing.T) {
	require.Equal(t, "rate_limited", KindRateLimited.String())
	require.Equal(t, "transient", KindTransient.String())
	require.Equal(t, "permanent", KindPermanent.String())
	require.Equal(t, "none", KindNone.String())
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Provider: "newswire", Status: 502, Body: "bad gateway"}
	require.Contains(t, err.Error(), "newswire")
	require.Contains(t, err.Error(), "502")
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }
