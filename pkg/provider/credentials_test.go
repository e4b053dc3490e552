package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCredentialPoolAcquireOrder(t *testing.T) {
	clock := newFakeClock()
	pool := NewCredentialPool([]string{"key-a", "key-b", "key-c"}, clock)
	require.Equal(t, 3, pool.Size())

	// Never-failed credentials come first; after a failure the credential
	// moves to the back of the preference order.
	first := pool.Acquire()
	require.NotNil(t, first)
	require.Equal(t, "key-a", first.Token)

	pool.Report(first, CredentialFailed)
	clock.Advance(time.Second)

	second := pool.Acquire()
	require.NotNil(t, second)
	require.NotEqual(t, first.Token, second.Token)
}

func TestCredentialPoolUnhealthyAfterConsecutiveFailures(t *testing.T) {
	clock := newFakeClock()
	pool := NewCredentialPool([]string{"only"}, clock)
	cred := pool.Acquire()
	require.NotNil(t, cred)

	for i := 0; i < DefaultCredentialFailures; i++ {
		pool.Report(cred, CredentialFailed)
	}
	require.Nil(t, pool.Acquire(), "credential must cool down after the failure threshold")
	require.Equal(t, 0, pool.HealthyCount())

	clock.Advance(DefaultCredentialCooldown)
	require.NotNil(t, pool.Acquire(), "credential must recover after the cooldown")
}

func TestCredentialPoolRateLimitCoolsDownImmediately(t *testing.T) {
	clock := newFakeClock()
	pool := NewCredentialPool([]string{"a", "b"}, clock)

	cred := pool.Acquire()
	pool.Report(cred, CredentialRateLimited)

	next := pool.Acquire()
	require.NotNil(t, next)
	require.NotEqual(t, cred.Token, next.Token, "rate-limited credential rotates out without retry")

	pool.Report(next, CredentialRateLimited)
	require.Nil(t, pool.Acquire(), "all credentials rate limited leaves none to acquire")
}

func TestCredentialPoolSuccessResetsFailureStreak(t *testing.T) {
	clock := newFakeClock()
	pool := NewCredentialPool([]string{"only"}, clock)
	cred := pool.Acquire()

	pool.Report(cred, CredentialFailed)
	pool.Report(cred, CredentialFailed)
	pool.Report(cred, CredentialOK)
	pool.Report(cred, CredentialFailed)
	pool.Report(cred, CredentialFailed)

	require.NotNil(t, pool.Acquire(), "success must clear the consecutive-failure count")
}

func TestCredentialPoolSkipsEmptyTokens(t *testing.T) {
	pool := NewCredentialPool([]string{"", "real", ""}, nil)
	require.Equal(t, 1, pool.Size())
	require.Equal(t, "real", pool.Acquire().Token)
}

func TestCredentialPoolAnonymousWhenNoTokens(t *testing.T) {
	clock := newFakeClock()
	pool := NewCredentialPool(nil, clock)
	require.Equal(t, 1, pool.Size())

	cred := pool.Acquire()
	require.NotNil(t, cred, "a token-less pool still serves an anonymous credential")
	require.Empty(t, cred.Token)

	// The anonymous credential is subject to the same health rules.
	pool.Report(cred, CredentialRateLimited)
	require.Nil(t, pool.Acquire())
	clock.Advance(DefaultCredentialCooldown)
	require.NotNil(t, pool.Acquire())
}
