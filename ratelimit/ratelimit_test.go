package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instanthost/publish-server/publishclient/publishapi"
)

func newTestLimiter(anon, authed int) (*rateLimiter, *time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New().(*rateLimiter)
	l.conf = Config{AnonymousPerHour: anon, AuthenticatedPerHour: authed}
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheck_AnonymousCap(t *testing.T) {
	l, _ := newTestLimiter(5, 60)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("", "1.2.3.4"), "call %d", i+1)
	}
	assert.ErrorIs(t, l.Check("", "1.2.3.4"), publishapi.ErrRateLimitExceeded)
	// other callers are unaffected
	assert.NoError(t, l.Check("", "5.6.7.8"))
}

func TestCheck_AuthenticatedCapIsSeparate(t *testing.T) {
	l, _ := newTestLimiter(5, 60)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("", "1.2.3.4"))
	}
	require.ErrorIs(t, l.Check("", "1.2.3.4"), publishapi.ErrRateLimitExceeded)
	// the same machine with an identity draws from the authenticated pool
	for i := 0; i < 60; i++ {
		require.NoError(t, l.Check("user1", "1.2.3.4"), "call %d", i+1)
	}
	assert.ErrorIs(t, l.Check("user1", "1.2.3.4"), publishapi.ErrRateLimitExceeded)
}

func TestCheck_WindowReset(t *testing.T) {
	l, now := newTestLimiter(2, 60)
	require.NoError(t, l.Check("", "1.2.3.4"))
	require.NoError(t, l.Check("", "1.2.3.4"))
	require.ErrorIs(t, l.Check("", "1.2.3.4"), publishapi.ErrRateLimitExceeded)

	// just short of the window the counter still holds
	*now = now.Add(window - time.Second)
	require.ErrorIs(t, l.Check("", "1.2.3.4"), publishapi.ErrRateLimitExceeded)

	*now = now.Add(2 * time.Second)
	assert.NoError(t, l.Check("", "1.2.3.4"))
}

func TestCheck_DeniedCallConsumesNothing(t *testing.T) {
	l, now := newTestLimiter(1, 60)
	require.NoError(t, l.Check("", "1.2.3.4"))
	for i := 0; i < 10; i++ {
		require.ErrorIs(t, l.Check("", "1.2.3.4"), publishapi.ErrRateLimitExceeded)
	}
	// denials did not extend or refill the window
	*now = now.Add(window)
	assert.NoError(t, l.Check("", "1.2.3.4"))
}

func TestCheck_ManyKeys(t *testing.T) {
	l, _ := newTestLimiter(1, 60)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Check("", fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Len(t, l.anonymous, 100)
}
