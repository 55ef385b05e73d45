// Package ratelimit caps publish-mutation frequency per caller class with
// fixed one-hour window counters: anonymous traffic keyed by network
// address, authenticated traffic keyed by user identity.
//
// Counters are local to a single running instance. This is an accepted
// approximation: cross-instance exactness is an explicit non-goal.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/anyproto/any-sync/app"

	"github.com/instanthost/publish-server/publishclient/publishapi"
)

const CName = "ratelimit"

const window = time.Hour

type Config struct {
	AnonymousPerHour     int `yaml:"anonymousPerHour"`
	AuthenticatedPerHour int `yaml:"authenticatedPerHour"`
}

type configGetter interface {
	GetLimits() Config
}

func New() Service {
	return &rateLimiter{
		anonymous:     map[string]*counter{},
		authenticated: map[string]*counter{},
		now:           time.Now,
	}
}

type Service interface {
	// Check consumes one slot from the caller's counter, or fails with
	// ErrRateLimitExceeded leaving every counter untouched. An empty
	// identity selects the anonymous counter keyed by addr.
	Check(identity, addr string) error
	app.ComponentRunnable
}

type counter struct {
	windowStart time.Time
	count       int
}

type rateLimiter struct {
	mu            sync.Mutex
	anonymous     map[string]*counter
	authenticated map[string]*counter
	conf          Config
	now           func() time.Time
	cancel        context.CancelFunc
}

func (l *rateLimiter) Init(a *app.App) (err error) {
	l.conf = a.MustComponent("config").(configGetter).GetLimits()
	if l.conf.AnonymousPerHour <= 0 {
		l.conf.AnonymousPerHour = 5
	}
	if l.conf.AuthenticatedPerHour <= 0 {
		l.conf.AuthenticatedPerHour = 60
	}
	return
}

func (l *rateLimiter) Name() (name string) {
	return CName
}

func (l *rateLimiter) Run(ctx context.Context) (err error) {
	var cleanupCtx context.Context
	cleanupCtx, l.cancel = context.WithCancel(context.Background())
	go l.cleanup(cleanupCtx)
	return
}

func (l *rateLimiter) Check(identity, addr string) error {
	if identity != "" {
		return l.check(l.authenticated, identity, l.conf.AuthenticatedPerHour)
	}
	return l.check(l.anonymous, addr, l.conf.AnonymousPerHour)
}

func (l *rateLimiter) check(counters map[string]*counter, key string, limit int) error {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	c := counters[key]
	if c == nil || now.Sub(c.windowStart) >= window {
		counters[key] = &counter{windowStart: now, count: 1}
		return nil
	}
	if c.count >= limit {
		return publishapi.ErrRateLimitExceeded
	}
	c.count++
	return nil
}

// cleanup evicts counters whose window has lapsed so idle keys do not
// accumulate.
func (l *rateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(window / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := l.now()
			l.mu.Lock()
			for _, counters := range []map[string]*counter{l.anonymous, l.authenticated} {
				for key, c := range counters {
					if now.Sub(c.windowStart) >= window {
						delete(counters, key)
					}
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *rateLimiter) Close(ctx context.Context) (err error) {
	if l.cancel != nil {
		l.cancel()
	}
	return
}
