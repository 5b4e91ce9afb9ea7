package auth

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an authenticated request may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig sets the budget for one service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter keeps a token bucket per subject, sized by the
// subject's service tier. State lives in process memory, so limits apply
// per replica rather than globally.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
}

func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		buckets:    make(map[string]*rate.Limiter),
	}
}

// Allow consumes one token from the subject's bucket. Tiers configured
// with RequestsPerMinute <= 0 are unlimited.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}
	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	if !l.bucket(identity.Subject+":"+tier, rpm).Allow() {
		return ErrTooManyRequests
	}
	return nil
}

// bucket returns the limiter for key, creating it on first use. The bucket
// refills at rpm/60 per second and bursts up to the full minute budget.
func (l *InProcessLimiter) bucket(key string, rpm int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
		l.buckets[key] = b
	}
	return b
}
