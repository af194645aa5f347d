package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/metrics"
)

// PolicySource looks up the policy for a function name.
type PolicySource func(function string) (Policy, bool)

// StaticPolicies serves a fixed policy table.
func StaticPolicies(policies map[string]Policy) PolicySource {
	return func(function string) (Policy, bool) {
		p, ok := policies[function]
		return p, ok
	}
}

// ConfigPolicies reads the policy table from the live config on every call so
// a hot reload applies to the next request.
func ConfigPolicies(store *config.Store) PolicySource {
	return func(function string) (Policy, bool) {
		cfg := store.Get()
		if cfg == nil {
			return Policy{}, false
		}
		p, ok := cfg.Policy(function)
		if !ok {
			return Policy{}, false
		}
		return Policy{Limit: p.Limit, Window: p.Window}, true
	}
}

type FixedWindowLimiter struct {
	store    Store
	policies PolicySource
	now      func() time.Time
}

func NewFixedWindow(store Store, policies PolicySource) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		store:    store,
		policies: policies,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Tests only.
func (f *FixedWindowLimiter) WithClock(now func() time.Time) *FixedWindowLimiter {
	f.now = now
	return f
}

func (f *FixedWindowLimiter) Check(ctx context.Context, userID, function string) (Decision, error) {
	policy, ok := f.policies(function)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownFunction, function)
	}

	hit, err := f.store.Hit(ctx, Key{UserID: userID, Function: function}, policy, f.now())
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(function, "error").Inc()
		return Decision{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	decision := Decision{
		Allowed: hit.Allowed,
		Limit:   policy.Limit,
		ResetAt: hit.WindowStart.Add(policy.Window),
	}

	if hit.Allowed {
		// A lowered limit after a hot reload can leave the count above it.
		decision.Remaining = max(policy.Limit-hit.Count, 0)
		metrics.RateLimitDecisions.WithLabelValues(function, "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(function, "denied").Inc()
	}

	return decision, nil
}
