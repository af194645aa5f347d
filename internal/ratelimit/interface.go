package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownFunction is returned when no policy is configured for a function name.
	ErrUnknownFunction = errors.New("no rate limit policy for function")

	// ErrStoreUnavailable wraps any failure of the backing store. Callers fail closed.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

type Limiter interface {
	Check(ctx context.Context, userID, function string) (Decision, error)
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Key identifies one counter.
type Key struct {
	UserID   string
	Function string
}

type Policy struct {
	Limit  int
	Window time.Duration
}

// Hit is the counter state right after a check.
type Hit struct {
	Allowed     bool
	Count       int
	WindowStart time.Time
}

// Store runs a whole check (lookup, reset or increment) for one key.
type Store interface {
	Hit(ctx context.Context, key Key, policy Policy, now time.Time) (Hit, error)
}
