package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"moodify-server-go/internal/domain/ratelimit/store"
	apperrors "moodify-server-go/internal/platform/errors"
)

// MsgTooManyAttempts is returned to throttled login callers.
const MsgTooManyAttempts = "Too many login attempts, please try again later"

const (
	defaultMaxAttempts     = 5
	defaultWindow          = 15 * time.Minute
	defaultCleanupInterval = time.Minute
	minCleanupInterval     = time.Second
)

// Logger provides the minimal logging contract required by the limiter.
type Logger interface {
	Debug(format string, args ...any)
	Warn(format string, args ...any)
}

// Options encapsulates the dependencies required to construct a Limiter.
type Options struct {
	Store           store.Store
	Logger          Logger
	MaxAttempts     int
	Window          time.Duration
	CleanupInterval time.Duration
	// Now overrides the clock used for retry hints.
	Now func() time.Time
}

// Decision is the outcome of one counted attempt.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the time left in the window, rounded up to whole seconds.
	RetryAfter time.Duration
}

// Limiter bounds attempts per client key in fixed windows. Every attempt
// counts, whatever its outcome, and windows never close early.
type Limiter struct {
	store       store.Store
	logger      Logger
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupOnce     sync.Once
}

// NewLimiter wires a Limiter and starts its background cleanup.
func NewLimiter(opts Options) (*Limiter, error) {
	if opts.Store == nil {
		return nil, errors.New("rate limiter requires a store")
	}
	if opts.Logger == nil {
		return nil, errors.New("rate limiter requires a logger")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	window := opts.Window
	if window <= 0 {
		window = defaultWindow
	}
	cleanupInterval := opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	} else if cleanupInterval < minCleanupInterval {
		opts.Logger.Warn("cleanup interval too small, adjusting to %v", minCleanupInterval)
		cleanupInterval = minCleanupInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		store:           opts.Store,
		logger:          opts.Logger,
		maxAttempts:     maxAttempts,
		window:          window,
		now:             now,
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
	}
	go l.runCleanup()
	return l, nil
}

func (l *Limiter) runCleanup() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.store.CleanupExpired(context.Background()); err != nil {
				l.logger.Warn("rate limit cleanup failed: %v", err)
			}
		case <-l.cleanupStop:
			return
		}
	}
}

// Allow counts one attempt for key. A store failure is returned as a
// KindStorage error and the caller must not treat the attempt as allowed.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	w, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return Decision{}, apperrors.Wrap(apperrors.KindStorage, "ratelimit.allow", "rate limit store unavailable", err)
	}

	decision := Decision{
		Allowed:   w.Count <= l.maxAttempts,
		Limit:     l.maxAttempts,
		Remaining: l.maxAttempts - w.Count,
		ResetAt:   w.ExpiresAt,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if left := w.ExpiresAt.Sub(l.now()); left > 0 {
		decision.RetryAfter = left.Truncate(time.Second)
		if decision.RetryAfter < left {
			decision.RetryAfter += time.Second
		}
	}
	if !decision.Allowed {
		l.logger.Debug("rate limit exceeded for %s (%d/%d)", key, w.Count, l.maxAttempts)
	}
	return decision, nil
}

// Reset forgets the window of key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Limit returns the attempts allowed per window.
func (l *Limiter) Limit() int {
	return l.maxAttempts
}

// Window returns the window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Stats returns debug information from the store backend.
func (l *Limiter) Stats(ctx context.Context) (map[string]any, error) {
	stats, err := l.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats["limit"] = l.maxAttempts
	stats["window_seconds"] = int(l.window.Seconds())
	return stats, nil
}

// Close stops the cleanup loop and releases the store.
func (l *Limiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.cleanupStop)
	})
	if err := l.store.Close(context.Background()); err != nil {
		l.logger.Warn("failed closing rate limit store: %v", err)
		return err
	}
	return nil
}

// ThrottledError builds the error returned for a denied decision.
func ThrottledError() error {
	return apperrors.New(apperrors.KindRateLimit, "ratelimit.allow", MsgTooManyAttempts)
}
