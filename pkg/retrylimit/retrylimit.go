// Package retrylimit retries calls to rate-limited remote APIs with bounded
// exponential backoff, pacing them through a limiter that slows down when the
// remote side pushes back.
//
//	lim := retrylimit.NewLimiter(5, 1, 20)
//	err := retrylimit.Do(ctx, lim, retrylimit.DefaultPolicy(), func(ctx context.Context) error {
//	    return createCommand(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrMaxAttempts is returned, wrapping the last error, when every attempt failed.
var ErrMaxAttempts = errors.New("max attempts exceeded")

// HTTPError is implemented by errors that carry an HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// RetryAfterError is implemented by errors that say how long the server
// wants the client to wait.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// FatalError stops retrying at once.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Fatal marks err as not worth retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Throttles reports whether err means the remote side is overloaded: a 429
// or any 5xx.
func Throttles(err error) bool {
	var h HTTPError
	if !errors.As(err, &h) {
		return false
	}
	code := h.StatusCode()
	return code == http.StatusTooManyRequests || code >= 500 && code < 600
}

// Policy bounds how a call is retried.
type Policy struct {
	// Attempts is the total number of calls, the first one included.
	Attempts int
	// Backoff is the wait after the first failure. It grows by Factor after
	// each further failure, up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	Factor     float64
	// Jitter adds up to this fraction of the wait at random. 0 disables it.
	Jitter float64
	// Slow decides which errors slow the limiter down; nil means Throttles.
	Slow    func(error) bool
	OnRetry func(attempt int, err error)
}

// DefaultPolicy makes three attempts, waiting about 500ms then 1s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
		Factor:     2,
		Jitter:     0.25,
	}
}

// Delay is the wait after the given failed attempt, counting from 1. A
// server supplied Retry-After takes over when it is longer.
func (p Policy) Delay(attempt int, err error) time.Duration {
	d := time.Duration(float64(p.Backoff) * math.Pow(max(p.Factor, 1), float64(attempt-1)))
	if p.MaxBackoff > 0 {
		d = min(d, p.MaxBackoff)
	}

	var ra RetryAfterError
	if errors.As(err, &ra) && ra.RetryAfter() > d {
		return ra.RetryAfter()
	}
	if p.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

// Do calls fn until it succeeds, returns a FatalError, ctx ends or the
// policy runs out of attempts. A nil limiter does not pace calls.
func Do(ctx context.Context, lim *Limiter, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	slow := p.Slow
	if slow == nil {
		slow = Throttles
	}

	var last error
	for attempt := 1; ; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			lim.ok()
			return nil
		}
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return fatal.Err
		}
		if slow(err) {
			lim.throttle()
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		last = err
		if attempt >= attempts {
			break
		}

		wait := p.Delay(attempt, err)
		log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("remote call failed, retrying")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w (last error: %w)", ctx.Err(), last)
		case <-t.C:
		}
	}
	return fmt.Errorf("%w (%d): %w", ErrMaxAttempts, attempts, last)
}

// Limiter paces calls. Its rate halves when the remote side throttles and
// creeps back up by one call per second on success once things have been
// calm for a while.
type Limiter struct {
	mu          sync.Mutex
	lim         *rate.Limiter
	floor, ceil rate.Limit
	calm        time.Duration
	throttledAt time.Time
}

// NewLimiter starts at start calls per second and stays within [floor, ceil].
func NewLimiter(start, floor, ceil rate.Limit) *Limiter {
	floor = max(floor, 1)
	ceil = max(ceil, floor)
	start = min(max(start, floor), ceil)
	return &Limiter{
		lim:   rate.NewLimiter(start, burst(start)),
		floor: floor,
		ceil:  ceil,
		calm:  10 * time.Second,
	}
}

func burst(r rate.Limit) int { return max(1, int(r)) }

// Wait blocks until the next call may go out.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.lim.Wait(ctx)
}

// Limit is the current rate in calls per second.
func (l *Limiter) Limit() rate.Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lim.Limit()
}

func (l *Limiter) ok() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.throttledAt) > l.calm {
		l.set(l.lim.Limit() + 1)
	}
}

func (l *Limiter) throttle() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.throttledAt = time.Now()
	l.set(l.lim.Limit() / 2)
}

func (l *Limiter) set(r rate.Limit) {
	r = min(max(r, l.floor), l.ceil)
	if r != l.lim.Limit() {
		l.lim.SetLimit(r)
		l.lim.SetBurst(burst(r))
	}
}
