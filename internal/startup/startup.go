// Package startup bounds the time between process start and a usable
// connection.
package startup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrStartupTimeout is wrapped by *TimeoutError.
var ErrStartupTimeout = errors.New("startup timeout")

// TimeoutError names the step that was still running when the deadline passed.
type TimeoutError struct {
	Step    string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %q did not finish, %s since start", ErrStartupTimeout, e.Step, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return ErrStartupTimeout }

// Step is one stage of startup.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Sequence runs steps in order. Each step's context expires at deadline; if
// the deadline passes while a step is running, the step is abandoned and a
// *TimeoutError is returned whatever the earlier steps achieved. began is
// the instant the process started resolving configuration.
func Sequence(ctx context.Context, began, deadline time.Time, steps ...Step) error {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for _, s := range steps {
		if time.Now().After(deadline) {
			return &TimeoutError{Step: s.Name, Elapsed: time.Since(began)}
		}

		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && !time.Now().Before(deadline) {
					return &TimeoutError{Step: s.Name, Elapsed: time.Since(began)}
				}
				return fmt.Errorf("%s: %w", s.Name, err)
			}
			log.Debug().Str("step", s.Name).Dur("elapsed", time.Since(began)).Msg("startup step done")
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &TimeoutError{Step: s.Name, Elapsed: time.Since(began)}
			}
			return ctx.Err()
		}
	}
	return nil
}
