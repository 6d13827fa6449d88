// Package supervise runs a relay loop under a restart policy. Loops return
// on the first fatal error; whether that ends the process or triggers a fresh
// Run is decided here, not inside the loop.
package supervise

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/metrics"
)

type Policy int

const (
	// PolicyNever returns the loop's first error to the caller.
	PolicyNever Policy = iota
	// PolicyAlways restarts the loop after a backoff until ctx is done.
	PolicyAlways
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never":
		return PolicyNever, nil
	case "always":
		return PolicyAlways, nil
	}
	return PolicyNever, fmt.Errorf("supervise: unknown restart policy %q", s)
}

func (p Policy) String() string {
	if p == PolicyAlways {
		return "always"
	}
	return "never"
}

type Spec struct {
	Name       string
	Policy     Policy
	Backoff    time.Duration // first restart delay, default 500ms
	MaxBackoff time.Duration // cap for the doubling delay, default 30s
	Log        *zap.Logger
}

// Loop is the shape of every relay Run method.
type Loop func(ctx context.Context) error

// Run blocks until loop finishes for good. A return caused by ctx
// cancellation yields nil.
func Run(ctx context.Context, s Spec, loop Loop) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("loop", s.Name), zap.Stringer("restart", s.Policy))
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxBackoff := s.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := loop(ctx)
		if ctx.Err() != nil && (err == nil || errors.Is(err, ctx.Err())) {
			return nil
		}
		if err == nil {
			err = errors.New("loop returned without error")
		}
		metrics.LoopFailed(s.Name)
		if s.Policy == PolicyNever {
			log.Error("loop failed", zap.Error(err))
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		log.Warn("loop failed; restarting", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
