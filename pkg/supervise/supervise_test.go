package supervise

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errBoom = errors.New("boom")

func TestNeverReturnsFirstError(t *testing.T) {
	var calls atomic.Int32
	err := Run(context.Background(), Spec{Name: "once"}, func(context.Context) error {
		calls.Add(1)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "once")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlwaysRestartsWithBackoff(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	err := Run(ctx, Spec{
		Name:       "flaky",
		Policy:     PolicyAlways,
		Backoff:    time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
		Log:        zap.New(core),
	}, func(ctx context.Context) error {
		if calls.Add(1) == 4 {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}
		return errBoom
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())

	entries := logs.FilterMessage("loop failed; restarting").All()
	require.Len(t, entries, 3)
	var backoffs []time.Duration
	for _, e := range entries {
		backoffs = append(backoffs, e.ContextMap()["backoff"].(time.Duration))
	}
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, backoffs)
}

func TestCancellationIsNotFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, Spec{Name: "stopped"}, func(ctx context.Context) error { return ctx.Err() })
	assert.NoError(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyNever, p)
	p, err = ParsePolicy("Always")
	require.NoError(t, err)
	assert.Equal(t, PolicyAlways, p)
	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}
