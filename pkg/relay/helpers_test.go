package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/queue"
)

type runner interface {
	Run(ctx context.Context) error
}

// start runs r in a goroutine; the returned channel yields Run's error.
func start(t *testing.T, r runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not return")
		return nil
	}
}

func newQ(name string, capacity int) *queue.Queue[codec.Message] {
	return queue.New[codec.Message](name, capacity)
}

// recorder is a handler that remembers every request it served.
type recorder struct {
	mu    sync.Mutex
	seen  []codec.Message
	delay time.Duration
}

func (r *recorder) handle(_ context.Context, req codec.Message) (codec.Message, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.seen = append(r.seen, req)
	r.mu.Unlock()
	return req, nil
}

func (r *recorder) requests() []codec.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]codec.Message(nil), r.seen...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func getWithin(t *testing.T, q *queue.Queue[codec.Message], d time.Duration) codec.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	m, err := q.Get(ctx)
	require.NoError(t, err, "nothing arrived on %s", q.Name())
	return m
}
