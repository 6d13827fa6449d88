package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/queue"
	"github.com/joeydtaylor/steeze-relay/pkg/transport"
	"github.com/joeydtaylor/steeze-relay/pkg/transport/memx"
)

func publish(t *testing.T, b transport.Broadcaster, topic string, m codec.Message) {
	t.Helper()
	payload, err := codec.Encode(codec.JSON, m)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), []byte(topic), payload))
}

// settle publishes probes until the subscriber loop is connected, then empties
// q until no stragglers arrive.
func settle(t *testing.T, b transport.Broadcaster, topic string, q *queue.Queue[codec.Message]) {
	t.Helper()
	probe, err := codec.Encode(codec.JSON, codec.Message{"probe": true})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_ = b.Publish(context.Background(), []byte(topic), probe)
		return q.Len() > 0
	}, 2*time.Second, 5*time.Millisecond)
	for {
		time.Sleep(20 * time.Millisecond)
		if _, n, _ := q.Drain(); n == 0 {
			return
		}
	}
}

func TestSubscriberIgnoresOtherTopics(t *testing.T) {
	hub := memx.New()
	out := newQ("out", 64)
	in := newQ("in", 64)
	start(t, NewPublisher(hub, "mem://news", []byte("B"), out))
	start(t, NewSubscriber(hub, "mem://news", []byte("A"), in))

	raw, err := hub.BindPublish(context.Background(), "mem://raw")
	require.NoError(t, err)
	subIn := newQ("raw-in", 64)
	start(t, NewSubscriber(hub, "mem://raw", []byte("A"), subIn))
	settle(t, raw, "A", subIn)

	for i := 0; i < 5; i++ {
		require.NoError(t, out.TryPut(codec.Message{"from": "B"}))
		publish(t, raw, "B", codec.Message{"from": "B"})
		publish(t, raw, "AB", codec.Message{"from": "AB"})
		publish(t, raw, "A", codec.Message{"from": "A", "i": float64(i)})
	}
	for i := 0; i < 5; i++ {
		m := getWithin(t, subIn, time.Second)
		assert.Equal(t, "A", m["from"])
		assert.Equal(t, float64(i), m["i"])
	}
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, subIn.Len())
	assert.Zero(t, in.Len(), "subscriber to A saw a B broadcast")
}

func TestPublisherToSubscriberRoundTrip(t *testing.T) {
	hub := memx.New()
	out, in := newQ("out", 64), newQ("in", 64)
	start(t, NewSubscriber(hub, "mem://telemetry", []byte("pose"), in, WithCodec(codec.CBOR)))
	start(t, NewPublisher(hub, "mem://telemetry", []byte("pose"), out, WithCodec(codec.CBOR)))

	want := codec.Message{"x": 1.5, "y": -2.25, "frame": "map"}
	require.Eventually(t, func() bool {
		_ = out.TryPut(want)
		return in.Len() > 0
	}, 2*time.Second, 10*time.Millisecond)

	got := getWithin(t, in, time.Second)
	assert.Equal(t, want, got)
}

func TestSubscriberOverflowPolicies(t *testing.T) {
	for _, tc := range []struct {
		policy    Overflow
		delivered bool
	}{
		{OverflowDrop, false},
		{OverflowBlock, true},
	} {
		t.Run(tc.policy.String(), func(t *testing.T) {
			hub := memx.New()
			pub, err := hub.BindPublish(context.Background(), "mem://ov")
			require.NoError(t, err)
			in := newQ("in", 1)
			start(t, NewSubscriber(hub, "mem://ov", []byte("t"), in, WithOverflow(tc.policy)))
			settle(t, pub, "t", in)

			publish(t, pub, "t", codec.Message{"n": "first"})
			require.Eventually(t, func() bool { return in.Len() == 1 }, time.Second, 5*time.Millisecond)
			publish(t, pub, "t", codec.Message{"n": "second"})
			time.Sleep(50 * time.Millisecond)

			first, err := in.TryGet()
			require.NoError(t, err)
			assert.Equal(t, "first", first["n"])

			time.Sleep(50 * time.Millisecond)
			second, err := in.TryGet()
			if tc.delivered {
				require.NoError(t, err)
				assert.Equal(t, "second", second["n"])
			} else {
				assert.ErrorIs(t, err, queue.ErrEmpty)
			}
		})
	}
}

func TestSubscriberReportsUndecodablePayload(t *testing.T) {
	hub := memx.New()
	pub, err := hub.BindPublish(context.Background(), "mem://junk")
	require.NoError(t, err)
	in := newQ("in", 4)
	_, errc := start(t, NewSubscriber(hub, "mem://junk", []byte("t"), in))

	require.Eventually(t, func() bool {
		_ = pub.Publish(context.Background(), []byte("t"), []byte("\x00\x01"))
		select {
		case err := <-errc:
			assert.ErrorIs(t, err, codec.ErrDecode)
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestParseOverflow(t *testing.T) {
	o, err := ParseOverflow("")
	require.NoError(t, err)
	assert.Equal(t, OverflowDrop, o)
	o, err = ParseOverflow("block")
	require.NoError(t, err)
	assert.Equal(t, OverflowBlock, o)
	_, err = ParseOverflow("spill")
	assert.Error(t, err)
}
