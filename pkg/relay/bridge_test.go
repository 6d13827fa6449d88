package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/transport/memx"
)

func TestBridgeCoalescesBurstBehindSlowServer(t *testing.T) {
	hub := memx.New()
	rec := &recorder{delay: 200 * time.Millisecond}
	start(t, NewReplyServer(hub, "mem://slow", rec.handle, 50*time.Millisecond))

	in, out := newQ("in", 64), newQ("out", 64)
	start(t, NewRequestBridge(hub, "mem://slow", in, out, WithName("coalesce")))

	for i := 0; i < 10; i++ {
		require.NoError(t, in.TryPut(codec.Message{"test": float64(i)}))
	}

	var replies []codec.Message
	for {
		m := getWithin(t, out, 5*time.Second)
		replies = append(replies, m)
		if m["test"] == float64(9) {
			break
		}
	}
	// nothing else is in flight once 9 came back
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, out.Len())

	assert.Less(t, len(replies), 10)
	assert.Equal(t, float64(9), replies[len(replies)-1]["test"])

	sent := rec.requests()
	assert.LessOrEqual(t, len(sent), 10)
	assert.Len(t, replies, len(sent))
	assert.Equal(t, float64(9), sent[len(sent)-1]["test"])
	for i := 1; i < len(sent); i++ {
		assert.Less(t, sent[i-1]["test"].(float64), sent[i]["test"].(float64), "sent requests must keep enqueue order")
	}
}

func TestBridgeRepliesInRequestOrder(t *testing.T) {
	hub := memx.New()
	rec := &recorder{}
	start(t, NewReplyServer(hub, "mem://order", rec.handle, 50*time.Millisecond))

	in, out := newQ("in", 4), newQ("out", 16)
	start(t, NewRequestBridge(hub, "mem://order", in, out))

	for i := 0; i < 5; i++ {
		require.NoError(t, in.TryPut(codec.Message{"seq": float64(i)}))
		got := getWithin(t, out, 2*time.Second)
		assert.Equal(t, float64(i), got["seq"])
	}
	assert.Equal(t, 5, rec.count())
}

func TestBridgeDropsReplyWhenOutboundFull(t *testing.T) {
	hub := memx.New()
	rec := &recorder{}
	start(t, NewReplyServer(hub, "mem://full", rec.handle, 50*time.Millisecond))

	in, out := newQ("in", 4), newQ("out", 1)
	start(t, NewRequestBridge(hub, "mem://full", in, out))

	for i := 1; i <= 3; i++ {
		require.NoError(t, in.TryPut(codec.Message{"n": float64(i)}))
		require.Eventually(t, func() bool { return rec.count() == i }, 2*time.Second, 5*time.Millisecond,
			"bridge stalled on a full outbound queue")
	}
	assert.Equal(t, 1, out.Len())
	m, err := out.TryGet()
	require.NoError(t, err)
	assert.Equal(t, float64(1), m["n"])
}

func TestBridgeReportsUndecodableReply(t *testing.T) {
	ctx := context.Background()
	hub := memx.New()
	rep, err := hub.BindReply(ctx, "mem://garbage", time.Second)
	require.NoError(t, err)
	go func() {
		if _, err := rep.Recv(ctx); err == nil {
			_ = rep.Send(ctx, []byte("{not json"))
		}
	}()

	in, out := newQ("in", 1), newQ("out", 1)
	_, errc := start(t, NewRequestBridge(hub, "mem://garbage", in, out))
	require.NoError(t, in.TryPut(codec.Message{"x": "y"}))

	err = waitErr(t, errc)
	assert.ErrorIs(t, err, codec.ErrDecode)
	assert.Zero(t, out.Len())
}

func TestBridgeStopsOnCancel(t *testing.T) {
	hub := memx.New()
	in, out := newQ("in", 1), newQ("out", 1)
	cancel, errc := start(t, NewRequestBridge(hub, "mem://idle", in, out))
	cancel()
	assert.ErrorIs(t, waitErr(t, errc), context.Canceled)
}

func TestBridgeCancelWhileAwaitingReply(t *testing.T) {
	ctx := context.Background()
	hub := memx.New()
	rep, err := hub.BindReply(ctx, "mem://mute", time.Second)
	require.NoError(t, err)
	received := make(chan struct{})
	go func() {
		if _, err := rep.Recv(ctx); err == nil {
			close(received)
		}
	}()

	in, out := newQ("in", 1), newQ("out", 1)
	cancel, errc := start(t, NewRequestBridge(hub, "mem://mute", in, out))
	require.NoError(t, in.TryPut(codec.Message{}))
	<-received
	cancel()

	err = waitErr(t, errc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTransport)
}
