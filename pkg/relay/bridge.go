package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/metrics"
	"github.com/joeydtaylor/steeze-relay/pkg/queue"
	"github.com/joeydtaylor/steeze-relay/pkg/transport"
)

// RequestBridge turns a one-exchange-at-a-time request socket into a
// queue-fed service. Bursts are coalesced: only the newest queued request is
// sent, and each reply is offered to the outbound queue without blocking.
type RequestBridge struct {
	tr       transport.Transport
	endpoint string
	in       *queue.Queue[codec.Message]
	out      *queue.Queue[codec.Message]
	cfg      loopConfig
}

func NewRequestBridge(tr transport.Transport, endpoint string, in, out *queue.Queue[codec.Message], opts ...Option) *RequestBridge {
	return &RequestBridge{
		tr:       tr,
		endpoint: endpoint,
		in:       in,
		out:      out,
		cfg:      newLoopConfig("bridge", opts),
	}
}

func (b *RequestBridge) Name() string { return b.cfg.name }

// Run owns the connection until ctx is done or an exchange fails. Transport
// and decode failures close the socket and are returned; a REQ socket is not
// reusable after a broken exchange, so recovery is a fresh Run.
func (b *RequestBridge) Run(ctx context.Context) error {
	log := b.cfg.log
	sock, err := b.tr.DialRequest(ctx, b.endpoint)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %w", ErrTransport, b.endpoint, err)
	}
	defer sock.Close()
	log.Info("request bridge started", zap.String("endpoint", b.endpoint))

	for {
		req, err := b.in.Get(ctx)
		if err != nil {
			log.Info("request bridge stopped", zap.Error(err))
			return err
		}
		// Newest wins: anything queued behind req is stale by now.
		coalesced := 0
		if last, n, ok := b.in.Drain(); ok {
			req, coalesced = last, n
		}

		payload, err := codec.Encode(b.cfg.codec, req)
		if err != nil {
			return err
		}
		start := time.Now()
		if err := sock.Send(ctx, payload); err != nil {
			return b.exchangeErr(ctx, "send", err)
		}
		metrics.RequestSent(b.cfg.name, coalesced)
		if coalesced > 0 {
			log.Debug("coalesced queued requests", zap.Int("discarded", coalesced))
		}

		raw, err := sock.Recv(ctx)
		if err != nil {
			return b.exchangeErr(ctx, "recv", err)
		}
		metrics.ReplyReceived(b.cfg.name, time.Since(start))

		reply, err := codec.Decode(b.cfg.codec, raw)
		if err != nil {
			log.Error("undecodable reply", zap.Error(err), zap.Int("bytes", len(raw)))
			return err
		}
		if err := b.out.TryPut(reply); err != nil {
			metrics.ReplyDropped(b.cfg.name)
			log.Debug("outbound queue full; reply dropped", zap.String("queue", b.out.Name()))
		}
	}
}

func (b *RequestBridge) exchangeErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.cfg.log.Info("request bridge stopped", zap.Error(err))
		return err
	}
	b.cfg.log.Error("exchange failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s %s: %w", ErrTransport, op, b.endpoint, err)
}
