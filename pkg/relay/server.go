package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/metrics"
	"github.com/joeydtaylor/steeze-relay/pkg/transport"
)

// DefaultReceiveTimeout is the reply server receive timeout when none is given.
const DefaultReceiveTimeout = 2000 * time.Millisecond

// Handler maps one decoded request to its reply. It runs on the server's
// goroutine, so no other exchange or timeout tick is serviced until it returns.
type Handler func(ctx context.Context, req codec.Message) (codec.Message, error)

// ReplyServer binds an endpoint and answers each request with handler's result.
type ReplyServer struct {
	tr       transport.Transport
	endpoint string
	handler  Handler
	timeout  time.Duration
	cfg      loopConfig
}

func NewReplyServer(tr transport.Transport, endpoint string, h Handler, timeout time.Duration, opts ...Option) *ReplyServer {
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	return &ReplyServer{
		tr:       tr,
		endpoint: endpoint,
		handler:  h,
		timeout:  timeout,
		cfg:      newLoopConfig("server", opts),
	}
}

func (s *ReplyServer) Name() string { return s.cfg.name }

// Run serves until ctx is done. Receive timeouts are routine and only logged;
// bind failures, socket errors, undecodable requests and handler errors close
// the socket and are returned.
func (s *ReplyServer) Run(ctx context.Context) error {
	log := s.cfg.log
	sock, err := s.tr.BindReply(ctx, s.endpoint, s.timeout)
	if err != nil {
		return fmt.Errorf("%w: bind %s: %w", ErrTransport, s.endpoint, err)
	}
	defer sock.Close()
	log.Info("reply server listening", zap.String("endpoint", s.endpoint), zap.Duration("timeout", s.timeout))

	for {
		raw, err := sock.Recv(ctx)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrTimeout):
			metrics.ServerTimeout(s.cfg.name)
			log.Debug("timed out")
			continue
		case ctx.Err() != nil:
			log.Info("reply server stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		default:
			log.Error("receive failed", zap.Error(err))
			return fmt.Errorf("%w: recv %s: %w", ErrTransport, s.endpoint, err)
		}

		reply, err := s.serve(ctx, raw)
		if err != nil {
			log.Error("request not served", zap.Error(err))
			return err
		}
		if err := sock.Send(ctx, reply); err != nil {
			log.Error("send failed", zap.Error(err))
			return fmt.Errorf("%w: send %s: %w", ErrTransport, s.endpoint, err)
		}
		metrics.ServerReplied(s.cfg.name)
	}
}

func (s *ReplyServer) serve(ctx context.Context, raw []byte) ([]byte, error) {
	req, err := codec.Decode(s.cfg.codec, raw)
	if err != nil {
		return nil, err
	}
	hctx := ctx
	if s.cfg.handlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, s.cfg.handlerTimeout)
		defer cancel()
	}
	resp, err := s.handler(hctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandler, err)
	}
	return codec.Encode(s.cfg.codec, resp)
}
