package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/metrics"
	"github.com/joeydtaylor/steeze-relay/pkg/queue"
	"github.com/joeydtaylor/steeze-relay/pkg/transport"
)

// Publisher drains a queue and broadcasts each message as [topic, payload].
type Publisher struct {
	tr       transport.Transport
	endpoint string
	topic    []byte
	out      *queue.Queue[codec.Message]
	cfg      loopConfig
}

func NewPublisher(tr transport.Transport, endpoint string, topic []byte, out *queue.Queue[codec.Message], opts ...Option) *Publisher {
	return &Publisher{
		tr:       tr,
		endpoint: endpoint,
		topic:    append([]byte(nil), topic...),
		out:      out,
		cfg:      newLoopConfig("publisher", opts),
	}
}

func (p *Publisher) Name() string { return p.cfg.name }

func (p *Publisher) Run(ctx context.Context) error {
	log := p.cfg.log
	sock, err := p.tr.BindPublish(ctx, p.endpoint)
	if err != nil {
		return fmt.Errorf("%w: bind %s: %w", ErrTransport, p.endpoint, err)
	}
	defer sock.Close()
	log.Info("publisher bound", zap.String("endpoint", p.endpoint), zap.ByteString("topic", p.topic))

	topic := string(p.topic)
	for {
		m, err := p.out.Get(ctx)
		if err != nil {
			log.Info("publisher stopped", zap.Error(err))
			return err
		}
		payload, err := codec.Encode(p.cfg.codec, m)
		if err != nil {
			log.Error("unencodable message", zap.Error(err))
			return err
		}
		if err := sock.Publish(ctx, p.topic, payload); err != nil {
			log.Error("publish failed", zap.Error(err))
			return fmt.Errorf("%w: publish %s: %w", ErrTransport, p.endpoint, err)
		}
		metrics.Published(p.cfg.name, topic)
	}
}

// Subscriber receives one topic and pushes decoded messages onto a queue.
// Topic matching is exact even though the socket filter is a prefix match.
type Subscriber struct {
	tr       transport.Transport
	endpoint string
	topic    []byte
	in       *queue.Queue[codec.Message]
	cfg      loopConfig
}

func NewSubscriber(tr transport.Transport, endpoint string, topic []byte, in *queue.Queue[codec.Message], opts ...Option) *Subscriber {
	return &Subscriber{
		tr:       tr,
		endpoint: endpoint,
		topic:    append([]byte(nil), topic...),
		in:       in,
		cfg:      newLoopConfig("subscriber", opts),
	}
}

func (s *Subscriber) Name() string { return s.cfg.name }

func (s *Subscriber) Run(ctx context.Context) error {
	log := s.cfg.log
	sock, err := s.tr.DialSubscribe(ctx, s.endpoint, s.topic)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %w", ErrTransport, s.endpoint, err)
	}
	defer sock.Close()
	log.Info("subscriber connected",
		zap.String("endpoint", s.endpoint),
		zap.ByteString("topic", s.topic),
		zap.Stringer("overflow", s.cfg.overflow),
	)

	topic := string(s.topic)
	for {
		got, payload, err := sock.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				log.Info("subscriber stopped", zap.Error(err))
				return err
			}
			log.Error("receive failed", zap.Error(err))
			return fmt.Errorf("%w: recv %s: %w", ErrTransport, s.endpoint, err)
		}
		if !bytes.Equal(got, s.topic) {
			metrics.Dropped(s.cfg.name, "topic_mismatch")
			continue
		}
		m, err := codec.Decode(s.cfg.codec, payload)
		if err != nil {
			log.Error("undecodable broadcast", zap.Error(err), zap.Int("bytes", len(payload)))
			return err
		}
		if err := s.push(ctx, m); err != nil {
			if ctx.Err() != nil {
				log.Info("subscriber stopped", zap.Error(err))
				return err
			}
			metrics.Dropped(s.cfg.name, "queue_full")
			log.Debug("inbound queue full; message dropped", zap.String("queue", s.in.Name()))
			continue
		}
		metrics.Received(s.cfg.name, topic)
	}
}

func (s *Subscriber) push(ctx context.Context, m codec.Message) error {
	if s.cfg.overflow == OverflowBlock {
		return s.in.Put(ctx, m)
	}
	return s.in.TryPut(m)
}
