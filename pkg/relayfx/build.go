package relayfx

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/config"
	"github.com/joeydtaylor/steeze-relay/pkg/queue"
	"github.com/joeydtaylor/steeze-relay/pkg/relay"
	"github.com/joeydtaylor/steeze-relay/pkg/supervise"
	"github.com/joeydtaylor/steeze-relay/pkg/transport"
)

// loop is one manifest entry ready to run under supervise.
type loop struct {
	spec supervise.Spec
	run  supervise.Loop
}

// Runtime is the set of loops built from a manifest plus the queues they share.
type Runtime struct {
	Queues *queue.Registry[codec.Message]

	loops  []loop
	health *health
}

// Names lists the loops in manifest order: servers, publishers, bridges, subscribers.
func (r *Runtime) Names() []string {
	out := make([]string, len(r.loops))
	for i, l := range r.loops {
		out[i] = l.spec.Name
	}
	return out
}

// Unhealthy reports loops that last returned an error and have not been restarted.
func (r *Runtime) Unhealthy() map[string]string { return r.health.snapshot() }

// Build declares the manifest queues and constructs every loop against tr.
// Binding loops come first so dialing loops find their peers on start.
func Build(cfg config.Config, tr transport.Transport, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rt := &Runtime{Queues: queue.NewRegistry[codec.Message](), health: newHealth()}
	for _, q := range cfg.Queues {
		if _, err := rt.Queues.Declare(q.Name, q.Capacity); err != nil {
			return nil, err
		}
	}

	for _, s := range cfg.Servers {
		opts, err := loopOptions(s.Loop, log)
		if err != nil {
			return nil, err
		}
		h, err := handlerFor(s.Handler, log.With(zap.String("loop", s.Name)))
		if err != nil {
			return nil, err
		}
		if s.HandlerTimeoutMS > 0 {
			opts = append(opts, relay.WithHandlerTimeout(ms(s.HandlerTimeoutMS)))
		}
		timeout := relay.DefaultReceiveTimeout
		if s.TimeoutMS > 0 {
			timeout = ms(s.TimeoutMS)
		}
		srv := relay.NewReplyServer(tr, s.Endpoint, h, timeout, opts...)
		rt.add(s.Loop, log, srv.Run)
	}
	for _, p := range cfg.Publishers {
		opts, err := loopOptions(p.Loop, log)
		if err != nil {
			return nil, err
		}
		q, err := rt.queue(p.Name, p.Queue)
		if err != nil {
			return nil, err
		}
		pub := relay.NewPublisher(tr, p.Endpoint, []byte(p.Topic), q, opts...)
		rt.add(p.Loop, log, pub.Run)
	}
	for _, b := range cfg.Bridges {
		opts, err := loopOptions(b.Loop, log)
		if err != nil {
			return nil, err
		}
		in, err := rt.queue(b.Name, b.Inbound)
		if err != nil {
			return nil, err
		}
		out, err := rt.queue(b.Name, b.Outbound)
		if err != nil {
			return nil, err
		}
		br := relay.NewRequestBridge(tr, b.Endpoint, in, out, opts...)
		rt.add(b.Loop, log, br.Run)
	}
	for _, s := range cfg.Subscribers {
		opts, err := loopOptions(s.Loop, log)
		if err != nil {
			return nil, err
		}
		ov, err := relay.ParseOverflow(s.Overflow)
		if err != nil {
			return nil, fmt.Errorf("subscriber %q: %w", s.Name, err)
		}
		q, err := rt.queue(s.Name, s.Queue)
		if err != nil {
			return nil, err
		}
		sub := relay.NewSubscriber(tr, s.Endpoint, []byte(s.Topic), q, append(opts, relay.WithOverflow(ov))...)
		rt.add(s.Loop, log, sub.Run)
	}
	return rt, nil
}

// queue resolves a declared queue; loops never get an implicitly created one.
func (rt *Runtime) queue(loop, name string) (*queue.Queue[codec.Message], error) {
	q, ok := rt.Queues.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s: queue %q not declared", loop, name)
	}
	return q, nil
}

func (rt *Runtime) add(l config.Loop, log *zap.Logger, run supervise.Loop) {
	spec := l.RestartSpec()
	spec.Log = log
	name := l.Name
	rt.loops = append(rt.loops, loop{spec: spec, run: func(ctx context.Context) error {
		rt.health.clear(name)
		err := run(ctx)
		if err != nil && ctx.Err() == nil {
			rt.health.fail(name, err)
		}
		return err
	}})
}

func loopOptions(l config.Loop, log *zap.Logger) ([]relay.Option, error) {
	cd, err := codec.ByName(l.Codec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.Name, err)
	}
	return []relay.Option{relay.WithName(l.Name), relay.WithLogger(log), relay.WithCodec(cd)}, nil
}

// handlerFor resolves a registered handler; "ack" logs to the relay's own sink.
func handlerFor(name string, log *zap.Logger) (relay.Handler, error) {
	if name == "" || name == "ack" {
		return relay.AckHandler(log), nil
	}
	h, ok := relay.LookupHandler(name)
	if !ok {
		return nil, fmt.Errorf("handler %q not registered", name)
	}
	return h, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

type health struct {
	mu     sync.Mutex
	failed map[string]string
}

func newHealth() *health { return &health{failed: map[string]string{}} }

func (h *health) fail(name string, err error) {
	h.mu.Lock()
	h.failed[name] = err.Error()
	h.mu.Unlock()
}

func (h *health) clear(name string) {
	h.mu.Lock()
	delete(h.failed, name)
	h.mu.Unlock()
}

func (h *health) snapshot() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.failed)
}
