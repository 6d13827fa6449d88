// Package memx is an in-process transport with the same contracts as the
// ZeroMQ one: strict request/reply alternation, receive timeouts on the reply
// side, and lossy prefix-filtered broadcast. Endpoints are plain keys, so
// "mem://setpoint" and "inproc://setpoint" name different sockets.
package memx

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeydtaylor/steeze-relay/pkg/transport"
)

const (
	// pending requests buffered per endpoint before Send blocks
	requestBacklog = 64
	// per-subscriber frames buffered before the broadcaster drops
	DefaultHWM = 1000
)

type exchange struct {
	payload []byte
	reply   chan []byte
}

type reqBus struct {
	bound bool
	reqs  chan *exchange
}

type pubBus struct {
	bound bool
	subs  map[*listener]struct{}
}

// Hub owns every endpoint of one in-process network.
type Hub struct {
	mu     sync.Mutex
	reqrep map[string]*reqBus
	pubsub map[string]*pubBus
	hwm    int
}

type Option func(*Hub)

// WithHWM sets the per-subscriber buffer size.
func WithHWM(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.hwm = n
		}
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		reqrep: map[string]*reqBus{},
		pubsub: map[string]*pubBus{},
		hwm:    DefaultHWM,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

var _ transport.Transport = (*Hub)(nil)

func (h *Hub) reqBusLocked(endpoint string) *reqBus {
	b, ok := h.reqrep[endpoint]
	if !ok {
		b = &reqBus{reqs: make(chan *exchange, requestBacklog)}
		h.reqrep[endpoint] = b
	}
	return b
}

func (h *Hub) pubBusLocked(endpoint string) *pubBus {
	b, ok := h.pubsub[endpoint]
	if !ok {
		b = &pubBus{subs: map[*listener]struct{}{}}
		h.pubsub[endpoint] = b
	}
	return b
}

func (h *Hub) DialRequest(_ context.Context, endpoint string) (transport.Requester, error) {
	h.mu.Lock()
	b := h.reqBusLocked(endpoint)
	h.mu.Unlock()
	return &requester{bus: b, closed: make(chan struct{})}, nil
}

func (h *Hub) BindReply(_ context.Context, endpoint string, timeout time.Duration) (transport.Replier, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := h.reqBusLocked(endpoint)
	if b.bound {
		return nil, fmt.Errorf("%w: %s", transport.ErrAddrInUse, endpoint)
	}
	b.bound = true
	return &replier{hub: h, bus: b, timeout: timeout, closed: make(chan struct{})}, nil
}

func (h *Hub) BindPublish(_ context.Context, endpoint string) (transport.Broadcaster, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := h.pubBusLocked(endpoint)
	if b.bound {
		return nil, fmt.Errorf("%w: %s", transport.ErrAddrInUse, endpoint)
	}
	b.bound = true
	return &broadcaster{hub: h, bus: b}, nil
}

func (h *Hub) DialSubscribe(_ context.Context, endpoint string, topic []byte) (transport.Listener, error) {
	l := &listener{
		hub:    h,
		filter: append([]byte(nil), topic...),
		ch:     make(chan frame, h.hwm),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	b := h.pubBusLocked(endpoint)
	b.subs[l] = struct{}{}
	l.bus = b
	h.mu.Unlock()
	return l, nil
}

// ---------- request side ----------

type requester struct {
	bus       *reqBus
	pending   *exchange
	closeOnce sync.Once
	closed    chan struct{}
}

func (r *requester) Send(ctx context.Context, payload []byte) error {
	if r.isClosed() {
		return transport.ErrClosed
	}
	if r.pending != nil {
		return fmt.Errorf("%w: send while a reply is outstanding", transport.ErrState)
	}
	ex := &exchange{payload: append([]byte(nil), payload...), reply: make(chan []byte, 1)}
	select {
	case r.bus.reqs <- ex:
		r.pending = ex
		return nil
	case <-r.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *requester) Recv(ctx context.Context) ([]byte, error) {
	if r.isClosed() {
		return nil, transport.ErrClosed
	}
	if r.pending == nil {
		return nil, fmt.Errorf("%w: recv before send", transport.ErrState)
	}
	select {
	case b := <-r.pending.reply:
		r.pending = nil
		return b, nil
	case <-r.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *requester) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

func (r *requester) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// ---------- reply side ----------

type replier struct {
	hub       *Hub
	bus       *reqBus
	timeout   time.Duration
	current   *exchange
	closeOnce sync.Once
	closed    chan struct{}
}

func (r *replier) Recv(ctx context.Context) ([]byte, error) {
	if r.isClosed() {
		return nil, transport.ErrClosed
	}
	if r.current != nil {
		return nil, fmt.Errorf("%w: recv before replying", transport.ErrState)
	}
	var expired <-chan time.Time
	if r.timeout > 0 {
		t := time.NewTimer(r.timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case ex := <-r.bus.reqs:
		r.current = ex
		return ex.payload, nil
	case <-expired:
		return nil, transport.ErrTimeout
	case <-r.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *replier) Send(_ context.Context, payload []byte) error {
	if r.isClosed() {
		return transport.ErrClosed
	}
	if r.current == nil {
		return fmt.Errorf("%w: reply without a request", transport.ErrState)
	}
	r.current.reply <- append([]byte(nil), payload...)
	r.current = nil
	return nil
}

func (r *replier) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.hub.mu.Lock()
		r.bus.bound = false
		r.hub.mu.Unlock()
	})
	return nil
}

func (r *replier) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// ---------- broadcast ----------

type frame struct {
	topic   []byte
	payload []byte
}

type broadcaster struct {
	hub    *Hub
	bus    *pubBus
	mu     sync.Mutex
	closed bool
}

func (b *broadcaster) Publish(_ context.Context, topic, payload []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	f := frame{topic: append([]byte(nil), topic...), payload: append([]byte(nil), payload...)}
	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()
	for l := range b.bus.subs {
		if !bytes.HasPrefix(f.topic, l.filter) {
			continue
		}
		select {
		case l.ch <- f:
		default: // subscriber at HWM; drop like a PUB socket
		}
	}
	return nil
}

func (b *broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.hub.mu.Lock()
		b.bus.bound = false
		b.hub.mu.Unlock()
	}
	return nil
}

type listener struct {
	hub       *Hub
	bus       *pubBus
	filter    []byte
	ch        chan frame
	closeOnce sync.Once
	closed    chan struct{}
}

func (l *listener) Recv(ctx context.Context) ([]byte, []byte, error) {
	select {
	case f := <-l.ch:
		return f.topic, f.payload, nil
	case <-l.closed:
		return nil, nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.hub.mu.Lock()
		delete(l.bus.subs, l)
		l.hub.mu.Unlock()
	})
	return nil
}
