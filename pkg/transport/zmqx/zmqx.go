// Package zmqx implements the relay transport contracts on ZeroMQ
// REQ/REP/PUB/SUB sockets. Each Transport owns one zmq context; inproc://
// endpoints only see sockets created from the same Transport.
package zmqx

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/transport"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultHWM          = 1000
)

type Transport struct {
	zctx         *zmq.Context
	pollInterval time.Duration
	hwm          int
	linger       time.Duration
	log          *zap.Logger
}

type Option func(*Transport)

// WithPollInterval bounds how long a blocked call goes without checking ctx.
func WithPollInterval(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithHWM sets send and receive high-water marks on every socket.
func WithHWM(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.hwm = n
		}
	}
}

func WithLinger(d time.Duration) Option { return func(t *Transport) { t.linger = d } }

func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

func New(opts ...Option) (*Transport, error) {
	zctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("zmq context: %w", err)
	}
	t := &Transport{
		zctx:         zctx,
		pollInterval: defaultPollInterval,
		hwm:          defaultHWM,
		log:          zap.NewNop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close terminates the zmq context. All sockets must be closed first.
func (t *Transport) Close() error { return t.zctx.Term() }

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) newSocket(kind zmq.Type) (*zmq.Socket, error) {
	s, err := t.zctx.NewSocket(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s socket: %w", kind, err)
	}
	if err = s.SetLinger(t.linger); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to set linger: %w", err)
	}
	if err = s.SetSndhwm(t.hwm); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to set send high watermark: %w", err)
	}
	if err = s.SetRcvhwm(t.hwm); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to set receive high watermark: %w", err)
	}
	return s, nil
}

func (t *Transport) DialRequest(_ context.Context, endpoint string) (transport.Requester, error) {
	s, err := t.newSocket(zmq.REQ)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(endpoint); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	t.log.Debug("zmq REQ connected", zap.String("endpoint", endpoint))
	return &requester{sock: newSock(s, t.pollInterval)}, nil
}

func (t *Transport) BindReply(_ context.Context, endpoint string, timeout time.Duration) (transport.Replier, error) {
	s, err := t.newSocket(zmq.REP)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		if err := s.SetRcvtimeo(timeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set receive timeout: %w", err)
		}
	}
	if err := s.Bind(endpoint); err != nil {
		s.Close()
		return nil, bindErr(endpoint, err)
	}
	t.log.Debug("zmq REP bound", zap.String("endpoint", endpoint), zap.Duration("timeout", timeout))
	return &replier{sock: newSock(s, t.pollInterval), timeout: timeout}, nil
}

func (t *Transport) BindPublish(_ context.Context, endpoint string) (transport.Broadcaster, error) {
	s, err := t.newSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := s.Bind(endpoint); err != nil {
		s.Close()
		return nil, bindErr(endpoint, err)
	}
	t.log.Debug("zmq PUB bound", zap.String("endpoint", endpoint))
	return &broadcaster{sock: newSock(s, t.pollInterval)}, nil
}

func (t *Transport) DialSubscribe(_ context.Context, endpoint string, topic []byte) (transport.Listener, error) {
	s, err := t.newSocket(zmq.SUB)
	if err != nil {
		return nil, err
	}
	if err := s.SetSubscribe(string(topic)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", topic, err)
	}
	if err := s.Connect(endpoint); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	t.log.Debug("zmq SUB connected", zap.String("endpoint", endpoint), zap.ByteString("topic", topic))
	return &listener{sock: newSock(s, t.pollInterval)}, nil
}

func bindErr(endpoint string, err error) error {
	if zmq.AsErrno(err) == zmq.Errno(syscall.EADDRINUSE) {
		return fmt.Errorf("%w: %s", transport.ErrAddrInUse, endpoint)
	}
	return fmt.Errorf("failed to bind to %s: %w", endpoint, err)
}

// ---------- socket wrapper ----------

type sock struct {
	s      *zmq.Socket
	poller *zmq.Poller
	tick   time.Duration
	closed bool
}

func newSock(s *zmq.Socket, tick time.Duration) *sock {
	p := zmq.NewPoller()
	p.Add(s, zmq.POLLIN)
	return &sock{s: s, poller: p, tick: tick}
}

// waitReadable polls in tick-sized slices so ctx is observed while blocked.
// limit <= 0 waits without bound; otherwise ErrTimeout once it elapses.
func (k *sock) waitReadable(ctx context.Context, limit time.Duration) error {
	var deadline time.Time
	if limit > 0 {
		deadline = time.Now().Add(limit)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := k.tick
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return transport.ErrTimeout
			}
			if left < wait {
				wait = left
			}
		}
		polled, err := k.poller.Poll(wait)
		if err != nil {
			if isRetryable(err) {
				continue
			}
			return mapErr(err)
		}
		if len(polled) > 0 {
			return nil
		}
	}
}

func (k *sock) close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	return k.s.Close()
}

func isRetryable(err error) bool {
	n := zmq.AsErrno(err)
	return n == zmq.Errno(syscall.EAGAIN) || n == zmq.Errno(syscall.EINTR)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if zmq.AsErrno(err) == zmq.ETERM {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	if zmq.AsErrno(err) == zmq.EFSM {
		return fmt.Errorf("%w: %v", transport.ErrState, err)
	}
	return err
}

// ---------- REQ ----------

type requester struct{ sock *sock }

func (r *requester) Send(ctx context.Context, payload []byte) error {
	if r.sock.closed {
		return transport.ErrClosed
	}
	for {
		_, err := r.sock.s.SendBytes(payload, zmq.DONTWAIT)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return mapErr(err)
		}
		// no peer connected yet; zmq REQ queues only once a pipe exists
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.sock.tick):
		}
	}
}

func (r *requester) Recv(ctx context.Context) ([]byte, error) {
	if r.sock.closed {
		return nil, transport.ErrClosed
	}
	if err := r.sock.waitReadable(ctx, 0); err != nil {
		return nil, err
	}
	b, err := r.sock.s.RecvBytes(0)
	return b, mapErr(err)
}

func (r *requester) Close() error { return r.sock.close() }

// ---------- REP ----------

type replier struct {
	sock    *sock
	timeout time.Duration
}

func (r *replier) Recv(ctx context.Context) ([]byte, error) {
	if r.sock.closed {
		return nil, transport.ErrClosed
	}
	if err := r.sock.waitReadable(ctx, r.timeout); err != nil {
		return nil, err
	}
	b, err := r.sock.s.RecvBytes(0)
	if err != nil && isRetryable(err) {
		return nil, transport.ErrTimeout
	}
	return b, mapErr(err)
}

func (r *replier) Send(_ context.Context, payload []byte) error {
	if r.sock.closed {
		return transport.ErrClosed
	}
	_, err := r.sock.s.SendBytes(payload, 0)
	return mapErr(err)
}

func (r *replier) Close() error { return r.sock.close() }

// ---------- PUB ----------

type broadcaster struct{ sock *sock }

func (b *broadcaster) Publish(_ context.Context, topic, payload []byte) error {
	if b.sock.closed {
		return transport.ErrClosed
	}
	// PUB never blocks; frames for subscribers at HWM are dropped by zmq.
	_, err := b.sock.s.SendMessage(topic, payload)
	return mapErr(err)
}

func (b *broadcaster) Close() error { return b.sock.close() }

// ---------- SUB ----------

type listener struct{ sock *sock }

func (l *listener) Recv(ctx context.Context) ([]byte, []byte, error) {
	if l.sock.closed {
		return nil, nil, transport.ErrClosed
	}
	if err := l.sock.waitReadable(ctx, 0); err != nil {
		return nil, nil, err
	}
	parts, err := l.sock.s.RecvMessageBytes(0)
	if err != nil {
		return nil, nil, mapErr(err)
	}
	if len(parts) != 2 {
		return nil, nil, errors.New("zmqx: broadcast frame must have exactly two parts")
	}
	return parts[0], parts[1], nil
}

func (l *listener) Close() error { return l.sock.close() }
