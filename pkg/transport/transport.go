// Package transport defines the socket contracts the relay loops are written
// against. Implementations live in subpackages (zmqx for ZeroMQ, memx for
// in-process use); Mux picks one per endpoint scheme.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Replier.Recv when the receive timeout elapses.
	ErrTimeout = errors.New("transport: receive timeout")
	// ErrClosed is returned by any operation on a closed socket.
	ErrClosed = errors.New("transport: socket closed")
	// ErrState reports a send/receive that breaks strict request/reply alternation.
	ErrState = errors.New("transport: operation out of sequence")
	// ErrAddrInUse is returned when binding an endpoint that is already bound.
	ErrAddrInUse = errors.New("transport: address in use")
)

// Requester is the client half of a strictly alternating exchange:
// Send, then Recv, then Send again.
type Requester interface {
	Send(ctx context.Context, payload []byte) error
	// Recv blocks until the reply arrives or ctx is done. There is no
	// receive timeout on this side.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Replier is the server half: Recv one request, then Send exactly one reply.
type Replier interface {
	// Recv returns ErrTimeout once the configured receive timeout elapses
	// with no request.
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Broadcaster sends two-frame [topic, payload] messages to all subscribers.
// It never blocks on slow or absent subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, topic, payload []byte) error
	Close() error
}

// Listener receives [topic, payload] frames whose topic starts with the
// subscribed filter.
type Listener interface {
	Recv(ctx context.Context) (topic, payload []byte, err error)
	Close() error
}

// Transport opens sockets. One endpoint per socket, fixed for its lifetime.
type Transport interface {
	DialRequest(ctx context.Context, endpoint string) (Requester, error)
	BindReply(ctx context.Context, endpoint string, timeout time.Duration) (Replier, error)
	BindPublish(ctx context.Context, endpoint string) (Broadcaster, error)
	DialSubscribe(ctx context.Context, endpoint string, topic []byte) (Listener, error)
}
