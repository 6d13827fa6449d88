package relay

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
)

var (
	// ErrTransport wraps socket failures that end a loop.
	ErrTransport = errors.New("relay: transport failure")
	// ErrHandler wraps a reply handler failure.
	ErrHandler = errors.New("relay: handler failed")
)

// Overflow decides what a subscriber does when its inbound queue is full.
type Overflow int

const (
	OverflowDrop Overflow = iota
	OverflowBlock
)

func (o Overflow) String() string {
	if o == OverflowBlock {
		return "block"
	}
	return "drop"
}

// ParseOverflow accepts "drop" (default) and "block".
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "", "drop":
		return OverflowDrop, nil
	case "block":
		return OverflowBlock, nil
	}
	return OverflowDrop, errors.New("relay: overflow must be \"drop\" or \"block\"")
}

type loopConfig struct {
	name           string
	log            *zap.Logger
	codec          codec.Codec
	handlerTimeout time.Duration
	overflow       Overflow
}

// Option configures any of the loops; options that do not apply are ignored.
type Option func(*loopConfig)

// WithName labels logs and metrics; defaults to a random id.
func WithName(n string) Option { return func(c *loopConfig) { c.name = n } }

func WithLogger(l *zap.Logger) Option {
	return func(c *loopConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCodec replaces the default JSON codec.
func WithCodec(cd codec.Codec) Option {
	return func(c *loopConfig) {
		if cd != nil {
			c.codec = cd
		}
	}
}

// WithHandlerTimeout bounds each ReplyServer handler call through its context.
func WithHandlerTimeout(d time.Duration) Option { return func(c *loopConfig) { c.handlerTimeout = d } }

// WithOverflow sets the Subscriber policy for a full inbound queue.
func WithOverflow(o Overflow) Option { return func(c *loopConfig) { c.overflow = o } }

func newLoopConfig(kind string, opts []Option) loopConfig {
	c := loopConfig{log: zap.NewNop(), codec: codec.JSON}
	for _, o := range opts {
		o(&c)
	}
	if c.name == "" {
		c.name = kind + "-" + uuid.NewString()[:8]
	}
	c.log = c.log.With(zap.String("loop", c.name), zap.String("kind", kind))
	return c
}
