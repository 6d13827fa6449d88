package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/relay"
	"github.com/joeydtaylor/steeze-relay/pkg/supervise"
	"github.com/joeydtaylor/steeze-relay/pkg/transport"
)

// Validate normalizes the manifest in place and checks cross-references:
// unique names, parseable endpoints, known codecs and handlers, and at most
// one producing and one consuming loop per queue.
func (c *Config) Validate() error {
	if c.LoopCount() == 0 && len(c.Launches) == 0 {
		return errors.New("manifest declares no loops or launches")
	}

	queues := map[string]bool{}
	for i := range c.Queues {
		q := &c.Queues[i]
		q.Name = strings.TrimSpace(q.Name)
		if q.Name == "" {
			return fmt.Errorf("queue %d: name required", i)
		}
		if queues[q.Name] {
			return fmt.Errorf("queue %q declared twice", q.Name)
		}
		if q.Capacity < 0 {
			return fmt.Errorf("queue %q: capacity must be >= 0", q.Name)
		}
		queues[q.Name] = true
	}

	v := validator{declared: queues, names: map[string]string{}, binds: map[string]string{}, producers: map[string]string{}, consumers: map[string]string{}}

	for i := range c.Bridges {
		b := &c.Bridges[i]
		if err := v.loop("bridge", i, &b.Loop, false); err != nil {
			return err
		}
		if err := v.queue(b.Name, "inbound", &b.Inbound, false); err != nil {
			return err
		}
		if err := v.queue(b.Name, "outbound", &b.Outbound, true); err != nil {
			return err
		}
		if b.Inbound == b.Outbound {
			return fmt.Errorf("bridge %q: inbound and outbound must differ", b.Name)
		}
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if err := v.loop("server", i, &s.Loop, true); err != nil {
			return err
		}
		s.Handler = strings.TrimSpace(s.Handler)
		if s.Handler == "" {
			s.Handler = "ack"
		}
		if _, ok := relay.LookupHandler(s.Handler); !ok {
			return fmt.Errorf("server %q: handler %q not registered", s.Name, s.Handler)
		}
		if s.TimeoutMS < 0 || s.HandlerTimeoutMS < 0 {
			return fmt.Errorf("server %q: timeouts must be >= 0", s.Name)
		}
	}
	for i := range c.Publishers {
		p := &c.Publishers[i]
		if err := v.loop("publisher", i, &p.Loop, true); err != nil {
			return err
		}
		if p.Topic == "" {
			return fmt.Errorf("publisher %q: topic required", p.Name)
		}
		if err := v.queue(p.Name, "queue", &p.Queue, false); err != nil {
			return err
		}
	}
	for i := range c.Subscribers {
		s := &c.Subscribers[i]
		if err := v.loop("subscriber", i, &s.Loop, false); err != nil {
			return err
		}
		if s.Topic == "" {
			return fmt.Errorf("subscriber %q: topic required", s.Name)
		}
		if err := v.queue(s.Name, "queue", &s.Queue, true); err != nil {
			return err
		}
		if _, err := relay.ParseOverflow(strings.TrimSpace(s.Overflow)); err != nil {
			return fmt.Errorf("subscriber %q: %w", s.Name, err)
		}
	}
	for i := range c.Launches {
		l := &c.Launches[i]
		l.Name = strings.TrimSpace(l.Name)
		l.Path = strings.TrimSpace(l.Path)
		if l.Name == "" || l.Path == "" {
			return fmt.Errorf("launch %d: name and path required", i)
		}
		if prev, dup := v.names[l.Name]; dup {
			return fmt.Errorf("launch %q: name already used by %s", l.Name, prev)
		}
		v.names[l.Name] = "launch"
		if l.TimeoutMS < 0 {
			return fmt.Errorf("launch %q: timeout_ms must be >= 0", l.Name)
		}
	}
	if c.Transport.HWM < 0 || c.Transport.PollIntervalMS < 0 || c.Transport.LingerMS < 0 {
		return errors.New("transport: values must be >= 0")
	}
	return nil
}

// LoopCount is the number of long-running loops the manifest declares.
func (c *Config) LoopCount() int {
	return len(c.Bridges) + len(c.Servers) + len(c.Publishers) + len(c.Subscribers)
}

// RestartSpec converts a loop's restart fields for supervise.Run.
func (l Loop) RestartSpec() supervise.Spec {
	p, _ := supervise.ParsePolicy(l.Restart) // validated
	return supervise.Spec{
		Name:    l.Name,
		Policy:  p,
		Backoff: time.Duration(l.BackoffMS) * time.Millisecond,
	}
}

type validator struct {
	declared  map[string]bool
	names     map[string]string // loop name -> kind
	binds     map[string]string // bound endpoint -> loop name
	producers map[string]string // queue -> loop name
	consumers map[string]string // queue -> loop name
}

func (v *validator) loop(kind string, i int, l *Loop, binds bool) error {
	l.Name = strings.TrimSpace(l.Name)
	l.Endpoint = strings.TrimSpace(l.Endpoint)
	if l.Name == "" {
		return fmt.Errorf("%s %d: name required", kind, i)
	}
	if prev, dup := v.names[l.Name]; dup {
		return fmt.Errorf("%s %q: name already used by a %s", kind, l.Name, prev)
	}
	v.names[l.Name] = kind
	if _, err := transport.ParseEndpoint(l.Endpoint); err != nil {
		return fmt.Errorf("%s %q: %w", kind, l.Name, err)
	}
	if binds {
		if prev, dup := v.binds[l.Endpoint]; dup {
			return fmt.Errorf("%s %q: endpoint %s already bound by %q", kind, l.Name, l.Endpoint, prev)
		}
		v.binds[l.Endpoint] = l.Name
	}
	if _, err := codec.ByName(l.Codec); err != nil {
		return fmt.Errorf("%s %q: %w", kind, l.Name, err)
	}
	if _, err := supervise.ParsePolicy(l.Restart); err != nil {
		return fmt.Errorf("%s %q: %w", kind, l.Name, err)
	}
	if l.BackoffMS < 0 {
		return fmt.Errorf("%s %q: backoff_ms must be >= 0", kind, l.Name)
	}
	return nil
}

// queue claims the producer or consumer role of a queue for loop.
func (v *validator) queue(loop, field string, name *string, producer bool) error {
	role, label := v.consumers, "consumer"
	if producer {
		role, label = v.producers, "producer"
	}
	*name = strings.TrimSpace(*name)
	if *name == "" {
		return fmt.Errorf("%q: %s queue required", loop, field)
	}
	if !v.declared[*name] {
		return fmt.Errorf("%q: %s queue %q not declared", loop, field, *name)
	}
	if prev, taken := role[*name]; taken {
		return fmt.Errorf("%q: queue %q already has a %s (%q)", loop, *name, label, prev)
	}
	role[*name] = loop
	return nil
}

