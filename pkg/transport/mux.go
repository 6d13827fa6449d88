package transport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mux routes each endpoint to the Transport registered for its scheme.
type Mux struct {
	mu     sync.RWMutex
	byName map[string]Transport
}

func NewMux() *Mux { return &Mux{byName: map[string]Transport{}} }

// Handle registers t for the given schemes, replacing earlier registrations.
func (m *Mux) Handle(t Transport, schemes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range schemes {
		m.byName[s] = t
	}
}

func (m *Mux) resolve(endpoint string) (Transport, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	t, ok := m.byName[ep.Scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no transport registered for %q", ErrUnsupportedScheme, ep.Scheme)
	}
	return t, nil
}

func (m *Mux) DialRequest(ctx context.Context, endpoint string) (Requester, error) {
	t, err := m.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	return t.DialRequest(ctx, endpoint)
}

func (m *Mux) BindReply(ctx context.Context, endpoint string, timeout time.Duration) (Replier, error) {
	t, err := m.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	return t.BindReply(ctx, endpoint, timeout)
}

func (m *Mux) BindPublish(ctx context.Context, endpoint string) (Broadcaster, error) {
	t, err := m.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	return t.BindPublish(ctx, endpoint)
}

func (m *Mux) DialSubscribe(ctx context.Context, endpoint string, topic []byte) (Listener, error) {
	t, err := m.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	return t.DialSubscribe(ctx, endpoint, topic)
}
