// pkg/relay/handlers.go
package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
)

var (
	handlersMu sync.RWMutex
	handlers   = map[string]Handler{}
)

// RegisterHandler makes a handler available under a name referenced in a relay manifest.
func RegisterHandler(name string, h Handler) {
	if name == "" || h == nil {
		panic("relay: handler name and func required")
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[name] = h
}

// LookupHandler retrieves a registered handler by name.
func LookupHandler(name string) (Handler, bool) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	h, ok := handlers[name]
	return h, ok
}

// AckHandler logs each request and replies {"response":"OK"}.
func AckHandler(log *zap.Logger) Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(_ context.Context, req codec.Message) (codec.Message, error) {
		log.Info("request", zap.Any("message", req))
		return codec.Message{"response": "OK"}, nil
	}
}

// EchoHandler replies with the request unchanged.
func EchoHandler(_ context.Context, req codec.Message) (codec.Message, error) {
	return req, nil
}

func init() {
	RegisterHandler("ack", AckHandler(nil))
	RegisterHandler("echo", EchoHandler)
}
