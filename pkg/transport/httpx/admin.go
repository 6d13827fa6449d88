package httpx

import (
	"maps"
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
)

// HealthFunc reports unhealthy loops by name with a reason. An empty map is healthy.
type HealthFunc func() map[string]string

// NewAdmin serves GET /metrics and GET /healthz.
func NewAdmin(metrics http.Handler, health HealthFunc, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := NewChi()
	r.Use(chimd.RequestID, chimd.Recoverer, accessLog(log))
	r.Get("/metrics", metrics)
	r.Get("/healthz", healthHandler(health))
	return r.Mux()
}

func healthHandler(health HealthFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var failed map[string]string
		if health != nil {
			failed = health()
		}
		body := codec.Message{"status": "ok"}
		code := http.StatusOK
		if len(failed) > 0 {
			// encoding/json sorts map keys, so the body is stable.
			body = codec.Message{"status": "degraded", "loops": maps.Clone(failed)}
			code = http.StatusServiceUnavailable
		}
		b, err := codec.Encode(codec.JSON, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", codec.JSON.ContentType())
		w.WriteHeader(code)
		_, _ = w.Write(b)
	})
}

func accessLog(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				l.Debug("http",
					zap.String("requestId", chimd.GetReqID(r.Context())),
					zap.String("httpMethod", r.Method),
					zap.String("uri", r.URL.Path),
					zap.String("remoteAddr", r.RemoteAddr),
					zap.Int("status", ww.Status()),
					zap.Duration("lat", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
