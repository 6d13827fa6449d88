// pkg/logger/logger.go
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the shared log sink. Every loop in a process appends to the
// same file.
type Options struct {
	Dir     string // default "log"
	File    string // default "relay.log"
	Level   string // debug | info | warn | error
	Console bool   // tee to stdout
}

func ensureLogDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zap.InfoLevel
	}
	return lvl
}

// NewLog builds a JSON logger writing to a rotating append-mode file and,
// optionally, stdout.
func NewLog(o Options) (*zap.Logger, error) {
	if o.Dir == "" {
		o.Dir = "log"
	}
	if o.File == "" {
		o.File = "relay.log"
	}
	if err := ensureLogDir(o.Dir); err != nil {
		return nil, fmt.Errorf("log dir %q: %w", o.Dir, err)
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	lvl := parseLevel(o.Level)

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(o.Dir, o.File),
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, lvl),
	}
	if o.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stdout), lvl))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

// ProvideLogger is the Fx provider; it flushes the sink on shutdown.
func ProvideLogger(lc fx.Lifecycle, o Options) (*zap.Logger, error) {
	l, err := NewLog(o)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() { _ = l.Sync() }))
	return l, nil
}

var Module = fx.Options(
	fx.Provide(ProvideLogger),
)
