// Package relayfx wires a relay manifest into an fx application: the shared
// log sink, the transports, the queues, and one supervised goroutine per loop.
package relayfx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/config"
	"github.com/joeydtaylor/steeze-relay/pkg/launcher"
	"github.com/joeydtaylor/steeze-relay/pkg/logger"
	"github.com/joeydtaylor/steeze-relay/pkg/metrics"
	"github.com/joeydtaylor/steeze-relay/pkg/supervise"
	"github.com/joeydtaylor/steeze-relay/pkg/transport"
	"github.com/joeydtaylor/steeze-relay/pkg/transport/httpx"
	"github.com/joeydtaylor/steeze-relay/pkg/transport/memx"
	"github.com/joeydtaylor/steeze-relay/pkg/transport/zmqx"
)

// Options selects the manifest. Config, when set, is used instead of reading
// ManifestPath. Hub, when set, serves mem:// endpoints so an embedding
// process can talk to the relay in memory.
type Options struct {
	ManifestPath string
	Config       *config.Config
	Hub          *memx.Hub
	// NewLauncher builds the launcher for each manifest launch; nil uses launcher.New.
	NewLauncher func(config.Launch, *zap.Logger) Launcher
}

// Launcher runs one helper process; *launcher.Launcher implements it.
type Launcher interface {
	Launch(ctx context.Context, path string, args []string, timeout time.Duration, elevate bool) (launcher.Result, error)
}

// Module returns the complete fx option set for a relay process.
func Module(opts Options) fx.Option {
	return fx.Options(
		fx.Supply(opts),
		fx.Provide(provideConfig),
		fx.Provide(provideLogOptions),
		logger.Module,
		metrics.Module,
		fx.Provide(provideTransport),
		fx.Provide(provideRuntime),
		fx.Invoke(registerHooks),
	)
}

func provideConfig(o Options) (config.Config, error) {
	if o.Config != nil {
		cfg := *o.Config
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
		return cfg, nil
	}
	return config.Load(config.ManifestPath(o.ManifestPath))
}

func provideLogOptions(cfg config.Config) logger.Options {
	return logger.Options{Dir: cfg.Log.Dir, File: cfg.Log.File, Level: cfg.Log.Level, Console: cfg.Log.Console}
}

// provideTransport routes mem:// to the in-process hub and, only when the
// manifest needs it, everything else to a ZeroMQ context closed on stop.
func provideTransport(lc fx.Lifecycle, o Options, cfg config.Config, log *zap.Logger) (transport.Transport, error) {
	mux := transport.NewMux()
	hub := o.Hub
	if hub == nil {
		hub = memx.New(memx.WithHWM(cfg.Transport.HWM))
	}
	mux.Handle(hub, "mem")

	if !needsZMQ(cfg) {
		return mux, nil
	}
	zt, err := zmqx.New(
		zmqx.WithHWM(cfg.Transport.HWM),
		zmqx.WithPollInterval(ms(cfg.Transport.PollIntervalMS)),
		zmqx.WithLinger(ms(cfg.Transport.LingerMS)),
		zmqx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	mux.Handle(zt, "tcp", "ipc", "inproc")
	// Appended before the loop hooks, so it stops after every socket is closed.
	lc.Append(fx.StopHook(func() error { return zt.Close() }))
	return mux, nil
}

func needsZMQ(cfg config.Config) bool {
	var eps []string
	for _, l := range cfg.Bridges {
		eps = append(eps, l.Endpoint)
	}
	for _, l := range cfg.Servers {
		eps = append(eps, l.Endpoint)
	}
	for _, l := range cfg.Publishers {
		eps = append(eps, l.Endpoint)
	}
	for _, l := range cfg.Subscribers {
		eps = append(eps, l.Endpoint)
	}
	for _, ep := range eps {
		if !strings.HasPrefix(ep, "mem://") {
			return true
		}
	}
	return false
}

func provideRuntime(cfg config.Config, tr transport.Transport, log *zap.Logger) (*Runtime, error) {
	return Build(cfg, tr, log)
}

type hookDeps struct {
	fx.In
	LC       fx.Lifecycle
	Opts     Options
	Shutdown fx.Shutdowner
	Config   config.Config
	Runtime  *Runtime
	Log      *zap.Logger
	Metrics  http.Handler `name:"metrics"`
}

func registerHooks(d hookDeps) {
	newLauncher := d.Opts.NewLauncher
	if newLauncher == nil {
		newLauncher = defaultLauncher
	}
	var (
		lock   *flock.Flock
		srv    *http.Server
		wg     sync.WaitGroup
		cancel context.CancelFunc = func() {}

		launchMu   sync.Mutex
		launchErrs []error
	)

	d.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if p := d.Config.LockFile; p != "" {
				lock = flock.New(p)
				ok, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("lock %s: %w", p, err)
				}
				if !ok {
					return fmt.Errorf("lock %s: another relay is running", p)
				}
			}

			if addr := d.Config.Metrics.Listen; addr != "" {
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return fmt.Errorf("metrics listen %s: %w", addr, err)
				}
				srv = &http.Server{
					Handler:      httpx.NewAdmin(d.Metrics, d.Runtime.Unhealthy, d.Log),
					ReadTimeout:  15 * time.Second,
					WriteTimeout: 30 * time.Second,
					IdleTimeout:  60 * time.Second,
				}
				d.Log.Info("metrics server starting", zap.String("addr", ln.Addr().String()))
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Log.Error("metrics server failed", zap.Error(err))
					}
				}()
			}

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			for _, l := range d.Runtime.loops {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := supervise.Run(runCtx, l.spec, l.run)
					if err == nil || runCtx.Err() != nil {
						return
					}
					d.Log.Error("loop failed, shutting down", zap.String("loop", l.spec.Name), zap.Error(err))
					_ = d.Shutdown.Shutdown(fx.ExitCode(1))
				}()
			}
			for _, la := range d.Config.Launches {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := runLaunch(runCtx, newLauncher, la, d.Log); err != nil {
						launchMu.Lock()
						launchErrs = append(launchErrs, err)
						launchMu.Unlock()
					}
				}()
			}
			d.Log.Info("relay started", zap.Strings("loops", d.Runtime.Names()), zap.Int("launches", len(d.Config.Launches)))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Log.Info("relay stopping")
			cancel()
			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			var errs []error
			select {
			case <-done:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("loops did not stop: %w", ctx.Err()))
			}
			launchMu.Lock()
			errs = append(errs, launchErrs...)
			launchMu.Unlock()
			if srv != nil {
				errs = append(errs, srv.Shutdown(ctx))
			}
			if lock != nil {
				errs = append(errs, lock.Unlock())
			}
			return errors.Join(errs...)
		},
	})
}

// runLaunch starts a manifest helper process. Failures are logged, not fatal;
// a process that survived SIGKILL is returned so shutdown reports it.
func runLaunch(ctx context.Context, newLauncher func(config.Launch, *zap.Logger) Launcher, la config.Launch, log *zap.Logger) error {
	l := newLauncher(la, log.With(zap.String("launch", la.Name)))
	res, err := l.Launch(ctx, la.Path, la.Args, ms(la.TimeoutMS), false)
	fields := []zap.Field{
		zap.String("launch", la.Name),
		zap.String("state", res.State.String()),
		zap.Int("exitCode", res.ExitCode),
	}
	switch {
	case errors.Is(err, launcher.ErrUnkillable):
		log.Error("launch left a process running", append(fields, zap.Int("pid", res.Handle.PID), zap.Error(err))...)
		return fmt.Errorf("launch %q: %w", la.Name, err)
	case err != nil && ctx.Err() == nil:
		log.Error("launch failed", append(fields, zap.Error(err))...)
		return nil
	}
	log.Info("launch finished", fields...)
	return nil
}

func defaultLauncher(la config.Launch, log *zap.Logger) Launcher {
	return launcher.New(launcher.WithInterpreter(la.Interpreter), launcher.WithLogger(log))
}
