// Package launcher starts external processes and guarantees that, when a
// deadline passes, the child is either confirmed gone or reported as
// unkillable. Nothing is run through a shell, and elevation secrets travel
// over the child's stdin rather than its command line.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/metrics"
)

var (
	// ErrTimeout means the deadline passed and the child was terminated.
	ErrTimeout = errors.New("launcher: process exceeded its timeout and was terminated")
	// ErrUnkillable means the child survived SIGKILL and the final wait.
	ErrUnkillable = errors.New("launcher: process did not exit after kill")
)

type signalKind int

const (
	sigTerm signalKind = iota
	sigKill
)

func (k signalKind) String() string {
	if k == sigKill {
		return "SIGKILL"
	}
	return "SIGTERM"
}

// Handle identifies one supervised child from spawn to confirmed exit.
type Handle struct {
	ID      uuid.UUID
	PID     int
	Command []string
	Started time.Time
	Timeout time.Duration
}

// Result is what Launch observed. ExitCode is -1 unless the child exited.
type Result struct {
	Handle   Handle
	State    State
	ExitCode int
	Signals  []string
	History  []State
}

type Launcher struct {
	interpreter string
	elevate     []string
	cred        CredentialSource
	termGrace   time.Duration
	killWait    time.Duration
	stdout      io.Writer
	stderr      io.Writer
	log         *zap.Logger
	signal      func(*os.Process, signalKind) error
}

type Option func(*Launcher)

// WithInterpreter prefixes every command, e.g. "/usr/bin/python3".
func WithInterpreter(path string) Option { return func(l *Launcher) { l.interpreter = path } }

// WithElevation replaces the default `sudo -k -S -p ""` prefix. The command
// must read the credential line from stdin. A NOPASSWD sudoers rule means sudo
// never reads the line; the launched program still cannot see it because its
// own stdin is /dev/null.
func WithElevation(argv ...string) Option {
	return func(l *Launcher) {
		if len(argv) > 0 {
			l.elevate = append([]string(nil), argv...)
		}
	}
}

func WithCredentialSource(c CredentialSource) Option { return func(l *Launcher) { l.cred = c } }

// WithTermGrace is how long to wait after SIGTERM before SIGKILL.
func WithTermGrace(d time.Duration) Option { return func(l *Launcher) { l.termGrace = d } }

// WithKillWait is how long to wait after SIGKILL before declaring the child unkillable.
func WithKillWait(d time.Duration) Option { return func(l *Launcher) { l.killWait = d } }

func WithOutput(stdout, stderr io.Writer) Option {
	return func(l *Launcher) { l.stdout, l.stderr = stdout, stderr }
}

func WithLogger(z *zap.Logger) Option {
	return func(l *Launcher) {
		if z != nil {
			l.log = z
		}
	}
}

func New(opts ...Option) *Launcher {
	l := &Launcher{
		elevate:   []string{"sudo", "-k", "-S", "-p", ""},
		cred:      DefaultPrompt(),
		termGrace: time.Second,
		killWait:  time.Second,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		log:       zap.NewNop(),
		signal:    signalGroup,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// detachStdin runs between the elevation command and the target so a
// credential line the elevation command left unread stays in the pipe.
var detachStdin = []string{"/bin/sh", "-c", `exec "$@" </dev/null`, "launch"}

func (l *Launcher) argv(path string, args []string, elevate bool) []string {
	var argv []string
	if elevate {
		argv = append(argv, l.elevate...)
		argv = append(argv, detachStdin...)
	}
	if l.interpreter != "" {
		argv = append(argv, l.interpreter)
	}
	argv = append(argv, path)
	return append(argv, args...)
}

// Launch runs path with args. With timeout == 0 it returns as soon as the
// child starts (State Running) and reaps it in the background. Otherwise it
// blocks until the child exits, or until the deadline (or ctx) forces the
// escalation SIGTERM, grace, SIGKILL, final wait.
func (l *Launcher) Launch(ctx context.Context, path string, args []string, timeout time.Duration, elevate bool) (Result, error) {
	res := Result{ExitCode: -1}
	if timeout < 0 {
		return res, fmt.Errorf("launcher: negative timeout %s", timeout)
	}
	argv := l.argv(path, args, elevate)

	var secret []byte
	if elevate {
		var err error
		if secret, err = l.cred.Credential(ctx); err != nil {
			return res, fmt.Errorf("elevation credential: %w", err)
		}
		defer zero(secret)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout, cmd.Stderr = l.stdout, l.stderr
	setProcessGroup(cmd)

	var stdin io.WriteCloser
	if elevate {
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			return res, fmt.Errorf("stdin pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return res, fmt.Errorf("start %s: %w", argv[0], err)
	}
	h := Handle{
		ID:      uuid.New(),
		PID:     cmd.Process.Pid,
		Command: argv,
		Started: time.Now(),
		Timeout: timeout,
	}
	res.Handle = h
	log := l.log.With(
		zap.String("id", h.ID.String()),
		zap.Int("pid", h.PID),
		zap.String("command", strings.Join(argv, " ")),
	)
	log.Info("process started", zap.Duration("timeout", timeout), zap.Bool("elevated", elevate))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if elevate {
		line := make([]byte, len(secret)+1)
		copy(line, secret)
		line[len(secret)] = '\n'
		_, werr := stdin.Write(line)
		zero(line)
		cerr := stdin.Close()
		if werr != nil || cerr != nil {
			log.Error("credential handoff failed", zap.NamedError("write", werr), zap.NamedError("close", cerr))
		}
	}

	m := newMachine()
	finish := func(err error) (Result, error) {
		res.State = m.state
		res.History = m.history
		metrics.LaunchFinished(m.state.String())
		return res, err
	}

	if timeout == 0 {
		go func() {
			err := <-done
			log.Info("detached process exited", zap.Int("exit_code", exitCode(err)), zap.Duration("ran", time.Since(h.Started)))
		}()
		res.State = Running
		res.History = m.history
		return res, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var cause error
	select {
	case err := <-done:
		_ = m.to(Exited)
		res.ExitCode = exitCode(err)
		log.Info("process exited", zap.Int("exit_code", res.ExitCode), zap.Duration("ran", time.Since(h.Started)))
		return finish(nil)
	case <-timer.C:
		cause = fmt.Errorf("%w (after %s)", ErrTimeout, timeout)
		log.Warn("process timed out; terminating")
	case <-ctx.Done():
		cause = ctx.Err()
		log.Warn("launch cancelled; terminating", zap.Error(cause))
	}

	for _, stage := range []struct {
		kind  signalKind
		state State
		wait  time.Duration
	}{
		{sigTerm, TerminateRequested, l.termGrace},
		{sigKill, KillRequested, l.killWait},
	} {
		_ = m.to(stage.state)
		res.Signals = append(res.Signals, stage.kind.String())
		if err := l.signal(cmd.Process, stage.kind); err != nil {
			log.Warn("signal failed", zap.Stringer("signal", stage.kind), zap.Error(err))
		}
		select {
		case err := <-done:
			_ = m.to(Exited)
			res.ExitCode = exitCode(err)
			log.Info("process exited after signal", zap.Stringer("signal", stage.kind), zap.Int("exit_code", res.ExitCode))
			return finish(cause)
		case <-time.After(stage.wait):
		}
	}

	_ = m.to(Unkillable)
	log.Error("process still running after kill", zap.Duration("kill_wait", l.killWait))
	return finish(fmt.Errorf("%w: pid %d: %w", ErrUnkillable, h.PID, cause))
}

// exitCode maps a Wait error to the child's status; -1 when killed by a signal.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
