package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ErrNoTerminal is returned when an interactive credential is needed but
// stdin is not a terminal.
var ErrNoTerminal = errors.New("launcher: credential prompt requires a terminal")

// CredentialSource supplies the privilege-escalation secret. The launcher
// writes it to the elevation command's stdin and zeroes the slice afterwards.
type CredentialSource interface {
	Credential(ctx context.Context) ([]byte, error)
}

type CredentialFunc func(ctx context.Context) ([]byte, error)

func (f CredentialFunc) Credential(ctx context.Context) ([]byte, error) { return f(ctx) }

// StaticCredential is for non-interactive callers that already hold the secret.
func StaticCredential(secret string) CredentialSource {
	return CredentialFunc(func(context.Context) ([]byte, error) {
		return []byte(secret), nil
	})
}

// TerminalPrompt reads the secret from a TTY with echo disabled.
type TerminalPrompt struct {
	Prompt string
	In     *os.File
	Out    io.Writer
}

func DefaultPrompt() TerminalPrompt {
	return TerminalPrompt{Prompt: "sudo password: ", In: os.Stdin, Out: os.Stderr}
}

func (p TerminalPrompt) Credential(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fd := p.In.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil, ErrNoTerminal
	}
	fmt.Fprint(p.Out, p.Prompt)
	secret, err := term.ReadPassword(int(fd))
	fmt.Fprintln(p.Out)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	return secret, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
