package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestDemoInMemory(t *testing.T) {
	out, _, err := execute(t, "", "demo", "--in-memory", "--count", "3", "--log-dir", t.TempDir())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.JSONEq(t, `{"response":"OK"}`, l)
	}
}

func TestDemoConfigTCP(t *testing.T) {
	cfg := demoConfig(demoOptions{port: 6001})
	assert.Equal(t, "tcp://*:6001", cfg.Servers[0].Endpoint)
	assert.Equal(t, "tcp://localhost:6001", cfg.Bridges[0].Endpoint)
	require.NoError(t, cfg.Validate())
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "relay.toml")
	require.NoError(t, os.WriteFile(p, []byte(`
[[server]]
name = "ack"
endpoint = "mem://ack"
`), 0o600))

	out, _, err := execute(t, "", "check", "--config", p)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "servers=1")

	_, _, err = execute(t, "", "check", "--config", filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLaunchCommand(t *testing.T) {
	_, errOut, err := execute(t, "", "launch", "--timeout", "5s", "/bin/true")
	require.NoError(t, err)
	assert.Contains(t, errOut, "state=exited exit=0")

	_, _, err = execute(t, "", "launch", "--timeout", "5s", "/bin/false")
	assert.ErrorContains(t, err, "exited with code 1")

	_, _, err = execute(t, "", "launch")
	assert.Error(t, err)

	_, _, err = execute(t, "", "launch", "--timeout=-1s", "/bin/true")
	assert.ErrorContains(t, err, "negative timeout")
}

func TestLaunchCommandPasswordStdin(t *testing.T) {
	// Elevation with an empty password on stdin fails before anything is spawned.
	_, _, err := execute(t, "", "launch", "--elevate", "--password-stdin", "/bin/true")
	assert.ErrorContains(t, err, "empty password")
}

func TestStdinCredential(t *testing.T) {
	secret, err := stdinCredential(strings.NewReader("s3cret\r\nrest")).Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(secret))
}
