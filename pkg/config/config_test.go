package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-relay/pkg/supervise"
)

func TestLoadTOML(t *testing.T) {
	cfg, err := Load("testdata/relay.toml")
	require.NoError(t, err)

	assert.Equal(t, "relay.lock", cfg.LockFile)
	assert.Equal(t, ":9108", cfg.Metrics.Listen)
	assert.Equal(t, 1000, cfg.Transport.HWM)
	require.Len(t, cfg.Queues, 4)
	assert.Equal(t, Queue{Name: "requests", Capacity: 1024}, cfg.Queues[0])
	assert.Equal(t, 4, cfg.LoopCount())

	require.Len(t, cfg.Bridges, 1)
	b := cfg.Bridges[0]
	assert.Equal(t, "to-ack", b.Name)
	assert.Equal(t, "tcp://localhost:5555", b.Endpoint)
	assert.Equal(t, "requests", b.Inbound)
	assert.Equal(t, "replies", b.Outbound)

	rs := b.RestartSpec()
	assert.Equal(t, supervise.PolicyAlways, rs.Policy)
	assert.Equal(t, "to-ack", rs.Name)
	assert.EqualValues(t, 500_000_000, rs.Backoff)

	assert.Equal(t, "cbor", cfg.Subscribers[0].Codec)
	assert.Equal(t, "sensor", cfg.Publishers[0].Topic)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load("testdata/relay.yaml")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "echo", cfg.Servers[0].Handler)
	assert.Equal(t, 50, cfg.Servers[0].TimeoutMS)
	// inline embedding keeps the shared loop fields flat
	assert.Equal(t, "mem://ack", cfg.Bridges[0].Endpoint)
	require.Len(t, cfg.Launches, 1)
	assert.Equal(t, []string{"hi"}, cfg.Launches[0].Args)
}

func TestLoadMetricsEnvOverride(t *testing.T) {
	t.Setenv(MetricsEnv, "127.0.0.1:9999")
	cfg, err := Load("testdata/relay.toml")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Metrics.Listen)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/missing.toml")
	assert.ErrorIs(t, err, os.ErrNotExist)

	p := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(p, []byte("[[bridge]\n"), 0o600))
	_, err = Load(p)
	assert.ErrorContains(t, err, "parse")
}

func TestManifestPath(t *testing.T) {
	t.Setenv(ManifestEnv, "")
	assert.Equal(t, DefaultManifest, ManifestPath(""))
	t.Setenv(ManifestEnv, "/etc/relay.yaml")
	assert.Equal(t, "/etc/relay.yaml", ManifestPath(""))
	assert.Equal(t, "x.toml", ManifestPath("x.toml"))
}

func base() Config {
	return Config{
		Queues: []Queue{{Name: "in"}, {Name: "out"}, {Name: "x"}, {Name: "z"}},
		Bridges: []Bridge{{
			Loop:    Loop{Name: "b", Endpoint: "mem://srv"},
			Inbound: "in", Outbound: "out",
		}},
		Servers: []Server{{Loop: Loop{Name: "s", Endpoint: "mem://srv"}}},
	}
}

func TestValidateDefaults(t *testing.T) {
	c := base()
	c.Bridges[0].Name = "  b  "
	require.NoError(t, c.Validate())
	assert.Equal(t, "b", c.Bridges[0].Name)
	assert.Equal(t, "ack", c.Servers[0].Handler)
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"empty", func(c *Config) { *c = Config{} }, "no loops"},
		{"dup queue", func(c *Config) { c.Queues = append(c.Queues, Queue{Name: "in"}) }, "declared twice"},
		{"neg capacity", func(c *Config) { c.Queues[0].Capacity = -1 }, "capacity"},
		{"dup loop name", func(c *Config) { c.Servers[0].Name = "b" }, "already used"},
		{"missing name", func(c *Config) { c.Servers[0].Name = "" }, "name required"},
		{"bad scheme", func(c *Config) { c.Bridges[0].Endpoint = "udp://x:1" }, "scheme"},
		{"bad codec", func(c *Config) { c.Bridges[0].Codec = "xml" }, "codec"},
		{"bad restart", func(c *Config) { c.Bridges[0].Restart = "sometimes" }, "restart policy"},
		{"same queues", func(c *Config) { c.Bridges[0].Outbound = "in" }, "must differ"},
		{"unknown queue", func(c *Config) { c.Bridges[0].Outbound = "outt" }, `outbound queue "outt" not declared`},
		{"missing inbound", func(c *Config) { c.Bridges[0].Inbound = "" }, "inbound queue required"},
		{"unknown handler", func(c *Config) { c.Servers[0].Handler = "nope" }, "not registered"},
		{"neg timeout", func(c *Config) { c.Servers[0].TimeoutMS = -1 }, "timeouts"},
		{"dup bind", func(c *Config) {
			c.Publishers = []Publisher{{Loop: Loop{Name: "p", Endpoint: "mem://srv"}, Topic: "t", Queue: "x"}}
		}, "already bound"},
		{"two consumers", func(c *Config) {
			c.Publishers = []Publisher{{Loop: Loop{Name: "p", Endpoint: "mem://pub"}, Topic: "t", Queue: "in"}}
		}, "already has a consumer"},
		{"two producers", func(c *Config) {
			c.Subscribers = []Subscriber{{Loop: Loop{Name: "sub", Endpoint: "mem://pub"}, Topic: "t", Queue: "out"}}
		}, "already has a producer"},
		{"missing topic", func(c *Config) {
			c.Subscribers = []Subscriber{{Loop: Loop{Name: "sub", Endpoint: "mem://pub"}, Queue: "z"}}
		}, "topic required"},
		{"bad overflow", func(c *Config) {
			c.Subscribers = []Subscriber{{Loop: Loop{Name: "sub", Endpoint: "mem://pub"}, Topic: "t", Queue: "z", Overflow: "spill"}}
		}, "overflow"},
		{"launch path", func(c *Config) { c.Launches = []Launch{{Name: "l"}} }, "path required"},
		{"launch name clash", func(c *Config) { c.Launches = []Launch{{Name: "b", Path: "/bin/true"}} }, "already used"},
		{"launch timeout", func(c *Config) { c.Launches = []Launch{{Name: "l", Path: "/bin/true", TimeoutMS: -5}} }, "timeout_ms"},
		{"transport", func(c *Config) { c.Transport.HWM = -1 }, "transport"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mut(&c)
			assert.ErrorContains(t, c.Validate(), tc.want)
		})
	}
}
