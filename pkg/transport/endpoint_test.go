package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("tcp://localhost:5555")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Scheme: "tcp", Host: "localhost", Port: 5555}, ep)
	assert.False(t, ep.IsWildcard())

	ep, err = ParseEndpoint(BindTCP(6000))
	require.NoError(t, err)
	assert.True(t, ep.IsWildcard())
	assert.Equal(t, "tcp://*:6000", ep.String())

	ep, err = ParseEndpoint("inproc://bridge")
	require.NoError(t, err)
	assert.Equal(t, "inproc", ep.Scheme)
	assert.Equal(t, "inproc://bridge", ep.String())

	ep, err = ParseEndpoint("ipc:///tmp/relay.sock")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/relay.sock", ep.Path)
}

func TestParseEndpointRejects(t *testing.T) {
	for _, s := range []string{
		"", "localhost:5555", "tcp://", "tcp://host", "tcp://host:", "tcp://host:0",
		"tcp://host:70000", "tcp://host:abc", "tcp://:5555",
	} {
		_, err := ParseEndpoint(s)
		assert.Error(t, err, s)
	}
	_, err := ParseEndpoint("udp://host:1")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestConnectTCPDefaultsToLocalhost(t *testing.T) {
	assert.Equal(t, "tcp://localhost:5555", ConnectTCP("", 5555))
	assert.Equal(t, "tcp://10.0.0.2:1", ConnectTCP("10.0.0.2", 1))
}

func TestMuxUnknownScheme(t *testing.T) {
	m := NewMux()
	_, err := m.DialRequest(t.Context(), "mem://x")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}
