package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnsupportedScheme = errors.New("transport: unsupported scheme")

// Endpoint is a parsed scheme://address string.
type Endpoint struct {
	Scheme string
	Host   string // tcp only
	Port   int    // tcp only
	Path   string // ipc, inproc and mem: everything after "://"
}

func (e Endpoint) String() string {
	if e.Scheme == "tcp" {
		return fmt.Sprintf("tcp://%s:%d", e.Host, e.Port)
	}
	return e.Scheme + "://" + e.Path
}

// IsWildcard reports whether the endpoint binds all interfaces.
func (e Endpoint) IsWildcard() bool { return e.Scheme == "tcp" && (e.Host == "*" || e.Host == "0.0.0.0") }

// ParseEndpoint validates "tcp://host:port", "ipc://path", "inproc://name" and "mem://name".
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || rest == "" {
		return Endpoint{}, fmt.Errorf("transport: endpoint %q: want scheme://address", s)
	}
	scheme = strings.ToLower(scheme)
	switch scheme {
	case "tcp":
		i := strings.LastIndex(rest, ":")
		if i <= 0 || i == len(rest)-1 {
			return Endpoint{}, fmt.Errorf("transport: endpoint %q: want tcp://host:port", s)
		}
		port, err := strconv.Atoi(rest[i+1:])
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("transport: endpoint %q: invalid port", s)
		}
		return Endpoint{Scheme: scheme, Host: rest[:i], Port: port}, nil
	case "ipc", "inproc", "mem":
		return Endpoint{Scheme: scheme, Path: rest}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// ConnectTCP is the client form used by request bridges and subscribers.
func ConnectTCP(host string, port int) string {
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// BindTCP is the server form that binds every interface.
func BindTCP(port int) string { return fmt.Sprintf("tcp://*:%d", port) }
