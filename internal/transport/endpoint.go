package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrBadEndpoint wraps all endpoint parse failures.
var ErrBadEndpoint = errors.New("invalid endpoint")

// Endpoint is a host/port pair the runtime listens on.
type Endpoint struct {
	Host string
	Port int
}

// Addr returns the dialable "host:port" form.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint accepts "port", "host:port" and "scheme://host:port" forms.
// The scheme prefix is ignored; the host defaults to localhost; the port
// must be in [1,65535].
func ParseEndpoint(s string) (Endpoint, error) {
	raw := s
	if _, rest, found := strings.Cut(s, "://"); found {
		s = rest
	}
	if s == "" || strings.ContainsAny(s, "/ ") {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrBadEndpoint, raw)
	}

	host := "localhost"
	portStr := s
	if before, after, found := strings.Cut(s, ":"); found {
		if before != "" {
			host = before
		}
		portStr = after
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: bad port in %q", ErrBadEndpoint, raw)
	}
	return Endpoint{Host: host, Port: port}, nil
}
