package util

import (
	"fmt"
	"net"
	"strconv"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SplitHostPort splits "host[:port]", returning defaultPort when the
// port is omitted.  Bracketed IPv6 literals are accepted with or
// without a port.
func SplitHostPort(s string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port: bare host or bracketed IPv6 literal.
		host = s
		if len(host) > 1 && host[0] == '[' && host[len(host)-1] == ']' {
			host = host[1 : len(host)-1]
		}
		if host == "" {
			return "", 0, fmt.Errorf("empty host in %q", s)
		}
		return host, defaultPort, nil
	}
	if host == "" {
		return "", 0, fmt.Errorf("empty host in %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q in %q", portStr, s)
	}
	return host, port, nil
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
