package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPort is the port a ferry daemon listens on when none is given.
const DefaultPort = 9876

// Location is a parsed remote destination argument.
type Location struct {
	Host string
	Path string
	Port int
}

// Addr returns the host:port to dial.
func (l Location) Addr() string {
	port := l.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(l.Host, strconv.Itoa(port))
}

// String returns a human-readable representation.
func (l Location) String() string {
	return "ferry://" + l.Addr() + l.Path
}

// ParseLocation parses a CLI destination into a Location.
//
// Supported formats:
//   - host                      → default port, daemon root
//   - host:port
//   - host:port:path
//   - [v6addr]:port:path
//   - ferry://host[:port][/path]
//
// Paths are interpreted by the daemon relative to its root.
//
//nolint:revive // cognitive-complexity: location parsing handles multiple format variants
func ParseLocation(arg string) (Location, error) {
	if strings.HasPrefix(arg, "ferry://") {
		return parseURL(arg)
	}
	if arg == "" {
		return Location{}, fmt.Errorf("empty destination")
	}

	rest := arg
	var host string
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Location{}, fmt.Errorf("destination %q: unterminated IPv6 address", arg)
		}
		host, rest = rest[1:end], rest[end+1:]
		rest = strings.TrimPrefix(rest, ":")
	} else {
		h, r, _ := strings.Cut(rest, ":")
		host, rest = h, r
	}
	if host == "" {
		return Location{}, fmt.Errorf("destination %q: missing host", arg)
	}

	loc := Location{Host: host}
	if rest == "" {
		return loc, nil
	}
	portStr, path, _ := strings.Cut(rest, ":")
	port, err := parsePort(portStr)
	if err != nil {
		return Location{}, fmt.Errorf("destination %q: %w", arg, err)
	}
	loc.Port = port
	loc.Path = path
	return loc, nil
}

func parseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("destination %q: %w", raw, err)
	}
	host := u.Hostname()
	if host == "" {
		return Location{}, fmt.Errorf("destination %q: missing host", raw)
	}
	loc := Location{Host: host, Path: u.Path}
	if p := u.Port(); p != "" {
		if loc.Port, err = parsePort(p); err != nil {
			return Location{}, fmt.Errorf("destination %q: %w", raw, err)
		}
	}
	return loc, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
