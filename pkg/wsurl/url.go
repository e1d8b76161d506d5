// Package wsurl parses the shard URLs handed out by the chat server.
//
// Shard URLs have the form scheme://host[:port]/path. The scheme is
// optional; when it is missing the URL is treated as a secure websocket
// endpoint.
package wsurl

import (
	"errors"
	"strconv"
	"strings"
)

// DefaultScheme is used when the URL carries no scheme.
const DefaultScheme = "wss"

// ErrMalformedURL is returned when no host can be extracted from the input.
var ErrMalformedURL = errors.New("wsurl: malformed url")

// URL is a parsed shard URL.
type URL struct {
	// Protocol is the lower-cased scheme (e.g. "wss").
	Protocol string

	// Host is the hostname or IP literal, without brackets.
	Host string

	// Port is the explicit port, or the default for Protocol.
	Port uint16

	// Path is the normalized request path. Never empty.
	Path string

	// Secure is true iff Protocol ends in "s".
	Secure bool
}

// Parse parses raw into a URL.
//
// The rules are:
//   - the scheme is case-folded; a missing scheme defaults to DefaultScheme
//   - Secure is true iff the scheme ends in "s"
//   - a missing port is derived from the scheme (ws/http: 80, wss/https: 443)
//   - a missing path defaults to "/"
func Parse(raw string) (URL, error) {
	var u URL

	rest := strings.TrimSpace(raw)
	if scheme, after, ok := strings.Cut(rest, "://"); ok {
		u.Protocol = strings.ToLower(scheme)
		rest = after
	} else {
		u.Protocol = DefaultScheme
	}
	u.Secure = strings.HasSuffix(u.Protocol, "s")

	hostport, path := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostport, path = rest[:i], rest[i:]
	}

	host, portStr, err := splitHostPort(hostport)
	if err != nil {
		return URL{}, err
	}
	if host == "" {
		return URL{}, ErrMalformedURL
	}
	u.Host = host

	if portStr != "" {
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || port == 0 {
			return URL{}, ErrMalformedURL
		}
		u.Port = uint16(port)
	} else {
		u.Port = defaultPort(u.Protocol, u.Secure)
	}

	u.Path = normalizePath(path)
	return u, nil
}

// MustParse is like Parse but panics on error. Use only in tests and
// for compile-time constants.
func MustParse(raw string) URL {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// IsValid reports whether the URL has a host.
func (u URL) IsValid() bool {
	return u.Host != ""
}

// String renders the URL with an explicit port.
func (u URL) String() string {
	if !u.IsValid() {
		return ""
	}
	var b strings.Builder
	b.WriteString(u.Protocol)
	b.WriteString("://")
	if strings.IndexByte(u.Host, ':') >= 0 {
		b.WriteByte('[')
		b.WriteString(u.Host)
		b.WriteByte(']')
	} else {
		b.WriteString(u.Host)
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(int(u.Port)))
	b.WriteString(u.Path)
	return b.String()
}

// Endpoint returns the URL to dial for a websocket transport. The http(s)
// schemes are mapped to ws(s); anything else is mapped by the secure flag.
func (u URL) Endpoint() string {
	e := u
	if u.Secure {
		e.Protocol = "wss"
	} else {
		e.Protocol = "ws"
	}
	return e.String()
}

// splitHostPort splits "host", "host:port", "[v6]" or "[v6]:port".
func splitHostPort(hostport string) (host, port string, err error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", "", ErrMalformedURL
		}
		host = hostport[1:end]
		rest := hostport[end+1:]
		if rest == "" {
			return host, "", nil
		}
		if rest[0] != ':' {
			return "", "", ErrMalformedURL
		}
		return host, rest[1:], nil
	}

	// Userinfo is not part of shard URLs; drop it rather than mistake it
	// for the host.
	if at := strings.LastIndexByte(hostport, '@'); at >= 0 {
		hostport = hostport[at+1:]
	}

	host, port, found := strings.Cut(hostport, ":")
	if found && port == "" {
		return "", "", ErrMalformedURL
	}
	return host, port, nil
}

func defaultPort(protocol string, secure bool) uint16 {
	switch protocol {
	case "http", "ws":
		return 80
	case "https", "wss":
		return 443
	}
	if secure {
		return 443
	}
	return 80
}
