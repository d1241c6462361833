package pipeline

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/c360/splice/errors"
)

// Kind identifies an endpoint implementation.
type Kind string

// Endpoint kinds understood by ParseEndpoint.
const (
	KindFile      Kind = "file"
	KindUDP       Kind = "udp"
	KindPipe      Kind = "pipe"
	KindNATS      Kind = "nats"
	KindWebSocket Kind = "ws"
	KindHTTP      Kind = "http"
)

// EndpointSpec describes a reader or writer endpoint. Which fields are set
// depends on Kind:
//
//	file  Path
//	udp   Host, Port
//	pipe  Command
//	nats  URL (server), Host, Port, Subject
//	ws    URL, Host, Port, Path
//	http  URL
type EndpointSpec struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Host    string `json:"host,omitempty" yaml:"host,omitempty"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// Arg returns the named field as a string, or "" when it is unset. Names
// match the JSON field names.
func (s EndpointSpec) Arg(name string) string {
	switch name {
	case "path":
		return s.Path
	case "host":
		return s.Host
	case "port":
		if s.Port <= 0 {
			return ""
		}
		return strconv.Itoa(s.Port)
	case "command":
		return s.Command
	case "url":
		return s.URL
	case "subject":
		return s.Subject
	default:
		return ""
	}
}

// Address returns host:port.
func (s EndpointSpec) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// String renders the spec in the URI form ParseEndpoint accepts.
func (s EndpointSpec) String() string {
	switch s.Kind {
	case KindFile:
		return "file://" + s.Path
	case KindUDP:
		return "udp://" + s.Address()
	case KindPipe:
		return "pipe:" + s.Command
	case KindNATS:
		return "nats://" + s.Address() + "/" + s.Subject
	case KindWebSocket, KindHTTP:
		return s.URL
	default:
		return string(s.Kind)
	}
}

// ParseEndpoint turns an endpoint string into an EndpointSpec. A string with
// no scheme is a file path. Unknown schemes fail with errors.ErrUnknownScheme
// and unparseable strings with errors.ErrMalformedSpec; both are
// configuration errors.
func ParseEndpoint(raw string) (EndpointSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EndpointSpec{}, malformed(raw, "empty endpoint")
	}

	if cmd, ok := cutPipe(raw); ok {
		if strings.TrimSpace(cmd) == "" {
			return EndpointSpec{}, malformed(raw, "pipe endpoint needs a command")
		}
		return EndpointSpec{Kind: KindPipe, Command: cmd}, nil
	}

	if path, ok := strings.CutPrefix(raw, "file://"); ok {
		if path == "" {
			return EndpointSpec{}, malformed(raw, "file endpoint needs a path")
		}
		return EndpointSpec{Kind: KindFile, Path: path}, nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || !strings.Contains(raw, "://") {
		return EndpointSpec{Kind: KindFile, Path: raw}, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "udp":
		host, port, err := hostPort(raw, u)
		if err != nil {
			return EndpointSpec{}, err
		}
		return EndpointSpec{Kind: KindUDP, Host: host, Port: port}, nil

	case "nats":
		host, port, err := hostPort(raw, u)
		if err != nil {
			return EndpointSpec{}, err
		}
		subject := strings.Trim(u.Path, "/")
		if subject == "" {
			return EndpointSpec{}, malformed(raw, "nats endpoint needs a subject")
		}
		return EndpointSpec{
			Kind:    KindNATS,
			URL:     "nats://" + u.Host,
			Host:    host,
			Port:    port,
			Subject: subject,
		}, nil

	case "ws", "wss":
		if u.Port() == "" && u.Hostname() != "" {
			u.Host = net.JoinHostPort(u.Hostname(), defaultWebSocketPort[u.Scheme])
		}
		host, port, err := hostPort(raw, u)
		if err != nil {
			return EndpointSpec{}, err
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		return EndpointSpec{Kind: KindWebSocket, URL: raw, Host: host, Port: port, Path: path}, nil

	case "http", "https":
		if u.Host == "" {
			return EndpointSpec{}, malformed(raw, "http endpoint needs a host")
		}
		return EndpointSpec{Kind: KindHTTP, URL: raw}, nil

	default:
		return EndpointSpec{}, errors.WrapInvalid(errors.ErrUnknownScheme, "pipeline", "ParseEndpoint",
			fmt.Sprintf("resolve scheme %q of %q", u.Scheme, raw))
	}
}

func cutPipe(raw string) (string, bool) {
	if cmd, ok := strings.CutPrefix(raw, "pipe://"); ok {
		return cmd, true
	}
	return strings.CutPrefix(raw, "pipe:")
}

var defaultWebSocketPort = map[string]string{"ws": "80", "wss": "443"}

func hostPort(raw string, u *url.URL) (string, int, error) {
	host := u.Hostname()
	p := u.Port()
	if host == "" || p == "" {
		return "", 0, malformed(raw, "expected host:port")
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, malformed(raw, "port out of range")
	}
	return host, port, nil
}

func malformed(raw, reason string) error {
	return errors.WrapInvalid(errors.ErrMalformedSpec, "pipeline", "ParseEndpoint",
		fmt.Sprintf("parse %q (%s)", raw, reason))
}

// SeamSpec describes a seam: the processor kind and its arguments.
type SeamSpec struct {
	Kind string            `json:"kind" yaml:"kind"`
	Args map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
}

// String renders the spec as kind(k=v,...) with sorted keys.
func (s SeamSpec) String() string {
	if len(s.Args) == 0 {
		return "seam:" + s.Kind
	}
	keys := make([]string, 0, len(s.Args))
	for k := range s.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + s.Args[k]
	}
	return "seam:" + s.Kind + "(" + strings.Join(parts, ",") + ")"
}
