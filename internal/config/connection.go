package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultDatabase is used when neither the URL nor the config names a database.
	DefaultDatabase = "test"

	// DefaultHost is used for URLs without a host name.
	DefaultHost = "localhost"
)

// Endpoint is one host/port pair of a store deployment.
type Endpoint struct {
	Host string
	Port int
}

// Address returns "host:port".
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Connection is the resolved addressing and credential information of a store.
type Connection struct {
	Endpoints  []Endpoint
	ReplicaSet string
	Database   string
	Username   string
	Password   string
}

// Addresses returns every endpoint as "host:port".
func (c *Connection) Addresses() []string {
	out := make([]string, len(c.Endpoints))
	for i, e := range c.Endpoints {
		out[i] = e.Address()
	}
	return out
}

// ResolveConnection merges the URL form and the explicit fields of cfg.
// URL may be a comma-separated list, one entry per replica-set member; the first
// entry carrying a database or credentials supplies them. Explicit fields win over
// URL values, unset ports fall back to defaultPort and an unset database to "test".
func ResolveConnection(cfg StoreConfig, defaultPort int) (*Connection, error) {
	conn := &Connection{ReplicaSet: cfg.ReplicaSet}

	if strings.TrimSpace(cfg.URL) != "" {
		for _, raw := range strings.Split(cfg.URL, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			if err := conn.addURL(raw, defaultPort); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case len(cfg.Hosts) > 0:
		conn.Endpoints = conn.Endpoints[:0]
		for i, h := range cfg.Hosts {
			port := cfg.Port
			if i < len(cfg.Ports) {
				port = cfg.Ports[i]
			}
			ep, err := parseHostPort(strings.TrimSpace(h), port, defaultPort)
			if err != nil {
				return nil, err
			}
			conn.Endpoints = append(conn.Endpoints, ep)
		}
	case cfg.Host != "":
		port := cfg.Port
		if port == 0 && len(conn.Endpoints) == 1 {
			port = conn.Endpoints[0].Port
		}
		ep, err := parseHostPort(cfg.Host, port, defaultPort)
		if err != nil {
			return nil, err
		}
		conn.Endpoints = []Endpoint{ep}
	case cfg.Port != 0:
		for i := range conn.Endpoints {
			conn.Endpoints[i].Port = cfg.Port
		}
	}

	if len(conn.Endpoints) == 0 {
		port := cfg.Port
		if port == 0 {
			port = defaultPort
		}
		conn.Endpoints = []Endpoint{{Host: DefaultHost, Port: port}}
	}

	if cfg.Database != "" {
		conn.Database = cfg.Database
	}
	if cfg.Username != "" {
		conn.Username = cfg.Username
	}
	if cfg.Password != "" {
		conn.Password = cfg.Password
	}
	if conn.Database == "" {
		conn.Database = DefaultDatabase
	}

	for _, e := range conn.Endpoints {
		if e.Port <= 0 || e.Port > 65535 {
			return nil, fmt.Errorf("port %d of host %q must be between 1 and 65535", e.Port, e.Host)
		}
	}
	return conn, nil
}

func (c *Connection) addURL(raw string, defaultPort int) error {
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid store url %q: %w", raw, err)
	}

	ep := Endpoint{Host: u.Hostname(), Port: defaultPort}
	if ep.Host == "" {
		ep.Host = DefaultHost
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid port in store url %q: %w", raw, err)
		}
		ep.Port = n
	}
	c.Endpoints = append(c.Endpoints, ep)

	if db := strings.TrimPrefix(u.Path, "/"); c.Database == "" && db != "" {
		c.Database = db
	}
	if u.User != nil && c.Username == "" {
		c.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if rs := u.Query().Get("replicaSet"); rs != "" && c.ReplicaSet == "" {
		c.ReplicaSet = rs
	}
	return nil
}

func parseHostPort(hostport string, port, defaultPort int) (Endpoint, error) {
	host := hostport
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid port in host %q: %w", hostport, err)
		}
		host = h
		if port == 0 {
			port = n
		}
	}
	if port == 0 {
		port = defaultPort
	}
	if host == "" {
		host = DefaultHost
	}
	return Endpoint{Host: host, Port: port}, nil
}
