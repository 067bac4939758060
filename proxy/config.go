// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// AuthStyle names how a route's real secret is injected into the
// outbound request, and how the inbound session token is expected to
// be presented: either as "Authorization: Bearer <value>" (the
// reserved value "bearer") or in a custom header named exactly by
// AuthStyle.
type AuthStyle string

// AuthStyleBearer is the reserved AuthStyle meaning "Authorization:
// Bearer <value>" rather than a literal header name.
const AuthStyleBearer AuthStyle = "bearer"

// Route is one provider's proxy route, as delivered on standard
// input. ListenPort is the loopback TCP port this route binds.
// UpstreamHost is the pinned provider domain — the only host this
// route will ever forward to, regardless of any inbound Host header.
type Route struct {
	Provider     string    `json:"provider"`
	ListenPort   int       `json:"listen_port"`
	UpstreamHost string    `json:"upstream_host"`
	AuthStyle    AuthStyle `json:"auth_style"`
	Secret       string    `json:"secret"`
}

// Config is the structured document the proxy reads once from
// standard input at startup: the per-session placeholder token and
// the list of provider routes. There is no reconfiguration protocol —
// a running proxy never reads stdin again after this.
type Config struct {
	SessionToken string  `json:"session_token"`
	Routes       []Route `json:"routes"`
}

// maxConfigLine bounds the single JSON line read from stdin, guarding
// against a misbehaving launcher from forcing an unbounded read.
const maxConfigLine = 1 << 20

// ReadConfig reads and parses the single JSON-line configuration
// document from r. Delivered once at process startup; r is never read
// again afterward.
func ReadConfig(r io.Reader) (*Config, error) {
	reader := bufio.NewReaderSize(io.LimitReader(r, maxConfigLine+1), maxConfigLine+1)

	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("proxy: reading configuration: %w", err)
	}
	if len(line) > maxConfigLine {
		return nil, fmt.Errorf("proxy: configuration line exceeds %d bytes", maxConfigLine)
	}
	if line == "" {
		return nil, fmt.Errorf("proxy: no configuration received on stdin")
	}

	var cfg Config
	if err := json.Unmarshal([]byte(line), &cfg); err != nil {
		return nil, fmt.Errorf("proxy: parsing configuration: %w", err)
	}
	if cfg.SessionToken == "" {
		return nil, fmt.Errorf("proxy: configuration missing session_token")
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("proxy: configuration declares no routes")
	}

	seenPorts := make(map[int]bool, len(cfg.Routes))
	for _, route := range cfg.Routes {
		if route.Provider == "" || route.UpstreamHost == "" || route.Secret == "" {
			return nil, fmt.Errorf("proxy: route for %q is missing a required field", route.Provider)
		}
		if route.ListenPort <= 0 || route.ListenPort > 65535 {
			return nil, fmt.Errorf("proxy: route for %q has an invalid listen_port %d", route.Provider, route.ListenPort)
		}
		if seenPorts[route.ListenPort] {
			return nil, fmt.Errorf("proxy: duplicate listen_port %d", route.ListenPort)
		}
		seenPorts[route.ListenPort] = true
	}

	return &cfg, nil
}
