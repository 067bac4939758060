// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// readinessPrefix opens the single line the proxy writes to standard
// error once every listener is bound. The orchestrator polls for
// exactly this prefix before treating the proxy as ready.
const readinessPrefix = "PRIMORDIAL-PROXY-READY"

// requestDeadline bounds every per-connection read and write.
const requestDeadline = 60 * time.Second

// maxRequestBody caps the inbound request body.
const maxRequestBody = 100 * 1024 * 1024

// Server runs one loopback listener per provider route and forwards
// authenticated requests to that route's pinned upstream host.
type Server struct {
	sessionToken []byte
	logger       *slog.Logger

	listeners []net.Listener
	routes    map[int]Route

	requestCount atomic.Uint64
	rejectCount  atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Start binds one listener per route in cfg, writes the readiness
// marker to stderr once every listener is bound, and begins serving.
// Start refuses to serve any request until every listener is bound —
// if any bind fails, every already-bound listener is closed and
// Start returns the error.
func Start(cfg *Config, stderr io.Writer, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		sessionToken: []byte(cfg.SessionToken),
		logger:       logger,
		routes:       make(map[int]Route, len(cfg.Routes)),
		closed:       make(chan struct{}),
	}

	ports := make([]int, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", route.ListenPort))
		if err != nil {
			s.closeListeners()
			return nil, fmt.Errorf("proxy: binding port %d for %s: %w", route.ListenPort, route.Provider, err)
		}
		s.listeners = append(s.listeners, listener)
		s.routes[route.ListenPort] = route
		ports = append(ports, route.ListenPort)
	}

	for i, listener := range s.listeners {
		route := cfg.Routes[i]
		s.wg.Add(1)
		go s.serve(listener, route)
	}

	if _, err := fmt.Fprintf(stderr, "%s ports=%s\n", readinessPrefix, joinPorts(ports)); err != nil {
		s.Close()
		return nil, fmt.Errorf("proxy: writing readiness marker: %w", err)
	}

	return s, nil
}

// Close closes every listener and waits for in-flight handlers to
// observe the shutdown. Idempotent.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeListeners()
	})
	s.wg.Wait()
	return nil
}

func (s *Server) closeListeners() {
	for _, listener := range s.listeners {
		listener.Close()
	}
}

func (s *Server) isClosing() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) serve(listener net.Listener, route Route) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosing() {
				return
			}
			s.logger.Warn("proxy: accept failed", "provider", route.Provider, "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn, route)
		}()
	}
}

// authenticate reports whether header carries the expected session
// token for route, checked under either of two headers: route's own
// canonical auth_style header, or Authorization: Bearer. A client
// using a custom-header route may still authenticate with a plain
// bearer token, so either header alone is sufficient.
func (s *Server) authenticate(header textproto.MIMEHeader, route Route) bool {
	canonical := authHeaderName(route.AuthStyle)
	if s.authenticateHeader(header.Get(canonical), route.AuthStyle) {
		return true
	}
	if strings.EqualFold(canonical, "Authorization") {
		return false
	}
	return s.authenticateHeader(header.Get("Authorization"), AuthStyleBearer)
}

// authenticateHeader reports whether headerValue is exactly the
// expected session token formatted for style, comparing in constant
// time so timing cannot be used to guess the token.
func (s *Server) authenticateHeader(headerValue string, style AuthStyle) bool {
	var expected string
	if style == AuthStyleBearer {
		expected = "Bearer " + string(s.sessionToken)
	} else {
		expected = string(s.sessionToken)
	}
	return subtle.ConstantTimeCompare([]byte(headerValue), []byte(expected)) == 1
}

func joinPorts(ports []int) string {
	out := ""
	for i, port := range ports {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", port)
	}
	return out
}
