// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// handleConnection runs exactly one request through the fixed
// per-connection state machine — ReadRequestLine, ReadHeaders,
// ReadBody, ForwardOpen, StreamResponse, Close — then closes conn.
// Any parse error or timeout transitions directly to Close after
// writing the appropriate fixed status.
func (s *Server) handleConnection(conn net.Conn, route Route) {
	defer conn.Close()

	s.requestCount.Add(1)
	conn.SetDeadline(time.Now().Add(requestDeadline))

	reader := bufio.NewReader(conn)
	tp := textproto.NewReader(reader)

	// ReadRequestLine.
	requestLine, err := tp.ReadLine()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			writeFixedResponse(conn, 408, statusRequestTimeout)
		}
		return
	}
	if strings.ContainsAny(requestLine, "\r\n") {
		s.rejectCount.Add(1)
		writeFixedResponse(conn, 400, statusBadRequest)
		return
	}
	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) != 3 {
		s.rejectCount.Add(1)
		writeFixedResponse(conn, 400, statusBadRequest)
		return
	}
	method, path := parts[0], parts[1]

	// ReadHeaders.
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		s.rejectCount.Add(1)
		writeFixedResponse(conn, 400, statusBadRequest)
		return
	}

	if te := header.Get("Transfer-Encoding"); te != "" && !strings.EqualFold(te, "identity") {
		s.rejectCount.Add(1)
		writeFixedResponse(conn, 400, statusBadRequest)
		return
	}

	contentLength := int64(0)
	if raw := header.Get("Content-Length"); raw != "" {
		contentLength, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || contentLength < 0 {
			s.rejectCount.Add(1)
			writeFixedResponse(conn, 400, statusBadRequest)
			return
		}
	}
	if contentLength > maxRequestBody {
		s.rejectCount.Add(1)
		writeFixedResponse(conn, 413, statusPayloadTooLarge)
		return
	}

	if !s.authenticate(header, route) {
		s.rejectCount.Add(1)
		// Generic body; never echo the received value.
		writeFixedResponse(conn, 401, statusUnauthorized)
		return
	}

	// ReadBody.
	var body []byte
	if contentLength > 0 {
		body = make([]byte, contentLength)
		if _, err := io.ReadFull(reader, body); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				conn.SetWriteDeadline(time.Now().Add(time.Second))
				writeFixedResponse(conn, 408, statusRequestTimeout)
			}
			return
		}
	}

	// ForwardOpen.
	upstream, err := tls.Dial("tcp", net.JoinHostPort(route.UpstreamHost, "443"), &tls.Config{
		ServerName: route.UpstreamHost,
	})
	if err != nil {
		s.logger.Warn("proxy: upstream connect failed", "provider", route.Provider, "error", err)
		writeFixedResponse(conn, 502, statusBadGateway)
		return
	}
	defer upstream.Close()
	upstream.SetDeadline(time.Now().Add(requestDeadline))

	if err := writeUpstreamRequest(upstream, method, path, route, header, body); err != nil {
		s.logger.Warn("proxy: upstream write failed", "provider", route.Provider, "error", err)
		writeFixedResponse(conn, 502, statusBadGateway)
		return
	}

	// StreamResponse.
	if err := s.relayUpstreamResponse(conn, upstream); err != nil {
		s.logger.Warn("proxy: upstream response failed", "provider", route.Provider, "error", err)
		writeFixedResponse(conn, 502, statusBadGateway)
	}

	// Close: deferred conn.Close() above, plus the always-sent
	// Connection: close header, enforce one request per connection.
}

// writeUpstreamRequest rewrites the inbound request line and headers
// for the pinned upstream: every hop-by-hop and auth header is
// stripped, Host is forced to the pinned upstream (never the
// inbound request's Host header), and the real secret is injected
// under route's auth style.
func writeUpstreamRequest(w io.Writer, method, path string, route Route, inbound textproto.MIMEHeader, body []byte) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", method, path); err != nil {
		return err
	}

	authHeader := authHeaderName(route.AuthStyle)
	for name, values := range inbound {
		if isStrippedRequestHeader(name, authHeader) {
			continue
		}
		for _, value := range values {
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", name, value); err != nil {
				return err
			}
		}
	}

	if _, err := fmt.Fprintf(bw, "Host: %s\r\n", route.UpstreamHost); err != nil {
		return err
	}

	var authValue string
	if route.AuthStyle == AuthStyleBearer {
		authValue = "Bearer " + route.Secret
	} else {
		authValue = route.Secret
	}
	if _, err := fmt.Fprintf(bw, "%s: %s\r\n", textproto.CanonicalMIMEHeaderKey(authHeader), authValue); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(bw, "Connection: close\r\n\r\n"); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := bw.Write(body); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// relayUpstreamResponse reads the upstream's status line and headers,
// forwards the status and every header on the fixed safe allowlist,
// then streams the body to w in fixed-size chunks with an explicit
// flush per chunk — required so server-sent-event and other
// long-lived streaming responses arrive incrementally rather than
// being buffered whole.
func (s *Server) relayUpstreamResponse(w io.Writer, upstream io.Reader) error {
	reader := bufio.NewReader(upstream)
	tp := textproto.NewReader(reader)

	statusLine, err := tp.ReadLine()
	if err != nil {
		return fmt.Errorf("reading upstream status line: %w", err)
	}
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return fmt.Errorf("malformed upstream status line")
	}
	statusCode := parts[1]
	statusText := ""
	if len(parts) == 3 {
		statusText = parts[2]
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return fmt.Errorf("reading upstream response headers: %w", err)
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "HTTP/1.1 %s %s\r\n", statusCode, statusText); err != nil {
		return err
	}
	for name, values := range header {
		if !isSafeResponseHeader(name) {
			continue
		}
		for _, value := range values {
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", name, value); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintf(bw, "Connection: close\r\n\r\n"); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	var body io.Reader
	switch {
	case strings.EqualFold(header.Get("Transfer-Encoding"), "chunked"):
		body = httputil.NewChunkedReader(reader)
	default:
		body = reader
	}

	buf := make([]byte, 8192)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := bw.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			if err := bw.Flush(); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
