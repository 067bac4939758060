// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import "strings"

// safeResponseHeaders is the fixed allowlist of upstream response
// headers forwarded to the agent. Everything else — upstream auth
// echoes, cookies, server implementation headers — is dropped.
var safeResponseHeaders = map[string]bool{
	"content-type":          true,
	"content-length":        true,
	"content-encoding":      true,
	"date":                  true,
	"x-request-id":          true,
	"x-ratelimit-limit":     true,
	"x-ratelimit-remaining": true,
	"x-ratelimit-reset":     true,
	"retry-after":           true,
	"cache-control":         true,
}

// hopByHopRequestHeaders are stripped from the inbound request before
// it is rewritten and forwarded upstream. Auth headers are stripped
// separately, by name, since the header used for auth depends on the
// route's AuthStyle.
var hopByHopRequestHeaders = map[string]bool{
	"host":              true,
	"transfer-encoding": true,
	"connection":        true,
	"proxy-connection":  true,
	"keep-alive":        true,
	"authorization":     true,
}

func isSafeResponseHeader(name string) bool {
	return safeResponseHeaders[strings.ToLower(name)]
}

func isStrippedRequestHeader(name, authHeaderName string) bool {
	lower := strings.ToLower(name)
	if hopByHopRequestHeaders[lower] {
		return true
	}
	return lower == strings.ToLower(authHeaderName)
}

// authHeaderName returns the literal header name carrying the
// session token / real secret for style, so inbound stripping and
// outbound injection always agree on which header that is.
func authHeaderName(style AuthStyle) string {
	if style == AuthStyleBearer {
		return "Authorization"
	}
	return string(style)
}
