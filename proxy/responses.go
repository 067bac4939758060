// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"fmt"
	"io"
)

// Fixed, content-free status texts. No exception text, stack trace, or
// upstream error body ever reaches the agent — every error the proxy
// can produce maps to one of these lines.
const (
	statusBadRequest         = "Bad Request"
	statusUnauthorized       = "Unauthorized"
	statusPayloadTooLarge    = "Payload Too Large"
	statusBadGateway         = "Bad Gateway"
	statusRequestTimeout     = "Request Timeout"
	statusInternalServerErr  = "Internal Server Error"
)

// writeFixedResponse writes a minimal, complete HTTP/1.1 response
// with a fixed plain-text body and Connection: close. Used for every
// error path; never carries request-derived or upstream-derived text.
func writeFixedResponse(w io.Writer, code int, text string) error {
	body := text + "\n"
	_, err := fmt.Fprintf(w,
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		code, text, len(body), body)
	return err
}
