// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxy implements the in-sandbox credential proxy: a
// self-contained, stdlib-only HTTP/1.1 reverse proxy that runs as the
// privileged user inside a session's VM.
//
// It binds one loopback listener per provider, reads its route
// configuration (session token plus per-provider upstream host, auth
// style, and real secret) once from standard input at startup, and
// emits a one-line readiness marker on standard error once every
// listener is bound.
//
// Every accepted connection is handled independently through a fixed
// per-connection state machine: ReadRequestLine, ReadHeaders,
// ReadBody, ForwardOpen, StreamResponse, Close. A connection serves
// exactly one request; the response always carries Connection: close.
// The real per-provider secret never leaves this process — it is read
// once from stdin and held only in memory for the session's lifetime.
//
// This package imports nothing outside the standard library. That is
// a deliberate, load-bearing property: the proxy binary is the one
// process inside the VM that holds real upstream credentials, and it
// must not carry any third-party code, and not even this module's own
// vault/manifest/orchestrator packages, into that address space.
package proxy
