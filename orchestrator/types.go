// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"io"
	"os"
	"sync"
	"time"
)

// VMProvider creates fresh microVMs under a given egress policy. No
// concrete implementation ships in this module.
type VMProvider interface {
	CreateVM(ctx context.Context, policy EgressPolicy) (VMHandle, error)
}

// VMHandle is a single running microVM. No concrete implementation
// ships in this module.
type VMHandle interface {
	// Upload copies a local file into the VM at remotePath with the
	// given mode.
	Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error

	// Run executes cmd inside the VM and returns its result. A
	// foreground command (Background false) blocks until exit or
	// ctx/cmd.Timeout expires. A background command (Background
	// true) returns as soon as the process has started; the returned
	// ExecutionResult's Stdin/StdoutStream/StderrStream/Done fields
	// give the caller ongoing access to the running process.
	Run(ctx context.Context, cmd Command) (ExecutionResult, error)

	// Destroy tears down the VM unconditionally. Idempotent.
	Destroy(ctx context.Context) error
}

// AgentResolver fetches agent code given a URL and a ref (branch,
// tag, or commit), returning a local path to the fetched content. No
// concrete implementation ships in this module.
type AgentResolver interface {
	Resolve(ctx context.Context, url, ref string) (localPath string, err error)
}

// EgressPolicy describes the network egress rule set a VMProvider
// must enforce for the lifetime of the VM it creates.
type EgressPolicy struct {
	// DenyAll, when true and AllowedDomains is empty, means no egress
	// at all — the default for a manifest with no network
	// declarations.
	DenyAll bool

	// Unrestricted allows all egress. Requires prior user consent at
	// the CLI layer; this package never sets it itself, only honors
	// it when the manifest says so.
	Unrestricted bool

	// AllowedDomains is the union of manifest-declared domains,
	// auto-allowed package registries (only when setup_command is
	// present), and every known provider's pinned domain for
	// providers the manifest declares. Meaningless when Unrestricted.
	AllowedDomains []string
}

// Command describes one process a VMHandle should run.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
	Dir  string

	// Privileged selects the user the command runs as: true for
	// root/administrative operations (hardening, proxy launch),
	// false for the unprivileged agent user (setup_command, the
	// agent process itself).
	Privileged bool

	// Stdin, if non-nil, is written to the process's standard input
	// before Run returns (foreground) or immediately after the
	// process starts (background).
	Stdin []byte

	// Background starts the process without waiting for it to exit.
	Background bool

	// Timeout bounds how long Run waits: for a foreground command,
	// how long until exit; for a background command, how long to
	// wait for the process to start. Zero means no additional bound
	// beyond ctx.
	Timeout time.Duration
}

// ExecutionResult is what Run returns for a completed or started
// command. For a foreground command (Command.Background false),
// Stdout/Stderr hold the captured bytes and the stream fields are
// nil. For a background command, Stdout/Stderr are nil and the
// stream fields give ongoing access to the running process.
type ExecutionResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte

	// The following are set only when the originating Command had
	// Background true.

	// Stdin streams additional data to the running process after
	// start. Nil if the command did not request it.
	Stdin io.WriteCloser

	// StdoutStream and StderrStream give ongoing read access to the
	// background process's output — StderrStream is where the proxy's
	// readiness marker appears, for example.
	StdoutStream io.ReadCloser
	StderrStream io.ReadCloser

	// Done is closed when the background process exits. Receiving
	// from it never blocks once the process has exited.
	Done <-chan struct{}
}

// SessionHandle is what Run returns for a successfully started agent
// session.
type SessionHandle struct {
	// VM is the underlying microVM, exposed so a caller can perform
	// provider-specific operations (e.g. inspecting metrics) beyond
	// what this package needs.
	VM VMHandle

	// Stdin is the agent process's standard input.
	Stdin io.WriteCloser

	// Stdout is the agent process's standard output.
	Stdout io.ReadCloser

	// SessionID is a correlation identifier, used only in log lines
	// and never a security boundary.
	SessionID string

	closeOnce  sync.Once
	closeState []byte
	closeErr   error
}
