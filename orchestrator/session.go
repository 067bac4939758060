// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/primordial-run/primordial/lib/clock"
	"github.com/primordial-run/primordial/lib/config"
	"github.com/primordial-run/primordial/lib/secret"
	"github.com/primordial-run/primordial/manifest"
	"github.com/primordial-run/primordial/proxy"
	"github.com/primordial-run/primordial/snapshot"
)

// basePort is the first loopback port assigned to a provider route.
// Ports are assigned sequentially from here in manifest declaration
// order.
const basePort = 9001

// agentDirRemote is the path, relative to the VM home directory, agent
// code is uploaded into.
const agentDirRemote = "agent"

// proxyRemotePath is the privileged path the proxy binary is uploaded
// to. Mode 0700: only the privileged user may read or execute it.
const proxyRemotePath = "/usr/local/sbin/primordial-proxy"

// setupCommandTimeout bounds how long a declared setup_command may
// run before it is treated as hung and the VM is destroyed.
const setupCommandTimeout = 600 * time.Second

// hardeningBinaries are chmod'd to remove others-read/execute so the
// unprivileged user cannot invoke them to escalate.
var hardeningBinaries = []string{"/usr/bin/sudo", "/bin/su", "/usr/bin/su"}

// unprivilegedGroup is the admin group the unprivileged agent user is
// removed from during hardening.
const unprivilegedGroup = "sudo"

// unprivilegedUser is the account the agent, and any declared
// setup_command, runs as.
const unprivilegedUser = "agent"

// Orchestrator drives the 8-step bring-up for every session it
// starts. A single Orchestrator is reused across many sessions; it
// holds no per-session state itself beyond the lifecycle counters.
type Orchestrator struct {
	VMs       VMProvider
	Agents    AgentResolver
	ProxyPath string
	Clock     clock.Clock
	Logger    *slog.Logger

	// VMBootTimeout, ProxyReadyTimeout, and ShutdownTimeout bound the
	// matching blocking operations. A zero VMBootTimeout means no
	// additional bound beyond the caller's context; a zero
	// ProxyReadyTimeout or ShutdownTimeout means 10s or 15s.
	VMBootTimeout     time.Duration
	ProxyReadyTimeout time.Duration
	ShutdownTimeout   time.Duration

	sessionsStarted  atomic.Uint64
	sessionsFailed   atomic.Uint64
	hardenFailClosed atomic.Uint64
}

// NewFromConfig builds an Orchestrator with VMBootTimeout,
// ProxyReadyTimeout, and ShutdownTimeout taken from cfg.Timeouts
// instead of left zero. VMs, Agents, ProxyPath, and Logger are left for
// the caller to set on the returned value — cfg carries no provider or
// resolver, since those are host-environment interfaces, not YAML.
func NewFromConfig(cfg *config.Config) (*Orchestrator, error) {
	vmBoot, err := cfg.VMBootTimeout()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	proxyReady, err := cfg.ProxyReadyTimeout()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	shutdown, err := cfg.ShutdownTimeout()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	return &Orchestrator{
		VMBootTimeout:     vmBoot,
		ProxyReadyTimeout: proxyReady,
		ShutdownTimeout:   shutdown,
	}, nil
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) clock() clock.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clock.Real()
}

// Run drives the full 8-step bring-up for one session: build the env
// allowlist, create the VM, upload agent code, restore prior state,
// harden, start the proxy, run setup_command, and exec the agent. Any
// failure before step 8 destroys the VM and returns a *SandboxError
// identifying which step failed.
//
// agentDir is a local directory holding the agent code to upload.
// priorState, if non-nil, is a gzipped tar produced by a previous
// session's Close, restored via the snapshot package's safe-extraction
// filter. secrets holds one resolved *secret.Buffer per provider the
// manifest declares; Run does not take ownership of it — the caller
// still closes those buffers.
func (o *Orchestrator) Run(ctx context.Context, m *manifest.Manifest, agentDir string, priorState []byte, secrets map[string]*secret.Buffer) (*SessionHandle, error) {
	sessionID := uuid.New().String()
	log := o.logger().With("session", sessionID)

	handle, err := o.run(ctx, m, agentDir, priorState, secrets, sessionID, log)
	if err != nil {
		o.sessionsFailed.Add(1)
		log.Error("session failed to start", "error", err)
		return nil, err
	}

	o.sessionsStarted.Add(1)
	log.Info("session started")
	return handle, nil
}

// ResolveAndRun fetches agent code via the configured AgentResolver
// before driving Run with the resulting local path, for callers that
// hold an agent URL/ref rather than an already-materialized
// directory.
func (o *Orchestrator) ResolveAndRun(ctx context.Context, m *manifest.Manifest, agentURL, agentRef string, priorState []byte, secrets map[string]*secret.Buffer) (*SessionHandle, error) {
	agentDir, err := o.Agents.Resolve(ctx, agentURL, agentRef)
	if err != nil {
		o.sessionsFailed.Add(1)
		return nil, sandboxError(StageUploadAgent, fmt.Errorf("resolving agent code: %w", err))
	}
	return o.Run(ctx, m, agentDir, priorState, secrets)
}

func (o *Orchestrator) run(ctx context.Context, m *manifest.Manifest, agentDir string, priorState []byte, secrets map[string]*secret.Buffer, sessionID string, log *slog.Logger) (*SessionHandle, error) {
	// Step 1: build env allowlist.
	hostEnv := buildEnvAllowlist()

	// Step 2: create VM under the constructed egress policy.
	policy := buildEgressPolicy(m)
	createCtx := ctx
	if o.VMBootTimeout > 0 {
		var cancel context.CancelFunc
		createCtx, cancel = context.WithTimeout(ctx, o.VMBootTimeout)
		defer cancel()
	}
	vm, err := o.VMs.CreateVM(createCtx, policy)
	if err != nil {
		return nil, sandboxError(StageCreateVM, err)
	}
	log.Info("vm created", "unrestricted", policy.Unrestricted, "deny_all", policy.DenyAll, "allowed_domains", len(policy.AllowedDomains))

	destroyAndFail := func(stage Stage, err error) (*SessionHandle, error) {
		destroyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if destroyErr := vm.Destroy(destroyCtx); destroyErr != nil {
			log.Warn("destroying vm after failed bring-up", "stage", stage, "error", destroyErr)
		}
		return nil, sandboxError(stage, err)
	}

	// Step 3: upload agent code. Unlike state restore/save, agent code
	// is an arbitrary tree with no allowlisted-subdirectory structure,
	// so it is packed unfiltered rather than through snapshot.Pack.
	agentTar, err := packDirectory(agentDir)
	if err != nil {
		return destroyAndFail(StageUploadAgent, fmt.Errorf("packing agent code: %w", err))
	}
	if err := o.uploadTarAndExtract(ctx, vm, agentTar, agentDirRemote, log); err != nil {
		return destroyAndFail(StageUploadAgent, err)
	}

	// Step 4: restore prior state, if any, through the safe-extraction
	// filter. Extraction happens host-side first into a scratch
	// directory — the abstract VMHandle has no safe-extraction
	// primitive of its own — and only the already-filtered tree is
	// re-packed and uploaded.
	if len(priorState) > 0 {
		if err := o.restoreState(ctx, vm, priorState, log); err != nil {
			return destroyAndFail(StageRestoreState, err)
		}
	}

	// Step 5: harden, before any agent-controlled code runs.
	if err := o.harden(ctx, vm, len(secrets) > 0, log); err != nil {
		return destroyAndFail(StageHarden, err)
	}

	// Step 6: start proxy.
	routes, sessionToken, err := o.startProxy(ctx, vm, m, secrets, log)
	if err != nil {
		return destroyAndFail(StageStartProxy, err)
	}

	// Step 7: run setup_command, after the proxy has bound its ports.
	if m.SetupCommand != "" {
		if err := o.runSetupCommand(ctx, vm, m.SetupCommand, hostEnv, log); err != nil {
			return destroyAndFail(StageSetupCommand, err)
		}
	}

	// Step 8: exec agent.
	session, err := o.execAgent(ctx, vm, m, hostEnv, routes, sessionToken, sessionID, log)
	if err != nil {
		return destroyAndFail(StageExecAgent, err)
	}

	return session, nil
}

// uploadTarAndExtract uploads a gzipped tar to a scratch path inside
// the VM and extracts it under destDir (relative to the VM home
// directory) via an unprivileged `tar xzf`, then removes the scratch
// file. Grounded in the same upload-then-extract-then-remove shape
// used for agent code and state restoration alike.
func (o *Orchestrator) uploadTarAndExtract(ctx context.Context, vm VMHandle, tarGz []byte, destDir string, log *slog.Logger) error {
	scratchPath, err := writeScratchFile(tarGz)
	if err != nil {
		return fmt.Errorf("staging upload: %w", err)
	}
	defer os.Remove(scratchPath)

	remoteTar := ".primordial-upload.tar.gz"
	if err := uploadWithIntegrityCheck(ctx, vm, scratchPath, remoteTar, 0600); err != nil {
		return err
	}

	result, err := vm.Run(ctx, Command{
		Path: "/bin/sh",
		Args: []string{"-c", fmt.Sprintf("mkdir -p %s && tar xzf %s -C %s && rm -f %s",
			shellQuote(destDir), shellQuote(remoteTar), shellQuote(destDir), shellQuote(remoteTar))},
	})
	if err != nil {
		return fmt.Errorf("extracting %s: %w", destDir, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("extracting %s: exit code %d: %s", destDir, result.ExitCode, result.Stderr)
	}

	log.Info("uploaded and extracted", "dest", destDir, "size", humanize.Bytes(uint64(len(tarGz))))
	return nil
}

// restoreState filters priorState through snapshot.Unpack into a host
// scratch directory, re-packs the already-filtered tree, and uploads
// it the same way agent code is uploaded. Any safe-extraction
// violation in priorState fails this step entirely — nothing is
// uploaded.
func (o *Orchestrator) restoreState(ctx context.Context, vm VMHandle, priorState []byte, log *slog.Logger) error {
	scratchDir, err := os.MkdirTemp("", "primordial-restore-*")
	if err != nil {
		return fmt.Errorf("creating restore scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	if err := snapshot.Unpack(priorState, scratchDir, snapshot.Options{Logger: log}); err != nil {
		return fmt.Errorf("validating prior state: %w", err)
	}

	filtered, err := snapshot.Pack(scratchDir, snapshot.Options{Logger: log})
	if err != nil {
		return fmt.Errorf("repacking filtered state: %w", err)
	}

	return o.uploadTarAndExtract(ctx, vm, filtered, ".", log)
}

// harden runs the privileged hardening commands. requiresProxy is
// true when at least one provider secret is in use; in that case a
// hardening failure is fail-closed (the step returns an error rather
// than continuing with an un-hardened VM).
func (o *Orchestrator) harden(ctx context.Context, vm VMHandle, requiresProxy bool, log *slog.Logger) error {
	var script string
	for _, bin := range hardeningBinaries {
		script += fmt.Sprintf("chmod o-rx %s 2>/dev/null; ", shellQuote(bin))
	}
	script += fmt.Sprintf("deluser %s %s 2>/dev/null; ", shellQuote(unprivilegedUser), shellQuote(unprivilegedGroup))
	script += "mount -o remount,hidepid=2 /proc"

	result, err := vm.Run(ctx, Command{
		Path:       "/bin/sh",
		Args:       []string{"-c", script},
		Privileged: true,
	})

	hidepidFailed := err != nil || result.ExitCode != 0
	if hidepidFailed && requiresProxy {
		o.hardenFailClosed.Add(1)
		if err != nil {
			return fmt.Errorf("hardening: %w", err)
		}
		return fmt.Errorf("hardening: remount hidepid=2 failed: exit code %d: %s", result.ExitCode, result.Stderr)
	}
	if hidepidFailed {
		log.Warn("hardening failed but no provider secret is in use; continuing", "error", err)
	}

	log.Info("hardened")
	return nil
}

// startProxy generates a session token, assigns a loopback port per
// provider, uploads and launches the proxy with its configuration
// delivered only via standard input, and waits for the readiness
// marker before returning. The returned routes map provider name to
// assigned port, for building the agent's base-URL environment in
// step 8.
func (o *Orchestrator) startProxy(ctx context.Context, vm VMHandle, m *manifest.Manifest, secrets map[string]*secret.Buffer, log *slog.Logger) (map[string]int, string, error) {
	resolved := m.ResolvedProviders()
	if len(resolved) == 0 {
		return nil, "", nil
	}

	if err := uploadWithIntegrityCheck(ctx, vm, o.ProxyPath, proxyRemotePath, 0700); err != nil {
		return nil, "", fmt.Errorf("uploading proxy binary: %w", err)
	}

	sessionToken, err := generateSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("generating session token: %w", err)
	}

	ports := make(map[string]int, len(resolved))
	cfg := proxy.Config{SessionToken: sessionToken}
	for i, rp := range resolved {
		buf, ok := secrets[rp.Name]
		if !ok {
			return nil, "", fmt.Errorf("no resolved secret for provider %q", rp.Name)
		}
		port := basePort + i
		ports[rp.Name] = port
		cfg.Routes = append(cfg.Routes, proxy.Route{
			Provider:     rp.Name,
			ListenPort:   port,
			UpstreamHost: rp.Domain,
			AuthStyle:    proxy.AuthStyle(rp.AuthStyle),
			Secret:       buf.String(),
		})
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling proxy configuration: %w", err)
	}
	payload = append(payload, '\n')

	result, err := vm.Run(ctx, Command{
		Path:       proxyRemotePath,
		Privileged: true,
		Background: true,
		Stdin:      payload,
	})
	secret.Zero(payload)
	if err != nil {
		return nil, "", fmt.Errorf("launching proxy: %w", err)
	}

	if err := o.waitForProxyReady(ctx, vm, result, ports, log); err != nil {
		return nil, "", err
	}

	log.Info("proxy started", "routes", len(cfg.Routes))
	return ports, sessionToken, nil
}

// waitForProxyReady blocks until the proxy's readiness marker appears
// on result.StderrStream, or the process exits first, or the bound
// timeout elapses. It then confirms the first assigned port accepts a
// TCP connection before returning.
func (o *Orchestrator) waitForProxyReady(ctx context.Context, vm VMHandle, result ExecutionResult, ports map[string]int, log *slog.Logger) error {
	timeout := o.ProxyReadyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	readyCh := make(chan error, 1)
	go func() {
		readyCh <- scanForReadinessMarker(result.StderrStream)
	}()

	select {
	case err := <-readyCh:
		if err != nil {
			return fmt.Errorf("waiting for proxy readiness: %w", err)
		}
	case <-result.Done:
		return fmt.Errorf("proxy process exited before signaling readiness")
	case <-o.clock().After(timeout):
		return fmt.Errorf("timed out after %v waiting for proxy readiness", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	var firstPort int
	for _, port := range ports {
		if firstPort == 0 || port < firstPort {
			firstPort = port
		}
	}
	if firstPort == 0 {
		return nil
	}

	probe, err := vm.Run(ctx, Command{
		Path: "/bin/sh",
		Args: []string{"-c", fmt.Sprintf("echo | nc -w1 127.0.0.1 %d", firstPort)},
	})
	if err != nil || probe.ExitCode != 0 {
		return fmt.Errorf("proxy readiness probe on port %d failed", firstPort)
	}

	return nil
}

// scanForReadinessMarker reads lines from r until it sees a line
// beginning with the proxy's fixed readiness prefix, or r is
// exhausted, or reading fails.
func scanForReadinessMarker(r io.Reader) error {
	if r == nil {
		return fmt.Errorf("no stderr stream available")
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if isReadinessLine(scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("proxy stderr closed before emitting readiness marker")
}

func isReadinessLine(line string) bool {
	const prefix = "PRIMORDIAL-PROXY-READY"
	return len(line) >= len(prefix) && line[:len(prefix)] == prefix
}

// runSetupCommand runs the manifest's declared setup_command as the
// unprivileged user, bounded by setupCommandTimeout. A nonzero exit is
// fatal.
func (o *Orchestrator) runSetupCommand(ctx context.Context, vm VMHandle, setupCommand string, env map[string]string, log *slog.Logger) error {
	result, err := vm.Run(ctx, Command{
		Path:    "/bin/sh",
		Args:    []string{"-c", setupCommand},
		Env:     env,
		Timeout: setupCommandTimeout,
	})
	if err != nil {
		return fmt.Errorf("running setup_command: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("setup_command exited %d: %s", result.ExitCode, result.Stderr)
	}

	log.Info("setup_command completed")
	return nil
}

// execAgent launches run_command as the unprivileged user with an
// environment built from the host allowlist plus, per provider, the
// placeholder session token under env_var and the proxy's loopback
// base URL under base_url_env. The environment is passed as Command's
// structured Env map, not assembled as an inline shell prefix, so
// run_command's own shell never needs to re-parse provider-controlled
// names or values as shell syntax. Only run_command itself — a fixed
// string from the manifest, not per-provider data — is interpreted by
// /bin/sh -c.
func (o *Orchestrator) execAgent(ctx context.Context, vm VMHandle, m *manifest.Manifest, hostEnv map[string]string, ports map[string]int, sessionToken, sessionID string, log *slog.Logger) (*SessionHandle, error) {
	env := make(map[string]string, len(hostEnv)+2*len(m.Providers))
	for k, v := range hostEnv {
		env[k] = v
	}
	for _, rp := range m.ResolvedProviders() {
		env[rp.EnvVar] = sessionToken
		env[rp.BaseURLEnv] = fmt.Sprintf("http://127.0.0.1:%d", ports[rp.Name])
	}

	result, err := vm.Run(ctx, Command{
		Path:       "/bin/sh",
		Args:       []string{"-c", m.RunCommand},
		Env:        env,
		Background: true,
	})
	if err != nil {
		return nil, fmt.Errorf("launching agent: %w", err)
	}

	log.Info("agent launched", "run_command", m.RunCommand)

	return &SessionHandle{
		VM:        vm,
		Stdin:     result.Stdin,
		Stdout:    result.StdoutStream,
		SessionID: sessionID,
	}, nil
}

// Close sends a shutdown message to the agent, saves session state by
// tarring the allowlisted directories inside the VM and capturing the
// tar's stdout directly, then destroys the VM unconditionally. Close
// is idempotent: subsequent calls return the bytes and error from the
// first call without repeating any of the work.
func (o *Orchestrator) Close(ctx context.Context, s *SessionHandle) ([]byte, error) {
	s.closeOnce.Do(func() {
		s.closeState, s.closeErr = o.closeSession(ctx, s)
	})
	return s.closeState, s.closeErr
}

func (o *Orchestrator) closeSession(ctx context.Context, s *SessionHandle) ([]byte, error) {
	timeout := o.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	closeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.Stdin != nil {
		shutdown, _ := json.Marshal(map[string]string{"type": "shutdown"})
		shutdown = append(shutdown, '\n')
		s.Stdin.Write(shutdown)
		s.Stdin.Close()
	}

	dirs := make([]string, 0, len(snapshot.AllowedDirs))
	for _, d := range snapshot.AllowedDirs {
		dirs = append(dirs, shellQuote(d))
	}
	result, runErr := s.VM.Run(closeCtx, Command{
		Path: "/bin/sh",
		Args: []string{"-c", fmt.Sprintf("tar czf - %s 2>/dev/null", joinArgs(dirs))},
	})

	destroyErr := s.VM.Destroy(ctx)

	if runErr != nil {
		if destroyErr != nil {
			return nil, fmt.Errorf("saving session state: %w (vm destroy also failed: %v)", runErr, destroyErr)
		}
		return nil, fmt.Errorf("saving session state: %w", runErr)
	}
	if destroyErr != nil {
		return result.Stdout, fmt.Errorf("destroying vm: %w", destroyErr)
	}

	o.logger().Info("session closed", "session", s.SessionID, "state_size", humanize.Bytes(uint64(len(result.Stdout))))
	return result.Stdout, nil
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func writeScratchFile(data []byte) (string, error) {
	f, err := os.CreateTemp("", "primordial-upload-*.tar.gz")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func generateSessionToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "sess-" + hex.EncodeToString(raw), nil
}
