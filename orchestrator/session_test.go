// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/primordial-run/primordial/lib/config"
	"github.com/primordial-run/primordial/lib/secret"
	"github.com/primordial-run/primordial/manifest"
)

func TestNewFromConfig_UsesTimeouts(t *testing.T) {
	cfg := config.Default()
	cfg.Timeouts.VMBoot = "45s"
	cfg.Timeouts.ProxyReady = "7s"
	cfg.Timeouts.Shutdown = "20s"

	o, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	if o.VMBootTimeout != 45*time.Second {
		t.Errorf("VMBootTimeout = %v, want 45s", o.VMBootTimeout)
	}
	if o.ProxyReadyTimeout != 7*time.Second {
		t.Errorf("ProxyReadyTimeout = %v, want 7s", o.ProxyReadyTimeout)
	}
	if o.ShutdownTimeout != 20*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 20s", o.ShutdownTimeout)
	}
}

func TestNewFromConfig_RejectsUnparseableTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Timeouts.VMBoot = "not-a-duration"

	if _, err := NewFromConfig(cfg); err == nil {
		t.Error("expected NewFromConfig to reject an unparseable timeout")
	}
}

func testManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	return &manifest.Manifest{
		Name:       "weather-agent",
		Version:    "1.0.0",
		RunCommand: "python agent.py",
		Providers: []manifest.Provider{
			{Name: "anthropic"},
		},
	}
}

func testAgentDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "agent.py"), []byte("print('hi')\n"), 0644); err != nil {
		t.Fatalf("writing agent.py: %v", err)
	}
	return dir
}

func testProxyBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "primordial-proxy")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho proxy\n"), 0700); err != nil {
		t.Fatalf("writing fake proxy binary: %v", err)
	}
	return path
}

func testSecrets(t *testing.T) map[string]*secret.Buffer {
	t.Helper()
	buf, err := secret.NewFromBytes([]byte("sk-ant-test-key"))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buf.Close() })
	return map[string]*secret.Buffer{"anthropic": buf}
}

// successRunFunc returns a runFunc that answers every step of a
// successful 8-step bring-up.
func successRunFunc() func(cmd Command) (ExecutionResult, error) {
	return func(cmd Command) (ExecutionResult, error) {
		switch {
		case cmd.Background && cmd.Path == proxyRemotePath:
			return ExecutionResult{
				Stdin:        nopWriteCloser{io.Discard},
				StderrStream: io.NopCloser(strings.NewReader("PRIMORDIAL-PROXY-READY ports=9001\n")),
				Done:         make(chan struct{}),
			}, nil
		case scriptContains(cmd, "nc -w1"):
			return ExecutionResult{ExitCode: 0}, nil
		case cmd.Background && cmd.Path == "/bin/sh":
			return ExecutionResult{
				Stdin:        nopWriteCloser{io.Discard},
				StdoutStream: io.NopCloser(strings.NewReader("")),
				Done:         make(chan struct{}),
			}, nil
		case scriptContains(cmd, "tar czf -"):
			return ExecutionResult{ExitCode: 0, Stdout: []byte("fake-state-bytes")}, nil
		default:
			return ExecutionResult{ExitCode: 0}, nil
		}
	}
}

func newTestOrchestrator(t *testing.T, provider *fakeVMProvider) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		VMs:       provider,
		Agents:    &fakeAgentResolver{},
		ProxyPath: testProxyBinary(t),
	}
}

func TestRun_FullBringUpSucceeds(t *testing.T) {
	provider := newFakeVMProvider()
	provider.vm.runFunc = successRunFunc()

	o := newTestOrchestrator(t, provider)
	m := testManifest(t)
	secrets := testSecrets(t)

	handle, err := o.Run(context.Background(), m, testAgentDir(t), nil, secrets)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if handle.SessionID == "" {
		t.Error("SessionHandle.SessionID is empty")
	}
	if handle.Stdin == nil || handle.Stdout == nil {
		t.Error("SessionHandle missing Stdin/Stdout")
	}
	if o.sessionsStarted.Load() != 1 {
		t.Errorf("sessionsStarted = %d, want 1", o.sessionsStarted.Load())
	}

	state, err := o.Close(context.Background(), handle)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(state) != "fake-state-bytes" {
		t.Errorf("Close state = %q, want %q", state, "fake-state-bytes")
	}
	if !provider.vm.destroyed {
		t.Error("Close did not destroy the vm")
	}
}

func TestRun_NoProvidersSkipsProxy(t *testing.T) {
	provider := newFakeVMProvider()
	provider.vm.runFunc = successRunFunc()

	o := newTestOrchestrator(t, provider)
	m := &manifest.Manifest{Name: "no-providers", RunCommand: "true"}

	handle, err := o.Run(context.Background(), m, testAgentDir(t), nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a session handle")
	}
}

func TestRun_CreateVMFailureReturnsSandboxError(t *testing.T) {
	provider := newFakeVMProvider()
	provider.createErr = errTestCreateVM

	o := newTestOrchestrator(t, provider)
	m := testManifest(t)

	_, err := o.Run(context.Background(), m, testAgentDir(t), nil, testSecrets(t))
	if err == nil {
		t.Fatal("expected an error")
	}
	var sandboxErr *SandboxError
	if !errorsAs(err, &sandboxErr) {
		t.Fatalf("expected *SandboxError, got %T: %v", err, err)
	}
	if sandboxErr.Stage != StageCreateVM {
		t.Errorf("Stage = %v, want %v", sandboxErr.Stage, StageCreateVM)
	}
	if o.sessionsFailed.Load() != 1 {
		t.Errorf("sessionsFailed = %d, want 1", o.sessionsFailed.Load())
	}
}

func TestRun_HardenFailureFailsClosedWhenSecretsInUse(t *testing.T) {
	provider := newFakeVMProvider()
	provider.vm.runFunc = func(cmd Command) (ExecutionResult, error) {
		if scriptContains(cmd, "hidepid=2") {
			return ExecutionResult{ExitCode: 1, Stderr: []byte("mount: permission denied")}, nil
		}
		return successRunFunc()(cmd)
	}

	o := newTestOrchestrator(t, provider)
	m := testManifest(t)

	_, err := o.Run(context.Background(), m, testAgentDir(t), nil, testSecrets(t))
	if err == nil {
		t.Fatal("expected hardening failure to be fatal when a provider secret is in use")
	}
	var sandboxErr *SandboxError
	if !errorsAs(err, &sandboxErr) || sandboxErr.Stage != StageHarden {
		t.Fatalf("expected StageHarden SandboxError, got %v", err)
	}
	if o.hardenFailClosed.Load() != 1 {
		t.Errorf("hardenFailClosed = %d, want 1", o.hardenFailClosed.Load())
	}
	if !provider.vm.destroyed {
		t.Error("vm should be destroyed after a fatal hardening failure")
	}
}

func TestRun_HardenFailureContinuesWithoutSecrets(t *testing.T) {
	provider := newFakeVMProvider()
	provider.vm.runFunc = func(cmd Command) (ExecutionResult, error) {
		if scriptContains(cmd, "hidepid=2") {
			return ExecutionResult{ExitCode: 1}, nil
		}
		return successRunFunc()(cmd)
	}

	o := newTestOrchestrator(t, provider)
	m := &manifest.Manifest{Name: "no-providers", RunCommand: "true"}

	_, err := o.Run(context.Background(), m, testAgentDir(t), nil, nil)
	if err != nil {
		t.Fatalf("Run should succeed when no provider secret is in use: %v", err)
	}
}

func TestRun_SetupCommandNonzeroExitIsFatal(t *testing.T) {
	provider := newFakeVMProvider()
	provider.vm.runFunc = func(cmd Command) (ExecutionResult, error) {
		if scriptContains(cmd, "false") {
			return ExecutionResult{ExitCode: 1, Stderr: []byte("boom")}, nil
		}
		return successRunFunc()(cmd)
	}

	o := newTestOrchestrator(t, provider)
	m := testManifest(t)
	m.SetupCommand = "false"

	_, err := o.Run(context.Background(), m, testAgentDir(t), nil, testSecrets(t))
	if err == nil {
		t.Fatal("expected a nonzero setup_command exit to be fatal")
	}
	var sandboxErr *SandboxError
	if !errorsAs(err, &sandboxErr) || sandboxErr.Stage != StageSetupCommand {
		t.Fatalf("expected StageSetupCommand SandboxError, got %v", err)
	}
	if !provider.vm.destroyed {
		t.Error("vm should be destroyed after a failed setup_command")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	provider := newFakeVMProvider()
	calls := 0
	provider.vm.runFunc = func(cmd Command) (ExecutionResult, error) {
		if scriptContains(cmd, "tar czf -") {
			calls++
		}
		return successRunFunc()(cmd)
	}

	o := newTestOrchestrator(t, provider)
	handle, err := o.Run(context.Background(), testManifest(t), testAgentDir(t), nil, testSecrets(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	first, err1 := o.Close(context.Background(), handle)
	second, err2 := o.Close(context.Background(), handle)

	if err1 != nil || err2 != nil {
		t.Fatalf("Close errors: %v, %v", err1, err2)
	}
	if string(first) != string(second) {
		t.Errorf("Close results differ across calls: %q vs %q", first, second)
	}
	if calls != 1 {
		t.Errorf("state-save command ran %d times, want 1", calls)
	}
}

func TestResolveAndRun_UsesAgentResolver(t *testing.T) {
	provider := newFakeVMProvider()
	provider.vm.runFunc = successRunFunc()

	dir := testAgentDir(t)
	o := newTestOrchestrator(t, provider)
	o.Agents = &fakeAgentResolver{localPath: dir}

	handle, err := o.ResolveAndRun(context.Background(), testManifest(t), "https://example.com/agent.git", "main", nil, testSecrets(t))
	if err != nil {
		t.Fatalf("ResolveAndRun: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a session handle")
	}
}

// errorsAs is a tiny local wrapper so this file doesn't need to import
// errors solely for one call site.
func errorsAs(err error, target **SandboxError) bool {
	for err != nil {
		if se, ok := err.(*SandboxError); ok {
			*target = se
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

var errTestCreateVM = &testError{"vm provider unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
