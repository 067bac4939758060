// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

// fakeVMProvider is a VMProvider that hands out a single fakeVM and
// records the egress policy it was asked to enforce.
type fakeVMProvider struct {
	mu         sync.Mutex
	lastPolicy EgressPolicy
	createErr  error
	vm         *fakeVM
}

func newFakeVMProvider() *fakeVMProvider {
	return &fakeVMProvider{vm: newFakeVM()}
}

func (p *fakeVMProvider) CreateVM(ctx context.Context, policy EgressPolicy) (VMHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPolicy = policy
	if p.createErr != nil {
		return nil, p.createErr
	}
	return p.vm, nil
}

// fakeVM is a VMHandle whose Run behavior is driven by a handler
// function set per test. Uploads and Destroy calls are recorded for
// assertion.
type fakeVM struct {
	mu         sync.Mutex
	uploads    []fakeUpload
	destroyed  bool
	destroyErr error

	runFunc func(cmd Command) (ExecutionResult, error)
}

type fakeUpload struct {
	localPath  string
	remotePath string
	mode       os.FileMode
}

func newFakeVM() *fakeVM {
	return &fakeVM{
		runFunc: func(cmd Command) (ExecutionResult, error) {
			return ExecutionResult{ExitCode: 0}, nil
		},
	}
}

func (v *fakeVM) Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.uploads = append(v.uploads, fakeUpload{localPath: localPath, remotePath: remotePath, mode: mode})
	return nil
}

func (v *fakeVM) Run(ctx context.Context, cmd Command) (ExecutionResult, error) {
	return v.runFunc(cmd)
}

func (v *fakeVM) Destroy(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyed = true
	return v.destroyErr
}

// nopWriteCloser adapts an io.Writer (commonly io.Discard) to
// io.WriteCloser for ExecutionResult.Stdin in fakes.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// scriptContains reports whether cmd's shell script argument contains
// needle, used by test runFunc implementations to branch on which
// bring-up step is calling Run.
func scriptContains(cmd Command, needle string) bool {
	for _, arg := range cmd.Args {
		if strings.Contains(arg, needle) {
			return true
		}
	}
	return false
}

// fakeAgentResolver is an AgentResolver returning a fixed local path.
type fakeAgentResolver struct {
	localPath string
	err       error
}

func (r *fakeAgentResolver) Resolve(ctx context.Context, url, ref string) (string, error) {
	return r.localPath, r.err
}
