// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import "fmt"

// Stage names one of the 8 ordered bring-up steps, used by
// SandboxError to say which step failed.
type Stage string

const (
	StageEnvAllowlist Stage = "build_env_allowlist"
	StageCreateVM     Stage = "create_vm"
	StageUploadAgent  Stage = "upload_agent_code"
	StageRestoreState Stage = "restore_state"
	StageHarden       Stage = "harden"
	StageStartProxy   Stage = "start_proxy"
	StageSetupCommand Stage = "run_setup_command"
	StageExecAgent    Stage = "execute_agent"
)

// SandboxError reports a fatal failure in one of the 8 ordered
// bring-up steps. Every SandboxError that reaches the caller already
// corresponds to a VM that has been (or is about to be) destroyed —
// this package never leaves a half-started VM running.
type SandboxError struct {
	Stage Stage
	Err   error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("orchestrator: %s: %v", e.Stage, e.Err)
}

func (e *SandboxError) Unwrap() error { return e.Err }

func sandboxError(stage Stage, err error) *SandboxError {
	return &SandboxError{Stage: stage, Err: err}
}
