// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives the security-critical bring-up of one
// agent session inside a fresh microVM: build the environment
// allowlist, create the VM under a constructed egress policy, upload
// agent code, restore prior state through a safe-extraction filter,
// harden the VM against privilege escalation and /proc snooping,
// start the credential proxy with real secrets delivered only over
// its standard input, run any declared setup command, and finally
// exec the agent with placeholder credentials.
//
// Each step must complete before the next begins; any failure before
// the agent starts destroys the VM. The package depends on three
// externally supplied interfaces — VMProvider, VMHandle, and
// AgentResolver — and ships no concrete implementation of any of
// them: the microVM backend and the agent-registry resolver are the
// caller's responsibility.
package orchestrator
