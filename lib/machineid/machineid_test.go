// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package machineid

import (
	"runtime"
	"testing"
)

func TestIdentify_NeverFails(t *testing.T) {
	id, err := Identify()
	if err != nil {
		t.Fatalf("Identify() failed: %v", err)
	}
	if id.Value == "" {
		t.Fatal("expected non-empty Value")
	}
	if id.Factor == "" {
		t.Fatal("expected non-empty Factor")
	}
}

func TestIdentify_FactorMatchesPlatform(t *testing.T) {
	id, err := Identify()
	if err != nil {
		t.Fatalf("Identify() failed: %v", err)
	}

	switch runtime.GOOS {
	case "linux":
		if id.Factor != FactorLinuxMachineID && id.Factor != FactorHostnameMAC {
			t.Errorf("unexpected factor on linux: %s", id.Factor)
		}
	case "darwin":
		if id.Factor != FactorDarwinPlatformUUID && id.Factor != FactorHostnameMAC {
			t.Errorf("unexpected factor on darwin: %s", id.Factor)
		}
	default:
		if id.Factor != FactorHostnameMAC {
			t.Errorf("expected fallback factor on %s, got %s", runtime.GOOS, id.Factor)
		}
	}
}

func TestID_String(t *testing.T) {
	id := ID{Value: "abc123", Factor: FactorLinuxMachineID}
	want := "linux-machine-id:abc123"
	if got := id.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestIdentify_Stable(t *testing.T) {
	first, err := Identify()
	if err != nil {
		t.Fatalf("Identify() failed: %v", err)
	}
	second, err := Identify()
	if err != nil {
		t.Fatalf("Identify() failed: %v", err)
	}
	if first != second {
		t.Errorf("Identify() not stable across calls: %+v != %+v", first, second)
	}
}

func TestFirstInterfaceMAC_NeverEmpty(t *testing.T) {
	if mac := firstInterfaceMAC(); mac == "" {
		t.Fatal("expected non-empty MAC fallback")
	}
}
