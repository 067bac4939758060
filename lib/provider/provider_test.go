// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import "testing"

func TestLookup_Known(t *testing.T) {
	entry, ok := Lookup("anthropic")
	if !ok {
		t.Fatal("expected anthropic to be known")
	}
	if entry.Domain != "api.anthropic.com" {
		t.Errorf("unexpected domain: %s", entry.Domain)
	}
	if entry.AuthStyle != AuthStyleXAPIKey {
		t.Errorf("unexpected auth style: %s", entry.AuthStyle)
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	_, ok := Lookup("Anthropic")
	if !ok {
		t.Fatal("expected case-insensitive lookup to succeed")
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := Lookup("evil-corp")
	if ok {
		t.Fatal("expected unknown provider to miss")
	}
}

func TestDefaultEnvVar(t *testing.T) {
	cases := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"my-thing":  "MY_THING_API_KEY",
	}
	for provider, want := range cases {
		if got := DefaultEnvVar(provider); got != want {
			t.Errorf("DefaultEnvVar(%q) = %q, want %q", provider, got, want)
		}
	}
}

func TestProtectedEnvVars_CoversKnownProviders(t *testing.T) {
	protected := ProtectedEnvVars()
	for _, name := range Names() {
		entry, _ := Lookup(name)
		if !protected[DefaultEnvVar(name)] {
			t.Errorf("expected %s's API key env var to be protected", name)
		}
		if !protected[entry.BaseURLEnv] {
			t.Errorf("expected %s's base_url_env to be protected", name)
		}
	}
}

func TestProtectedEnvVars_MutationDoesNotAffectTable(t *testing.T) {
	protected := ProtectedEnvVars()
	delete(protected, "ANTHROPIC_API_KEY")

	again := ProtectedEnvVars()
	if !again["ANTHROPIC_API_KEY"] {
		t.Fatal("mutating one returned map affected a later call")
	}
}

func TestNames_Sorted(t *testing.T) {
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("Names() not sorted: %v", names)
		}
	}
}
