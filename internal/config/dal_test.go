package config

import "testing"

func TestRepoBackendConstructsRegisteredVariant(t *testing.T) {
	r := &Repo{Name: "r", DAL: AccessMethodPOSIX}
	if _, err := r.Backend(map[string]interface{}{"root": t.TempDir()}); err != nil {
		t.Fatalf("Backend: %v", err)
	}
}

func TestRepoBackendRejectsUnknownAccessMethod(t *testing.T) {
	r := &Repo{Name: "r", DAL: AccessMethod("bogus")}
	if _, err := r.Backend(nil); err == nil {
		t.Fatal("expected error for unknown access method")
	}
}

func TestRepoBackendSemiNotYetRegistered(t *testing.T) {
	r := &Repo{Name: "r", DAL: AccessMethodSemi}
	if _, err := r.Backend(nil); err == nil {
		t.Fatal("expected error: semi_direct DAL variant has no registered constructor yet")
	}
}
