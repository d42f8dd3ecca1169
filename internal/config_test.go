package internal

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Remote.Repo = "example/field-data"
	return cfg
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestRemoteConfig_DefaultsApplied(t *testing.T) {
	cfg := RemoteConfig{BaseURL: "https://api.github.com", Repo: "example/field-data"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minimal remote config should pass: %v", err)
	}
	if cfg.Branch != "main" {
		t.Errorf("branch = %q, want main", cfg.Branch)
	}
	if cfg.TimeoutSeconds != 30 {
		t.Errorf("timeout = %d, want 30", cfg.TimeoutSeconds)
	}
}

func TestRemoteConfig_RepoRequired(t *testing.T) {
	cfg := RemoteConfig{BaseURL: "https://api.github.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing repo should fail validation")
	}
}

func TestFullConfig_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with repo should pass: %v", err)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestFullConfig_RemoteValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("default config without a repo should fail validation")
	}
}
