package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsSecureByDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatalf("expected auth.enabled to default to true")
	}
	if !cfg.Auth.enabledSet {
		t.Fatalf("expected auth.enabled default to mark enabledSet true")
	}
	if cfg.Auth.AllowAnonymous {
		t.Fatalf("expected auth.allowAnonymous to default to false")
	}
	if cfg.Auth.CallerClaim != "sub" {
		t.Fatalf("expected caller claim to default to sub, got %q", cfg.Auth.CallerClaim)
	}
	if _, ok := cfg.RateLimitByID("write"); !ok {
		t.Fatalf("expected a default write rate limit")
	}
}

func TestLoadDefaultsAllowAnonymousDisabledWhenAuthEnabled(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.AllowAnonymous {
		t.Fatalf("expected auth.allowAnonymous to default to false when auth.enabled is true")
	}
	if cfg.Auth.ScopeClaim != "scope" || cfg.Auth.CallerClaim != "sub" {
		t.Fatalf("expected claim defaults, got %q/%q", cfg.Auth.ScopeClaim, cfg.Auth.CallerClaim)
	}
}

func TestLoadRequiresOptionalPathsWhenAllowAnonymousEnabled(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: true\n  allowAnonymous: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to fail when auth.allowAnonymous is true without optional paths")
	}
}

func TestLoadTLSRequiresSecret(t *testing.T) {
	yaml := "security:\n  tlsCertFile: /etc/gateway/cert.pem\n  tlsKeyFile: /etc/gateway/key.pem\n"
	path := writeConfig(t, yaml)
	if _, err := Load(path); !errors.Is(err, ErrAuthSecretMissing) {
		t.Fatalf("expected missing secret error, got %v", err)
	}

	yaml = "auth:\n  enabled: true\n  hmacSecret: s3cret\nsecurity:\n  tlsCertFile: /etc/gateway/cert.pem\n  tlsKeyFile: /etc/gateway/key.pem\n"
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Security.TLSEnabled() {
		t.Fatalf("expected TLS to be enabled")
	}
}

func TestLoadAllowsExplicitAuthDisabledForSensitiveTLSConfig(t *testing.T) {
	yaml := "auth:\n  enabled: false\nsecurity:\n  tlsCertFile: /etc/gateway/cert.pem\n  tlsKeyFile: /etc/gateway/key.pem\n"
	path := writeConfig(t, yaml)
	if _, err := Load(path); err != nil {
		t.Fatalf("load config: %v", err)
	}
}

func TestLoadRejectsHalfConfiguredTLS(t *testing.T) {
	yaml := "auth:\n  enabled: false\nsecurity:\n  tlsCertFile: /etc/gateway/cert.pem\n"
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Fatalf("expected error when only the certificate is configured")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	if _, err := Load(writeConfig(t, "listen: \":9000\"\nservices: []\n")); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func TestLoadRateLimits(t *testing.T) {
	yaml := "rateLimits:\n  - id: write\n    ratePerSecond: 2\n    burst: 4\n"
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	limit, ok := cfg.RateLimitByID("write")
	if !ok || limit.RatePerSecond != 2 || limit.Burst != 4 {
		t.Fatalf("unexpected write limit %+v", limit)
	}
	if _, ok := cfg.RateLimitByID("read"); ok {
		t.Fatalf("file limits should replace the defaults")
	}

	yaml = "rateLimits:\n  - id: write\n  - id: write\n"
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Fatalf("expected duplicate rate limit ids to be rejected")
	}
}

func TestLoadNormalizesOptionalPaths(t *testing.T) {
	yaml := "auth:\n  enabled: true\n  allowAnonymous: true\n  optionalPaths:\n    - /v1/rounds\n    - \"   /v1/config   \"\n"
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	expected := []string{"/v1/rounds", "/v1/config"}
	if len(cfg.Auth.OptionalPaths) != len(expected) {
		t.Fatalf("expected %d optional paths, got %d", len(expected), len(cfg.Auth.OptionalPaths))
	}
	for i, path := range expected {
		if cfg.Auth.OptionalPaths[i] != path {
			t.Fatalf("optional path %d mismatch: expected %q, got %q", i, path, cfg.Auth.OptionalPaths[i])
		}
	}
}

func TestLoadRejectsOptionalPathsWithoutLeadingSlash(t *testing.T) {
	yaml := "auth:\n  enabled: true\n  allowAnonymous: true\n  optionalPaths:\n    - v1/rounds\n"
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for optional path without leading slash")
	}
}

func TestValidateRejectsImplicitAnonymousAccess(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			Enabled:        true,
			OptionalPaths:  []string{"/v1/rounds"},
			AllowAnonymous: true,
			enabledSet:     true,
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error when auth.allowAnonymous is true without explicit opt-in")
	}
	if !strings.Contains(err.Error(), "auth.allowAnonymous must be explicitly set") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnforceSecureScheme(t *testing.T) {
	plain, _ := url.Parse("http://gateway:8080")
	if _, upgraded, err := EnforceSecureScheme("dev", plain, false); err != nil || upgraded {
		t.Fatalf("dev should accept http, got upgraded=%v err=%v", upgraded, err)
	}
	if _, _, err := EnforceSecureScheme("prod", plain, false); err == nil {
		t.Fatalf("prod should reject http")
	}
	out, upgraded, err := EnforceSecureScheme("prod", plain, true)
	if err != nil || !upgraded || out.Scheme != "https" {
		t.Fatalf("expected upgrade to https, got %v %v %v", out, upgraded, err)
	}
}
