package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"HOST", "PORT", "METRICS_ENABLED", "METRICS_PORT",
		"CONNECT_TIMEOUT", "FETCH_TIMEOUT", "RESOLVE_TIMEOUT",
		"MAX_RESPONSE_BYTES", "MAX_UPLOAD_BYTES",
		"POLICY_PATH", "LOG_LEVEL", "CORS_ALLOWED_ORIGINS",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to be false by default")
	}
	if cfg.MetricsPort != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.MetricsPort)
	}

	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("Expected default connect timeout 5s, got %v", cfg.ConnectTimeout)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("Expected default fetch timeout 10s, got %v", cfg.FetchTimeout)
	}
	if cfg.ResolveTimeout != 5*time.Second {
		t.Errorf("Expected default resolve timeout 5s, got %v", cfg.ResolveTimeout)
	}
	if cfg.MaxResponseBytes != 5<<20 {
		t.Errorf("Expected default max response 5 MiB, got %d", cfg.MaxResponseBytes)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("Expected default max upload 10 MiB, got %d", cfg.MaxUploadBytes)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}

	if !slices.Contains(cfg.HostnameDenylist, "localhost") {
		t.Error("Expected default denylist to contain localhost")
	}
	if !slices.Contains(cfg.HostnameDenylist, "metadata.google.internal") {
		t.Error("Expected default denylist to contain metadata.google.internal")
	}
	if !slices.Contains(cfg.AllowedExtensions, ".pdf") {
		t.Error("Expected default extensions to contain .pdf")
	}
	if slices.Contains(cfg.AllowedExtensions, ".exe") {
		t.Error("Default extensions must not contain .exe")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)

	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9000")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("FETCH_TIMEOUT", "30s")
	t.Setenv("MAX_RESPONSE_BYTES", "1048576")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %q", cfg.Host)
	}
	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Port)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to be true")
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("Expected fetch timeout 30s, got %v", cfg.FetchTimeout)
	}
	if cfg.MaxResponseBytes != 1048576 {
		t.Errorf("Expected max response 1048576, got %d", cfg.MaxResponseBytes)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !slices.Equal(cfg.CORSAllowedOrigins, want) {
		t.Errorf("Expected origins %v, got %v", want, cfg.CORSAllowedOrigins)
	}
}

func TestLoadInvalidEnvironmentFallsBack(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "not-a-number")
	t.Setenv("FETCH_TIMEOUT", "sometime")
	t.Setenv("METRICS_ENABLED", "maybe")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Expected fallback port 8080, got %d", cfg.Port)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("Expected fallback fetch timeout 10s, got %v", cfg.FetchTimeout)
	}
	if cfg.MetricsEnabled {
		t.Error("Expected fallback MetricsEnabled false")
	}
}

func TestValidateCorrections(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	cfg.Port = 99999
	cfg.ConnectTimeout = time.Millisecond
	cfg.FetchTimeout = 10 * time.Minute
	cfg.MaxResponseBytes = 10
	cfg.MaxUploadBytes = 1 << 40
	cfg.LogLevel = "verbose"
	cfg.Validate()

	if cfg.Port != 8080 {
		t.Errorf("Expected corrected port 8080, got %d", cfg.Port)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("Expected corrected connect timeout 5s, got %v", cfg.ConnectTimeout)
	}
	if cfg.FetchTimeout != maxFetchTimeout {
		t.Errorf("Expected fetch timeout capped to %v, got %v", maxFetchTimeout, cfg.FetchTimeout)
	}
	if cfg.MaxResponseBytes != 5<<20 {
		t.Errorf("Expected corrected max response 5 MiB, got %d", cfg.MaxResponseBytes)
	}
	if cfg.MaxUploadBytes != maxUploadBytesCap {
		t.Errorf("Expected max upload capped to %d, got %d", maxUploadBytesCap, cfg.MaxUploadBytes)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected corrected log level 'info', got %q", cfg.LogLevel)
	}
}

func TestValidateDisablesConflictingMetricsPort(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	cfg.MetricsEnabled = true
	cfg.MetricsPort = cfg.Port
	cfg.Validate()

	if cfg.MetricsEnabled {
		t.Error("Expected metrics disabled when ports conflict")
	}
}

func TestValidateNormalizesPolicyLists(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	cfg.HostnameDenylist = []string{" LocalHost ", "localhost", "Evil.Internal", ""}
	cfg.AllowedExtensions = []string{"PDF", ".pdf", "txt", " "}
	cfg.Validate()

	wantHosts := []string{"localhost", "evil.internal"}
	if !slices.Equal(cfg.HostnameDenylist, wantHosts) {
		t.Errorf("Expected denylist %v, got %v", wantHosts, cfg.HostnameDenylist)
	}
	wantExts := []string{".pdf", ".txt"}
	if !slices.Equal(cfg.AllowedExtensions, wantExts) {
		t.Errorf("Expected extensions %v, got %v", wantExts, cfg.AllowedExtensions)
	}
}

func TestLoadPolicy(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	policy := `hostname_denylist:
  - internal.corp
  - vault.service.consul
allowed_extensions:
  - .pdf
  - .txt
`
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	cfg.PolicyPath = path
	if err := cfg.LoadPolicy(); err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	wantHosts := []string{"internal.corp", "vault.service.consul"}
	if !slices.Equal(cfg.HostnameDenylist, wantHosts) {
		t.Errorf("Expected denylist replaced with %v, got %v", wantHosts, cfg.HostnameDenylist)
	}
	wantExts := []string{".pdf", ".txt"}
	if !slices.Equal(cfg.AllowedExtensions, wantExts) {
		t.Errorf("Expected extensions replaced with %v, got %v", wantExts, cfg.AllowedExtensions)
	}
}

func TestLoadPolicyMissingFileFails(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	cfg.PolicyPath = filepath.Join(t.TempDir(), "absent.yaml")
	if err := cfg.LoadPolicy(); err == nil {
		t.Error("Expected error for missing policy file")
	}
}

func TestLoadPolicyMalformedFails(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("hostname_denylist: {not: [valid"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	cfg.PolicyPath = path
	if err := cfg.LoadPolicy(); err == nil {
		t.Error("Expected error for malformed policy file")
	}
}

func TestLoadPolicyEmptyPathIsNoop(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	denylistBefore := len(cfg.HostnameDenylist)
	if err := cfg.LoadPolicy(); err != nil {
		t.Fatalf("LoadPolicy with empty path failed: %v", err)
	}
	if len(cfg.HostnameDenylist) != denylistBefore {
		t.Error("Empty policy path must not change the denylist")
	}
}
