package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_KeysDefaultToDemoKey(t *testing.T) {
	clearKeyEnv(t)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AQICNKey != "demo-key" || cfg.EBirdKey != "demo-key" || cfg.OpenAQKey != "demo-key" {
		t.Errorf("keys = %q/%q/%q, want demo-key fallback for all", cfg.AQICNKey, cfg.EBirdKey, cfg.OpenAQKey)
	}
}

func TestLoad_KeysFromSecretsFile(t *testing.T) {
	clearKeyEnv(t)

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "aqicn_api_key: aqicn-from-secrets\nebird_api_key: ebird-from-secrets\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AQICNKey != "aqicn-from-secrets" {
		t.Errorf("AQICNKey = %q, want key from secrets file", cfg.AQICNKey)
	}
	if cfg.EBirdKey != "ebird-from-secrets" {
		t.Errorf("EBirdKey = %q, want key from secrets file", cfg.EBirdKey)
	}
	if cfg.OpenAQKey != "demo-key" {
		t.Errorf("OpenAQKey = %q, want demo-key fallback when absent from secrets", cfg.OpenAQKey)
	}
}

func TestLoad_EnvVarKeyWinsOverSecrets(t *testing.T) {
	clearKeyEnv(t)
	os.Setenv("AQICN_API_KEY", "key-from-env")
	defer os.Unsetenv("AQICN_API_KEY")

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "aqicn_api_key: key-from-secrets\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AQICNKey != "key-from-env" {
		t.Errorf("AQICNKey = %q, want env var to win over secrets file", cfg.AQICNKey)
	}
}

func TestLoad_ConfigFileNotFound(t *testing.T) {
	savedEnv := os.Getenv("ENV_NAME")
	os.Setenv("ENV_NAME", "nonexistent")
	defer os.Setenv("ENV_NAME", savedEnv)

	origWd, _ := os.Getwd()
	os.Chdir(t.TempDir())
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing config file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, "not: valid: yaml: [[[")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid config YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearKeyEnv(t)

	invalidDurationYAML := minimalEnvYAML + `
cache:
  ttl:
    aqi: "invalid"
    birds: ""
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, invalidDurationYAML)
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AQITTL != 5*time.Minute {
		t.Errorf("AQITTL = %v, want 5m default for invalid duration", cfg.AQITTL)
	}
	if cfg.BirdTTL != time.Hour {
		t.Errorf("BirdTTL = %v, want 1h default for empty duration", cfg.BirdTTL)
	}
}

func TestLoad_CacheTTLsParsed(t *testing.T) {
	clearKeyEnv(t)

	ttlYAML := minimalEnvYAML + `
cache:
  backend: in_memory
  sweep_interval: "1m"
  ttl:
    aqi: "30s"
    birds: "10m"
    hotspots: "48h"
    pollution: "2h"
    deforestation: "12h"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, ttlYAML)
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AQITTL != 30*time.Second {
		t.Errorf("AQITTL = %v, want 30s", cfg.AQITTL)
	}
	if cfg.BirdTTL != 10*time.Minute {
		t.Errorf("BirdTTL = %v, want 10m", cfg.BirdTTL)
	}
	if cfg.HotspotTTL != 48*time.Hour {
		t.Errorf("HotspotTTL = %v, want 48h", cfg.HotspotTTL)
	}
	if cfg.PollutionTTL != 2*time.Hour {
		t.Errorf("PollutionTTL = %v, want 2h", cfg.PollutionTTL)
	}
	if cfg.DeforestationTTL != 12*time.Hour {
		t.Errorf("DeforestationTTL = %v, want 12h", cfg.DeforestationTTL)
	}
	if cfg.CacheSweepInterval != time.Minute {
		t.Errorf("CacheSweepInterval = %v, want 1m", cfg.CacheSweepInterval)
	}
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	clearKeyEnv(t)

	backendYAML := minimalEnvYAML + `
cache:
  backend: redis
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, backendYAML)
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatalf("Load() expected error for unknown cache backend, got config %+v", cfg)
	}
	if !strings.Contains(err.Error(), "cache.backend") {
		t.Errorf("Load() error = %v, want message about cache.backend", err)
	}
}

func TestLoad_RequestTimeoutAutoAdjusted(t *testing.T) {
	clearKeyEnv(t)

	timeoutYAML := `
server:
  port: "8080"
request:
  timeout: "5s"
upstream:
  timeout: "10s"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, timeoutYAML)
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		t.Errorf("RequestTimeout = %v, want adjusted above upstream timeout %v", cfg.RequestTimeout, cfg.UpstreamTimeout)
	}
}

func TestLoad_ProviderURLDefaults(t *testing.T) {
	clearKeyEnv(t)

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AQICNBaseURL != "https://api.waqi.info" {
		t.Errorf("AQICNBaseURL = %q, want waqi default", cfg.AQICNBaseURL)
	}
	if cfg.EBirdBaseURL != "https://api.ebird.org/v2" {
		t.Errorf("EBirdBaseURL = %q, want ebird default", cfg.EBirdBaseURL)
	}
	if cfg.OpenAQBaseURL != "https://api.openaq.org/v2" {
		t.Errorf("OpenAQBaseURL = %q, want openaq default", cfg.OpenAQBaseURL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want wildcard default", cfg.AllowedOrigins)
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
request:
  timeout: "15s"
upstream:
  timeout: "10s"
reliability:
  retry_max_attempts: 3
  retry_base_delay: "100ms"
  retry_max_delay: "2s"
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"AQICN_API_KEY", "EBIRD_API_KEY", "OPENAQ_API_KEY", "CACHE_BACKEND", "MEMCACHED_ADDRS", "ENV_NAME"} {
		if saved, ok := os.LookupEnv(name); ok {
			os.Unsetenv(name)
			t.Cleanup(func() { os.Setenv(name, saved) })
		}
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}
