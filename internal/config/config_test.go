package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", "http://localhost:8000/api/", false},
		{"/api/", "http://localhost:8000/api/", false},
		{"https://prod.example.com", "https://prod.example.com/api/", false},
		{"https://prod.example.com/", "https://prod.example.com/api/", false},
		{"https://prod.example.com/api", "https://prod.example.com/api/", false},
		{"https://prod.example.com/api/", "https://prod.example.com/api/", false},
		{"http://localhost:8000/v2/api/", "http://localhost:8000/v2/api/", false},
		{"prod.example.com", "https://prod.example.com/api/", false},
		{"prod.example.com/", "https://prod.example.com/api/", false},
		{"  https://prod.example.com  ", "https://prod.example.com/api/", false},
		{"ftp://prod.example.com", "", true},
		{"https://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeBaseURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodpro.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CurrentContext != "dev" {
		t.Errorf("expected current context dev, got %q", cfg.CurrentContext)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodpro.yaml")

	cfg := DefaultConfig()
	staging := &Context{
		APIURL:         "https://staging.example.com",
		RefreshTimeout: 5 * time.Second,
		PollInterval:   30 * time.Second,
	}
	staging.Session.Backend = BackendRedis
	staging.Session.RedisAddr = "localhost:6379"
	if err := cfg.SetContext("staging", staging); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}
	if err := cfg.SetCurrentContext("staging"); err != nil {
		t.Fatal(err)
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.CurrentContext != "staging" {
		t.Errorf("expected staging, got %q", loaded.CurrentContext)
	}
	got := loaded.Contexts["staging"]
	if got.RefreshTimeout != 5*time.Second || got.PollInterval != 30*time.Second {
		t.Errorf("durations not preserved: %+v", got)
	}
	if got.Session.Backend != BackendRedis || got.Session.RedisAddr != "localhost:6379" {
		t.Errorf("session not preserved: %+v", got.Session)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "contexts: [\n"},
		{"unknown backend", "contexts:\n  dev:\n    session:\n      backend: etcd\n"},
		{"redis without addr", "contexts:\n  dev:\n    session:\n      backend: redis\n"},
		{"bad duration", "contexts:\n  dev:\n    refresh_timeout: soon\n"},
		{"empty context", "contexts:\n  dev:\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prodpro.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoad_PicksFirstContextByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodpro.yaml")
	data := "contexts:\n  zeta:\n    api_url: https://z.example.com\n  alpha:\n    api_url: https://a.example.com\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CurrentContext != "alpha" {
		t.Errorf("expected alpha, got %q", cfg.CurrentContext)
	}
}

func TestContextManagement(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.SetCurrentContext("missing"); err == nil {
		t.Error("expected error switching to a missing context")
	}
	if err := cfg.DeleteContext("dev"); err == nil {
		t.Error("expected error deleting the current context")
	}
	if err := cfg.DeleteContext("missing"); err == nil {
		t.Error("expected error deleting a missing context")
	}

	bad := &Context{}
	bad.Session.Backend = "etcd"
	if err := cfg.SetContext("bad", bad); err == nil {
		t.Error("expected validation error")
	}

	if err := cfg.SetContext("prod", &Context{APIURL: "prod.example.com"}); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}
	if cfg.CurrentContext != "dev" {
		t.Errorf("adding a context must not switch, got %q", cfg.CurrentContext)
	}
	if err := cfg.DeleteContext("prod"); err != nil {
		t.Errorf("DeleteContext failed: %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("PRODPRO_TEST_HOST", "line7.example.com")
	t.Setenv("PRODPRO_TEST_REDIS", "redis:6379")

	ctx := &Context{APIURL: "https://${PRODPRO_TEST_HOST}"}
	ctx.Session.Backend = BackendRedis
	ctx.Session.RedisAddr = "$PRODPRO_TEST_REDIS"

	s, err := ctx.Resolve("line7")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if s.APIURL != "https://line7.example.com/api/" {
		t.Errorf("unexpected API URL %q", s.APIURL)
	}
	if s.Session.RedisAddr != "redis:6379" {
		t.Errorf("unexpected redis addr %q", s.Session.RedisAddr)
	}
	if s.RefreshTimeout != DefaultRefreshTimeout || s.PollInterval != DefaultPollInterval {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.Theme != DefaultTheme {
		t.Errorf("expected theme %q, got %q", DefaultTheme, s.Theme)
	}
}

func TestResolve_EnvOverride(t *testing.T) {
	t.Setenv(EnvAPIURL, "override.example.com")

	s, err := DefaultConfig().Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if s.APIURL != "https://override.example.com/api/" {
		t.Errorf("expected override, got %q", s.APIURL)
	}
	if s.Session.Backend != BackendFile {
		t.Errorf("expected file backend, got %q", s.Session.Backend)
	}
}

func TestGetConfigPath_Env(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv(EnvConfigPath, want)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
