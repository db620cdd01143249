package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath overrides the config file location
	EnvConfigPath = "PRODPRO_CONFIG"
	// EnvAPIURL overrides the current context's api_url
	EnvAPIURL = "PRODPRO_API_URL"

	// DefaultBaseURL is used when no API URL is configured
	DefaultBaseURL = "http://localhost:8000/api/"
)

var lookupEnv = os.Getenv

// expand replaces ${VAR} or $VAR with environment values
func expand(s string) string {
	return os.Expand(s, lookupEnv)
}

// GetConfigPath returns the path to the config file, ~/.prodpro by default
func GetConfigPath() (string, error) {
	if p := lookupEnv(EnvConfigPath); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".prodpro"), nil
}

// Load reads the config at path, creating it with defaults when missing
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	names := make([]string, 0, len(cfg.Contexts))
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			return nil, fmt.Errorf("context %q is empty", name)
		}
		if err := ctx.validate(); err != nil {
			return nil, fmt.Errorf("context %q: %w", name, err)
		}
		names = append(names, name)
	}

	// Pick the first context by name so the choice is stable
	if cfg.CurrentContext == "" && len(names) > 0 {
		sort.Strings(names)
		cfg.CurrentContext = names[0]
	}

	return &cfg, nil
}

// LoadDefault loads the config from GetConfigPath
func LoadDefault() (*Config, string, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Save writes cfg to path, readable by the owner only since it may hold a
// Redis password.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// NormalizeBaseURL turns a configured API location into the API root the
// client resolves paths against:
//
//	""                      -> http://localhost:8000/api/
//	/api/                   -> http://localhost:8000/api/
//	https://host            -> https://host/api/
//	https://host/api        -> https://host/api/
//	https://host/v2/api/    -> https://host/v2/api/
//	host.example.com        -> https://host.example.com/api/
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL, nil
	}

	if strings.HasPrefix(raw, "/") {
		raw = "http://localhost:8000" + raw
	} else if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimSuffix(raw, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid API URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid API URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid API URL %q: missing host", raw)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if !strings.Contains(u.Path, "/api/") {
		u.Path += "api/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
