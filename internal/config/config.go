package config

import (
	"fmt"
	"time"
)

// Session backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Defaults applied when a context leaves a field empty
const (
	DefaultRefreshTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultPollInterval   = 10 * time.Second
	DefaultTheme          = "auto"
)

// Context is a named API endpoint with its session settings (like kubectl contexts)
type Context struct {
	APIURL             string        `yaml:"api_url"`
	Session            SessionConfig `yaml:"session"`
	RefreshTimeout     time.Duration `yaml:"refresh_timeout,omitempty"`
	RequestTimeout     time.Duration `yaml:"request_timeout,omitempty"`
	IndependentRefresh bool          `yaml:"independent_refresh,omitempty"`
	PollInterval       time.Duration `yaml:"poll_interval,omitempty"`
	Rendering          struct {
		Theme string `yaml:"theme"`
	} `yaml:"rendering"`
}

// SessionConfig selects where the credential pair is kept
type SessionConfig struct {
	Backend       string `yaml:"backend"` // file or redis
	File          string `yaml:"file,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	RedisPrefix   string `yaml:"redis_prefix,omitempty"`
}

// Config is the CLI configuration with multiple contexts
type Config struct {
	CurrentContext string              `yaml:"current-context"`
	Contexts       map[string]*Context `yaml:"contexts"`
}

// DefaultConfig returns a configuration with a single "dev" context pointing
// at a local backend.
func DefaultConfig() *Config {
	dev := &Context{APIURL: DefaultBaseURL}
	dev.Session.Backend = BackendFile
	dev.Rendering.Theme = DefaultTheme

	return &Config{
		CurrentContext: "dev",
		Contexts: map[string]*Context{
			"dev": dev,
		},
	}
}

// GetCurrentContext returns the current active context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}

	ctx, ok := c.Contexts[c.CurrentContext]
	if !ok {
		return nil, fmt.Errorf("current context %q not found", c.CurrentContext)
	}

	return ctx, nil
}

// SetCurrentContext sets the current active context
func (c *Config) SetCurrentContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q does not exist", name)
	}
	c.CurrentContext = name
	return nil
}

// SetContext adds or replaces a context. The first context becomes current.
func (c *Config) SetContext(name string, ctx *Context) error {
	if err := ctx.validate(); err != nil {
		return fmt.Errorf("context %q: %w", name, err)
	}
	if c.Contexts == nil {
		c.Contexts = make(map[string]*Context)
	}
	c.Contexts[name] = ctx
	if len(c.Contexts) == 1 {
		c.CurrentContext = name
	}
	return nil
}

// DeleteContext removes a context other than the current one
func (c *Config) DeleteContext(name string) error {
	if name == c.CurrentContext {
		return fmt.Errorf("cannot delete current context %q", name)
	}
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q does not exist", name)
	}
	delete(c.Contexts, name)
	return nil
}

// Settings is a context with environment variables expanded, the base URL
// normalized and defaults applied.
type Settings struct {
	Name               string
	APIURL             string
	Session            SessionConfig
	RefreshTimeout     time.Duration
	RequestTimeout     time.Duration
	IndependentRefresh bool
	PollInterval       time.Duration
	Theme              string
}

// Current resolves the current context
func (c *Config) Current() (*Settings, error) {
	ctx, err := c.GetCurrentContext()
	if err != nil {
		return nil, err
	}
	return ctx.Resolve(c.CurrentContext)
}

// Resolve expands ${VAR} references and applies defaults. PRODPRO_API_URL,
// when set, replaces the context's api_url.
func (ctx *Context) Resolve(name string) (*Settings, error) {
	rawURL := expand(ctx.APIURL)
	if env := lookupEnv(EnvAPIURL); env != "" {
		rawURL = env
	}
	apiURL, err := NormalizeBaseURL(rawURL)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Name:   name,
		APIURL: apiURL,
		Session: SessionConfig{
			Backend:       expand(ctx.Session.Backend),
			File:          expand(ctx.Session.File),
			RedisAddr:     expand(ctx.Session.RedisAddr),
			RedisPassword: expand(ctx.Session.RedisPassword),
			RedisDB:       ctx.Session.RedisDB,
			RedisPrefix:   expand(ctx.Session.RedisPrefix),
		},
		RefreshTimeout:     ctx.RefreshTimeout,
		RequestTimeout:     ctx.RequestTimeout,
		IndependentRefresh: ctx.IndependentRefresh,
		PollInterval:       ctx.PollInterval,
		Theme:              ctx.Rendering.Theme,
	}

	if s.Session.Backend == "" {
		s.Session.Backend = BackendFile
	}
	if s.RefreshTimeout == 0 {
		s.RefreshTimeout = DefaultRefreshTimeout
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.PollInterval == 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.Theme == "" {
		s.Theme = DefaultTheme
	}
	return s, nil
}

func (ctx *Context) validate() error {
	switch ctx.Session.Backend {
	case "", BackendFile:
	case BackendRedis:
		if ctx.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q (want file or redis)", ctx.Session.Backend)
	}

	if ctx.RefreshTimeout < 0 || ctx.RequestTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if ctx.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative")
	}
	return nil
}
