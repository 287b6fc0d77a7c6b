package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// RunPolicy controls whether proposed shell commands are executed.
type RunPolicy string

const (
	RunAsk    RunPolicy = "ask"
	RunAlways RunPolicy = "always"
	RunNever  RunPolicy = "never"
)

func ParseRunPolicy(s string) (RunPolicy, error) {
	switch RunPolicy(s) {
	case RunAsk, RunAlways, RunNever:
		return RunPolicy(s), nil
	}
	return "", fmt.Errorf("unknown run policy %q (want ask, always or never)", s)
}

type ProviderSettings struct {
	Model       string  `toml:"model,omitempty"`
	Endpoint    string  `toml:"endpoint,omitempty"`
	MaxTokens   int     `toml:"max_tokens,omitempty"`
	Temperature float64 `toml:"temperature,omitempty"`
}

type Modes struct {
	Planning       bool `toml:"planning"`
	Fast           bool `toml:"fast"`
	Voice          bool `toml:"voice"`
	NewlineSupport bool `toml:"newline_support"`
	Mission        bool `toml:"mission"`
	Visibility     bool `toml:"visibility"`
	AutoReload     bool `toml:"auto_reload_session"`
	WebBrowsing    bool `toml:"web_browsing"`
}

type fileConfig struct {
	ActiveProvider string                      `toml:"active_provider"`
	RunPolicy      string                      `toml:"run_policy"`
	Modes          Modes                       `toml:"modes"`
	Providers      map[string]ProviderSettings `toml:"providers"`
}

// Config is the persistent configuration store. Every setter writes through
// to disk immediately, matching the toggle semantics of the slash commands.
// Reads and writes are guarded so the file watcher can reload concurrently.
type Config struct {
	mu   sync.RWMutex
	path string
	data fileConfig
}

func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pilot", "config.toml")
}

func defaults() fileConfig {
	return fileConfig{
		ActiveProvider: "ollama",
		RunPolicy:      string(RunAsk),
		Modes: Modes{
			NewlineSupport: true,
		},
		Providers: map[string]ProviderSettings{},
	}
}

// Load reads the config at the default path, returning defaults when the
// file does not exist yet.
func Load() (*Config, error) {
	return LoadFile(DefaultPath())
}

func LoadFile(path string) (*Config, error) {
	cfg := &Config{path: path, data: defaults()}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg.data); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.data.Providers == nil {
		cfg.data.Providers = map[string]ProviderSettings{}
	}
	if _, err := ParseRunPolicy(cfg.data.RunPolicy); err != nil {
		cfg.data.RunPolicy = string(RunAsk)
	}
	return cfg, nil
}

// Reload re-reads the file in place. Used by the fsnotify watcher.
func (c *Config) Reload() error {
	fresh, err := LoadFile(c.Path())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data = fresh.data
	c.mu.Unlock()
	return nil
}

func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

func (c *Config) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(c.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c.data)
}

func (c *Config) ActiveProvider() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.ActiveProvider
}

func (c *Config) SetActiveProvider(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.ActiveProvider = name
	return c.save()
}

func (c *Config) RunPolicy() RunPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return RunPolicy(c.data.RunPolicy)
}

func (c *Config) SetRunPolicy(policy RunPolicy) error {
	if _, err := ParseRunPolicy(string(policy)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.RunPolicy = string(policy)
	return c.save()
}

func (c *Config) Provider(name string) ProviderSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Providers[name]
}

func (c *Config) SetProvider(name string, settings ProviderSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Providers[name] = settings
	return c.save()
}

func (c *Config) SetProviderModel(name, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.data.Providers[name]
	s.Model = model
	c.data.Providers[name] = s
	return c.save()
}

func (c *Config) SetProviderEndpoint(name, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.data.Providers[name]
	s.Endpoint = endpoint
	c.data.Providers[name] = s
	return c.save()
}

// SetProviderMaxTokens with zero removes the cap (the "unlimited" case).
func (c *Config) SetProviderMaxTokens(name string, tokens int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.data.Providers[name]
	s.MaxTokens = tokens
	c.data.Providers[name] = s
	return c.save()
}

func (c *Config) modes() Modes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Modes
}

func (c *Config) setMode(apply func(*Modes)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	apply(&c.data.Modes)
	return c.save()
}

func (c *Config) PlanningMode() bool { return c.modes().Planning }
func (c *Config) SetPlanningMode(on bool) error {
	return c.setMode(func(m *Modes) { m.Planning = on })
}

func (c *Config) FastMode() bool { return c.modes().Fast }
func (c *Config) SetFastMode(on bool) error {
	return c.setMode(func(m *Modes) { m.Fast = on })
}

func (c *Config) VoiceMode() bool { return c.modes().Voice }
func (c *Config) SetVoiceMode(on bool) error {
	return c.setMode(func(m *Modes) { m.Voice = on })
}

func (c *Config) NewlineSupport() bool { return c.modes().NewlineSupport }
func (c *Config) SetNewlineSupport(on bool) error {
	return c.setMode(func(m *Modes) { m.NewlineSupport = on })
}

func (c *Config) MissionMode() bool { return c.modes().Mission }
func (c *Config) SetMissionMode(on bool) error {
	return c.setMode(func(m *Modes) { m.Mission = on })
}

func (c *Config) VisibilityAllowed() bool { return c.modes().Visibility }
func (c *Config) SetVisibilityAllowed(on bool) error {
	return c.setMode(func(m *Modes) { m.Visibility = on })
}

func (c *Config) AutoReload() bool { return c.modes().AutoReload }
func (c *Config) SetAutoReload(on bool) error {
	return c.setMode(func(m *Modes) { m.AutoReload = on })
}

func (c *Config) WebBrowsingAllowed() bool { return c.modes().WebBrowsing }
func (c *Config) SetWebBrowsingAllowed(on bool) error {
	return c.setMode(func(m *Modes) { m.WebBrowsing = on })
}
