package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrNoSources        = errors.New("at least one source is required")
	ErrNoEnabledSources = errors.New("at least one source must be enabled")
	ErrInvalidLogLevel  = errors.New("log.level must be one of: debug, info, warn, error")
	ErrInvalidLimit     = errors.New("quota.monthly_limit must be at least 1")
	ErrInvalidWarnRatio = errors.New("quota.warn_ratio must be in (0, 1]")
	ErrInvalidTTL       = errors.New("fetch TTLs must be positive and deep >= shallow")
	ErrInvalidRetries   = errors.New("fetch.max_retries must be non-negative")
	ErrInvalidInFlight  = errors.New("fetch.max_in_flight must be at least 1")
)

type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Quota    QuotaConfig    `yaml:"quota"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Sources  []SourceConfig `yaml:"sources"`
	Searches []SearchConfig `yaml:"searches"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// GatewayConfig points at the remote scraping gateway (an MCP service
// reached over SSE). The token is appended to the URL as a query parameter,
// which is how the gateway authenticates sessions.
type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type QuotaConfig struct {
	MonthlyLimit int     `yaml:"monthly_limit"`
	WarnRatio    float64 `yaml:"warn_ratio"`
}

type FetchConfig struct {
	ShallowTTLHours    int `yaml:"shallow_ttl_hours"`
	DeepTTLHours       int `yaml:"deep_ttl_hours"`
	GraceHours         int `yaml:"grace_hours"`
	FailureCeiling     int `yaml:"failure_ceiling"`
	MaxRetries         int `yaml:"max_retries"`
	MaxInFlight        int `yaml:"max_in_flight"`
	MaxPages           int `yaml:"max_pages"`
	ResolveTimeoutSecs int `yaml:"resolve_timeout_secs"`
}

func (f FetchConfig) ShallowTTL() time.Duration {
	return time.Duration(f.ShallowTTLHours) * time.Hour
}

func (f FetchConfig) DeepTTL() time.Duration {
	return time.Duration(f.DeepTTLHours) * time.Hour
}

func (f FetchConfig) Grace() time.Duration {
	return time.Duration(f.GraceHours) * time.Hour
}

func (f FetchConfig) ResolveTimeout() time.Duration {
	return time.Duration(f.ResolveTimeoutSecs) * time.Second
}

type ServerConfig struct {
	Port            int    `yaml:"port"`
	APIToken        string `yaml:"api_token"`
	RefreshEnabled  bool   `yaml:"refresh_enabled"`
	RefreshInterval string `yaml:"refresh_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SourceConfig declares one fetchable source. City applies to sources that
// scope queries geographically (zhaopin); others ignore it.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	City    string `yaml:"city"`
}

// SearchConfig is a saved search the server keeps warm: the background
// scheduler resolves it on the refresh interval, fetching only what the
// staleness policy says is due.
type SearchConfig struct {
	Query    string   `yaml:"query"`
	Location string   `yaml:"location"`
	Sources  []string `yaml:"sources"`
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Gateway: GatewayConfig{
			URL: "https://mcp.brightdata.com/sse",
		},
		Quota: QuotaConfig{
			MonthlyLimit: 5000,
			WarnRatio:    0.8,
		},
		Fetch: FetchConfig{
			ShallowTTLHours:    24,
			DeepTTLHours:       168,
			GraceHours:         72,
			FailureCeiling:     5,
			MaxRetries:         3,
			MaxInFlight:        4,
			MaxPages:           3,
			ResolveTimeoutSecs: 30,
		},
		Server: ServerConfig{
			Port:            8720,
			RefreshEnabled:  true,
			RefreshInterval: "6h",
		},
		Log: LogConfig{
			Level: "info",
		},
		Sources: []SourceConfig{
			{Name: "zhaopin", Enabled: true, City: "beijing"},
			{Name: "linkedin", Enabled: true},
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jobdeck"
	}
	return filepath.Join(home, ".jobdeck")
}

func defaultConfigPath() string {
	if p := os.Getenv("JOBDECK_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".jobdeck", "config.yaml")
}

// Load builds the effective configuration: defaults, then the YAML file at
// $JOBDECK_CONFIG or ~/.jobdeck/config.yaml (optional), then JOBDECK_* env
// overrides. The result is validated.
func Load() (Config, error) {
	return LoadFrom(defaultConfigPath())
}

// LoadFrom is Load with an explicit file path; a missing file is not an
// error, the defaults stand.
func LoadFrom(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No file: defaults + env only.
	case err != nil:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func (c Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Quota.MonthlyLimit < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidLimit, c.Quota.MonthlyLimit)
	}
	if c.Quota.WarnRatio <= 0 || c.Quota.WarnRatio > 1 {
		return fmt.Errorf("%w, got %g", ErrInvalidWarnRatio, c.Quota.WarnRatio)
	}
	if c.Fetch.ShallowTTLHours < 1 || c.Fetch.DeepTTLHours < c.Fetch.ShallowTTLHours {
		return fmt.Errorf("%w, got shallow=%dh deep=%dh", ErrInvalidTTL, c.Fetch.ShallowTTLHours, c.Fetch.DeepTTLHours)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidRetries, c.Fetch.MaxRetries)
	}
	if c.Fetch.MaxInFlight < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidInFlight, c.Fetch.MaxInFlight)
	}
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	enabled := false
	for _, s := range c.Sources {
		if s.Enabled {
			enabled = true
			break
		}
	}
	if !enabled {
		return ErrNoEnabledSources
	}
	return nil
}

// EnabledSources returns the names of enabled sources in config order.
func (c Config) EnabledSources() []string {
	var names []string
	for _, s := range c.Sources {
		if s.Enabled {
			names = append(names, s.Name)
		}
	}
	return names
}

// SourceByName looks a source definition up regardless of enabled state.
func (c Config) SourceByName(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
