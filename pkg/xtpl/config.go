package xtpl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config contains all configuration options for the xtpl engine
type Config struct {
	// CacheMaxSize is the maximum number of templates to cache. 0 disables caching.
	CacheMaxSize int `json:"cache_max_size" yaml:"cache_max_size" toml:"cache_max_size" jsonschema:"minimum=0"`
	// CacheTTL is the time-to-live for cached templates. 0 means no expiration.
	CacheTTL Duration `json:"cache_ttl" yaml:"cache_ttl" toml:"cache_ttl" jsonschema:"type=string"`
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,enum=off"`
	// MaxRenderDepth limits how deeply <tpl> blocks may nest
	MaxRenderDepth int `json:"max_render_depth" yaml:"max_render_depth" toml:"max_render_depth" jsonschema:"minimum=1"`
	// StrictMode makes references to unknown formatters a compile error
	StrictMode bool `json:"strict_mode" yaml:"strict_mode" toml:"strict_mode"`
	// DisableFormats ignores the :format suffix of inline tokens
	DisableFormats bool `json:"disable_formats" yaml:"disable_formats" toml:"disable_formats"`
}

// Duration is a time.Duration that reads and writes as a Go duration string
// ("90s", "5m") in every config format.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func init() {
	// Initialize global config from environment on first use
	configOnce.Do(func() {
		globalConfig = ConfigFromEnvironment()
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheMaxSize:   100,
		CacheTTL:       0,
		LogLevel:       "info",
		MaxRenderDepth: 100,
		StrictMode:     false,
		DisableFormats: false,
	}
}

// ConfigFromEnvironment creates a configuration from environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()
	applyEnvironment(config)
	return config
}

func applyEnvironment(config *Config) {
	// XTPL_CACHE_MAX_SIZE
	if val := os.Getenv("XTPL_CACHE_MAX_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.CacheMaxSize = size
		}
	}

	// XTPL_CACHE_TTL
	if val := os.Getenv("XTPL_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.CacheTTL = Duration(duration)
		}
	}

	// XTPL_LOG_LEVEL
	if val := os.Getenv("XTPL_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	// XTPL_MAX_RENDER_DEPTH
	if val := os.Getenv("XTPL_MAX_RENDER_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil {
			config.MaxRenderDepth = depth
		}
	}

	// XTPL_STRICT_MODE
	if val := os.Getenv("XTPL_STRICT_MODE"); val != "" {
		config.StrictMode = parseBool(val)
	}

	// XTPL_DISABLE_FORMATS
	if val := os.Getenv("XTPL_DISABLE_FORMATS"); val != "" {
		config.DisableFormats = parseBool(val)
	}
}

// LoadConfigFile reads a configuration file. The format is chosen by extension:
// .yaml/.yml, .toml or .json. Fields missing from the file keep their defaults,
// and XTPL_* environment variables override the file.
func LoadConfigFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WithContext(err, "read config", map[string]interface{}{"path": path})
	}

	config := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, config)
	case ".toml":
		_, err = toml.Decode(string(raw), config)
	case ".json":
		err = json.Unmarshal(raw, config)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, WithContext(err, "decode config", map[string]interface{}{"path": path})
	}

	applyEnvironment(config)
	if err := config.Validate(); err != nil {
		return nil, WithContext(err, "validate config", map[string]interface{}{"path": path})
	}
	return config, nil
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	// Create a copy of the overrides
	config := *overrides

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}

	if config.MaxRenderDepth == 0 {
		config.MaxRenderDepth = defaults.MaxRenderDepth
	}

	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheMaxSize < 0 {
		return errors.New("cache max size cannot be negative")
	}

	if c.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	if _, ok := parseLogLevel(c.LogLevel); !ok {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if c.MaxRenderDepth <= 0 {
		return errors.New("max render depth must be positive")
	}

	return nil
}

// GetGlobalConfig returns the global configuration
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	// Return a copy to prevent modification
	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// Update logger based on new config (outside the lock to avoid deadlock)
	UpdateLoggerFromConfig()
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
