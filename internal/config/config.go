// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	Repository Repository `json:"repository" yaml:"repository"`

	Environment string `json:"environment" yaml:"environment"` // dev, prod
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
}

// Repository configures the on-disk revision store.
type Repository struct {
	Root        string      `json:"root" yaml:"root"`
	Log         string      `json:"log" yaml:"log"`           // badger, sqlite
	Encoding    string      `json:"encoding" yaml:"encoding"` // text encoding of stored documents
	LockTimeout Duration    `json:"lock_timeout" yaml:"lock_timeout"`
	CacheSize   int         `json:"cache_size" yaml:"cache_size"`
	Compression Compression `json:"compression" yaml:"compression"`
}

type Compression struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	MinSize int  `json:"min_size" yaml:"min_size"`
	Level   int  `json:"level" yaml:"level"`
}

// Duration wraps time.Duration so it can be written as "5s" in config files.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Plain numbers are nanoseconds.
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(n)
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

const (
	LogBadger = "badger"
	LogSQLite = "sqlite"
)

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8420
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Repository.Root == "" {
		c.Repository.Root = "vf_repo"
	}
	if c.Repository.Log == "" {
		c.Repository.Log = LogBadger
	}
	if c.Repository.Encoding == "" {
		c.Repository.Encoding = "utf-8"
	}
	if c.Repository.CacheSize == 0 {
		c.Repository.CacheSize = 1000
	}
	if c.Repository.Compression.MinSize == 0 {
		c.Repository.Compression.MinSize = 1024
	}
	if c.Repository.Compression.Level == 0 {
		c.Repository.Compression.Level = 2
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Repository.Log {
	case LogBadger, LogSQLite:
	default:
		return fmt.Errorf("unknown log backend %q", c.Repository.Log)
	}
	if c.Repository.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout cannot be negative")
	}
	if c.Repository.CacheSize < 0 {
		return fmt.Errorf("cache_size cannot be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}

// Path returns the config file for the environment named by VFF_ENV.
func Path() string {
	env := os.Getenv("VFF_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads a JSON or YAML config file, chosen by extension, and applies
// defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &config, nil
}
