// Package config loads coral settings from TOML files and CORAL_ environment
// variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/objectledge/coral/internal/errors"
)

// EnvPrefix prefixes the environment variables overriding settings, e.g.
// CORAL_DATABASE_PATH for database.path.
const EnvPrefix = "CORAL"

// DefaultFileName is the name of a project configuration file.
const DefaultFileName = "coral.toml"

// Config holds every setting.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" json:"database"`
	Log      LogConfig      `mapstructure:"log" toml:"log" json:"log"`
	Query    QueryConfig    `mapstructure:"query" toml:"query" json:"query"`
	Schema   SchemaConfig   `mapstructure:"schema" toml:"schema" json:"schema"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json" json:"json"`
	Level string `mapstructure:"level" toml:"level" json:"level"` // debug, info, warn or error
}

// QueryConfig configures the query compiler.
type QueryConfig struct {
	// MatchSubclasses makes FROM classes match subclass instances.
	MatchSubclasses bool `mapstructure:"match_subclasses" toml:"match_subclasses" json:"match_subclasses"`
}

// SchemaConfig locates schema files.
type SchemaConfig struct {
	Dir string `mapstructure:"dir" toml:"dir" json:"dir"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "coral.db")
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("query.match_subclasses", false)
	v.SetDefault("schema.dir", "schema")
}

// Default returns the default configuration.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := LoadWithViper(v)
	return cfg
}

// New returns a viper instance with defaults and environment binding. When
// path is non-empty the file is merged over the defaults; otherwise
// coral.toml is looked up from the working directory upwards.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path == "" {
		path = findProjectConfig()
	}
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return v, nil
}

// Load reads the configuration from path (or the project file) and the
// environment.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path, without
// environment overrides.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return LoadWithViper(v)
}

// Save writes cfg to path as TOML, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to encode config")
	}
	return f.Close()
}

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if !levels[strings.ToLower(c.Log.Level)] {
		return errors.Newf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// findProjectConfig searches for coral.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(dir, DefaultFileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
