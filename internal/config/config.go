// Package config resolves fangraph's runtime settings.
//
// Precedence, highest first: command-line flag, FANGRAPH_* environment
// variable, YAML config file, built-in default.
package config

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is everything the serve command needs to run.
type Config struct {
	// Database is the path of the SQLite cache file.
	Database string `yaml:"database"`
	// Address is the HTTP listen address.
	Address string `yaml:"address"`
	// Crawl lets the workers fall back to stale known entities when the
	// queues are empty, slowly re-walking the whole cached graph.
	Crawl    bool   `yaml:"crawl"`
	LogLevel string `yaml:"log-level"`
	LogJSON  bool   `yaml:"log-json"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database: "fangraph.db",
		Address:  ":8080",
		LogLevel: "info",
	}
}

// keys lists every setting; the names double as flag names and, with
// dashes mapped to underscores, as FANGRAPH_* environment suffixes.
var keys = []string{"database", "address", "crawl", "log-level", "log-json"}

// Load resolves the configuration from the optional YAML file at path,
// the environment, and the given flag set. Either argument may be empty;
// flags that were never defined are simply skipped.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	def := Default()
	v := viper.New()
	v.SetDefault("database", def.Database)
	v.SetDefault("address", def.Address)
	v.SetDefault("crawl", def.Crawl)
	v.SetDefault("log-level", def.LogLevel)
	v.SetDefault("log-json", def.LogJSON)

	v.SetEnvPrefix("FANGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if flags != nil {
		for _, key := range keys {
			f := flags.Lookup(key)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", key, err)
			}
		}
	}

	cfg := Config{
		Database: v.GetString("database"),
		Address:  v.GetString("address"),
		Crawl:    v.GetBool("crawl"),
		LogLevel: v.GetString("log-level"),
		LogJSON:  v.GetBool("log-json"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Address == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log-level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the parsed logrus level. Only valid after Load, which
// rejects unparseable levels.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

const exampleHeader = `# fangraph configuration.
# Every key can also be set through a FANGRAPH_* environment variable
# (FANGRAPH_DATABASE, FANGRAPH_LOG_LEVEL, ...) or the matching serve flag;
# flags win over the environment, the environment wins over this file.

`

// WriteDefault writes a starter config file at path. An existing file is
// left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(exampleHeader), data...), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
