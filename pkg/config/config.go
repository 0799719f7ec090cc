// Package config loads runtime settings from flags, BELLS_ environment
// variables, an optional .env file and an optional .alraed-bells.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "BELLS"
	ConfigName = ".alraed-bells"

	BackendPreferences = "preferences"
	BackendFile        = "file"
	BackendMemory      = "memory"
)

// Config is the resolved runtime configuration.
type Config struct {
	DataDir        string        `validate:"required"`
	StateBackend   string        `validate:"oneof=preferences file memory"`
	StateFile      string        `validate:"required"`
	RemoteURL      string        `validate:"omitempty,url"`
	RemoteDebounce time.Duration `validate:"gte=0"`
	RemoteToken    string
	APIListen      string
	Autostart      bool
	Headless       bool
}

// CacheDir is where downloaded sounds are kept.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// Options tells Load where to look.
type Options struct {
	ConfigFile string         // explicit config file, skips the search
	DotEnv     string         // .env path, defaults to ./.env
	Flags      *pflag.FlagSet // bound when non-nil
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"data-dir":   "data_dir",
	"state":      "state.backend",
	"remote-url": "remote.url",
	"listen":     "api.listen",
	"headless":   "headless",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "~/.alraed-bells")
	v.SetDefault("state.backend", BackendPreferences)
	v.SetDefault("state.file", "")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.debounce", 2*time.Second)
	v.SetDefault("api.listen", "127.0.0.1:8737")
	v.SetDefault("autostart", false)
	v.SetDefault("headless", false)
}

// Load resolves the configuration. Precedence, highest first: flags,
// environment, config file, defaults.
func Load(opts Options) (*Config, error) {
	dotEnv := opts.DotEnv
	if dotEnv == "" {
		dotEnv = ".env"
	}
	if _, err := os.Stat(dotEnv); err == nil {
		if err := godotenv.Load(dotEnv); err != nil {
			return nil, fmt.Errorf("load %s: %w", dotEnv, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", dotEnv, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(ConfigName) // .yaml is implicit
		if override := os.Getenv(EnvPrefix + "_CONFIG_PATH"); override != "" {
			v.AddConfigPath(override)
		}
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if opts.Flags != nil {
		for flag, key := range flagKeys {
			if f := opts.Flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	cfg := &Config{
		StateBackend:   strings.ToLower(v.GetString("state.backend")),
		RemoteURL:      strings.TrimRight(v.GetString("remote.url"), "/"),
		RemoteToken:    v.GetString("remote.token"),
		RemoteDebounce: v.GetDuration("remote.debounce"),
		APIListen:      v.GetString("api.listen"),
		Autostart:      v.GetBool("autostart"),
		Headless:       v.GetBool("headless"),
	}
	var err error
	if cfg.DataDir, err = homedir.Expand(v.GetString("data_dir")); err != nil {
		return nil, fmt.Errorf("expand data_dir: %w", err)
	}
	stateFile := v.GetString("state.file")
	if stateFile == "" {
		stateFile = filepath.Join(cfg.DataDir, "state.json")
	}
	if cfg.StateFile, err = homedir.Expand(stateFile); err != nil {
		return nil, fmt.Errorf("expand state.file: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
