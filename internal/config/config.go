// Package config loads tokcompare settings from flags, environment, an
// optional config file and built-in defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// EnvPrefix prefixes every environment variable, as in TOKCOMPARE_LOG_LEVEL.
const EnvPrefix = "TOKCOMPARE"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Tokenize TokenizeConfig `mapstructure:"tokenize"`
	Server   ServerConfig   `mapstructure:"server"`
	Presets  PresetsConfig  `mapstructure:"presets"`
	Models   []ModelConfig  `mapstructure:"models"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TokenizeConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	VocabDir string        `mapstructure:"vocab_dir"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type PresetsConfig struct {
	Path string `mapstructure:"path"`
}

// ModelConfig names a SentencePiece model reachable as "sp:<name>".
// URL may be an http(s) URL or a local path.
type ModelConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Tokenize: TokenizeConfig{
			Timeout:  10 * time.Second,
			VocabDir: "",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Presets: PresetsConfig{
			Path: "presets.json",
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.Log.Level, "Log level (trace|debug|info|warn|error)")
	fs.String("log-format", defaults.Log.Format, "Log format (console|json)")
	fs.Duration("tokenize-timeout", defaults.Tokenize.Timeout, "Per-tokenizer timeout")
	fs.String("tokenize-vocab-dir", defaults.Tokenize.VocabDir, "Directory searched for <model>/tokenizer.json")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.String("presets-path", defaults.Presets.Path, "Presets JSON file")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("tokcompare")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings the rest of the program cannot use.
func (c Config) Validate() error {
	if c.Tokenize.Timeout <= 0 {
		return fmt.Errorf("invalid tokenize.timeout %s: must be positive", c.Tokenize.Timeout)
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("models[%d]: name is required", i)
		}
		if m.URL == "" {
			return fmt.Errorf("models[%d] %q: url is required", i, m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("models[%d]: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// PreloadedModels converts Models into tokenizer model descriptions.
func (c Config) PreloadedModels() []tokenizer.CustomData {
	out := make([]tokenizer.CustomData, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, tokenizer.CustomData{Name: m.Name, ModelURL: m.URL})
	}
	return out
}

// TokenizerOptions returns the adapter options implied by the config.
func (c Config) TokenizerOptions() []tokenizer.Option {
	opts := []tokenizer.Option{tokenizer.WithVocabDir(c.Tokenize.VocabDir)}
	if len(c.Models) > 0 {
		opts = append(opts, tokenizer.WithPreloadedModels(c.PreloadedModels()...))
	}
	return opts
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("tokenize.timeout", c.Tokenize.Timeout)
	v.SetDefault("tokenize.vocab_dir", c.Tokenize.VocabDir)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("presets.path", c.Presets.Path)
}

// flagKeys maps config keys to the flags registered by RegisterFlags.
// Binding keys individually keeps nested config file values visible.
var flagKeys = map[string]string{
	"log.level":          "log-level",
	"log.format":         "log-format",
	"tokenize.timeout":   "tokenize-timeout",
	"tokenize.vocab_dir": "tokenize-vocab-dir",
	"server.listen_addr": "server-listen-addr",
	"presets.path":       "presets-path",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}
