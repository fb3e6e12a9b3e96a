// Package config provides configuration management for burrow using Viper
// for loading from files, environment variables and command-line flags.
//
// The configuration file is .burrow.yml in the working directory unless
// --config or BURROW_CONFIG_FILE names another one. Every key can be
// overridden from the environment with the BURROW_ prefix, for example
// BURROW_CACHE_MAX_SIZE=500 or BURROW_SERVER_PORT=8080.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/logging"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "BURROW"

// ConfigFileEnv names an alternative configuration file.
const ConfigFileEnv = "BURROW_CONFIG_FILE"

type Config struct {
	Compile CompileConfig `mapstructure:"compile" yaml:"compile"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Hydrate HydrateConfig `mapstructure:"hydrate" yaml:"hydrate"`
	Build   BuildConfig   `mapstructure:"build" yaml:"build"`
}

type CompileConfig struct {
	GFM              bool   `mapstructure:"gfm" yaml:"gfm"`
	Footnotes        bool   `mapstructure:"footnotes" yaml:"footnotes"`
	Math             bool   `mapstructure:"math" yaml:"math"`
	DefaultPlugins   bool   `mapstructure:"default_plugins" yaml:"default_plugins"`
	JSXRuntime       string `mapstructure:"jsx_runtime" yaml:"jsx_runtime"`
	ParseFrontmatter bool   `mapstructure:"parse_frontmatter" yaml:"parse_frontmatter"`
}

type CacheConfig struct {
	MaxSize int           `mapstructure:"max_size" yaml:"max_size"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	ContentDir     string        `mapstructure:"content_dir" yaml:"content_dir"`
	LiveReload     bool          `mapstructure:"live_reload" yaml:"live_reload"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RemoteHosts    []string      `mapstructure:"remote_hosts" yaml:"remote_hosts"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	Debounce       time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type HydrateConfig struct {
	Lazy bool `mapstructure:"lazy" yaml:"lazy"`
}

// BuildConfig controls static site generation. Workers 0 means one per CPU.
type BuildConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	Workers   int    `mapstructure:"workers" yaml:"workers"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Options converts the compile section into compiler options.
func (c CompileConfig) Options() compiler.Options {
	return compiler.Options{
		GFM:            compiler.Bool(c.GFM),
		Footnotes:      compiler.Bool(c.Footnotes),
		Math:           compiler.Bool(c.Math),
		DefaultPlugins: compiler.Bool(c.DefaultPlugins),
		JSXRuntime:     c.JSXRuntime,
	}
}

// LoggerConfig converts the log section into a logger configuration.
func (l LogConfig) LoggerConfig() (*logging.LoggerConfig, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = l.Format
	return cfg, nil
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("compile.gfm", true)
	v.SetDefault("compile.footnotes", true)
	v.SetDefault("compile.math", false)
	v.SetDefault("compile.default_plugins", true)
	v.SetDefault("compile.jsx_runtime", compiler.DefaultJSXRuntime)
	v.SetDefault("compile.parse_frontmatter", true)

	v.SetDefault("cache.max_size", 100)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.content_dir", "./content")
	v.SetDefault("server.live_reload", true)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.remote_hosts", []string{})
	v.SetDefault("server.fetch_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.debounce", 300*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("hydrate.lazy", false)

	v.SetDefault("build.output_dir", "./dist")
	v.SetDefault("build.workers", 0)
}

// Setup points v at the configuration file and enables environment
// overrides. file takes precedence over BURROW_CONFIG_FILE, which takes
// precedence over .burrow.yml in the working directory.
func Setup(v *viper.Viper, file string) {
	switch {
	case file != "":
		v.SetConfigFile(file)
	case os.Getenv(ConfigFileEnv) != "":
		v.SetConfigFile(os.Getenv(ConfigFileEnv))
	default:
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".burrow")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// ReadFile reads the configured file. A missing default file is not an
// error; a missing explicit file is.
func ReadFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}
	return fmt.Errorf("read config: %w", err)
}

// Load builds the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Environment overrides of slices arrive as a single string.
	if v.IsSet("server.remote_hosts") {
		cfg.Server.RemoteHosts = splitList(v.GetStringSlice("server.remote_hosts"))
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = splitList(v.GetStringSlice("server.allowed_origins"))
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
