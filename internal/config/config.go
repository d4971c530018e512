// Package config resolves the bot's execution configuration from the config
// file and the process environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// DefaultPath is the well-known config file, relative to the working directory.
const DefaultPath = "aegistrate.toml"

var (
	ErrConfigMissing = errors.New("required configuration value missing")
	ErrConfigInvalid = errors.New("invalid configuration value")
)

// Keys in their file spelling. The environment spelling is upper-cased with
// dashes replaced by underscores.
const (
	KeyBotToken       = "bot-token"
	KeyStoreURI       = "store-uri"
	KeyTimeoutSeconds = "timeout-seconds"
	KeyGuildID        = "guild-id"
	KeyLogDir         = "log-dir"
	KeyLogLevel       = "log-level"
)

var keys = []string{KeyBotToken, KeyStoreURI, KeyTimeoutSeconds, KeyGuildID, KeyLogDir, KeyLogLevel}

const (
	defaultTimeoutSeconds = 10
	defaultLogDir         = "log"
)

// Source says where a configuration value came from.
type Source int

const (
	SourceDefault Source = iota
	SourceFile
	SourceEnvironment
)

func (s Source) String() string {
	switch s {
	case SourceFile:
		return "file"
	case SourceEnvironment:
		return "environment"
	default:
		return "default"
	}
}

// EnvName returns the environment variable consulted for key.
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// ExecConfig is the resolved configuration. It is not modified after Resolve
// returns.
type ExecConfig struct {
	BotToken       string
	StoreURI       string
	StartupTimeout time.Duration
	GuildID        string
	LogDir         string
	LogLevel       zerolog.Level

	origins map[string]Source
}

// Precedence lists sources from strongest to weakest.
func (c *ExecConfig) Precedence() []Source { return []Source{SourceFile, SourceEnvironment} }

// Origin reports which source supplied key.
func (c *ExecConfig) Origin(key string) Source { return c.origins[key] }

// String renders the configuration with the token redacted.
func (c *ExecConfig) String() string {
	values := map[string]string{
		KeyBotToken:       redact(c.BotToken),
		KeyStoreURI:       c.StoreURI,
		KeyTimeoutSeconds: strconv.Itoa(int(c.StartupTimeout / time.Second)),
		KeyGuildID:        c.GuildID,
		KeyLogDir:         c.LogDir,
		KeyLogLevel:       c.LogLevel.String(),
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, k := range sorted {
		fmt.Fprintf(&b, "%-16s %-24q (%s)\n", k, values[k], c.Origin(k))
	}
	return b.String()
}

func redact(token string) string {
	if token == "" {
		return ""
	}
	return "********"
}

// MarshalZerologObject logs the configuration without the token.
func (c *ExecConfig) MarshalZerologObject(e *zerolog.Event) {
	e.Str(KeyStoreURI, c.StoreURI).
		Dur("startup-timeout", c.StartupTimeout).
		Str(KeyGuildID, c.GuildID).
		Str(KeyLogDir, c.LogDir).
		Str(KeyLogLevel, c.LogLevel.String())
}

// environment mirrors the supported variables. Every field is read as a
// string so that malformed values are reported with the key that held them.
type environment struct {
	BotToken       string `env:"BOT_TOKEN"`
	StoreURI       string `env:"STORE_URI"`
	TimeoutSeconds string `env:"TIMEOUT_SECONDS"`
	GuildID        string `env:"GUILD_ID"`
	LogDir         string `env:"LOG_DIR"`
	LogLevel       string `env:"LOG_LEVEL"`
}

func (e environment) get(key string) string {
	switch key {
	case KeyBotToken:
		return e.BotToken
	case KeyStoreURI:
		return e.StoreURI
	case KeyTimeoutSeconds:
		return e.TimeoutSeconds
	case KeyGuildID:
		return e.GuildID
	case KeyLogDir:
		return e.LogDir
	case KeyLogLevel:
		return e.LogLevel
	}
	return ""
}

// Resolver reads the config file and the environment.
type Resolver struct {
	// Path of the TOML config file; DefaultPath when empty. A missing file
	// is not an error.
	Path string
	// DotEnv files loaded into the process environment before it is read.
	// Ignored when Environ is set.
	DotEnv []string
	// Environ replaces the process environment when non-nil.
	Environ map[string]string
}

// Resolve produces the ExecConfig. Non-blank file values take precedence
// over environment values for every key.
func (r *Resolver) Resolve(ctx context.Context) (*ExecConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := r.readFile()
	if err != nil {
		return nil, err
	}
	envs, err := r.readEnv()
	if err != nil {
		return nil, err
	}

	cfg := &ExecConfig{origins: make(map[string]Source, len(keys))}
	lookup := func(key string) (string, bool) {
		// A blank file value counts as unset.
		if file != nil && file.IsSet(key) {
			if v := strings.TrimSpace(file.GetString(key)); v != "" {
				cfg.origins[key] = SourceFile
				return v, true
			}
		}
		if v := strings.TrimSpace(envs.get(key)); v != "" {
			cfg.origins[key] = SourceEnvironment
			return v, true
		}
		cfg.origins[key] = SourceDefault
		return "", false
	}

	for _, key := range []string{KeyBotToken, KeyStoreURI} {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil, fmt.Errorf("%w: %s (set it in %s or %s)", ErrConfigMissing, key, r.path(), EnvName(key))
		}
		switch key {
		case KeyBotToken:
			cfg.BotToken = v
		case KeyStoreURI:
			cfg.StoreURI = v
		}
	}

	cfg.StartupTimeout = defaultTimeoutSeconds * time.Second
	if v, ok := lookup(KeyTimeoutSeconds); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive number of seconds, got %q", ErrConfigInvalid, KeyTimeoutSeconds, v)
		}
		cfg.StartupTimeout = time.Duration(n) * time.Second
	}

	cfg.GuildID, _ = lookup(KeyGuildID)

	cfg.LogDir = defaultLogDir
	if v, ok := lookup(KeyLogDir); ok && v != "" {
		cfg.LogDir = v
	}

	cfg.LogLevel = zerolog.InfoLevel
	if v, ok := lookup(KeyLogLevel); ok && v != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(v))
		if err != nil || lvl == zerolog.NoLevel {
			return nil, fmt.Errorf("%w: %s %q", ErrConfigInvalid, KeyLogLevel, v)
		}
		cfg.LogLevel = lvl
	}

	return cfg, nil
}

func (r *Resolver) path() string {
	if r.Path == "" {
		return DefaultPath
	}
	return r.Path
}

func (r *Resolver) readFile() (*viper.Viper, error) {
	path := r.path()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", path).Msg("no config file, using environment")
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, path, err)
	}
	return v, nil
}

func (r *Resolver) readEnv() (environment, error) {
	var e environment
	opts := env.Options{}
	if r.Environ != nil {
		opts.Environment = r.Environ
	} else {
		if err := godotenv.Load(r.DotEnv...); err != nil {
			log.Debug().Msg("no .env file found, falling back to system environment variables")
		}
	}
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return e, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return e, nil
}
