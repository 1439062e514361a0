// Package config loads gamecrew settings from defaults, an optional YAML file,
// GAMECREW_* environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/danshapiro/gamecrew/internal/gateway"
	"github.com/danshapiro/gamecrew/internal/providerspec"
	"github.com/danshapiro/gamecrew/internal/runner"
	"github.com/danshapiro/gamecrew/internal/server"
)

const EnvPrefix = "GAMECREW"

const (
	TransportREST = "rest"
	TransportSDK  = "sdk"
)

type Server struct {
	Addr        string
	Static      bool
	StaticGlobs []string
	EventReplay int
}

type Model struct {
	Name            string
	Transport       string
	BaseURL         string
	Timeout         time.Duration
	MaxOutputTokens int
	// Catalog is a Gemini ListModels JSON file replacing the built-in model
	// catalog.
	Catalog string
	// Temperature is nil when unset so the backend default applies.
	Temperature *float64
}

type Log struct {
	Level  string
	Format string
}

type Play struct {
	MaxTurns int
	Retries  int
}

type Config struct {
	APIKey       string
	Server       Server
	Model        Model
	RolesCatalog string
	Log          Log
	Play         Play
}

// envAliases maps keys to the backend's own environment variables, checked
// after the GAMECREW_ name in the order listed.
func envAliases() map[string][]string {
	spec, _ := providerspec.Builtin("google")
	return map[string][]string{
		"api_key":        spec.API.APIKeyEnvs,
		"model.base_url": {spec.API.BaseURLEnv},
	}
}

// New returns a viper instance with every gamecrew key defaulted and bound to
// its environment variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.static", true)
	v.SetDefault("server.static_globs", server.DefaultStaticGlobs)
	v.SetDefault("server.event_replay", server.DefaultReplay)
	v.SetDefault("model.name", gateway.DefaultModel)
	v.SetDefault("model.transport", TransportREST)
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.timeout", gateway.DefaultTimeout)
	v.SetDefault("model.max_output_tokens", gateway.DefaultMaxOutputTokens)
	v.SetDefault("model.catalog", "")
	v.SetDefault("roles.catalog", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("play.max_turns", runner.DefaultMaxTurns)
	v.SetDefault("play.retries", runner.DefaultRetries)

	aliases := envAliases()
	for _, key := range append(v.AllKeys(), "api_key", "model.temperature") {
		envs := []string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		envs = append(envs, aliases[key]...)
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	return v
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", file)
		}
	}
	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func FromViper(v *viper.Viper) Config {
	cfg := Config{
		APIKey: strings.TrimSpace(v.GetString("api_key")),
		Server: Server{
			Addr:        v.GetString("server.addr"),
			Static:      v.GetBool("server.static"),
			StaticGlobs: v.GetStringSlice("server.static_globs"),
			EventReplay: v.GetInt("server.event_replay"),
		},
		Model: Model{
			Name:            strings.TrimSpace(v.GetString("model.name")),
			Transport:       strings.ToLower(strings.TrimSpace(v.GetString("model.transport"))),
			BaseURL:         strings.TrimSpace(v.GetString("model.base_url")),
			Timeout:         v.GetDuration("model.timeout"),
			MaxOutputTokens: v.GetInt("model.max_output_tokens"),
			Catalog:         strings.TrimSpace(v.GetString("model.catalog")),
		},
		RolesCatalog: strings.TrimSpace(v.GetString("roles.catalog")),
		Log: Log{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		},
		Play: Play{
			MaxTurns: v.GetInt("play.max_turns"),
			Retries:  v.GetInt("play.retries"),
		},
	}
	if v.IsSet("model.temperature") && strings.TrimSpace(v.GetString("model.temperature")) != "" {
		t := v.GetFloat64("model.temperature")
		cfg.Model.Temperature = &t
	}
	return cfg
}

func (c Config) Validate() error {
	switch c.Model.Transport {
	case TransportREST, TransportSDK:
	default:
		return errors.Errorf("model.transport: unknown transport %q (want %s or %s)", c.Model.Transport, TransportREST, TransportSDK)
	}
	if c.Model.Name == "" {
		return errors.New("model.name: must not be empty")
	}
	if c.Model.Timeout <= 0 {
		return errors.Errorf("model.timeout: must be positive, got %s", c.Model.Timeout)
	}
	if c.Model.MaxOutputTokens <= 0 {
		return errors.Errorf("model.max_output_tokens: must be positive, got %d", c.Model.MaxOutputTokens)
	}
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		return errors.Errorf("model.temperature: %v out of range [0, 2]", *t)
	}
	if c.Server.EventReplay < 0 {
		return errors.Errorf("server.event_replay: must not be negative, got %d", c.Server.EventReplay)
	}
	if c.Play.MaxTurns <= 0 {
		return errors.Errorf("play.max_turns: must be positive, got %d", c.Play.MaxTurns)
	}
	if c.Play.Retries < 0 {
		return errors.Errorf("play.retries: must not be negative, got %d", c.Play.Retries)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("log.format: unknown format %q (want console or json)", c.Log.Format)
	}
	return nil
}

// CredentialError reports a missing API key. The server still starts without
// one and answers every chat request with 500.
func (c Config) CredentialError() error {
	if c.APIKey != "" {
		return nil
	}
	return errors.New("no API key configured (GAMECREW_API_KEY, GEMINI_API_KEY or GOOGLE_API_KEY)")
}
