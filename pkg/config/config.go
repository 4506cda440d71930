// Package config loads siren settings from defaults, a YAML config file and
// SIREN_ environment variables through viper.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/antoinenguyen27/siren/pkg/llm"
)

// EnvPrefix prefixes environment overrides, e.g. SIREN_SERVER_PORT.
const EnvPrefix = "SIREN"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SkillsConfig struct {
	Dir string `mapstructure:"dir"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LLMConfig struct {
	APIKeyEnv       string          `mapstructure:"api_key_env"`
	BaseURL         string          `mapstructure:"base_url"`
	Model           string          `mapstructure:"model"`
	TranscribeModel string          `mapstructure:"transcribe_model"`
	Temperature     float32         `mapstructure:"temperature"`
	Retry           llm.RetryConfig `mapstructure:"retry"`
}

type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	CDPURL    string `mapstructure:"cdp_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type SitesConfig struct {
	AllowlistFile string `mapstructure:"allowlist_file"`
}

type AgentConfig struct {
	MaxTurns int `mapstructure:"max_turns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Sampler string  `mapstructure:"sampler"`
	Ratio   float64 `mapstructure:"ratio"`
}

// Config is the full siren configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Skills  SkillsConfig  `mapstructure:"skills"`
	DB      DBConfig      `mapstructure:"db"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Browser BrowserConfig `mapstructure:"browser"`
	Sites   SitesConfig   `mapstructure:"sites"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// SetDefaults registers default values rooted at baseDir.
func SetDefaults(v *viper.Viper, baseDir string) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.request_timeout", "120s")

	v.SetDefault("skills.dir", filepath.Join(baseDir, "skills"))
	v.SetDefault("db.path", filepath.Join(baseDir, "storage.db"))

	v.SetDefault("llm.api_key_env", "MISTRAL_API_KEY")
	v.SetDefault("llm.base_url", "https://api.mistral.ai/v1")
	v.SetDefault("llm.model", "mistral-large-latest")
	v.SetDefault("llm.transcribe_model", "voxtral-mini-latest")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.retry.attempts", llm.DefaultRetryConfig.Attempts)
	v.SetDefault("llm.retry.initial_delay_ms", llm.DefaultRetryConfig.InitialDelay)
	v.SetDefault("llm.retry.max_delay_ms", llm.DefaultRetryConfig.MaxDelay)
	v.SetDefault("llm.retry.backoff_type", llm.DefaultRetryConfig.BackoffType)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.cdp_url", "")
	v.SetDefault("browser.timeout_ms", 10000)

	v.SetDefault("sites.allowlist_file", filepath.Join(baseDir, "allowed_sites.txt"))
	v.SetDefault("agent.max_turns", 25)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "fmt")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampler", "always")
	v.SetDefault("tracing.ratio", 1.0)
}

// Setup prepares v the way the CLI does: defaults, env overrides and the
// config.yaml search path. A missing config file is not an error.
func Setup(v *viper.Viper, baseDir string) error {
	SetDefaults(v, baseDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(baseDir)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode configuration")
	}
	cfg.Skills.Dir = expandHome(cfg.Skills.Dir)
	cfg.DB.Path = expandHome(cfg.DB.Path)
	cfg.Sites.AllowlistFile = expandHome(cfg.Sites.AllowlistFile)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.Server.Host == "":
		return errors.Wrap(ErrInvalid, "server.host cannot be empty")
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return errors.Wrapf(ErrInvalid, "server.port must be between 1 and 65535, got %d", c.Server.Port)
	case c.Skills.Dir == "":
		return errors.Wrap(ErrInvalid, "skills.dir cannot be empty")
	case c.DB.Path == "":
		return errors.Wrap(ErrInvalid, "db.path cannot be empty")
	case c.LLM.Model == "":
		return errors.Wrap(ErrInvalid, "llm.model cannot be empty")
	case c.LLM.Retry.Attempts < 1:
		return errors.Wrapf(ErrInvalid, "llm.retry.attempts must be at least 1, got %d", c.LLM.Retry.Attempts)
	case c.Browser.TimeoutMs < 0:
		return errors.Wrap(ErrInvalid, "browser.timeout_ms cannot be negative")
	case c.Agent.MaxTurns < 1:
		return errors.Wrapf(ErrInvalid, "agent.max_turns must be at least 1, got %d", c.Agent.MaxTurns)
	}
	switch c.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		return errors.Wrapf(ErrInvalid, "tracing.sampler must be always, never or ratio, got %q", c.Tracing.Sampler)
	}
	return nil
}

// LLMClientConfig resolves the API key from the configured environment
// variable and returns the client settings.
func (c Config) LLMClientConfig() llm.Config {
	return llm.Config{
		APIKey:          os.Getenv(c.LLM.APIKeyEnv),
		BaseURL:         c.LLM.BaseURL,
		Model:           c.LLM.Model,
		TranscribeModel: c.LLM.TranscribeModel,
		Temperature:     c.LLM.Temperature,
		Retry:           c.LLM.Retry,
	}
}

// Address returns host:port for the HTTP server.
func (c Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
