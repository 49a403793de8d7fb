package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Credential CredentialConfig `mapstructure:"credential"`
	API        APIConfig        `mapstructure:"api"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Usage      UsageConfig      `mapstructure:"usage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	Args              []string      `mapstructure:"args"`
	UserAgent         string        `mapstructure:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	TargetURL         string        `mapstructure:"target_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	// MaxSessions caps concurrently open sessions. Zero means unlimited.
	MaxSessions    int           `mapstructure:"max_sessions"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	InstallDriver  bool          `mapstructure:"install_driver"`
}

type CredentialConfig struct {
	ScriptURL       string        `mapstructure:"script_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	Defaults        TokenDefaults `mapstructure:"defaults"`
	// Store is "memory" or "disk". Disk keeps the token under DataDir.
	Store   string `mapstructure:"store"`
	DataDir string `mapstructure:"data_dir"`
}

type TokenDefaults struct {
	B  int    `mapstructure:"b"`
	E  string `mapstructure:"e"`
	S  string `mapstructure:"s"`
	D  int    `mapstructure:"d"`
	VR string `mapstructure:"vr"`
}

type APIConfig struct {
	DefaultModel string        `mapstructure:"default_model"`
	UpstreamPath string        `mapstructure:"upstream_path"`
	FallbackText string        `mapstructure:"fallback_text"`
	Models       []ModelConfig `mapstructure:"models"`
}

type ModelConfig struct {
	ID      string `mapstructure:"id"`
	OwnedBy string `mapstructure:"owned_by"`
}

type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type UsageConfig struct {
	// Tokenizer is "estimate" (characters/4) or "tiktoken".
	Tokenizer string `mapstructure:"tokenizer"`
	Encoding  string `mapstructure:"encoding"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36 Edg/139.0.0.0"
	defaultScriptURL = "https://cursor.com/149e9513-01fa-4fb0-aad4-566afd725d1b/2d206a39-8ed7-437e-a3be-862e0f06eea3/a-4-a/c.js?i=1&v=3&h=cursor.com"
	defaultTokenE    = "eyJhbGciOiJkaXIiLCJlbmMiOiJBMjU2R0NNIn0..M8k9E7yHXWkQuVcm.U1W5ovCj_TO3CismFpgq06pvMhNgciB51LnTEhxqQQ7KHmomgbpVfCKcxjUj9q_xR3LUbCf4BMZzYompqCBp3Q1NFZV7TRpzZhZtiQGwbrYW9NGfMCYNb-X1ovwoppDiODfoUjw81nTcXR-pLxgkbwleTq09MrcoDI5mfb3BFu64sdhc1TB6XUDPrhUYzdnyCG3aUDO1XGmA2GJnKPJYnbFX-hfueCmbnrM6L7bFyXbkwDLCGXLoJ6S5DYKKCzWzW_dXIqnK7HQDdxtTEmldioNIT_IFJHgFyD0dtEzRWiRrR9eO9X77jmWK6JSp7uBZLS_KHJKSBQuqFEQwBaqKj_OhDo9ZJ0f3TtL6Xmqw_G4Xh-t2ZNYjbBxDYmBacULmjuDw_iYQ4zrMdYSmUWmY6HsZ4UGprdb4_snCs2vXxHCqjUtubVPk0JvkjRDEebTlPZaYkLmkOJnYIYt24RUGri3p7xs_b7Q3BhslNX4K8T4mhWq0fjfVvVEcdFmus69mBDPvR8rGMvjxmEAJ4g.SJCIYOMw2IlVQXvwC2Vn1w"
	defaultTokenS    = "/HYcZdBjAGYOc9Wv44z0jhMutFLwvFimD2XnU/MbJD1WTsUFi71E+fDYaCyiVQwz76uGUsnb7QLXUwWbWjMFY9+Fbej0j4SVqxo8B8ecVZll7RoYJ9GkPPPPV7l2mgXDfkdb+REhq81432gyy6/T5C585FjbSXFXPPe/DifxCQ3EIO636lOWEDRSb6mPXuXRc9qtQF3jezM6sbljI+GaqM4E4KEAC9TlcGSdTJEl+tFaVxfngvckIiH/bPA5laXPs7jOgBqr3jvPnbYmZAaXswUPgCgqHJX5c7PfuTh+jUIvqw=="
)

var defaultModels = []string{
	"anthropic/claude-4.5-sonnet",
	"anthropic/claude-4-sonnet",
	"anthropic/claude-4.1-opus",
	"openai/gpt-5",
	"google/gemini-2.5-pro",
	"google/gemini-2.5-flash",
	"xai/grok-4",
	"xai/grok-code-fast-1",
	"moonshotai/kimi-k2-0905",
	"alibaba/qwen3-coder",
	"alibaba/qwen3-coder-plus",
	"alibaba/qwen3-max",
	"zai/glm-4.6",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 30011)
	v.SetDefault("server.read_timeout", 0)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
	})
	v.SetDefault("browser.user_agent", defaultUserAgent)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.target_url", "https://cursor.com/en-US/learn/how-ai-models-work")
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.max_sessions", 0)
	v.SetDefault("browser.acquire_timeout", 0)
	v.SetDefault("browser.install_driver", false)

	v.SetDefault("credential.script_url", defaultScriptURL)
	v.SetDefault("credential.refresh_interval", 4*time.Hour)
	v.SetDefault("credential.fetch_timeout", 30*time.Second)
	v.SetDefault("credential.defaults.b", 0)
	v.SetDefault("credential.defaults.e", defaultTokenE)
	v.SetDefault("credential.defaults.s", defaultTokenS)
	v.SetDefault("credential.defaults.d", 0)
	v.SetDefault("credential.defaults.vr", "3")
	v.SetDefault("credential.store", "memory")
	v.SetDefault("credential.data_dir", "./data")

	models := make([]map[string]interface{}, 0, len(defaultModels))
	for _, id := range defaultModels {
		models = append(models, map[string]interface{}{"id": id, "owned_by": "cursor"})
	}
	v.SetDefault("api.default_model", defaultModels[0])
	v.SetDefault("api.upstream_path", "/api/chat")
	v.SetDefault("api.fallback_text", "Sorry, unable to get a valid response.")
	v.SetDefault("api.models", models)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"*"})
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("usage.tokenizer", "estimate")
	v.SetDefault("usage.encoding", "cl100k_base")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the YAML file at configPath (optional) on top of the built-in
// defaults and applies RELAY_* environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Plain PORT / API_KEY are honoured when the file leaves them unset.
	if port := os.Getenv("PORT"); port != "" && !v.InConfig("server.port") {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if cfg.Auth.APIKey == "" {
		cfg.Auth.APIKey = os.Getenv("API_KEY")
	}

	return cfg, nil
}
