package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the server and REPL configuration
type Config struct {
	Port    int    `mapstructure:"port" yaml:"port"`
	GinMode string `mapstructure:"gin_mode" yaml:"gin_mode"`

	// LLM
	LLMBaseURL    string   `mapstructure:"llm_base_url" yaml:"llm_base_url"`
	LLMAPIKey     string   `mapstructure:"llm_api_key" yaml:"llm_api_key"`
	DefaultModel  string   `mapstructure:"default_model" yaml:"default_model"`
	Models        []string `mapstructure:"models" yaml:"models"`
	Temperature   float64  `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens     int      `mapstructure:"max_tokens" yaml:"max_tokens"`
	LLMMaxRetries int      `mapstructure:"llm_max_retries" yaml:"llm_max_retries"`

	// Agent and tools
	AgentMaxIterations int `mapstructure:"agent_max_iterations" yaml:"agent_max_iterations"`
	QueryTimeoutSec    int `mapstructure:"query_timeout_sec" yaml:"query_timeout_sec"`
	ObservationMaxRows int `mapstructure:"observation_max_rows" yaml:"observation_max_rows"`

	// Sessions
	SessionIdleTimeoutMin int `mapstructure:"session_idle_timeout_min" yaml:"session_idle_timeout_min"`
	HistoryLimit          int `mapstructure:"history_limit" yaml:"history_limit"`
	HistoryResponseChars  int `mapstructure:"history_response_chars" yaml:"history_response_chars"`

	// Files
	UploadDir    string `mapstructure:"upload_dir" yaml:"upload_dir"`
	UploadMaxMB  int    `mapstructure:"upload_max_mb" yaml:"upload_max_mb"`
	SampleDBPath string `mapstructure:"sample_db_path" yaml:"sample_db_path"`
}

// QueryTimeout returns the per-statement timeout
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

// SessionIdleTimeout returns how long an unused session is kept
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutMin) * time.Minute
}

// UploadMaxBytes returns the upload size limit
func (c *Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxMB) << 20
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("gin_mode", "debug")
	v.SetDefault("llm_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("default_model", "llama3-8b-8192")
	v.SetDefault("models", []string{"llama3-8b-8192", "llama3-70b-8192", "mixtral-8x7b-32768"})
	v.SetDefault("temperature", 0.1)
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("llm_max_retries", 3)
	v.SetDefault("agent_max_iterations", 15)
	v.SetDefault("query_timeout_sec", 30)
	v.SetDefault("observation_max_rows", 100)
	v.SetDefault("session_idle_timeout_min", 60)
	v.SetDefault("history_limit", 50)
	v.SetDefault("history_response_chars", 500)
	v.SetDefault("upload_dir", filepath.Join(os.TempDir(), "dbchat-uploads"))
	v.SetDefault("upload_max_mb", 50)
	v.SetDefault("sample_db_path", filepath.Join(os.TempDir(), "enhanced_sample.db"))
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults alone always decode.
	_ = v.Unmarshal(&c)
	return &c
}

// Load reads configuration from defaults, an optional YAML file, a .env file
// and DBCHAT_* environment variables, in increasing precedence.
func Load(cfgFile string) (*Config, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DBCHAT")
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("dbchat")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.LLMAPIKey == "" {
		c.LLMAPIKey = os.Getenv("GROQ_API_KEY")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.DefaultModel == "":
		return fmt.Errorf("default_model is required")
	case c.AgentMaxIterations <= 0:
		return fmt.Errorf("agent_max_iterations must be positive")
	case c.QueryTimeoutSec <= 0:
		return fmt.Errorf("query_timeout_sec must be positive")
	}
	if len(c.Models) > 0 && !contains(c.Models, c.DefaultModel) {
		return fmt.Errorf("default_model %q is not in models", c.DefaultModel)
	}
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Save writes c as YAML to path, creating the parent directory
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
