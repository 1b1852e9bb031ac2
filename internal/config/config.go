package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultServerAddress = ":8090"
	defaultAPIVersion    = "2024-05-01-preview"
	defaultPollInterval  = 500
	defaultPollTimeout   = 60
	defaultSessionTTL    = 12 * 60
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig   `json:"basic_config" yaml:"basic_config"`
	Service     ServiceConfig `json:"service" yaml:"service"`
	Agent       AgentConfig   `json:"agent" yaml:"agent"`
	Redis       RedisConfig   `json:"redis" yaml:"redis"`
	Title       TitleConfig   `json:"title" yaml:"title"`
	Tracing     TracingConfig `json:"tracing" yaml:"tracing"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address"`
	// SessionBackend is "memory" (default) or "redis".
	SessionBackend string `json:"session_backend" yaml:"session_backend"`
	// SessionTTL is the idle lifetime of a browser session in minutes.
	SessionTTL int `json:"session_ttl" yaml:"session_ttl"`
	// PollInterval is in milliseconds, PollTimeout in seconds.
	PollInterval int `json:"poll_interval" yaml:"poll_interval"`
	PollTimeout  int `json:"poll_timeout" yaml:"poll_timeout"`

	MaxWorkers        int `json:"max_workers" yaml:"max_workers"`
	QueueSize         int `json:"queue_size" yaml:"queue_size"`
	WorkerIdleTimeout int `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // minutes

	// MessagesPerMinute limits turn submissions per browser session; 0 disables the limit.
	MessagesPerMinute int `json:"messages_per_minute" yaml:"messages_per_minute"`

	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`
}

// ServiceConfig addresses the remote assistant service.
type ServiceConfig struct {
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	APIVersion string `json:"api_version" yaml:"api_version"`
	// Azure selects Azure OpenAI routing; it is implied when the endpoint host ends in azure.com.
	Azure bool `json:"azure" yaml:"azure"`
	// RequestTimeout bounds a single HTTP call, in seconds.
	RequestTimeout int `json:"request_timeout" yaml:"request_timeout"`
}

// AgentConfig either binds to an existing agent (ID) or describes one to create.
type AgentConfig struct {
	ID             string   `json:"id" yaml:"id"`
	Create         bool     `json:"create" yaml:"create"`
	Name           string   `json:"name" yaml:"name"`
	Model          string   `json:"model" yaml:"model"`
	Instructions   string   `json:"instructions" yaml:"instructions"`
	Tools          []string `json:"tools" yaml:"tools"`
	VectorStoreIDs []string `json:"vector_store_ids" yaml:"vector_store_ids"`
	Temperature    *float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP           *float32 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// TitleConfig configures the optional conversation title generator.
type TitleConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, claude, gemini or empty
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

type TracingConfig struct {
	Exporter    string `json:"exporter" yaml:"exporter"` // none or stdout
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// Load reads configuration from the provided path (defaults to config.json when present).
// Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// env-only configuration
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Service.Endpoint = getEnv("ASSISTCHAT_ENDPOINT", c.Service.Endpoint)
	c.Service.APIKey = getEnv("ASSISTCHAT_API_KEY", c.Service.APIKey)
	c.Service.APIVersion = getEnv("ASSISTCHAT_API_VERSION", c.Service.APIVersion)
	c.Agent.ID = getEnv("ASSISTCHAT_AGENT_ID", c.Agent.ID)
	c.BasicConfig.ServerAddress = getEnv("ASSISTCHAT_ADDR", c.BasicConfig.ServerAddress)
	c.BasicConfig.LogLevel = getEnv("ASSISTCHAT_LOG_LEVEL", c.BasicConfig.LogLevel)
	c.BasicConfig.LogFile = getEnv("ASSISTCHAT_LOG_FILE", c.BasicConfig.LogFile)

	if addr := os.Getenv("ASSISTCHAT_REDIS_ADDR"); addr != "" {
		host, port, ok := strings.Cut(addr, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
		c.BasicConfig.SessionBackend = "redis"
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = defaultServerAddress
	}
	if c.BasicConfig.SessionBackend == "" {
		c.BasicConfig.SessionBackend = "memory"
	}
	if c.BasicConfig.SessionTTL <= 0 {
		c.BasicConfig.SessionTTL = defaultSessionTTL
	}
	if c.BasicConfig.PollInterval <= 0 {
		c.BasicConfig.PollInterval = defaultPollInterval
	}
	if c.BasicConfig.PollTimeout <= 0 {
		c.BasicConfig.PollTimeout = defaultPollTimeout
	}
	if c.BasicConfig.MaxWorkers <= 0 {
		c.BasicConfig.MaxWorkers = 16
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 4
	}
	if c.BasicConfig.WorkerIdleTimeout <= 0 {
		c.BasicConfig.WorkerIdleTimeout = 10
	}
	if c.Service.APIVersion == "" {
		c.Service.APIVersion = defaultAPIVersion
	}
	if c.Service.RequestTimeout <= 0 {
		c.Service.RequestTimeout = 30
	}
	if strings.Contains(strings.ToLower(c.Service.Endpoint), ".azure.com") {
		c.Service.Azure = true
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "none"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "assistchat"
	}
}

// Validate reports configuration that makes the assistant unreachable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.APIKey) == "" {
		return errors.New("service api_key must be configured")
	}
	if c.Service.Azure && strings.TrimSpace(c.Service.Endpoint) == "" {
		return errors.New("service endpoint must be configured for azure")
	}
	if c.Agent.ID == "" && !c.Agent.Create {
		return errors.New("agent id must be configured (or set agent.create)")
	}
	if c.Agent.ID == "" && c.Agent.Model == "" {
		return errors.New("agent model is required to create an agent")
	}
	switch c.BasicConfig.SessionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session backend: %s", c.BasicConfig.SessionBackend)
	}
	return nil
}

func (b BasicConfig) PollIntervalDuration() time.Duration {
	return time.Duration(b.PollInterval) * time.Millisecond
}

func (b BasicConfig) PollTimeoutDuration() time.Duration {
	return time.Duration(b.PollTimeout) * time.Second
}

func (b BasicConfig) SessionTTLDuration() time.Duration {
	return time.Duration(b.SessionTTL) * time.Minute
}

func (b BasicConfig) WorkerIdleDuration() time.Duration {
	return time.Duration(b.WorkerIdleTimeout) * time.Minute
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (s ServiceConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}
