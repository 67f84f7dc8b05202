// Package config loads application configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	LLM     LLMConfig               `yaml:"llm"`
	Servers map[string]ServerEntry  `yaml:"mcp_servers"`
	Audit   AuditConfig             `yaml:"audit"`
	Logging LoggingConfig           `yaml:"logging"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// LLMConfig holds the chat-completions backend settings
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"-"` // OPENAI_API_KEY only, never read from file
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxRetries     int     `yaml:"max_retries"`
	RetryDelayMs   int     `yaml:"retry_delay_ms"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// ServerEntry describes one MCP server. Transport selects how to reach it:
// "stdio" (default) spawns Command, "sse" and "http" connect to URL.
type ServerEntry struct {
	Transport      string            `yaml:"transport"`
	Command        string            `yaml:"command"`
	Args           []string          `yaml:"args"`
	Env            map[string]string `yaml:"env"`
	URL            string            `yaml:"url"`
	ConnectSeconds int               `yaml:"connect_seconds"`
	InvokeSeconds  int               `yaml:"invoke_seconds"`
}

// AuditConfig holds the invocation log settings
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from a YAML file with environment variable
// overrides. A missing file is not an error; defaults apply.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:    3000,
			BaseURL: "http://localhost:3000",
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxRetries:     3,
			RetryDelayMs:   1000,
			TimeoutSeconds: 60,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "mitra.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Server.Port)
	}
	if baseURL := os.Getenv("SERVER_BASE_URL"); baseURL != "" {
		config.Server.BaseURL = baseURL
	}

	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if temp := os.Getenv("LLM_TEMPERATURE"); temp != "" {
		if v, err := strconv.ParseFloat(temp, 64); err == nil {
			config.LLM.Temperature = v
		}
	}

	if path := os.Getenv("AUDIT_DB_PATH"); path != "" {
		config.Audit.Path = path
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", config.Server.Port)
	}
	if config.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if config.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}
	for name, entry := range config.Servers {
		switch entry.Transport {
		case "", "stdio":
			if entry.Command == "" {
				return fmt.Errorf("mcp_servers.%s.command must not be empty", name)
			}
		case "sse", "http":
			if entry.URL == "" {
				return fmt.Errorf("mcp_servers.%s.url must not be empty for %s transport", name, entry.Transport)
			}
		default:
			return fmt.Errorf("mcp_servers.%s.transport must be stdio, sse, or http, got %q", name, entry.Transport)
		}
	}

	return nil
}

// ServerNames returns the configured MCP server IDs in sorted order
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RetryDelay returns the delay between LLM retry attempts as a duration
func (l *LLMConfig) RetryDelay() time.Duration {
	return time.Duration(l.RetryDelayMs) * time.Millisecond
}

// Timeout returns the per-request LLM timeout as a duration
func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// ConnectTimeout returns the handshake deadline for this server, defaulting
// to 30 seconds when unset.
func (s *ServerEntry) ConnectTimeout() time.Duration {
	if s.ConnectSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ConnectSeconds) * time.Second
}

// InvokeTimeout returns the tool-call deadline for this server, defaulting
// to 60 seconds when unset.
func (s *ServerEntry) InvokeTimeout() time.Duration {
	if s.InvokeSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.InvokeSeconds) * time.Second
}
