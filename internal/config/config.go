package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Batch    BatchConfig    `yaml:"batch"`
	Admin    AdminConfig    `yaml:"admin"`
	Settings SettingsConfig `yaml:"settings"`
}

// ServerConfig represents server identity configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OpenAIConfig represents completion/embedding service configuration
type OpenAIConfig struct {
	APIKey         string        `yaml:"api_key"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// QdrantConfig represents vector search configuration
type QdrantConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	Collection     string        `yaml:"collection"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// GatewayConfig represents the outbound messaging gateway configuration
type GatewayConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryCount     int           `yaml:"retry_count"`
}

// BatchConfig represents batch sweep trigger configuration
type BatchConfig struct {
	Secret string `yaml:"secret"`
}

// AdminConfig represents administrator access configuration
type AdminConfig struct {
	// Emails is a comma-separated allowlist of administrator emails.
	Emails string `yaml:"emails"`
}

// SettingsConfig represents settings resolver configuration
type SettingsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// AdminEmails returns the parsed administrator allowlist.
func (c *AdminConfig) AdminEmails() []string {
	if c.Emails == "" {
		return nil
	}
	parts := strings.Split(c.Emails, ",")
	emails := make([]string, 0, len(parts))
	for _, p := range parts {
		if e := strings.TrimSpace(strings.ToLower(p)); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}

// IsAdminEmail reports whether email is on the allowlist.
func (c *AdminConfig) IsAdminEmail(email string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	for _, e := range c.AdminEmails() {
		if e == email {
			return true
		}
	}
	return false
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.OpenAI.APIKey = apiKey
	}

	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" {
		c.Qdrant.URL = qdrantURL
	}

	if qdrantKey := os.Getenv("QDRANT_API_KEY"); qdrantKey != "" {
		c.Qdrant.APIKey = qdrantKey
	}

	if gatewayToken := os.Getenv("GATEWAY_TOKEN"); gatewayToken != "" {
		c.Gateway.Token = gatewayToken
	}

	if batchSecret := os.Getenv("BATCH_SECRET"); batchSecret != "" {
		c.Batch.Secret = batchSecret
	}

	if adminEmails := os.Getenv("ADMIN_EMAILS"); adminEmails != "" {
		c.Admin.Emails = adminEmails
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// setDefaults fills in defaults for optional fields
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "leadflow-server"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = 1024
	}
	if c.OpenAI.RequestTimeout == 0 {
		c.OpenAI.RequestTimeout = 30 * time.Second
	}
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "knowledge_chunks"
	}
	if c.Qdrant.RequestTimeout == 0 {
		c.Qdrant.RequestTimeout = 10 * time.Second
	}
	if c.Gateway.RequestTimeout == 0 {
		c.Gateway.RequestTimeout = 15 * time.Second
	}
	if c.Gateway.RetryCount == 0 {
		c.Gateway.RetryCount = 2
	}
	if c.Settings.CacheTTL == 0 {
		c.Settings.CacheTTL = 30 * time.Second
	}
}

// validate checks required configuration
func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Batch.Secret == "" {
		return fmt.Errorf("batch secret is required")
	}
	return nil
}
