package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	PriceFeed PriceFeedConfig `json:"price_feed"`
	Market    MarketConfig    `json:"market"`
	Documents DocumentsConfig `json:"documents"`
	Security  SecurityConfig  `json:"security"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// PriceFeedConfig configures the reference price pollers
type PriceFeedConfig struct {
	BaseURL      string        `json:"base_url"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxRetries   int           `json:"max_retries"`
	RetryDelay   time.Duration `json:"retry_delay"`
}

// MarketConfig configures the simulated offer book
type MarketConfig struct {
	ReconcileInterval  time.Duration `json:"reconcile_interval"`
	LivelinessInterval time.Duration `json:"liveliness_interval"`
	ConversionInterval time.Duration `json:"conversion_interval"`
}

// DocumentsConfig configures KYC document storage
type DocumentsConfig struct {
	Bucket   string `json:"bucket"`
	UseLocal bool   `json:"use_local"`
}

// SecurityConfig holds the signing secret for session tokens
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "carbon_trading",
			SSLMode: "disable",
		},
		PriceFeed: PriceFeedConfig{
			PollInterval: 5 * time.Minute,
			MaxRetries:   3,
			RetryDelay:   2 * time.Second,
		},
		Market: MarketConfig{
			ReconcileInterval:  5 * time.Second,
			LivelinessInterval: 30 * time.Second,
			ConversionInterval: 10 * time.Second,
		},
		Documents: DocumentsConfig{
			Bucket:   "nihao-carbon-kyc-docs",
			UseLocal: true,
		},
		Security: SecurityConfig{
			JWTSecret: "dev-only-secret",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if feedURL := os.Getenv("PRICE_FEED_URL"); feedURL != "" {
		config.PriceFeed.BaseURL = feedURL
	}
	if bucket := os.Getenv("DOCUMENTS_BUCKET"); bucket != "" {
		config.Documents.Bucket = bucket
		config.Documents.UseLocal = false
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
