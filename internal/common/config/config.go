// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig               `mapstructure:"app"`
	Camunda        CamundaConfig           `mapstructure:"camunda"`
	Database       DatabaseConfig          `mapstructure:"database"`
	Workers        map[string]WorkerConfig `mapstructure:"workers"`
	Catalog        CatalogConfig           `mapstructure:"catalog"`
	Recommendation RecommendationConfig    `mapstructure:"recommendation"`
	API            APIConfig               `mapstructure:"api"`
	Registry       RegistryConfig          `mapstructure:"registry"`
	Logging        LoggingConfig           `mapstructure:"logging"`
	Notifications  NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	SSLEnabled   bool     `mapstructure:"ssl_enabled"`
	URL          string   `mapstructure:"url"`
	ProductIndex string   `mapstructure:"product_index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// CatalogConfig controls where lender products come from and how long a
// cached copy is trusted.
type CatalogConfig struct {
	Source        string `mapstructure:"source"` // staff_api | postgres | elasticsearch
	StaffAPIURL   string `mapstructure:"staff_api_url"`
	CacheKey      string `mapstructure:"cache_key"`
	CacheTTL      int    `mapstructure:"cache_ttl"`     // milliseconds
	MaxStaleAge   int    `mapstructure:"max_stale_age"` // milliseconds
	FetchTimeout  int    `mapstructure:"fetch_timeout"` // milliseconds
	MaxRetries    int    `mapstructure:"max_retries"`
	RetryDelay    int    `mapstructure:"retry_delay"` // milliseconds
	PersistOnSync bool   `mapstructure:"persist_on_sync"`
	IndexOnSync   bool   `mapstructure:"index_on_sync"`

	DeactivateMissing bool `mapstructure:"deactivate_missing"`
}

type RecommendationConfig struct {
	MaxResults    int `mapstructure:"max_results"`
	SlowThreshold int `mapstructure:"slow_threshold"` // milliseconds
}

type APIConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Port           int     `mapstructure:"port"`
	RateLimit      float64 `mapstructure:"rate_limit"` // requests per second per client
	RateBurst      int     `mapstructure:"rate_burst"`
	RequestTimeout int     `mapstructure:"request_timeout"` // milliseconds
	MaxBodyBytes   int64   `mapstructure:"max_body_bytes"`
	HealthPort     int     `mapstructure:"health_port"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationConfig holds settings for the notify-lender-desk worker.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		DeskEmail string `mapstructure:"desk_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
