package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Providers     ProvidersConfig         `mapstructure:"providers"`
	Enrichment    EnrichmentConfig        `mapstructure:"enrichment"`
	Availability  AvailabilityConfig      `mapstructure:"availability"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Live          LiveConfig              `mapstructure:"live"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	ReadTimeout    int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"`    // milliseconds
	MaxAudioBytes  int64  `mapstructure:"max_audio_bytes"`
	ShutdownGrace  int    `mapstructure:"shutdown_grace"`   // milliseconds
}

// CamundaConfig is optional; an empty broker address disables the job workers.
type CamundaConfig struct {
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
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"`
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

// --- Intake Collaborators ---

// ProviderEndpoint describes one HTTP collaborator.
type ProviderEndpoint struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type ProvidersConfig struct {
	Speech          ProviderEndpoint `mapstructure:"speech"`
	Translation     ProviderEndpoint `mapstructure:"translation"`
	Classification  ProviderEndpoint `mapstructure:"classification"`
	WorkingLanguage string           `mapstructure:"working_language"`
}

type EnrichmentConfig struct {
	Weather          ProviderEndpoint `mapstructure:"weather"`
	Traffic          ProviderEndpoint `mapstructure:"traffic"`
	TrafficRadius    int              `mapstructure:"traffic_radius"` // meters
	FacilityIndex    string           `mapstructure:"facility_index"`
	FacilityRadiusKm float64          `mapstructure:"facility_radius_km"`
	FacilityLimit    int              `mapstructure:"facility_limit"`
	SubQueryTimeout  int              `mapstructure:"sub_query_timeout"` // milliseconds
	Cache            CacheTTLConfig   `mapstructure:"cache"`
}

// CacheTTLConfig holds enrichment cache lifetimes in seconds.
type CacheTTLConfig struct {
	Weather    int `mapstructure:"weather"`
	Traffic    int `mapstructure:"traffic"`
	Facilities int `mapstructure:"facilities"`
}

type AvailabilityConfig struct {
	StaleAfter int `mapstructure:"stale_after"` // milliseconds
}

// --- Notification Configuration ---

type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	Push struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"push"`
	AWS             AWSConfig `mapstructure:"aws"`
	DeliveryTimeout int       `mapstructure:"delivery_timeout"` // milliseconds
	Concurrency     int       `mapstructure:"concurrency"`
	PageSize        int       `mapstructure:"page_size"`
}

// AWSConfig locates SES and SNS. Endpoint, when set, replaces the regional endpoint,
// for local stacks.
type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// LiveConfig tunes the WebSocket push hub.
type LiveConfig struct {
	SendBuffer   int `mapstructure:"send_buffer"`
	WriteTimeout int `mapstructure:"write_timeout"` // milliseconds
	PingInterval int `mapstructure:"ping_interval"` // milliseconds
}

type ObservabilityConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
