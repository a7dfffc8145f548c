package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`

	EHRAuthorizeURL string `mapstructure:"EHR_AUTHORIZE_URL"`
	EHRTokenURL     string `mapstructure:"EHR_TOKEN_URL"`
	EHRFHIRBaseURL  string `mapstructure:"EHR_FHIR_BASE_URL"`
	EHRClientID     string `mapstructure:"EHR_CLIENT_ID"`
	EHRClientSecret string `mapstructure:"EHR_CLIENT_SECRET"`
	EHRRedirectURI  string `mapstructure:"EHR_REDIRECT_URI"`
	EHRScopes       string `mapstructure:"EHR_SCOPES"`

	KafkaBrokers  []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic    string   `mapstructure:"KAFKA_TOPIC"`
	RabbitMQURL   string   `mapstructure:"RABBITMQ_URL"`
	RabbitMQQueue string   `mapstructure:"RABBITMQ_QUEUE"`

	ClickHouseAddr     string `mapstructure:"CLICKHOUSE_ADDR"`
	ClickHouseDatabase string `mapstructure:"CLICKHOUSE_DATABASE"`
	ClickHouseUser     string `mapstructure:"CLICKHOUSE_USER"`
	ClickHousePassword string `mapstructure:"CLICKHOUSE_PASSWORD"`

	LiveKitURL       string `mapstructure:"LIVEKIT_URL"`
	LiveKitAPIKey    string `mapstructure:"LIVEKIT_API_KEY"`
	LiveKitAPISecret string `mapstructure:"LIVEKIT_API_SECRET"`

	InsightProvider string `mapstructure:"INSIGHT_PROVIDER"`
	OpenAIAPIKey    string `mapstructure:"OPENAI_API_KEY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EHR_AUTHORIZE_URL", "https://fhir.epic.com/interconnect-fhir-oauth/oauth2/authorize")
	v.SetDefault("EHR_TOKEN_URL", "https://fhir.epic.com/interconnect-fhir-oauth/oauth2/token")
	v.SetDefault("EHR_FHIR_BASE_URL", "https://fhir.epic.com/interconnect-fhir-oauth/api/FHIR/R4")
	v.SetDefault("EHR_REDIRECT_URI", "http://localhost:8000/v1/ehr/callback")
	v.SetDefault("EHR_SCOPES", "openid profile offline_access patient/Observation.read patient/Patient.read")
	v.SetDefault("KAFKA_TOPIC", "companion-events")
	v.SetDefault("RABBITMQ_QUEUE", "companion-events")
	v.SetDefault("CLICKHOUSE_DATABASE", "companion")
	v.SetDefault("CLICKHOUSE_USER", "default")
	v.SetDefault("INSIGHT_PROVIDER", "openai")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "CORS_ORIGINS",
		"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
		"EHR_AUTHORIZE_URL", "EHR_TOKEN_URL", "EHR_FHIR_BASE_URL",
		"EHR_CLIENT_ID", "EHR_CLIENT_SECRET", "EHR_REDIRECT_URI", "EHR_SCOPES",
		"KAFKA_BROKERS", "KAFKA_TOPIC", "RABBITMQ_URL", "RABBITMQ_QUEUE",
		"CLICKHOUSE_ADDR", "CLICKHOUSE_DATABASE", "CLICKHOUSE_USER", "CLICKHOUSE_PASSWORD",
		"LIVEKIT_URL", "LIVEKIT_API_KEY", "LIVEKIT_API_SECRET",
		"INSIGHT_PROVIDER", "OPENAI_API_KEY",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.KafkaBrokers == nil {
		if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
			cfg.KafkaBrokers = strings.Split(brokers, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in development mode; unauthenticated requests are mapped to dev-user")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode the upstream identity provider must be configured so that real JWT
// authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_ISSUER must be set when ENV is %q; refusing to start without authentication configuration", c.Env)
	}
	if c.EHRClientSecret != "" && c.EHRClientID == "" {
		return fmt.Errorf("EHR_CLIENT_SECRET is set but EHR_CLIENT_ID is empty")
	}
	if (c.LiveKitAPIKey == "") != (c.LiveKitAPISecret == "") {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET must be set together")
	}
	return nil
}
