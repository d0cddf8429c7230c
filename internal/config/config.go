package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Result HIGH classification rules accepted by RESULT_HIGH_RULE.
const (
	HighRuleAboveMax = "above-max"
	HighRuleLegacy   = "legacy"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	Timezone           string        `mapstructure:"TIMEZONE"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	ResultHighRule     string        `mapstructure:"RESULT_HIGH_RULE"`
	CatalogCacheTTL    time.Duration `mapstructure:"CATALOG_CACHE_TTL"`
	KafkaBrokers       []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaActivityTopic string        `mapstructure:"KAFKA_ACTIVITY_TOPIC"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"TIMEZONE", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS",
	"RESULT_HIGH_RULE", "CATALOG_CACHE_TTL", "KAFKA_BROKERS", "KAFKA_ACTIVITY_TOPIC",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TIMEZONE", "Asia/Bangkok")
	v.SetDefault("AUTH_ISSUER", "labflow")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RESULT_HIGH_RULE", HighRuleAboveMax)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")
	v.SetDefault("KAFKA_ACTIVITY_TOPIC", "lab.activity")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// KafkaEnabled reports whether activity events are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Location resolves TIMEZONE. Asia/Bangkok falls back to a fixed UTC+7 zone
// on hosts without tzdata.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		if c.Timezone == "Asia/Bangkok" {
			return time.FixedZone("ICT", 7*60*60), nil
		}
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.ResultHighRule != HighRuleAboveMax && c.ResultHighRule != HighRuleLegacy {
		return fmt.Errorf("RESULT_HIGH_RULE must be %q or %q, got %q", HighRuleAboveMax, HighRuleLegacy, c.ResultHighRule)
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
