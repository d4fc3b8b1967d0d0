package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"storefront-backend/internal/logger"
)

type Config struct {
	Env         string            `mapstructure:"env"`
	Port        int               `mapstructure:"port"`
	JWTSecret   string            `mapstructure:"jwt_secret"`
	Log         logger.Config     `mapstructure:"log"`
	Session     SessionConfig     `mapstructure:"session"`
	Store       StoreConfig       `mapstructure:"store"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	Lenco       LencoConfig       `mapstructure:"lenco"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Notify      NotifyConfig      `mapstructure:"notify"`
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	Secure     bool   `mapstructure:"secure"`
}

// StoreConfig selects where carts and orders live: memory or postgres.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// CatalogConfig selects the product catalog backend: memory, postgres or mysql.
type CatalogConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	SeedFile string `mapstructure:"seed_file"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

type PricingConfig struct {
	Shipping string `mapstructure:"shipping"`
	TaxRate  string `mapstructure:"tax_rate"`
}

type LencoConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	DialCode string        `mapstructure:"dial_code"`
	Currency string        `mapstructure:"currency"`
}

type IdempotencyConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type NotifyConfig struct {
	Email        string        `mapstructure:"email"`
	SMS          string        `mapstructure:"sms"`
	Audit        string        `mapstructure:"audit"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SMTP         SMTPConfig    `mapstructure:"smtp"`
	Webhook      WebhookConfig `mapstructure:"webhook"`
	KafkaBrokers []string      `mapstructure:"kafka_brokers"`
	KafkaTopic   string        `mapstructure:"kafka_topic"`
	MongoURI     string        `mapstructure:"mongo_uri"`
	MongoDB      string        `mapstructure:"mongo_db"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WebhookConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

func Default() Config {
	return Config{
		Env:       "dev",
		Port:      5000,
		JWTSecret: "",
		Log: logger.Config{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "logs/storefront.log",
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Session: SessionConfig{CookieName: "cart_session"},
		Store:   StoreConfig{Driver: "memory"},
		Catalog: CatalogConfig{Driver: "memory", MaxOpen: 20, MaxIdle: 5},
		Pricing: PricingConfig{Shipping: "5.00", TaxRate: "0.02"},
		Lenco: LencoConfig{
			BaseURL:  "https://api.lenco.co/access/v2",
			Timeout:  30 * time.Second,
			DialCode: "260",
			Currency: "ZMW",
		},
		Idempotency: IdempotencyConfig{Driver: "memory", RedisAddr: "127.0.0.1:6379", TTL: 24 * time.Hour},
		Notify: NotifyConfig{
			Email:      "log",
			SMS:        "log",
			Audit:      "none",
			Timeout:    10 * time.Second,
			SMTP:       SMTPConfig{Port: 587, From: "noreply@example.com"},
			KafkaTopic: "storefront.notifications",
			MongoDB:    "storefront",
		},
	}
}

// EnvDefaults is Default overlaid with STOREFRONT_* environment variables.
func EnvDefaults() Config {
	c, err := Load("")
	if err != nil {
		return Default()
	}
	return c
}

// Load reads an optional TOML/YAML/JSON file, then environment variables.
// STOREFRONT_LENCO_API_KEY maps to lenco.api_key.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("env", d.Env)
	v.SetDefault("port", d.Port)
	v.SetDefault("jwt_secret", d.JWTSecret)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.with_caller", d.Log.WithCaller)

	v.SetDefault("session.cookie_name", d.Session.CookieName)
	v.SetDefault("session.secure", d.Session.Secure)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)

	v.SetDefault("catalog.driver", d.Catalog.Driver)
	v.SetDefault("catalog.dsn", d.Catalog.DSN)
	v.SetDefault("catalog.seed_file", d.Catalog.SeedFile)
	v.SetDefault("catalog.max_open", d.Catalog.MaxOpen)
	v.SetDefault("catalog.max_idle", d.Catalog.MaxIdle)

	v.SetDefault("pricing.shipping", d.Pricing.Shipping)
	v.SetDefault("pricing.tax_rate", d.Pricing.TaxRate)

	v.SetDefault("lenco.base_url", d.Lenco.BaseURL)
	v.SetDefault("lenco.api_key", d.Lenco.APIKey)
	v.SetDefault("lenco.timeout", d.Lenco.Timeout)
	v.SetDefault("lenco.dial_code", d.Lenco.DialCode)
	v.SetDefault("lenco.currency", d.Lenco.Currency)

	v.SetDefault("idempotency.driver", d.Idempotency.Driver)
	v.SetDefault("idempotency.redis_addr", d.Idempotency.RedisAddr)
	v.SetDefault("idempotency.redis_password", d.Idempotency.RedisPassword)
	v.SetDefault("idempotency.redis_db", d.Idempotency.RedisDB)
	v.SetDefault("idempotency.ttl", d.Idempotency.TTL)

	v.SetDefault("notify.email", d.Notify.Email)
	v.SetDefault("notify.sms", d.Notify.SMS)
	v.SetDefault("notify.audit", d.Notify.Audit)
	v.SetDefault("notify.timeout", d.Notify.Timeout)
	v.SetDefault("notify.smtp.host", d.Notify.SMTP.Host)
	v.SetDefault("notify.smtp.port", d.Notify.SMTP.Port)
	v.SetDefault("notify.smtp.username", d.Notify.SMTP.Username)
	v.SetDefault("notify.smtp.password", d.Notify.SMTP.Password)
	v.SetDefault("notify.smtp.from", d.Notify.SMTP.From)
	v.SetDefault("notify.webhook.url", d.Notify.Webhook.URL)
	v.SetDefault("notify.webhook.token", d.Notify.Webhook.Token)
	v.SetDefault("notify.kafka_brokers", d.Notify.KafkaBrokers)
	v.SetDefault("notify.kafka_topic", d.Notify.KafkaTopic)
	v.SetDefault("notify.mongo_uri", d.Notify.MongoURI)
	v.SetDefault("notify.mongo_db", d.Notify.MongoDB)
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Env != "dev" && c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required outside dev"))
	}
	if _, err := decimal.NewFromString(c.Pricing.Shipping); err != nil {
		errs = append(errs, fmt.Errorf("pricing.shipping: %w", err))
	}
	if _, err := decimal.NewFromString(c.Pricing.TaxRate); err != nil {
		errs = append(errs, fmt.Errorf("pricing.tax_rate: %w", err))
	}
	if c.Lenco.Timeout <= 0 {
		errs = append(errs, errors.New("lenco.timeout must be positive"))
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Catalog.Driver {
	case "memory":
	case "postgres", "mysql":
		if c.Catalog.DSN == "" {
			errs = append(errs, fmt.Errorf("catalog.dsn is required for %s", c.Catalog.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalog.driver %q", c.Catalog.Driver))
	}
	if c.Idempotency.Driver != "memory" && c.Idempotency.Driver != "redis" {
		errs = append(errs, fmt.Errorf("unknown idempotency.driver %q", c.Idempotency.Driver))
	}
	if c.Notify.Email == "kafka" || c.Notify.SMS == "kafka" {
		if len(c.Notify.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("notify.kafka_brokers is required for the kafka sender"))
		}
	}
	if c.Notify.Audit == "mongo" && c.Notify.MongoURI == "" {
		errs = append(errs, errors.New("notify.mongo_uri is required for the mongo audit log"))
	}
	return errors.Join(errs...)
}

// PricingRules parses the configured shipping fee and tax rate.
func (c Config) PricingRules() (shipping, taxRate decimal.Decimal, err error) {
	shipping, err = decimal.NewFromString(c.Pricing.Shipping)
	if err != nil {
		return
	}
	taxRate, err = decimal.NewFromString(c.Pricing.TaxRate)
	return
}
