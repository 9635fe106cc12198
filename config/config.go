package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all environment configuration for the service.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"templatestore"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`

	// Stripe credentials. An empty secret key leaves payment routes in a
	// degraded "not configured" mode instead of failing startup.
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY" envDefault:""`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" envDefault:"whsec_test"`

	// Kafka broker for order_fulfilled events. Empty disables publishing.
	KafkaBroker string `env:"KAFKA_BROKER" envDefault:""`
	KafkaTopic  string `env:"KAFKA_TOPIC" envDefault:"order_events"`

	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:""`
	JWTSecret     string `env:"JWT_SECRET" envDefault:"change-me-in-production"`

	JaegerEndpoint string `env:"JAEGER_ENDPOINT" envDefault:"http://localhost:14268/api/traces"`

	PublicDir    string `env:"PUBLIC_DIR" envDefault:"public"`
	UploadDir    string `env:"UPLOAD_DIR" envDefault:"public/uploads"`
	SeedDemoData bool   `env:"SEED_DEMO_DATA" envDefault:"false"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// DSN returns the Postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

// RedisAddr returns the host:port address of the Redis cache.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
