package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration for the simulation daemon
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Logger LoggerConfig `mapstructure:"logger"`
	Sim    SimConfig    `mapstructure:"sim"`
	Hub    HubConfig    `mapstructure:"hub"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Mirror MirrorConfig `mapstructure:"mirror"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level string `mapstructure:"level"` // "debug", "info", ...
}

type SimConfig struct {
	Instruments      int           `mapstructure:"instruments"`
	PriceFloor       float64       `mapstructure:"price_floor"`
	MinDelay         time.Duration `mapstructure:"min_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
	RandBucket       time.Duration `mapstructure:"rand_bucket"`
}

type HubConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MirrorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults (12-Factor App: Dev/Prod Parity)
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")

	v.SetDefault("sim.instruments", 100)
	v.SetDefault("sim.price_floor", 0.001)
	v.SetDefault("sim.min_delay", 1*time.Second)
	v.SetDefault("sim.max_delay", 7*time.Second)
	v.SetDefault("sim.history_retention", 7*24*time.Hour)
	v.SetDefault("sim.rand_bucket", 10*time.Second)

	v.SetDefault("hub.poll_interval", 500*time.Millisecond)
	v.SetDefault("hub.send_buffer", 256)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "admin_overrides")

	v.SetDefault("mirror.interval", 1*time.Second)
	v.SetDefault("mirror.ttl", 1*time.Hour)

	// 3. Configure Viper to read Environment Variables
	// This maps dot-notation to underscores (e.g., "app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys
	// This is crucial for Viper to map flat Env Vars (APP_PORT) to nested structs (App.Port)
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level")
	bindEnv(v, "sim.instruments", "sim.price_floor", "sim.min_delay", "sim.max_delay")
	bindEnv(v, "sim.history_retention", "sim.rand_bucket")
	bindEnv(v, "hub.poll_interval", "hub.send_buffer")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic")
	bindEnv(v, "mirror.interval", "mirror.ttl")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	// 6. Basic Validation
	if cfg.Sim.Instruments <= 0 || cfg.Sim.Instruments > 100 {
		return nil, fmt.Errorf("sim.instruments must be in 1..100, got %d", cfg.Sim.Instruments)
	}
	if cfg.Sim.PriceFloor <= 0 {
		return nil, fmt.Errorf("sim.price_floor must be positive")
	}
	if cfg.Sim.MinDelay <= 0 || cfg.Sim.MaxDelay < cfg.Sim.MinDelay {
		return nil, fmt.Errorf("invalid drift delay window [%s, %s]", cfg.Sim.MinDelay, cfg.Sim.MaxDelay)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}

	return &cfg, nil
}

// NewLogger builds the process-wide zap logger from config.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	return zcfg.Build()
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
