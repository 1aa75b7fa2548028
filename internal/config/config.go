package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Broker driver names accepted in BROKER_DRIVER.
const (
	BrokerDriverMemory = "memory"
	BrokerDriverRedis  = "redis"
)

// Provider exposes the configuration values the rest of the application
// depends on. Components take the interface so tests can substitute a
// static config without touching the environment.
type Provider interface {
	GetAppAddr() string
	GetBrokerDriver() string

	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int

	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string

	GetHistoryLimit() int
	GetHistoryTTL() time.Duration

	GetBrokerTimeout() time.Duration
	GetCacheTimeout() time.Duration
	GetStoreTimeout() time.Duration
}

// Config holds all configuration for the application, loaded from the
// environment.
type Config struct {
	AppAddr      string
	BrokerDriver string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DBUrl  string
	DBNs   string
	DBDb   string
	DBUser string
	DBPass string

	HistoryLimit int
	HistoryTTL   time.Duration

	BrokerTimeout time.Duration
	CacheTimeout  time.Duration
	StoreTimeout  time.Duration
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		AppAddr:      envOr("APP_ADDR", ":8000"),
		BrokerDriver: envOr("BROKER_DRIVER", BrokerDriverRedis),

		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envIntOr("REDIS_DB", 0),

		DBUrl:  os.Getenv("SURREAL_URL"),
		DBUser: os.Getenv("SURREAL_USER"),
		DBPass: os.Getenv("SURREAL_PASS"),
		DBNs:   os.Getenv("SURREAL_NS"),
		DBDb:   os.Getenv("SURREAL_DB"),

		HistoryLimit: envIntOr("HISTORY_LIMIT", 50),
		HistoryTTL:   envDurationOr("HISTORY_CACHE_TTL", 300*time.Second),

		BrokerTimeout: envDurationOr("BROKER_TIMEOUT", 5*time.Second),
		CacheTimeout:  envDurationOr("CACHE_TIMEOUT", 2*time.Second),
		StoreTimeout:  envDurationOr("STORE_TIMEOUT", 5*time.Second),
	}

	if cfg.DBUrl == "" || cfg.DBNs == "" || cfg.DBDb == "" {
		log.Fatal("Required environment variables SURREAL_URL, SURREAL_NS, or SURREAL_DB are not set.")
	}

	if cfg.BrokerDriver != BrokerDriverMemory && cfg.BrokerDriver != BrokerDriverRedis {
		log.Fatalf("Unknown BROKER_DRIVER %q (expected %q or %q)", cfg.BrokerDriver, BrokerDriverMemory, BrokerDriverRedis)
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Ignoring non-integer value for %s: %q", key, v)
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare integers are treated as seconds, matching the deployment
		// conventions this service inherited.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		log.Printf("Ignoring unparseable duration for %s: %q", key, v)
	}
	return fallback
}

func (c *Config) GetAppAddr() string      { return c.AppAddr }
func (c *Config) GetBrokerDriver() string { return c.BrokerDriver }

func (c *Config) GetRedisAddr() string     { return c.RedisAddr }
func (c *Config) GetRedisPassword() string { return c.RedisPassword }
func (c *Config) GetRedisDB() int          { return c.RedisDB }

func (c *Config) GetDBURL() string  { return c.DBUrl }
func (c *Config) GetDBNs() string   { return c.DBNs }
func (c *Config) GetDBDb() string   { return c.DBDb }
func (c *Config) GetDBUser() string { return c.DBUser }
func (c *Config) GetDBPass() string { return c.DBPass }

func (c *Config) GetHistoryLimit() int         { return c.HistoryLimit }
func (c *Config) GetHistoryTTL() time.Duration { return c.HistoryTTL }

func (c *Config) GetBrokerTimeout() time.Duration { return c.BrokerTimeout }
func (c *Config) GetCacheTimeout() time.Duration  { return c.CacheTimeout }
func (c *Config) GetStoreTimeout() time.Duration  { return c.StoreTimeout }
