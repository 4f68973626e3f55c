package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"familycal/core/logger"
)

type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OAuthProviderConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type CalendarConfig struct {
	// EncryptionKey is the master secret the credential vault derives its
	// AES key from. Tokens are never persisted without it.
	EncryptionKey string `mapstructure:"encryption_key"`
	// StateTokenSecret signs the OAuth state tokens.
	StateTokenSecret string `mapstructure:"state_token_secret"`
	// SyncAllCron enables the background sweep when non-empty, e.g. "@every 1h".
	SyncAllCron string `mapstructure:"sync_all_cron"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	Database     DatabaseConfig      `mapstructure:"database"`
	Redis        RedisConfig         `mapstructure:"redis"`
	GoogleAPI    OAuthProviderConfig `mapstructure:"google_api"`
	MicrosoftAPI OAuthProviderConfig `mapstructure:"microsoft_api"`
	Calendar     CalendarConfig      `mapstructure:"calendar"`
	JWT          JWTConfig           `mapstructure:"jwt"`
}

var (
	instance *Config
	mu       sync.RWMutex
)

// Load reads configuration from environment variables (optionally seeded from
// a .env file) and caches the result for Get/GetSafe.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("config: no .env file found, using environment only")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 7070)
	v.SetDefault("server.base_url", "http://localhost:7070")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "familycal")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("calendar.sync_all_cron", "@every 1h")

	// Bind the keys we read so AutomaticEnv picks them up without a config file.
	for _, key := range []string{
		"server.port", "server.base_url",
		"database.host", "database.port", "database.user", "database.password", "database.name",
		"redis.addr", "redis.password", "redis.db",
		"google_api.client_id", "google_api.client_secret",
		"microsoft_api.client_id", "microsoft_api.client_secret",
		"calendar.encryption_key", "calendar.state_token_secret", "calendar.sync_all_cron",
		"jwt.secret",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	mu.Lock()
	instance = &cfg
	mu.Unlock()

	return &cfg, nil
}

// Get returns the loaded config. Panics if Load was never called.
func Get() *Config {
	cfg, ok := GetSafe()
	if !ok {
		panic("config: Load must be called before Get")
	}
	return cfg
}

// GetSafe returns the loaded config and whether it is initialized.
func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}

// Set overrides the cached config. Intended for tests.
func Set(cfg *Config) {
	mu.Lock()
	instance = cfg
	mu.Unlock()
}
