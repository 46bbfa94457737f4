package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverBadger   = "badger"
	DriverDynamoDB = "dynamodb"
	DriverMemory   = "memory"
)

type Config struct {
	OllamaURL      string        `env:"OLLAMA_URL,default=http://localhost:11434" validate:"required,url"`
	Model          string        `env:"OLLAMA_MODEL,default=mistral" validate:"required"`
	RequestTimeout time.Duration `env:"OLLAMA_TIMEOUT,default=60s" validate:"gt=0"`
	StoreDriver    string        `env:"STORE_DRIVER,default=sqlite" validate:"oneof=sqlite badger dynamodb memory"`
	SQLitePath     string        `env:"SQLITE_PATH,default=chat.db" validate:"required_if=StoreDriver sqlite"`
	BadgerPath     string        `env:"BADGER_PATH,default=chat-badger" validate:"required_if=StoreDriver badger"`
	StateTable     string        `env:"STATE_TABLE" validate:"required_if=StoreDriver dynamodb"`
	HistoryID      string        `env:"HISTORY_ID,default=default" validate:"required"`
	ParamPrefix    string        `env:"PARAM_PREFIX"`
	LogLevel       string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("config: read environment: %w", err)
	}
	return Parse(es)
}

// Parse builds and validates a Config from an explicit set of variables.
func Parse(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// NeedsAWS reports whether an AWS SDK config has to be loaded.
func (c Config) NeedsAWS() bool {
	return c.StoreDriver == DriverDynamoDB || c.ParamPrefix != ""
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
