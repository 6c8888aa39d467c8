package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile — путь к YAML-конфигурации по умолчанию.
const DefaultConfigFile = "dealflow.yaml"

// Ошибки конфигурации.
var (
	// ErrInvalidConfig — значение вне допустимого диапазона.
	ErrInvalidConfig = errors.New("invalid config")
)

// Load загружает конфигурацию: defaults < YAML < ENV.
// Путь к YAML можно переопределить через DEALFLOW_CONFIG.
// Отсутствие файла не ошибка.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("DEALFLOW_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom загружает конфигурацию из указанного YAML-файла.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML читает YAML поверх cfg. Отсутствующий файл пропускается.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // путь задаёт оператор
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv накладывает переменные окружения. Пустые значения игнорируются.
func loadEnv(cfg *Config) {
	// Database
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.URL, "DB_URL")
	setInt32(&cfg.Database.MaxConns, "DB_MAX_CONNS")
	setBool(&cfg.Database.AutoMigrate, "DB_AUTO_MIGRATE")

	setString(&cfg.RabbitMQ.URL, "RABBITMQ_URL")

	// LLM
	setString(&cfg.LLM.URL, "LLM_URL")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setFloat64(&cfg.LLM.Temperature, "LLM_TEMPERATURE")
	setInt(&cfg.LLM.BreakerMaxFailures, "LLM_BREAKER_MAX_FAILURES")
	setDuration(&cfg.LLM.BreakerTimeout, "LLM_BREAKER_TIMEOUT")

	// Worker
	setInt(&cfg.Worker.Concurrency, "WORKER_CONCURRENCY")
	setDuration(&cfg.Worker.IdleBackoff, "WORKER_IDLE_BACKOFF")
	setDuration(&cfg.Worker.MaxIdleBackoff, "WORKER_MAX_IDLE_BACKOFF")
	setString(&cfg.Worker.Port, "WORKER_PORT")

	// Stages / workflow
	setInt(&cfg.Stages.MaxAttempts, "STAGE_MAX_ATTEMPTS")
	setDuration(&cfg.Stages.CallTimeout, "STAGE_CALL_TIMEOUT")
	setBool(&cfg.Stages.Annotate, "STAGE_ANNOTATE")
	setInt(&cfg.Workflow.MaxCycles, "WORKFLOW_MAX_CYCLES")
	setFloat64(&cfg.Workflow.DisagreementThreshold, "WORKFLOW_DISAGREEMENT_THRESHOLD")

	// Producer
	setString(&cfg.Producer.Schedule, "PRODUCER_SCHEDULE")
	setInt(&cfg.Producer.BatchSize, "PRODUCER_BATCH_SIZE")

	// Tracing
	setString(&cfg.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Tracing.ServiceName, "OTEL_SERVICE_NAME")
}

// Validate проверяет диапазоны значений.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("%w: database.url is required", ErrInvalidConfig)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown database.driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("%w: database.max_conns must be >= 1", ErrInvalidConfig)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("%w: worker.concurrency must be >= 1", ErrInvalidConfig)
	}
	if c.Worker.IdleBackoff <= 0 || c.Worker.MaxIdleBackoff < c.Worker.IdleBackoff {
		return fmt.Errorf("%w: worker idle backoff must be positive and <= max_idle_backoff", ErrInvalidConfig)
	}
	if c.Stages.MaxAttempts < 1 {
		return fmt.Errorf("%w: stages.max_attempts must be >= 1", ErrInvalidConfig)
	}
	if c.Stages.CallTimeout <= 0 {
		return fmt.Errorf("%w: stages.call_timeout must be positive", ErrInvalidConfig)
	}
	if c.Workflow.MaxCycles < 1 || c.Workflow.MaxCycles > 2 {
		return fmt.Errorf("%w: workflow.max_cycles must be 1 or 2", ErrInvalidConfig)
	}
	if c.Workflow.DisagreementThreshold < 0 || c.Workflow.DisagreementThreshold > 1 {
		return fmt.Errorf("%w: workflow.disagreement_threshold must be in [0, 1]", ErrInvalidConfig)
	}
	if c.LLM.BreakerMaxFailures < 1 {
		return fmt.Errorf("%w: llm.breaker_max_failures must be >= 1", ErrInvalidConfig)
	}
	if c.Producer.BatchSize < 1 {
		return fmt.Errorf("%w: producer.batch_size must be >= 1", ErrInvalidConfig)
	}
	if err := c.Decision.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
