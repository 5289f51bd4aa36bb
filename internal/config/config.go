package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Backup     BackupConfig      `yaml:"backup"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	API        APIConfig         `yaml:"api"`
	Booking    BookingConfig     `yaml:"booking"`
	Kafka      KafkaConfig       `yaml:"kafka"`
	Outbox     OutboxConfig      `yaml:"outbox"`
	Exports    ExportConfig      `yaml:"exports"`
	Facilities []models.Facility `yaml:"facilities"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BookingConfig overrides the reservation time policy.
type BookingConfig struct {
	MinDuration    time.Duration `yaml:"min_duration"`
	MaxDuration    time.Duration `yaml:"max_duration"`
	HorizonDays    int           `yaml:"horizon_days"`
	CancelCutoff   time.Duration `yaml:"cancel_cutoff"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	LockWait       time.Duration `yaml:"lock_wait"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Policy converts the section into the model used by the services.
func (b BookingConfig) Policy() models.Policy {
	return models.Policy{
		MinDuration:    b.MinDuration,
		MaxDuration:    b.MaxDuration,
		BookingHorizon: time.Duration(b.HorizonDays) * 24 * time.Hour,
		CancelCutoff:   b.CancelCutoff,
	}.WithDefaults()
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	DLQTopic     string        `yaml:"dlq_topic"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type OutboxConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Booking.MinDuration > 0 && c.Booking.MaxDuration > 0 && c.Booking.MinDuration > c.Booking.MaxDuration {
		return fmt.Errorf("booking.min_duration %s exceeds booking.max_duration %s",
			c.Booking.MinDuration, c.Booking.MaxDuration)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic is required when kafka is enabled")
		}
	}

	return ValidateFacilities(c.Facilities)
}

var (
	facilityValidator = validator.New()
	maxHourlyRate     = decimal.NewFromInt(1000)
)

// ValidateFacilities checks struct rules, unique ids and the rate range.
func ValidateFacilities(facilities []models.Facility) error {
	ids := make(map[int64]bool)
	for i := range facilities {
		f := &facilities[i]
		if err := facilityValidator.Struct(f); err != nil {
			return fmt.Errorf("facility '%s': %w", f.Name, err)
		}
		if ids[f.ID] {
			return fmt.Errorf("duplicate facility ID found: %d", f.ID)
		}
		ids[f.ID] = true

		if !f.HourlyRate.IsPositive() || f.HourlyRate.GreaterThan(maxHourlyRate) {
			return fmt.Errorf("facility '%s' has hourly rate %s outside (0, %s]", f.Name, f.HourlyRate, maxHourlyRate)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "sports-arena-booking"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}

	if c.Booking.HorizonDays == 0 {
		c.Booking.HorizonDays = int(models.DefaultBookingHorizon / (24 * time.Hour))
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = 10 * time.Second
	}
	if c.Booking.LockWait == 0 {
		c.Booking.LockWait = 3 * time.Second
	}
	if c.Booking.RequestTimeout == 0 {
		c.Booking.RequestTimeout = 10 * time.Second
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "arena.reservations"
	}
	if c.Kafka.MaxAttempts == 0 {
		c.Kafka.MaxAttempts = 3
	}

	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = 2 * time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 20
	}

	for i := range c.Facilities {
		if c.Facilities[i].OpeningTime == "" {
			c.Facilities[i].OpeningTime = models.DefaultOpeningTime
		}
		if c.Facilities[i].ClosingTime == "" {
			c.Facilities[i].ClosingTime = models.DefaultClosingTime
		}
	}
}
