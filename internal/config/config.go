// Package config собирает настройки сервиса из переменных окружения,
// необязательного config.yaml и .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled: Redis используется только если задан адрес.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type KafkaConfig struct {
	// Через запятую.
	Brokers string
	Topic   string
}

func (c KafkaConfig) Enabled() bool { return strings.TrimSpace(c.Brokers) != "" }

type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	SampleRatio  float64
}

type Config struct {
	Env      string
	LogLevel string

	HTTPAddr string
	GRPCAddr string

	DB    DBConfig
	Redis RedisConfig
	Kafka KafkaConfig
	OTel  OTelConfig

	CollaboratorTimeout time.Duration
	LockTTL             time.Duration
	ScheduleTimezone    string
	// YAML с центроидами почтовых индексов; пусто — только точное совпадение.
	PostalCentroidsFile string

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location возвращает часовой пояс окон доступности исполнителей.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":50051")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "booking-events")

	v.SetDefault("COLLABORATOR_TIMEOUT", "2s")
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("SCHEDULE_TIMEZONE", "Europe/Berlin")
	v.SetDefault("POSTAL_CENTROIDS_FILE", "")

	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("CORS_ORIGINS", "")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "cleaning-core")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)

	setDBDefaults(v)
}

// LoadDotEnv подгружает .env, если файл есть. Уже заданные переменные не перезаписываются.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load читает конфигурацию. configFile может быть пустым: тогда ищется
// config.yaml в текущем каталоге и ./config, его отсутствие не ошибка.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	db, err := loadDBConfig(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:      v.GetString("APP_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		HTTPAddr: v.GetString("HTTP_ADDR"),
		GRPCAddr: v.GetString("GRPC_ADDR"),
		DB:       db,
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetString("KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		OTel: OTelConfig{
			Enabled:      v.GetBool("OTEL_ENABLED"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SampleRatio:  v.GetFloat64("OTEL_SAMPLING_RATIO"),
		},
		CollaboratorTimeout: v.GetDuration("COLLABORATOR_TIMEOUT"),
		LockTTL:             v.GetDuration("LOCK_TTL"),
		ScheduleTimezone:    v.GetString("SCHEDULE_TIMEZONE"),
		PostalCentroidsFile: v.GetString("POSTAL_CENTROIDS_FILE"),
		RateLimitRPS:        v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:      v.GetInt("RATE_LIMIT_BURST"),
		CORSOrigins:         splitList(v.GetString("CORS_ORIGINS")),
	}

	switch {
	case cfg.CollaboratorTimeout <= 0:
		return nil, fmt.Errorf("invalid config: COLLABORATOR_TIMEOUT must be positive")
	case cfg.LockTTL <= 0:
		return nil, fmt.Errorf("invalid config: LOCK_TTL must be positive")
	case cfg.OTel.SampleRatio < 0 || cfg.OTel.SampleRatio > 1:
		return nil, fmt.Errorf("invalid config: OTEL_SAMPLING_RATIO must be within [0, 1]")
	}
	if _, err := time.LoadLocation(cfg.ScheduleTimezone); err != nil {
		return nil, fmt.Errorf("invalid config: SCHEDULE_TIMEZONE: %w", err)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
