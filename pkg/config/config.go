package config

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig controls the Redis read cache for generated schedules.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the timetable generator, its job queue and the fitness weighting.
type SchedulerConfig struct {
	Enabled           bool
	QueueWorkers      int
	QueueBuffer       int
	EvalWorkers       int
	JobRetention      time.Duration
	JanitorInterval   time.Duration
	ProgressMirrorTTL time.Duration
	TournamentSize    int
	MaxRepairPasses   int
	Seed              int64
	Weights           WeightsConfig
}

// WeightsConfig mirrors the fitness weights so they can be tuned per deployment.
type WeightsConfig struct {
	MaxScore      float64
	HardPenalty   float64
	PreferredRoom float64
	DayOff        float64
	TimePeriod    float64
	IdleGap       float64
	Load          float64
	Staffing      float64
	UnitsHard     bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_SCHEDULE_CACHE"),
		TTL:     parseDuration(v.GetString("SCHEDULE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	evalWorkers := v.GetInt("SCHEDULER_EVAL_WORKERS")
	if evalWorkers <= 0 {
		evalWorkers = runtime.NumCPU()
	}
	cfg.Scheduler = SchedulerConfig{
		Enabled:           v.GetBool("ENABLE_SCHEDULER"),
		QueueWorkers:      v.GetInt("SCHEDULER_QUEUE_WORKERS"),
		QueueBuffer:       v.GetInt("SCHEDULER_QUEUE_BUFFER"),
		EvalWorkers:       evalWorkers,
		JobRetention:      parseDuration(v.GetString("SCHEDULER_JOB_RETENTION"), 30*time.Minute),
		JanitorInterval:   parseDuration(v.GetString("SCHEDULER_JANITOR_INTERVAL"), time.Minute),
		ProgressMirrorTTL: parseDuration(v.GetString("SCHEDULER_PROGRESS_MIRROR_TTL"), time.Hour),
		TournamentSize:    v.GetInt("SCHEDULER_TOURNAMENT_SIZE"),
		MaxRepairPasses:   v.GetInt("SCHEDULER_MAX_REPAIR_PASSES"),
		Seed:              v.GetInt64("SCHEDULER_SEED"),
		Weights: WeightsConfig{
			MaxScore:      v.GetFloat64("SCHEDULER_MAX_SCORE"),
			HardPenalty:   v.GetFloat64("SCHEDULER_HARD_PENALTY"),
			PreferredRoom: v.GetFloat64("SCHEDULER_WEIGHT_PREFERRED_ROOM"),
			DayOff:        v.GetFloat64("SCHEDULER_WEIGHT_DAY_OFF"),
			TimePeriod:    v.GetFloat64("SCHEDULER_WEIGHT_TIME_PERIOD"),
			IdleGap:       v.GetFloat64("SCHEDULER_WEIGHT_IDLE_GAP"),
			Load:          v.GetFloat64("SCHEDULER_WEIGHT_LOAD"),
			Staffing:      v.GetFloat64("SCHEDULER_WEIGHT_STAFFING"),
			UnitsHard:     v.GetBool("SCHEDULER_UNITS_HARD"),
		},
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ENABLE_SCHEDULE_CACHE", true)
	v.SetDefault("SCHEDULE_CACHE_TTL", "5m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_QUEUE_WORKERS", 1)
	v.SetDefault("SCHEDULER_QUEUE_BUFFER", 16)
	v.SetDefault("SCHEDULER_EVAL_WORKERS", 0)
	v.SetDefault("SCHEDULER_JOB_RETENTION", "30m")
	v.SetDefault("SCHEDULER_JANITOR_INTERVAL", "1m")
	v.SetDefault("SCHEDULER_PROGRESS_MIRROR_TTL", "1h")
	v.SetDefault("SCHEDULER_TOURNAMENT_SIZE", 3)
	v.SetDefault("SCHEDULER_MAX_REPAIR_PASSES", 8)
	v.SetDefault("SCHEDULER_SEED", 0)

	v.SetDefault("SCHEDULER_MAX_SCORE", 100)
	v.SetDefault("SCHEDULER_HARD_PENALTY", 1000)
	v.SetDefault("SCHEDULER_WEIGHT_PREFERRED_ROOM", 3)
	v.SetDefault("SCHEDULER_WEIGHT_DAY_OFF", 4)
	v.SetDefault("SCHEDULER_WEIGHT_TIME_PERIOD", 2)
	v.SetDefault("SCHEDULER_WEIGHT_IDLE_GAP", 2)
	v.SetDefault("SCHEDULER_WEIGHT_LOAD", 3)
	v.SetDefault("SCHEDULER_WEIGHT_STAFFING", 1)
	v.SetDefault("SCHEDULER_UNITS_HARD", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
