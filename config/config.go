package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// Backend selects the issue store: "file" (default) or "mongo".
		Backend  string `yaml:"backend"`
		DataPath string `yaml:"data_path"`
		MongoURI string `yaml:"mongo_uri"`
		MongoDB  string `yaml:"mongo_db"`
	} `yaml:"storage"`

	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		LimitKey  string `yaml:"limit_key"`
		DailyCap  int    `yaml:"daily_cap"`
	} `yaml:"redis"`

	IDGen struct {
		CounterFile string        `yaml:"counter_file"`
		LockTimeout time.Duration `yaml:"lock_timeout"`
	} `yaml:"idgen"`

	Dedup struct {
		ThresholdMeters float64 `yaml:"threshold_meters"`
	} `yaml:"dedup"`

	Sweep struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"sweep"`

	Geocode struct {
		BaseURL   string `yaml:"base_url"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"geocode"`

	Email struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		User       string `yaml:"user"`
		Password   string `yaml:"password"`
		OverrideTo string `yaml:"override_to"`
	} `yaml:"email"`

	Authority struct {
		DirectoryFile string `yaml:"directory_file"`
	} `yaml:"authority"`

	Outreach struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"outreach"`
}

// Load builds the configuration from defaults, an optional YAML file named by
// CIVICSPOTTER_CONFIG, and environment variables (highest priority). A .env
// file in the working directory is loaded first when present.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}
	cfg.Server.Addr = ":8080"
	cfg.Storage.Backend = "file"
	cfg.Storage.DataPath = "data"
	cfg.Storage.MongoDB = "civicspotter"
	cfg.Redis.LimitKey = "issue_limit"
	cfg.Redis.DailyCap = 10
	cfg.IDGen.CounterFile = "data/issue_counter.json"
	cfg.IDGen.LockTimeout = 5 * time.Second
	cfg.Dedup.ThresholdMeters = 2500
	cfg.Sweep.Interval = time.Minute
	cfg.Geocode.BaseURL = "https://nominatim.openstreetmap.org"
	cfg.Geocode.UserAgent = "civicspotter"
	cfg.Email.Port = 587

	if path := os.Getenv("CIVICSPOTTER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.DataPath = getEnv("DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.MongoURI = getEnv("MONGODB_URI", cfg.Storage.MongoURI)
	cfg.Storage.MongoDB = getEnv("MONGODB_DATABASE", cfg.Storage.MongoDB)

	cfg.Redis.Addr = getEnv("REDIS_ADDRESS", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.LimitKey = getEnv("REDIS_QUEUE_FOR_ISSUE_LIMIT", cfg.Redis.LimitKey)
	cfg.Redis.DailyCap = getEnvInt("ISSUE_RATE_LIMIT", cfg.Redis.DailyCap)

	cfg.IDGen.CounterFile = getEnv("ISSUE_COUNTER_FILE", cfg.IDGen.CounterFile)
	cfg.IDGen.LockTimeout = getEnvDuration("COUNTER_LOCK_TIMEOUT", cfg.IDGen.LockTimeout)

	cfg.Dedup.ThresholdMeters = getEnvFloat("DEDUP_THRESHOLD_METERS", cfg.Dedup.ThresholdMeters)
	cfg.Sweep.Interval = getEnvDuration("SWEEP_INTERVAL", cfg.Sweep.Interval)

	cfg.Geocode.BaseURL = getEnv("NOMINATIM_URL", cfg.Geocode.BaseURL)
	cfg.Geocode.UserAgent = getEnv("NOMINATIM_USER_AGENT", cfg.Geocode.UserAgent)

	cfg.Email.Host = getEnv("EMAIL_HOST", cfg.Email.Host)
	cfg.Email.Port = getEnvInt("EMAIL_PORT", cfg.Email.Port)
	cfg.Email.User = getEnv("EMAIL_HOST_USER", cfg.Email.User)
	cfg.Email.Password = getEnv("EMAIL_HOST_PASSWORD", cfg.Email.Password)
	cfg.Email.OverrideTo = getEnv("EMAIL_OVERRIDE_TO", cfg.Email.OverrideTo)

	cfg.Authority.DirectoryFile = getEnv("AUTHORITY_DIRECTORY", cfg.Authority.DirectoryFile)
	cfg.Outreach.WebhookURL = getEnv("OUTREACH_WEBHOOK_URL", cfg.Outreach.WebhookURL)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
