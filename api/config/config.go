package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	workerconfig "mediaDownloader/worker/config"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// MaxBatchSize is the hard ceiling on how many downloads one request may submit.
	MaxBatchSize = 5

	defaultJWTSecret = "change-me"
)

type Config struct {
	Port          string
	Env           string
	DBDriver      string
	DatabasePath  string
	DatabaseURL   string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
	JWTSecret     string
	TokenTTL      time.Duration
	AdminUsername string
	AdminPassword string
	StaticDir     string
	MaxBatchSize  int
	Worker        *workerconfig.Config
}

// Load reads configuration from the environment, an optional .env file and an
// optional YAML file named by CONFIG_FILE. Environment values win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	return FromLookup(chain(workerconfig.EnvLookup, file.lookup))
}

// FromLookup builds a Config from an arbitrary key source.
func FromLookup(lookup workerconfig.Lookup) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:          get("SERVICE_PORT", "4000"),
		Env:           get("ENV", "production"),
		DBDriver:      strings.ToLower(get("DB_DRIVER", DriverSQLite)),
		DatabasePath:  get("DATABASE_PATH", "./data/video_downloader.db"),
		DatabaseURL:   get("DATABASE_URL", ""),
		RedisAddr:     get("REDIS_ADDR", ""),
		KafkaBrokers:  splitList(get("KAFKA_BROKERS", "")),
		KafkaTopic:    get("KAFKA_TOPIC", "download_events"),
		KafkaGroupID:  get("KAFKA_GROUP_ID", "downloader-events"),
		JWTSecret:     get("JWT_SECRET", defaultJWTSecret),
		AdminUsername: get("ADMIN_USERNAME", "admin"),
		AdminPassword: get("ADMIN_PASSWORD", "admin123"),
		StaticDir:     get("STATIC_DIR", ""),
		Worker:        workerconfig.Load(lookup),
	}

	ttl, err := time.ParseDuration(get("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = ttl

	batch, err := strconv.Atoi(get("MAX_BATCH_SIZE", strconv.Itoa(MaxBatchSize)))
	if err != nil || batch < 1 || batch > MaxBatchSize {
		batch = MaxBatchSize
	}
	cfg.MaxBatchSize = batch

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsesDefaultSecret reports whether tokens are signed with the built-in key.
func (c *Config) UsesDefaultSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return errors.New("DATABASE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if !c.IsDevelopment() && c.UsesDefaultSecret() {
		return errors.New("JWT_SECRET must be set outside development")
	}
	return nil
}

type fileValues map[string]string

func (f fileValues) lookup(key string) (string, bool) {
	v, ok := f[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func readFile(path string) (fileValues, error) {
	if path == "" {
		return fileValues{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	values := fileValues{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return values, nil
}

func chain(lookups ...workerconfig.Lookup) workerconfig.Lookup {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
