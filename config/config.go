package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLuxuryThreshold  int64 = 20_000_000
	DefaultFallbackRedirect       = "/properties"
	DefaultMinRetainRatio         = 0.5
)

type Config struct {
	Database    DatabaseConfig
	Scheduler   SchedulerConfig
	HTTP        HTTPConfig
	S3          S3Config
	Images      ImageConfig
	AMQP        AMQPConfig
	Proxy       ProxyConfig
	FeedTimeout time.Duration
	FeedsDir    string
	LogLevel    string
	LogFile     string
	Feeds       map[string]*FeedConfig
}

type DatabaseConfig struct {
	Driver string // postgres or sqlite
	URL    string
	Path   string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type HTTPConfig struct {
	Addr string
}

// S3Config holds configuration for S3-compatible storage
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, MinIO
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string // Optional: CDN in front of the bucket
	Prefix          string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type ImageConfig struct {
	BatchSize  int
	BatchDelay time.Duration
	MaxWidth   int
	Quality    int
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type ProxyConfig struct {
	URL string
}

type FeedConfig struct {
	ID               string  `yaml:"id"`
	Name             string  `yaml:"name"`
	URL              string  `yaml:"url"`
	ReferencePrefix  string  `yaml:"reference_prefix"`
	LuxuryThreshold  int64   `yaml:"luxury_threshold"`
	Timezone         string  `yaml:"timezone"`
	FallbackRedirect string  `yaml:"fallback_redirect"`
	MinRetainRatio   float64 `yaml:"min_retain_ratio"`
	Schedule         string  `yaml:"schedule"`
	Enabled          bool    `yaml:"enabled"`

	location *time.Location
}

// Location is the zone feed timestamps are written in.
func (f *FeedConfig) Location() *time.Location {
	if f.location == nil {
		return time.UTC
	}
	return f.location
}

func (f *FeedConfig) resolve() error {
	if f.ID == "" {
		return fmt.Errorf("feed id is required")
	}
	if f.URL == "" {
		return fmt.Errorf("feed %s: url is required", f.ID)
	}
	if f.Timezone != "" {
		loc, err := time.LoadLocation(f.Timezone)
		if err != nil {
			return fmt.Errorf("feed %s: timezone: %w", f.ID, err)
		}
		f.location = loc
	}
	return nil
}

// DefaultFeed returns a feed definition with every default applied.
func DefaultFeed(id, url string) *FeedConfig {
	return &FeedConfig{
		ID:               id,
		Name:             id,
		URL:              url,
		LuxuryThreshold:  DefaultLuxuryThreshold,
		FallbackRedirect: DefaultFallbackRedirect,
		MinRetainRatio:   DefaultMinRetainRatio,
		Enabled:          true,
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "postgres"),
			URL:    os.Getenv("DATABASE_URL"),
			Path:   getEnv("DB_PATH", "feedsync.db"),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("IMPORT_CRON"),
			Interval: getEnvDuration("IMPORT_INTERVAL", 0),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
			Prefix:          getEnv("S3_PREFIX", "properties"),
		},
		Images: ImageConfig{
			BatchSize:  getEnvInt("IMAGE_BATCH_SIZE", 5),
			BatchDelay: getEnvDuration("IMAGE_BATCH_DELAY", time.Second),
			MaxWidth:   getEnvInt("IMAGE_MAX_WIDTH", 1920),
			Quality:    getEnvInt("IMAGE_QUALITY", 82),
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", "feedsync"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("HTTP_PROXY_URL"),
		},
		FeedTimeout: getEnvDuration("FEED_TIMEOUT", 2*time.Minute),
		FeedsDir:    getEnv("FEEDS_DIR", "config/feeds"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		Feeds:       make(map[string]*FeedConfig),
	}

	if err := cfg.LoadFeedConfigs(cfg.FeedsDir); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFeedConfigs reads every *.yaml feed definition in dir. A missing
// directory is not an error.
func (c *Config) LoadFeedConfigs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		feed := DefaultFeed("", "")
		if err := yaml.Unmarshal(data, feed); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if feed.Name == "" {
			feed.Name = feed.ID
		}
		if err := feed.resolve(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		c.Feeds[feed.ID] = feed
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
