package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yatube/internal/pkg"
)

type ServerSection struct {
	Addr     string `yaml:"addr"`
	LoginURL string `yaml:"login_url"`
}

type MySQLSection struct {
	DSN string `yaml:"dsn"`
}

type RedisSection struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTSection struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
}

type MediaSection struct {
	Root           string `yaml:"root"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type CacheSection struct {
	// FeedTTL 为 0 时不缓存 feed
	FeedTTL time.Duration `yaml:"feed_ttl"`
}

type WorkerSection struct {
	OutboxInterval    time.Duration `yaml:"outbox_interval"`
	OutboxBatchSize   int           `yaml:"outbox_batch_size"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileBatch    int           `yaml:"reconcile_batch"`
}

type Config struct {
	Server ServerSection   `yaml:"server"`
	MySQL  MySQLSection    `yaml:"mysql"`
	Redis  RedisSection    `yaml:"redis"`
	JWT    JWTSection      `yaml:"jwt"`
	Kafka  pkg.KafkaConfig `yaml:"kafka"`
	SMTP   pkg.SMTPConfig  `yaml:"smtp"`
	Media  MediaSection    `yaml:"media"`
	Cache  CacheSection    `yaml:"cache"`
	Worker WorkerSection   `yaml:"worker"`
	Log    pkg.LogConfig   `yaml:"log"`
}

// Default 开发环境默认配置
func Default() Config {
	return Config{
		Server: ServerSection{Addr: ":8080", LoginURL: "/auth/login/"},
		MySQL:  MySQLSection{DSN: "user:password@tcp(127.0.0.1:3306)/yatube?charset=utf8mb4&parseTime=True"},
		Redis:  RedisSection{Addr: "127.0.0.1:6379"},
		JWT: JWTSection{
			AccessSecret:  "secret-key",
			RefreshSecret: "refresh-key",
			AccessTTL:     pkg.DefaultAccessTTL,
			RefreshTTL:    pkg.DefaultRefreshTTL,
		},
		Media: MediaSection{Root: "media", MaxUploadBytes: pkg.DefaultMaxUploadBytes},
		Cache: CacheSection{FeedTTL: 20 * time.Second},
		Worker: WorkerSection{
			OutboxInterval:    time.Second,
			OutboxBatchSize:   200,
			ReconcileInterval: 5 * time.Minute,
			ReconcileBatch:    500,
		},
		Log: pkg.LogConfig{Level: "info"},
	}
}

// Load 读取 YAML 配置；path 为空时只使用默认值与环境变量
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return fmt.Errorf("jwt secrets are required")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return fmt.Errorf("jwt access and refresh secrets must differ")
	}
	if c.Cache.FeedTTL < 0 {
		return fmt.Errorf("cache.feed_ttl must not be negative")
	}
	return nil
}

func applyEnv(c *Config) error {
	setString(&c.Server.Addr, "YATUBE_ADDR")
	setString(&c.MySQL.DSN, "YATUBE_MYSQL_DSN")
	setString(&c.Redis.Addr, "YATUBE_REDIS_ADDR")
	setString(&c.Redis.Password, "YATUBE_REDIS_PASSWORD")
	setString(&c.JWT.AccessSecret, "YATUBE_JWT_ACCESS_SECRET")
	setString(&c.JWT.RefreshSecret, "YATUBE_JWT_REFRESH_SECRET")
	setString(&c.Media.Root, "YATUBE_MEDIA_ROOT")
	setString(&c.Log.Level, "YATUBE_LOG_LEVEL")
	setString(&c.Kafka.Topic, "YATUBE_KAFKA_TOPIC")
	if v, ok := os.LookupEnv("YATUBE_KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("YATUBE_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("YATUBE_REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v, ok := os.LookupEnv("YATUBE_FEED_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("YATUBE_FEED_TTL: %w", err)
		}
		c.Cache.FeedTTL = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
