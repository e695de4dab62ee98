package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type App struct {
	Env  string `yaml:"env"`
	Port int    `yaml:"port"`
}

func (a *App) PortString() string { return fmt.Sprintf("%d", a.Port) }
func (a *App) Development() bool  { return a.Env == "dev" || a.Env == "development" }

type Mongo struct {
	URI string `yaml:"uri"`
	DB  string `yaml:"db"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type NATS struct {
	URL string `yaml:"url"`
}

type Kafka struct {
	Brokers  []string `yaml:"brokers"`
	TopicIn  string   `yaml:"topic_in"`
	TopicOut string   `yaml:"topic_out"`
	GroupID  string   `yaml:"group_id"`
}

type JWT struct {
	Alg           string `yaml:"alg"`
	PublicKeyPath string `yaml:"public_key_path"`
	HSSecret      string `yaml:"hs_secret"`
}

type Sweep struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchLimit      int `yaml:"batch_limit"`
}

func (s *Sweep) Interval() time.Duration { return time.Duration(s.IntervalSeconds) * time.Second }

type Presence struct {
	Backend    string `yaml:"backend"` // memory or redis
	TTLSeconds int    `yaml:"ttl_seconds"`
}

func (p *Presence) TTL() time.Duration { return time.Duration(p.TTLSeconds) * time.Second }

type Storage struct {
	Backend    string `yaml:"backend"` // s3 or disk
	Region     string `yaml:"region"`
	Bucket     string `yaml:"bucket"`
	PublicRead bool   `yaml:"public_read"`
	Dir        string `yaml:"dir"`
	BaseURL    string `yaml:"base_url"`
}

type Config struct {
	App      App      `yaml:"app"`
	Mongo    Mongo    `yaml:"mongo"`
	Redis    Redis    `yaml:"redis"`
	NATS     NATS     `yaml:"nats"`
	Kafka    Kafka    `yaml:"kafka"`
	JWT      JWT      `yaml:"jwt"`
	Sweep    Sweep    `yaml:"sweep"`
	Presence Presence `yaml:"presence"`
	Storage  Storage  `yaml:"storage"`
}

func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		b, _ := os.ReadFile(path)
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()
	overrideFromEnv(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		n, _ := strconv.Atoi(v)
		cfg.App.Port = n
	}

	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_NAME"); v != "" {
		cfg.Mongo.DB = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("KAFKA_BROKER"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	if v := os.Getenv("JWT_PUBLIC_KEY_PATH"); v != "" {
		cfg.JWT.PublicKeyPath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.HSSecret = v
	}

	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Storage.Region = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Sweep.IntervalSeconds == 0 {
		cfg.Sweep.IntervalSeconds = 60
	}
	if cfg.Sweep.BatchLimit == 0 {
		cfg.Sweep.BatchLimit = 500
	}
	if cfg.Presence.Backend == "" {
		cfg.Presence.Backend = "memory"
	}
	if cfg.Presence.TTLSeconds == 0 {
		cfg.Presence.TTLSeconds = 120
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "ws"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "disk"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./uploads"
	}
}

func validate(cfg *Config) error {
	if cfg.App.Port == 0 {
		return errors.New("app.port missing or invalid")
	}

	if cfg.Mongo.URI == "" {
		return errors.New("mongo.uri missing")
	}
	if cfg.Mongo.DB == "" {
		return errors.New("mongo.db missing")
	}

	if cfg.Presence.Backend == "redis" && cfg.Redis.Addr == "" {
		return errors.New("redis.addr required for redis presence")
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers missing")
	}
	if cfg.Kafka.TopicIn == "" || cfg.Kafka.TopicOut == "" {
		return errors.New("kafka topics missing")
	}

	switch strings.ToUpper(cfg.JWT.Alg) {
	case "RS256":
		if cfg.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if cfg.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}

	switch cfg.Storage.Backend {
	case "s3":
		if cfg.Storage.Bucket == "" || cfg.Storage.Region == "" {
			return errors.New("storage.bucket and storage.region required for s3")
		}
	case "disk":
	default:
		return errors.New("invalid storage.backend (use s3 or disk)")
	}

	return nil
}
