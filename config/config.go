package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PlantID   string          `yaml:"plant_id"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Messaging MessagingConfig `yaml:"messaging"`
	Arrivals  ArrivalsConfig  `yaml:"arrivals"`
	Web       WebConfig       `yaml:"web"`
	Layout    LayoutConfig    `yaml:"layout"`
	Unloading UnloadingConfig `yaml:"unloading"`
	Reports   ReportsConfig   `yaml:"reports"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	ArrivalsTopic       string        `yaml:"arrivals_topic"`
	EventsTopicPrefix   string        `yaml:"events_topic_prefix"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type ArrivalsConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

// LayoutConfig describes every destination the plant can unload into.
type LayoutConfig struct {
	Units       map[string][]string `yaml:"units"` // unit name -> silo ids
	BufferSilos []string            `yaml:"buffer_silos"`
	BufferTanks []string            `yaml:"buffer_tanks"`
}

type UnloadingConfig struct {
	DefaultPauseReason string        `yaml:"default_pause_reason"`
	StalePauseAfter    time.Duration `yaml:"stale_pause_after"`
}

type ReportsConfig struct {
	Archive ArchiveConfig `yaml:"archive"`
}

type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

func Defaults() *Config {
	return &Config{
		PlantID: "plant-1",
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "unloadtrack.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "unloadtrack",
				User:     "unloadtrack",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{Address: "localhost:6379"},
		Messaging: MessagingConfig{
			Backend: "mqtt",
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "unloadtrack",
			},
			Kafka:               KafkaConfig{GroupID: "unloadtrack"},
			ArrivalsTopic:       "plant/arrivals",
			EventsTopicPrefix:   "plant/unloading",
			OutboxDrainInterval: 5 * time.Second,
		},
		Arrivals: ArrivalsConfig{
			Timeout:      10 * time.Second,
			PollInterval: time.Minute,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8090,
			SessionSecret: "change-me",
		},
		Layout: LayoutConfig{
			Units: map[string][]string{},
		},
		Unloading: UnloadingConfig{
			DefaultPauseReason: "tanpa keterangan",
			StalePauseAfter:    12 * time.Hour,
		},
	}
}

// Load reads the YAML config at path on top of Defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("UNLOADTRACK_DB_PATH"); v != "" {
		c.Database.SQLite.Path = v
	}
	if v := os.Getenv("UNLOADTRACK_REDIS_ADDR"); v != "" {
		c.Redis.Address = v
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Messaging.Backend {
	case "mqtt", "kafka":
	default:
		return fmt.Errorf("unsupported messaging backend: %s", c.Messaging.Backend)
	}
	// Destination ids are unique across the whole layout; a busy destination
	// is looked up by id alone.
	seen := map[string]string{}
	claim := func(id, owner string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("layout: destination %q listed under both %s and %s", id, prev, owner)
		}
		seen[id] = owner
		return nil
	}
	for _, unit := range c.Layout.UnitNames() {
		for _, id := range c.Layout.Units[unit] {
			if err := claim(id, unit); err != nil {
				return err
			}
		}
	}
	for _, id := range c.Layout.BufferSilos {
		if err := claim(id, "buffer_silos"); err != nil {
			return err
		}
	}
	for _, id := range c.Layout.BufferTanks {
		if err := claim(id, "buffer_tanks"); err != nil {
			return err
		}
	}
	return nil
}

// UnitNames returns the configured plant unit names in sorted order.
func (l LayoutConfig) UnitNames() []string {
	names := make([]string, 0, len(l.Units))
	for name := range l.Units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
