package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/fabricekabongo/nexmark"
)

type Config struct {
	Generator GeneratorConfig `mapstructure:"generator"`
	Log       LogConfig       `mapstructure:"log"`
	Socket    SocketConfig    `mapstructure:"socket"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
}

type GeneratorConfig struct {
	NumEventGenerators int    `mapstructure:"num_event_generators"`
	MaxEvents          uint64 `mapstructure:"max_events"`
	FirstEventRate     int    `mapstructure:"first_event_rate"`
	Offset             uint64 `mapstructure:"offset"`
	Step               uint64 `mapstructure:"step"`
	Seed               uint64 `mapstructure:"seed"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type SocketConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Network          string `mapstructure:"network"`
	Address          string `mapstructure:"address"`
	UnixSocketPath   string `mapstructure:"unix_socket_path"`
	AuthToken        string `mapstructure:"auth_token"`
	MaxInflight      int    `mapstructure:"max_inflight"`
	GlobalQueueLimit int    `mapstructure:"global_queue_limit"`
}

type WebSocketConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Address         string  `mapstructure:"address"`
	Path            string  `mapstructure:"path"`
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	Burst           int     `mapstructure:"burst"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	ClientID    string   `mapstructure:"client_id"`
	GroupID     string   `mapstructure:"group_id"`
	Topics      []string `mapstructure:"topics"`
}

type RabbitMQConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	URL           string   `mapstructure:"url"`
	Exchange      string   `mapstructure:"exchange"`
	Queue         string   `mapstructure:"queue"`
	RoutingKeys   []string `mapstructure:"routing_keys"`
	RoutingShards int      `mapstructure:"routing_shards"`
	PrefetchCount int      `mapstructure:"prefetch_count"`
	Workers       int      `mapstructure:"workers"`
	DeliveryQueue int      `mapstructure:"delivery_queue"`
}

// Load reads a yaml or toml file. Every key can be overridden from the
// environment, e.g. NEXMARK_GENERATOR_NUM_EVENT_GENERATORS. An empty path
// loads defaults and environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("nexmark")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent
// from the file.
func setDefaults(v *viper.Viper) {
	def := nexmark.DefaultConfig()
	v.SetDefault("generator.num_event_generators", def.NumEventGenerators)
	v.SetDefault("generator.max_events", 0)
	v.SetDefault("generator.first_event_rate", def.FirstEventRate)
	v.SetDefault("generator.offset", 0)
	v.SetDefault("generator.step", 1)
	v.SetDefault("generator.seed", 0)

	v.SetDefault("log.level", "info")

	v.SetDefault("socket.enabled", false)
	v.SetDefault("socket.network", "tcp")
	v.SetDefault("socket.address", "127.0.0.1:7470")
	v.SetDefault("socket.unix_socket_path", "")
	v.SetDefault("socket.auth_token", "")
	v.SetDefault("socket.max_inflight", 64)
	v.SetDefault("socket.global_queue_limit", 4096)

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.address", "127.0.0.1:7471")
	v.SetDefault("websocket.path", "/events")
	v.SetDefault("websocket.events_per_second", 1000)
	v.SetDefault("websocket.burst", 100)

	v.SetDefault("storage.sqlite.path", "nexmark.db")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "nexmark")
	v.SetDefault("kafka.client_id", "nexmark")
	v.SetDefault("kafka.group_id", "nexmark")
	v.SetDefault("kafka.topics", []string{})

	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "nexmark")
	v.SetDefault("rabbitmq.queue", "")
	v.SetDefault("rabbitmq.routing_keys", []string{})
	v.SetDefault("rabbitmq.routing_shards", 0)
	v.SetDefault("rabbitmq.prefetch_count", 64)
	v.SetDefault("rabbitmq.workers", 4)
	v.SetDefault("rabbitmq.delivery_queue", 256)
}

func (c Config) Validate() error {
	if c.Generator.NumEventGenerators < 0 {
		return fmt.Errorf("generator.num_event_generators must be >= 0")
	}
	if c.Generator.FirstEventRate < 0 {
		return fmt.Errorf("generator.first_event_rate must be >= 0")
	}
	if c.Socket.Enabled {
		switch c.Socket.Network {
		case "tcp":
			if c.Socket.Address == "" {
				return fmt.Errorf("socket.address is required")
			}
		case "unix":
			if c.Socket.UnixSocketPath == "" {
				return fmt.Errorf("socket.unix_socket_path is required")
			}
		default:
			return fmt.Errorf("unsupported socket.network %q", c.Socket.Network)
		}
	}
	if c.WebSocket.Enabled {
		if c.WebSocket.Address == "" {
			return fmt.Errorf("websocket.address is required")
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return fmt.Errorf("websocket.path must start with /")
		}
		if c.WebSocket.EventsPerSecond < 0 {
			return fmt.Errorf("websocket.events_per_second must be >= 0")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq.url is required")
	}
	return nil
}

// Nexmark maps the generator section onto the stream adapter config.
func (g GeneratorConfig) Nexmark() nexmark.Config {
	cfg := nexmark.DefaultConfig()
	if g.NumEventGenerators > 0 {
		cfg.NumEventGenerators = g.NumEventGenerators
	}
	if g.FirstEventRate > 0 {
		cfg.FirstEventRate = g.FirstEventRate
	}
	if g.Step > 0 {
		cfg.Step = g.Step
	}
	cfg.MaxEvents = g.MaxEvents
	cfg.Offset = g.Offset
	cfg.Seed = g.Seed
	return cfg
}
