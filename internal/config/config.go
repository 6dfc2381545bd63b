package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/Abhishekhack2909/StreamVerse/pkg/config"
	"github.com/Abhishekhack2909/StreamVerse/pkg/database"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Identity  IdentityConfig
	Record    RecordConfig
	Presence  PresenceConfig
	Kafka     KafkaConfig
	ICE       ICEConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type IdentityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RecordConfig selects how the persisted session-record store is reached:
// "gorm" runs it in-process against a database, "http" talks to a remote
// record service.
type RecordConfig struct {
	Driver      string          `mapstructure:"driver"`
	HTTPAddress string          `mapstructure:"http_address"`
	CacheTTL    time.Duration   `mapstructure:"cache_ttl"`
	Database    database.Config `mapstructure:"database"`
}

type PresenceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Brokers    string `mapstructure:"brokers"`
	Topic      string `mapstructure:"topic"`
	Partitions int    `mapstructure:"partitions"`
}

type ICEConfig struct {
	STUNServers []string `mapstructure:"stun_servers"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load(pkgconfig.GetEnv("CONFIG_PATH", "./config"), "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8084)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("identity.jwt_secret", "")
	v.SetDefault("identity.issuer", "streamverse")
	v.SetDefault("record.driver", "gorm")
	v.SetDefault("record.http_address", "http://localhost:8083")
	v.SetDefault("record.cache_ttl", "5m")
	v.SetDefault("record.database.driver", "sqlite")
	v.SetDefault("record.database.file_path", "streamverse.db")
	v.SetDefault("presence.enabled", false)
	v.SetDefault("presence.address", "localhost:6379")
	v.SetDefault("presence.password", "")
	v.SetDefault("presence.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "session-events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("ice.stun_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("identity.jwt_secret", "JWT_SECRET")
	v.BindEnv("record.driver", "RECORD_DRIVER")
	v.BindEnv("record.http_address", "RECORD_HTTP_ADDRESS")
	v.BindEnv("record.database.driver", "RECORD_DB_DRIVER")
	v.BindEnv("record.database.file_path", "RECORD_DB_PATH")
	v.BindEnv("presence.enabled", "PRESENCE_ENABLED")
	v.BindEnv("presence.address", "REDIS_ADDRESS")
	v.BindEnv("presence.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_SESSION_TOPIC")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Record.CacheTTL = parseDuration(v, "record.cache_ttl", 5*time.Minute)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
