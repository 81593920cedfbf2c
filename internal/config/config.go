package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-io-live/conversation-service/pkg/config"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/pubsub"
)

type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Mongo      MongoConfig
	Database   DatabaseConfig
	Redis      pubsub.RedisConfig
	Kafka      KafkaConfig
	Events     EventsConfig
	Pagination PaginationConfig
	Metrics    MetricsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver string // mongo, postgres, mysql, sqlite
}

type MongoConfig struct {
	URI                     string
	Database                string
	ConnectTimeout          time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize             uint64        `mapstructure:"max_pool_size"`
	RoomsCollection         string        `mapstructure:"rooms_collection"`
	SubscriptionsCollection string        `mapstructure:"subscriptions_collection"`
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type KafkaConfig struct {
	Brokers    string
	Topic      string
	GroupID    string `mapstructure:"group_id"`
	Partitions int
}

type EventsConfig struct {
	Driver string // redis, kafka, none
}

type PaginationConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type LogConfig struct {
	Level string
}

// IsRelational reports whether the store is served through gorm.
func (c StoreConfig) IsRelational() bool {
	switch c.Driver {
	case "postgres", "mysql", "sqlite":
		return true
	}
	return false
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	if err := pkgconfig.BindEnvs(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case "mongo", "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "conversations")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)
	v.SetDefault("mongo.max_pool_size", 100)
	v.SetDefault("mongo.rooms_collection", "rooms")
	v.SetDefault("mongo.subscriptions_collection", "subscriptions")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "conversation_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/conversation.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "message-events")
	v.SetDefault("kafka.group_id", "conversation-service")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("events.driver", "none")
	v.SetDefault("pagination.default_page_size", 20)
	v.SetDefault("pagination.max_page_size", 100)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
}

var envBindings = map[string]string{
	"server.port":                "PORT",
	"store.driver":               "STORE_DRIVER",
	"mongo.uri":                  "MONGO_URI",
	"mongo.database":             "MONGO_DATABASE",
	"database.host":              "DB_HOST",
	"database.port":              "DB_PORT",
	"database.user":              "DB_USER",
	"database.password":          "DB_PASSWORD",
	"database.dbname":            "DB_NAME",
	"database.sslmode":           "DB_SSLMODE",
	"database.file_path":         "DB_FILE_PATH",
	"database.max_idle_conns":    "DB_MAX_IDLE_CONNS",
	"database.max_open_conns":    "DB_MAX_OPEN_CONNS",
	"database.conn_max_lifetime": "DB_CONN_MAX_LIFETIME",
	"redis.address":              "REDIS_ADDRESS",
	"redis.password":             "REDIS_PASSWORD",
	"kafka.brokers":              "KAFKA_BROKERS",
	"kafka.topic":                "KAFKA_TOPIC",
	"kafka.group_id":             "KAFKA_GROUP_ID",
	"events.driver":              "EVENTS_DRIVER",
	"log.level":                  "LOG_LEVEL",
}
