package config

import (
	"time"

	"github.com/rzpsarthak13/docbridge/internal/logger"
)

// Config is the root configuration of a docbridge connector.
type Config struct {
	Store      StoreConfig      `yaml:"store" json:"store"`
	Schema     SchemaConfig     `yaml:"schema" json:"schema"`
	ChangeFeed ChangeFeedConfig `yaml:"changefeed" json:"changefeed"`
	Log        logger.Config    `yaml:"log" json:"log"`
}

// StoreConfig selects and addresses the document store.
// Explicit host/port/database/credential fields override values parsed from URL.
type StoreConfig struct {
	// Type is the transport: "mongodb", "mysql", "redis", "dynamodb" or "memory".
	Type string `yaml:"type" json:"type"`

	// URL is a single connection URL or a comma-separated list for replica sets.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	Host       string   `yaml:"host,omitempty" json:"host,omitempty"`
	Port       int      `yaml:"port,omitempty" json:"port,omitempty"`
	Hosts      []string `yaml:"hosts,omitempty" json:"hosts,omitempty"`
	Ports      []int    `yaml:"ports,omitempty" json:"ports,omitempty"`
	ReplicaSet string   `yaml:"replica_set,omitempty" json:"replica_set,omitempty"`
	Database   string   `yaml:"database,omitempty" json:"database,omitempty"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password   string   `yaml:"password,omitempty" json:"password,omitempty"`

	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty" json:"connect_timeout,omitempty"`
	PoolSize       int           `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`

	MongoDB  MongoDBConfig  `yaml:"mongodb,omitempty" json:"mongodb,omitempty"`
	MySQL    MySQLConfig    `yaml:"mysql,omitempty" json:"mysql,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty" json:"redis,omitempty"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb,omitempty" json:"dynamodb,omitempty"`
}

// MongoDBConfig contains MongoDB-specific settings.
type MongoDBConfig struct {
	AuthSource string `yaml:"auth_source,omitempty" json:"auth_source,omitempty"`
}

// MySQLConfig contains MySQL pool settings.
type MySQLConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// RedisConfig contains Redis-specific settings.
type RedisConfig struct {
	DB           int           `yaml:"db" json:"db"`
	ClusterMode  bool          `yaml:"cluster_mode" json:"cluster_mode"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DynamoDBConfig contains DynamoDB-specific settings.
type DynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // Optional, for LocalStack
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
	CatalogTable    string `yaml:"catalog_table,omitempty" json:"catalog_table,omitempty"`
}

// SchemaConfig controls the schema synchronizer.
type SchemaConfig struct {
	// Workers bounds concurrent index creations.
	Workers int `yaml:"workers" json:"workers"`

	// AutoUpdate runs autoupdate for every registered model on connect.
	AutoUpdate bool `yaml:"auto_update" json:"auto_update"`
}

// ChangeFeedConfig controls publication of write events.
type ChangeFeedConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Publisher is "log", "redis" or "kafka".
	Publisher string `yaml:"publisher" json:"publisher"`

	// DrainRate is the maximum number of events published per second.
	DrainRate    int           `yaml:"drain_rate" json:"drain_rate"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	BufferSize   int           `yaml:"buffer_size" json:"buffer_size"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`

	Redis ChangeFeedRedisConfig `yaml:"redis" json:"redis"`
	Kafka KafkaConfig           `yaml:"kafka" json:"kafka"`
}

// ChangeFeedRedisConfig addresses the Redis list receiving events.
type ChangeFeedRedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db" json:"db"`
	Key      string `yaml:"key" json:"key"`

	// MaxLen trims the list to the newest MaxLen events. Zero keeps everything.
	MaxLen int64 `yaml:"max_len" json:"max_len"`
}

// KafkaConfig contains Kafka producer settings.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Type:           "mongodb",
			ConnectTimeout: 10 * time.Second,
			PoolSize:       10,
			MySQL: MySQLConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 10 * time.Minute,
			},
			Redis: RedisConfig{
				MinIdleConns: 2,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			DynamoDB: DynamoDBConfig{
				Region:       "us-east-1",
				CatalogTable: "docbridge_catalog",
			},
		},
		Schema: SchemaConfig{
			Workers: 16,
		},
		ChangeFeed: ChangeFeedConfig{
			Enabled:      false,
			Publisher:    "log",
			DrainRate:    100,
			BatchSize:    10,
			BufferSize:   10000,
			PollInterval: 100 * time.Millisecond,
			Redis: ChangeFeedRedisConfig{
				Addr: "localhost:6379",
				Key:  "docbridge:changes",
			},
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "docbridge-changes",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				RequiredAcks:    -1, // All replicas
				MaxMessageBytes: 1000000,
			},
		},
		Log: logger.Config{
			Level:  "INFO",
			Format: "text",
		},
	}
}
