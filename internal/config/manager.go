package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Validator checks the store-specific part of a configuration.
// Each transport registers one from its init function.
type Validator interface {
	// Validate validates only the settings owned by this store type.
	Validate(cfg *StoreConfig) error

	// Type returns the store type this validator handles (e.g. "mongodb").
	Type() string
}

var (
	validators   = make(map[string]Validator)
	validatorsMu sync.RWMutex
)

// RegisterValidator registers a store validator.
// Panics if validator is nil, its type is empty, or the type is already registered.
func RegisterValidator(v Validator) {
	if v == nil {
		panic("validator cannot be nil")
	}
	if v.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorsMu.Lock()
	defer validatorsMu.Unlock()

	if _, exists := validators[v.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", v.Type()))
	}
	validators[v.Type()] = v
}

// GetValidator returns the validator registered for a store type.
func GetValidator(storeType string) (Validator, bool) {
	validatorsMu.RLock()
	defer validatorsMu.RUnlock()
	v, ok := validators[storeType]
	return v, ok
}

// Manager loads configuration from files, raw data and the environment.
type Manager struct {
	config *Config
}

// NewManager returns a manager holding the default configuration.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Config returns the current configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// LoadFromFile loads configuration from a YAML or JSON file, chosen by extension.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return m.LoadFromYAML(data)
	case ".json":
		return m.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data on top of the defaults.
func (m *Manager) LoadFromYAML(data []byte) error {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return m.set(cfg)
}

// LoadFromJSON loads configuration from JSON data on top of the defaults.
func (m *Manager) LoadFromJSON(data []byte) error {
	cfg := Default()
	if len(data) > 0 {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return m.set(cfg)
}

// LoadFromEnv overlays DOCBRIDGE_* environment variables on the current configuration.
// Examples:
//   - DOCBRIDGE_STORE_TYPE=mongodb
//   - DOCBRIDGE_STORE_URL=mongodb://db1:27017,db2:27017/app
//   - DOCBRIDGE_STORE_HOSTS=db1,db2
//   - DOCBRIDGE_LOG_LEVEL=DEBUG
func (m *Manager) LoadFromEnv() error {
	cfg := *m.config
	s := &cfg.Store

	setString(&s.Type, "DOCBRIDGE_STORE_TYPE")
	setString(&s.URL, "DOCBRIDGE_STORE_URL")
	setString(&s.Host, "DOCBRIDGE_STORE_HOST")
	setInt(&s.Port, "DOCBRIDGE_STORE_PORT")
	if val := os.Getenv("DOCBRIDGE_STORE_HOSTS"); val != "" {
		s.Hosts = strings.Split(val, ",")
	}
	setString(&s.ReplicaSet, "DOCBRIDGE_STORE_REPLICA_SET")
	setString(&s.Database, "DOCBRIDGE_STORE_DATABASE")
	setString(&s.Username, "DOCBRIDGE_STORE_USERNAME")
	setString(&s.Password, "DOCBRIDGE_STORE_PASSWORD")
	setDuration(&s.ConnectTimeout, "DOCBRIDGE_STORE_CONNECT_TIMEOUT")
	setInt(&s.PoolSize, "DOCBRIDGE_STORE_POOL_SIZE")
	setInt(&s.Redis.DB, "DOCBRIDGE_REDIS_DB")
	setBool(&s.Redis.ClusterMode, "DOCBRIDGE_REDIS_CLUSTER_MODE")
	setString(&s.DynamoDB.Region, "DOCBRIDGE_DYNAMODB_REGION")
	setString(&s.DynamoDB.Endpoint, "DOCBRIDGE_DYNAMODB_ENDPOINT")
	setString(&s.DynamoDB.AccessKeyID, "DOCBRIDGE_DYNAMODB_ACCESS_KEY_ID")
	setString(&s.DynamoDB.SecretAccessKey, "DOCBRIDGE_DYNAMODB_SECRET_ACCESS_KEY")

	setInt(&cfg.Schema.Workers, "DOCBRIDGE_SCHEMA_WORKERS")
	setBool(&cfg.Schema.AutoUpdate, "DOCBRIDGE_SCHEMA_AUTO_UPDATE")

	setBool(&cfg.ChangeFeed.Enabled, "DOCBRIDGE_CHANGEFEED_ENABLED")
	setString(&cfg.ChangeFeed.Publisher, "DOCBRIDGE_CHANGEFEED_PUBLISHER")
	setInt(&cfg.ChangeFeed.DrainRate, "DOCBRIDGE_CHANGEFEED_DRAIN_RATE")
	setInt(&cfg.ChangeFeed.BatchSize, "DOCBRIDGE_CHANGEFEED_BATCH_SIZE")
	if val := os.Getenv("DOCBRIDGE_CHANGEFEED_KAFKA_BROKERS"); val != "" {
		cfg.ChangeFeed.Kafka.Brokers = strings.Split(val, ",")
	}
	setString(&cfg.ChangeFeed.Kafka.Topic, "DOCBRIDGE_CHANGEFEED_KAFKA_TOPIC")
	setString(&cfg.ChangeFeed.Redis.Addr, "DOCBRIDGE_CHANGEFEED_REDIS_ADDR")
	setString(&cfg.ChangeFeed.Redis.Key, "DOCBRIDGE_CHANGEFEED_REDIS_KEY")

	setString(&cfg.Log.Level, "DOCBRIDGE_LOG_LEVEL")
	setString(&cfg.Log.Format, "DOCBRIDGE_LOG_FORMAT")

	return m.set(&cfg)
}

func (m *Manager) set(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	m.config = cfg
	return nil
}

// Validate checks a configuration. Store-specific checks are delegated to the
// validator registered for cfg.Store.Type.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	s := &cfg.Store
	if s.Type == "" {
		return fmt.Errorf("store.type is required")
	}
	validator, ok := GetValidator(s.Type)
	if !ok {
		return fmt.Errorf("unsupported store type: %s", s.Type)
	}
	if err := validator.Validate(s); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("store.port must be between 1 and 65535")
	}
	for _, p := range s.Ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("store.ports entries must be between 1 and 65535")
		}
	}
	if len(s.Ports) > len(s.Hosts) {
		return fmt.Errorf("store.ports has %d entries but store.hosts has %d", len(s.Ports), len(s.Hosts))
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("store.connect_timeout must be greater than 0")
	}

	if cfg.Schema.Workers <= 0 {
		return fmt.Errorf("schema.workers must be greater than 0")
	}

	cf := &cfg.ChangeFeed
	if cf.Enabled {
		switch cf.Publisher {
		case "log", "redis", "kafka":
		default:
			return fmt.Errorf("changefeed.publisher must be 'log', 'redis', or 'kafka'")
		}
		if cf.DrainRate <= 0 {
			return fmt.Errorf("changefeed.drain_rate must be greater than 0")
		}
		if cf.BatchSize <= 0 {
			return fmt.Errorf("changefeed.batch_size must be greater than 0")
		}
		if cf.Publisher == "kafka" {
			if len(cf.Kafka.Brokers) == 0 {
				return fmt.Errorf("changefeed.kafka.brokers is required when publisher is 'kafka'")
			}
			if cf.Kafka.Topic == "" {
				return fmt.Errorf("changefeed.kafka.topic is required when publisher is 'kafka'")
			}
		}
		if cf.Publisher == "redis" {
			if cf.Redis.Addr == "" {
				return fmt.Errorf("changefeed.redis.addr is required when publisher is 'redis'")
			}
			if cf.Redis.Key == "" {
				return fmt.Errorf("changefeed.redis.key is required when publisher is 'redis'")
			}
		}
	}

	return nil
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
