package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "marketdao"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

const (
	BrokerInProcess = "inprocess"
	BrokerKafka     = "kafka"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName   string   `yaml:"serviceName"   split_words:"true"`
	HTTPPort      string   `yaml:"httpPort"      envconfig:"HTTP_PORT"`
	StorageDriver string   `yaml:"storageDriver" split_words:"true"`
	PostgresDSN   string   `yaml:"postgresDsn"   envconfig:"POSTGRES_DSN"`
	SQLitePath    string   `yaml:"sqlitePath"    envconfig:"SQLITE_PATH"`
	BrokerDriver  string   `yaml:"brokerDriver"  split_words:"true"`
	KafkaBrokers  []string `yaml:"kafkaBrokers"  split_words:"true"`
	TopicPrefix   string   `yaml:"topicPrefix"   split_words:"true"`

	OutboxPollInterval   time.Duration `yaml:"outboxPollInterval"   split_words:"true"`
	FinalizeSchedule     string        `yaml:"finalizeSchedule"     split_words:"true"`
	AutoVoteSchedule     string        `yaml:"autoVoteSchedule"     split_words:"true"`
	DistributionSchedule string        `yaml:"distributionSchedule" split_words:"true"`

	FanoutLimit          int           `yaml:"fanoutLimit"          split_words:"true"`
	RetryAttempts        int           `yaml:"retryAttempts"        split_words:"true"`
	RetryBaseDelay       time.Duration `yaml:"retryBaseDelay"       split_words:"true"`
	LedgerRetryAttempts  int           `yaml:"ledgerRetryAttempts"  split_words:"true"`
	LedgerRetryBaseDelay time.Duration `yaml:"ledgerRetryBaseDelay" split_words:"true"`
	IdempotencyTTL       time.Duration `yaml:"idempotencyTtl"       envconfig:"IDEMPOTENCY_TTL"`
	FraudReviewThreshold string        `yaml:"fraudReviewThreshold" split_words:"true"`

	EscrowAccount    string `yaml:"escrowAccount"    split_words:"true"`
	PlatformAccount  string `yaml:"platformAccount"  split_words:"true"`
	FranchiseAccount string `yaml:"franchiseAccount" split_words:"true"`

	EnableAutoVoteFanout           bool `yaml:"enableAutoVoteFanout"           split_words:"true"`
	EnableCommissionAutoDistribute bool `yaml:"enableCommissionAutoDistribute" split_words:"true"`
}

func Defaults() Config {
	return Config{
		ServiceName:                    "marketdao",
		HTTPPort:                       "8080",
		StorageDriver:                  StorageMemory,
		SQLitePath:                     "marketdao.db",
		BrokerDriver:                   BrokerInProcess,
		KafkaBrokers:                   []string{"localhost:9092"},
		TopicPrefix:                    "marketdao.",
		OutboxPollInterval:             2 * time.Second,
		FinalizeSchedule:               "@every 1m",
		AutoVoteSchedule:               "@every 1m",
		DistributionSchedule:           "@every 5m",
		FanoutLimit:                    8,
		RetryAttempts:                  3,
		RetryBaseDelay:                 50 * time.Millisecond,
		LedgerRetryAttempts:            3,
		LedgerRetryBaseDelay:           200 * time.Millisecond,
		IdempotencyTTL:                 7 * 24 * time.Hour,
		FraudReviewThreshold:           "10000",
		EscrowAccount:                  "escrow",
		PlatformAccount:                "platform-treasury",
		FranchiseAccount:               "franchise-pool",
		EnableAutoVoteFanout:           true,
		EnableCommissionAutoDistribute: true,
	}
}

// Load applies defaults, then the optional YAML file at path, then
// MARKETDAO_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path = strings.TrimSpace(path); path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.BrokerDriver = strings.ToLower(strings.TrimSpace(c.BrokerDriver))
	brokers := make([]string, 0, len(c.KafkaBrokers))
	for _, broker := range c.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	c.KafkaBrokers = brokers
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("postgres dsn is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.StorageDriver == StorageSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		return errors.New("sqlite path is required for the sqlite storage driver")
	}
	switch c.BrokerDriver {
	case BrokerInProcess:
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("kafka brokers are required for the kafka broker driver")
		}
	default:
		return fmt.Errorf("unknown broker driver %q", c.BrokerDriver)
	}
	if c.RetryAttempts <= 0 || c.LedgerRetryAttempts <= 0 {
		return errors.New("retry attempts must be positive")
	}
	if c.OutboxPollInterval <= 0 {
		return errors.New("outbox poll interval must be positive")
	}
	if c.FanoutLimit <= 0 {
		return errors.New("fanout limit must be positive")
	}
	return nil
}

// Addr returns the listen address for HTTPPort.
func (c Config) Addr() string {
	value := strings.TrimSpace(c.HTTPPort)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
