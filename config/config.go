package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"matchcore/infra/dedup"
)

// Config is the whole process configuration.
// Priority: ENV > .env > defaults.
type Config struct {
	JournalPath         string
	JournalSyncOnAppend bool
	DedupCapacity       int
	InstrumentsFile     string

	SyncEnabled        bool
	SyncCheckpointPath string
	SyncBatchSize      int
	SyncPollInterval   time.Duration
	SyncMaxBackoff     time.Duration
	ReadModelDriver    string
	ReadModelDSN       string

	KafkaBrokers       []string
	KafkaCommandTopic  string
	KafkaReportTopic   string
	KafkaGroupID       string
	KafkaIntakeEnabled bool

	OutboxDir             string
	OutboxPublishInterval time.Duration
	OutboxSync            bool

	GRPCAddr    string
	MetricsAddr string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

var defaults = map[string]any{
	"JOURNAL_PATH":            "data/exchange.journal",
	"JOURNAL_SYNC_ON_APPEND":  false,
	"ENGINE_DEDUP_CAPACITY":   dedup.DefaultCapacity,
	"INSTRUMENTS_FILE":        "config/instruments.yaml",
	"SYNC_ENABLED":            true,
	"SYNC_CHECKPOINT_PATH":    "data/sync.offset",
	"SYNC_BATCH_SIZE":         1000,
	"SYNC_POLL_INTERVAL":      "100ms",
	"SYNC_MAX_BACKOFF":        "10s",
	"READMODEL_DRIVER":        "sqlite",
	"READMODEL_DSN":           "data/readmodel.db",
	"KAFKA_BROKERS":           "",
	"KAFKA_COMMAND_TOPIC":     "exchange.commands",
	"KAFKA_REPORT_TOPIC":      "exchange.reports",
	"KAFKA_GROUP_ID":          "matchcore",
	"KAFKA_INTAKE_ENABLED":    false,
	"OUTBOX_DIR":              "data/outbox",
	"OUTBOX_PUBLISH_INTERVAL": "50ms",
	"OUTBOX_SYNC":             false,
	"GRPC_ADDR":               ":50051",
	"METRICS_ADDR":            ":9100",
	"LOG_LEVEL":               "info",
	"LOG_FILE":                "",
	"LOG_MAX_SIZE_MB":         100,
	"LOG_MAX_BACKUPS":         5,
	"LOG_MAX_AGE_DAYS":        30,
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return build(newViper())
}

/*
Load reads envPath (if it exists) into the process environment and then
resolves every key from the environment with defaults.

IMPORTANT:
  - godotenv never overrides variables already set, so ENV wins over .env
  - A missing envPath is not an error; an unreadable one is
*/
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return Config{}, errors.Wrapf(err, "load %s", envPath)
			}
		}
	}

	v := newViper()
	v.AutomaticEnv()
	cfg := build(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

func build(v *viper.Viper) Config {
	return Config{
		JournalPath:         v.GetString("JOURNAL_PATH"),
		JournalSyncOnAppend: v.GetBool("JOURNAL_SYNC_ON_APPEND"),
		DedupCapacity:       v.GetInt("ENGINE_DEDUP_CAPACITY"),
		InstrumentsFile:     v.GetString("INSTRUMENTS_FILE"),

		SyncEnabled:        v.GetBool("SYNC_ENABLED"),
		SyncCheckpointPath: v.GetString("SYNC_CHECKPOINT_PATH"),
		SyncBatchSize:      v.GetInt("SYNC_BATCH_SIZE"),
		SyncPollInterval:   v.GetDuration("SYNC_POLL_INTERVAL"),
		SyncMaxBackoff:     v.GetDuration("SYNC_MAX_BACKOFF"),
		ReadModelDriver:    strings.ToLower(v.GetString("READMODEL_DRIVER")),
		ReadModelDSN:       v.GetString("READMODEL_DSN"),

		KafkaBrokers:       splitList(v.GetString("KAFKA_BROKERS")),
		KafkaCommandTopic:  v.GetString("KAFKA_COMMAND_TOPIC"),
		KafkaReportTopic:   v.GetString("KAFKA_REPORT_TOPIC"),
		KafkaGroupID:       v.GetString("KAFKA_GROUP_ID"),
		KafkaIntakeEnabled: v.GetBool("KAFKA_INTAKE_ENABLED"),

		OutboxDir:             v.GetString("OUTBOX_DIR"),
		OutboxPublishInterval: v.GetDuration("OUTBOX_PUBLISH_INTERVAL"),
		OutboxSync:            v.GetBool("OUTBOX_SYNC"),

		GRPCAddr:    v.GetString("GRPC_ADDR"),
		MetricsAddr: v.GetString("METRICS_ADDR"),

		LogLevel:      v.GetString("LOG_LEVEL"),
		LogFile:       v.GetString("LOG_FILE"),
		LogMaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		LogMaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		LogMaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// KafkaEnabled reports whether any broker is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c Config) Validate() error {
	switch {
	case c.JournalPath == "":
		return errors.New("JOURNAL_PATH is empty")
	case c.DedupCapacity <= 0:
		return errors.Newf("ENGINE_DEDUP_CAPACITY must be positive, got %d", c.DedupCapacity)
	case c.InstrumentsFile == "":
		return errors.New("INSTRUMENTS_FILE is empty")
	}

	if c.SyncEnabled {
		switch {
		case c.SyncBatchSize <= 0:
			return errors.Newf("SYNC_BATCH_SIZE must be positive, got %d", c.SyncBatchSize)
		case c.SyncPollInterval <= 0:
			return errors.New("SYNC_POLL_INTERVAL must be positive")
		case c.SyncMaxBackoff < c.SyncPollInterval:
			return errors.New("SYNC_MAX_BACKOFF must not be below SYNC_POLL_INTERVAL")
		case c.SyncCheckpointPath == "":
			return errors.New("SYNC_CHECKPOINT_PATH is empty")
		}
		if c.ReadModelDriver != "sqlite" && c.ReadModelDriver != "postgres" {
			return errors.Newf("READMODEL_DRIVER %q is not sqlite or postgres", c.ReadModelDriver)
		}
	}

	if c.KafkaIntakeEnabled && !c.KafkaEnabled() {
		return errors.New("KAFKA_INTAKE_ENABLED needs KAFKA_BROKERS")
	}
	if c.KafkaEnabled() && c.OutboxPublishInterval <= 0 {
		return errors.New("OUTBOX_PUBLISH_INTERVAL must be positive")
	}
	return nil
}
