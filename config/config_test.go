package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100_000, cfg.DedupCapacity)
	assert.Equal(t, 1000, cfg.SyncBatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.SyncPollInterval)
	assert.False(t, cfg.JournalSyncOnAppend)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_EnvOverridesDotEnv(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte(
		"SYNC_BATCH_SIZE=250\nGRPC_ADDR=:7000\n"), 0o644))

	t.Setenv("GRPC_ADDR", ":9000")
	t.Setenv("SYNC_BATCH_SIZE", "")
	os.Unsetenv("SYNC_BATCH_SIZE")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SYNC_POLL_INTERVAL", "250ms")

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.GRPCAddr)
	assert.Equal(t, 250, cfg.SyncBatchSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncPollInterval)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "data/exchange.journal", cfg.JournalPath)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty journal":      func(c *Config) { c.JournalPath = "" },
		"zero dedup":         func(c *Config) { c.DedupCapacity = 0 },
		"zero batch":         func(c *Config) { c.SyncBatchSize = 0 },
		"backoff below poll": func(c *Config) { c.SyncMaxBackoff = time.Millisecond },
		"unknown driver":     func(c *Config) { c.ReadModelDriver = "mysql" },
		"intake no brokers":  func(c *Config) { c.KafkaIntakeEnabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.SyncEnabled = false
	cfg.ReadModelDriver = "mysql"
	assert.NoError(t, cfg.Validate(), "driver is ignored while sync is off")
}
