package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "bookstore-orders", cfg.ServiceName)
	assert.Equal(t, 5, cfg.VolumeMinQty)
	assert.Equal(t, "5", cfg.VolumePercent.String())
	assert.Equal(t, 10, cfg.MilestoneEvery)
	assert.Equal(t, "10", cfg.MilestonePercent.String())
	assert.Equal(t, 30, cfg.MilestoneValidDays)
	assert.Equal(t, 3, cfg.NotifyRetryAttempts)
	assert.Equal(t, time.Second, cfg.NotifyRetryDelay)
	assert.Equal(t, 4, cfg.MailerWorkers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("VOLUME_PERCENT", "7.5")
	t.Setenv("NOTIFY_RETRY_DELAY", "250ms")
	t.Setenv("MILESTONE_EVERY", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "7.5", cfg.VolumePercent.String())
	assert.Equal(t, 250*time.Millisecond, cfg.NotifyRetryDelay)
	assert.Equal(t, 3, cfg.MilestoneEvery)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for k, v := range map[string]string{
		"MAILER_WORKERS":     "many",
		"MILESTONE_PERCENT":  "ten",
		"NOTIFY_RETRY_DELAY": "soon",
		"STORE_DRIVER":       "mysql",
	} {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), k)
		})
	}
}
