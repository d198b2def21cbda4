package bleloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, Config{}.withDefaults(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestConfigWithDefaults(t *testing.T) {
	t.Run("zero value gets capacities and poll timings", func(t *testing.T) {
		cfg := Config{}.withDefaults()

		assert.Equal(t, DefaultPoolCapacity, cfg.PoolCapacity)
		assert.Equal(t, DefaultPoolCapacity, cfg.QueueCapacity)
		assert.Equal(t, DefaultStatusPollInterval, cfg.StatusPollInterval)
		assert.Equal(t, DefaultStatusPollTimeout, cfg.StatusPollTimeout)
		assert.Zero(t, cfg.SettleTime, "settle time stays opt-in")
	})

	t.Run("queue capacity follows pool capacity", func(t *testing.T) {
		cfg := Config{PoolCapacity: 8}.withDefaults()
		assert.Equal(t, 8, cfg.QueueCapacity)
	})

	t.Run("explicit values kept", func(t *testing.T) {
		cfg := Config{
			PoolCapacity:       4,
			QueueCapacity:      2,
			StatusPollInterval: 5 * time.Millisecond,
			StatusPollTimeout:  time.Second,
		}.withDefaults()

		assert.Equal(t, 4, cfg.PoolCapacity)
		assert.Equal(t, 2, cfg.QueueCapacity)
		assert.Equal(t, 5*time.Millisecond, cfg.StatusPollInterval)
		assert.Equal(t, time.Second, cfg.StatusPollTimeout)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults are valid", Config{}.withDefaults(), false},
		{"negative pool", Config{PoolCapacity: -1}, true},
		{"negative queue", Config{QueueCapacity: -4}, true},
		{"negative poll interval", Config{StatusPollInterval: -time.Millisecond}, true},
		{"negative poll timeout", Config{StatusPollTimeout: -time.Second}, true},
		{"negative settle time", Config{SettleTime: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
