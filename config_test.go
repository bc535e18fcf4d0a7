package chiru

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationDefaults(t *testing.T) {
	cfg := NewConfiguration("token")

	assert.Equal(t, defaultMessageChannelBuffer, cfg.MessageChannelBuffer)
	assert.Equal(t, defaultMaxConcurrentTasks, cfg.MaxConcurrentTasks)
	assert.Equal(t, defaultConnectRetries, cfg.ConnectRetries)
	assert.Equal(t, defaultMaxReconnectWait, cfg.MaxReconnectWait)
	assert.Equal(t, defaultChunkTimeout, cfg.ChunkTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfigurationValidate(t *testing.T) {
	cfg := NewConfiguration("")
	assert.ErrorIs(t, cfg.Validate(), ErrConfigurationMissingToken)

	cfg = NewConfiguration("token")
	cfg.ShardCount = -1
	assert.ErrorIs(t, cfg.Validate(), ErrConfigurationInvalidShards)
}

func TestLoadConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	contents := `
token: "abc123"
shard_count: 4
max_concurrent_tasks: 8
max_reconnect_wait: 30000000000
`

	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfiguration(path)
	require.NoError(t, err)

	assert.Equal(t, "abc123", cfg.Token)
	assert.EqualValues(t, 4, cfg.ShardCount)
	assert.Equal(t, 8, cfg.MaxConcurrentTasks)
	assert.Equal(t, 30*time.Second, cfg.MaxReconnectWait)

	// Unset fields get defaults.
	assert.Equal(t, defaultMessageChannelBuffer, cfg.MessageChannelBuffer)
}

func TestLoadConfigurationFailures(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrReadConfigurationFailure)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))

	_, err = LoadConfiguration(path)
	assert.ErrorIs(t, err, ErrLoadConfigurationFailure)
}
