package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testnetAddress = "addr_test1qz2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzer3jcu5d8ps7zex2k2xt3uqxgjqnnj83ws8lhrn648jjxtwq2ytjqp"

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "couchdb", cfg.Database.Driver)
	assert.Equal(t, "preprod", cfg.Blockfrost.Network)
	assert.Equal(t, int64(DefaultMetadataLabel), cfg.Indexer.MetadataLabel)
	assert.Equal(t, 10*time.Minute, cfg.Sync.Timeout)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
}

func TestLoadLayersFileThenEnvironment(t *testing.T) {
	path := writeFile(t, `
server:
  port: "9000"
database:
  driver: sqlite
  sqlite_path: /tmp/notes.db
indexer:
  poll_interval: 45s
  start_block_height: 1200
  monitor_addresses:
    - `+testnetAddress+`
sync:
  max_retries: 8
`)
	t.Setenv("SYNC_MAX_RETRIES", "3")
	t.Setenv("BLOCKFROST_PROJECT_ID", "preprodKey")
	t.Setenv("INDEXER_PENDING_INTERVAL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port, "file overrides default")
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/notes.db", cfg.Database.SQLitePath)
	assert.Equal(t, 45*time.Second, cfg.Indexer.PollInterval)
	assert.Equal(t, int64(1200), cfg.Indexer.StartBlockHeight)
	assert.Equal(t, []string{testnetAddress}, cfg.Indexer.MonitorAddresses)
	assert.Equal(t, 3, cfg.Sync.MaxRetries, "environment overrides file")
	assert.Equal(t, "preprodKey", cfg.Blockfrost.ProjectID)
	assert.Equal(t, 2*time.Minute, cfg.Indexer.PendingInterval)
	assert.Equal(t, 10*time.Minute, cfg.Sync.Timeout, "untouched values keep defaults")

	repo := cfg.Database.Repository()
	assert.Equal(t, "sqlite", repo.Driver)
	assert.Equal(t, "/tmp/notes.db", repo.SQLitePath)
}

func TestLoadMonitorAddressesFromEnvironment(t *testing.T) {
	t.Setenv("INDEXER_MONITOR_ADDRESSES", testnetAddress+", "+testnetAddress)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{testnetAddress}, cfg.Indexer.MonitorAddresses)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "unknown database driver"},
		{name: "bad network", mutate: func(c *Config) { c.Blockfrost.Network = "testnet" }, wantErr: "unknown blockfrost network"},
		{
			name:   "custom base url allows any network name",
			mutate: func(c *Config) { c.Blockfrost.Network = "devnet"; c.Blockfrost.BaseURL = "http://localhost:3000" },
		},
		{name: "zero poll interval", mutate: func(c *Config) { c.Indexer.PollInterval = 0 }, wantErr: "poll interval"},
		{name: "negative start height", mutate: func(c *Config) { c.Indexer.StartBlockHeight = -1 }, wantErr: "start block height"},
		{name: "batch too large", mutate: func(c *Config) { c.Indexer.BatchSize = 500 }, wantErr: "batch size"},
		{
			name:    "mainnet address on preprod",
			mutate:  func(c *Config) { c.Indexer.MonitorAddresses = []string{"addr1" + testnetAddress[10:]} },
			wantErr: "monitored address",
		},
		{name: "empty secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "jwt secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
