package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// テスト実行
	cfg, err := Load("")

	// アサーション
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, int64(20), cfg.Inventory.DefaultReorderLevel)
	assert.Equal(t, 50, cfg.Inventory.RecentLimit)
	assert.True(t, cfg.Inventory.AlertsEnabled)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
database:
  host: db.internal
  port: 6543
  dbname: pharmacy
  conn_max_lifetime: 90s
api:
  port: 9090
  read_timeout: 5s
inventory:
  default_reorder_level: 30
  currency: USD
logging:
  level: debug
  format: console
`)

	// テスト実行
	cfg, err := Load(path)

	// アサーション
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "pharmacy", cfg.Database.DBName)
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxLifetime)
	// ファイルに無い項目はデフォルトを維持
	assert.Equal(t, "pharmastock", cfg.Database.User)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 5*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, int64(30), cfg.Inventory.DefaultReorderLevel)
	assert.Equal(t, "USD", cfg.Inventory.Currency)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "api:\n  port: 9090\n")
	t.Setenv("API_PORT", "7070")
	t.Setenv("DB_HOST", "env-host")
	t.Setenv("INVENTORY_ALERTS_ENABLED", "false")
	t.Setenv("EVENTS_ENABLED", "true")
	t.Setenv("EVENTS_AMQP_URL", "amqp://user:pass@mq:5672/")

	// テスト実行
	cfg, err := Load(path)

	// アサーション
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.API.Port)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.False(t, cfg.Inventory.AlertsEnabled)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "amqp://user:pass@mq:5672/", cfg.Events.URL)
}

func TestLoad_InvalidEnvValueKeepsCurrent(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "database: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"空のホスト", func(c *Config) { c.Database.Host = "" }},
		{"無効なDBポート", func(c *Config) { c.Database.Port = 70000 }},
		{"空のユーザー", func(c *Config) { c.Database.User = "" }},
		{"空のDB名", func(c *Config) { c.Database.DBName = "" }},
		{"負のプール", func(c *Config) { c.Database.MaxOpenConns = -1 }},
		{"無効なAPIポート", func(c *Config) { c.API.Port = 0 }},
		{"負の発注点", func(c *Config) { c.Inventory.DefaultReorderLevel = -1 }},
		{"ゼロ件の最近の取引", func(c *Config) { c.Inventory.RecentLimit = 0 }},
		{"空の通貨", func(c *Config) { c.Inventory.Currency = "" }},
		{"イベントURL無し", func(c *Config) { c.Events.Enabled = true; c.Events.URL = "" }},
		{"無効なログレベル", func(c *Config) { c.Logging.Level = "verbose" }},
		{"無効なログフォーマット", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "secret",
		DBName:   "pharmastock",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=user password=secret dbname=pharmastock sslmode=require",
		db.DSN(),
	)
}

func TestInventoryConfig_ManagerConfig(t *testing.T) {
	ic := InventoryConfig{DefaultReorderLevel: 12, RecentLimit: 5, AlertsEnabled: true, Currency: "LKR"}

	mc := ic.ManagerConfig()

	assert.Equal(t, int64(12), mc.DefaultReorderLevel)
	assert.Equal(t, 5, mc.RecentLimit)
	assert.True(t, mc.AlertsEnabled)
	assert.Equal(t, "LKR", mc.Currency)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
