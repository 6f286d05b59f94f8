package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "tcp_addr: \":9000\"\nhttp_addr: \"\"\nlines_per_minute: 30\njwt_ttl: 1h\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LINECHAT_TCP_ADDR", ":9100")
	t.Setenv("CONNECTION_URL", "postgres://chat@localhost/chat")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.TCPAddr, "env overrides file")
	assert.Empty(t, cfg.HTTPAddr, "file can disable http")
	assert.Equal(t, 30, cfg.LinesPerMinute)
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.Equal(t, "postgres://chat@localhost/chat", cfg.DatabaseURL)
	assert.Equal(t, Default().OutboxSize, cfg.OutboxSize)
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{TCPAddr: ":1", LogLevel: "debug"})

	assert.Equal(t, ":1", cfg.TCPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Default().HTTPAddr, cfg.HTTPAddr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreDriver = StorePostgres }},
		{name: "postgres with url", mutate: func(c *Config) {
			c.StoreDriver = StorePostgres
			c.DatabaseURL = "postgres://localhost/chat"
		}, ok: true},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "mongo" }},
		{name: "zero line limit", mutate: func(c *Config) { c.MaxLineBytes = 0 }},
		{name: "negative rate", mutate: func(c *Config) { c.LinesPerMinute = -1 }},
		{name: "missing tcp addr", mutate: func(c *Config) { c.TCPAddr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
