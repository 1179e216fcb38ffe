package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/viewcone/internal/core/observability/log"
	"github.com/zeusync/viewcone/internal/core/storage"
	"github.com/zeusync/viewcone/internal/core/visibility"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
server:
  listen_addr: 0.0.0.0:9000
  shutdown_timeout: 3s
store:
  driver: sqlite
  dsn: /tmp/objects.sqlite
  query_timeout: 250ms
visibility:
  coincident: reject
  workers: 4
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, storage.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/objects.sqlite", cfg.Store.DSN)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.QueryTimeout)
	assert.Equal(t, visibility.CoincidentReject, cfg.Visibility.Coincident)
	assert.Equal(t, 4, cfg.Visibility.Workers)
	assert.Equal(t, log.LevelDebug, cfg.Log.Level)

	// untouched sections keep their defaults
	assert.Equal(t, Default().RateLimit, cfg.RateLimit)
	assert.Equal(t, Default().Server.WebSocket, cfg.Server.WebSocket)
	assert.Equal(t, 8, cfg.Store.MaxOpenConns)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"unknown key":        "server:\n  listen: x\n",
		"bad policy":         "visibility:\n  coincident: sometimes\n",
		"bad level":          "log:\n  level: loud\n",
		"sqlite without dsn": "store:\n  driver: sqlite\n",
		"unknown driver":     "store:\n  driver: neo4j\n",
		"http3 without cert": "http3:\n  enabled: true\n",
		"zero timeout":       "store:\n  query_timeout: 0s\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "viewcone.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: 127.0.0.1:5000\n"), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:5000", cfg.Server.ListenAddr)
	})

	t.Run("environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "env.yaml")
		require.NoError(t, os.WriteFile(path, []byte("auth:\n  token: s3cret\n"), 0o644))
		t.Setenv(EnvConfigPath, path)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", cfg.Auth.Token)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
