package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
cluster:
  name: prod
  hosts:
    - name: alice
      address: 10.0.0.1
    - name: bob
      user: admin
      port: 2222
intervals:
  crm_retry: 2s
storage:
  backend: memory
logging:
  format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Cluster.Name)
	require.Len(t, cfg.Cluster.Hosts, 2)
	assert.Equal(t, HostConfig{Name: "alice", Address: "10.0.0.1", User: "root", Port: 22}, cfg.Cluster.Hosts[0])
	assert.Equal(t, HostConfig{Name: "bob", Address: "bob", User: "admin", Port: 2222}, cfg.Cluster.Hosts[1])
	assert.Equal(t, 2*time.Second, cfg.Intervals.CrmRetry)
	assert.Equal(t, 10*time.Second, cfg.Intervals.Connection)
	assert.Equal(t, 30*time.Second, cfg.Startup.ConnectBackoff)
	assert.Equal(t, 5, cfg.Intervals.FullRefreshEvery)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "drbdadm -d dump-xml", cfg.Commands.DrbdConfig)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CLUSTERWATCH_SERVER_PORT", "7000")
	cfg, err := LoadConfig(writeConfig(t, "cluster:\n  hosts:\n    - name: alice\n"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestValidateConfig(t *testing.T) {
	for name, body := range map[string]string{
		"duplicate host":  "cluster:\n  hosts:\n    - name: a\n    - name: A\n",
		"nameless host":   "cluster:\n  hosts:\n    - address: 10.0.0.1\n",
		"bad backend":     "storage:\n  backend: etcd\n",
		"bad level":       "logging:\n  level: loud\n",
		"zero interval":   "intervals:\n  connection: 0s\n",
		"bad server port": "server:\n  port: 70000\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.Equal(t, 9400, cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Poller.StopTimeout)
}

func TestLoggingApply(t *testing.T) {
	logger := log.New()
	require.NoError(t, LoggingConfig{Level: "debug", Format: "json"}.Apply(logger))
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, logger.Formatter)
	assert.Error(t, LoggingConfig{Level: "nope"}.Apply(logger))
}
