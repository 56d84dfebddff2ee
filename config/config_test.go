package config_test

import (
	"media-gateway/config"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_EmptyUsesDefaults(t *testing.T) {
	cfg, err := config.ParseConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"0.1"}, cfg.Auth.AuthorizedVersions)
	assert.Equal(t, "4", cfg.Auth.Groups["admin"])
	assert.Equal(t, "1000", cfg.Auth.Groups["anonymous"])
	assert.Equal(t, []string{"admin", "delegate"}, cfg.Auth.Users["admin"].Groups)
	assert.Equal(t, 120*time.Second, cfg.Storage.ConnectorTimeout)
	require.Len(t, cfg.Storage.Zones, 1)
	assert.Equal(t, "zone1", cfg.Storage.Zones[0].Name)
	assert.Equal(t, 300*time.Second, cfg.Storage.Zones[0].StagingTimeout)
	assert.Equal(t, 600*time.Second, cfg.Storage.Zones[0].DestroyTimeout)
	assert.Equal(t, "none", cfg.Audit.Driver)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	content := `
server:
  addr: ":8080"
logging:
  level: debug
  format: json
storage:
  media_dir: /tmp/media
  connector_timeout: 30s
  zones:
    - name: zone1
      staging_timeout: 1s
      destroy_timeout: 2s
    - name: static
      path: /srv/static
      index: list.csv
auth:
  users:
    alice:
      id: "2001"
      password: "$5$secret$"
      groups: [producer]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.Storage.ConnectorTimeout)
	require.Len(t, cfg.Storage.Zones, 2)
	assert.Equal(t, time.Second, cfg.Storage.Zones[0].StagingTimeout)
	assert.Equal(t, "list.csv", cfg.Storage.Zones[1].Index)

	assert.Contains(t, cfg.Auth.Users, "alice")
	assert.Contains(t, cfg.Auth.Users, "admin", "default users are kept")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{
			name:    "bad log level",
			content: "logging:\n  level: verbose\n",
			errPart: "Logging.Level",
		},
		{
			name:    "bad mask",
			content: "auth:\n  system_acl:\n    core: [admin, admin, rwz, rwx, '---']\n",
			errPart: "invalid mask",
		},
		{
			name:    "duplicate zones",
			content: "storage:\n  zones:\n    - name: a\n    - name: a\n",
			errPart: "duplicate zone",
		},
		{
			name:    "postgres without dsn",
			content: "audit:\n  driver: postgres\n",
			errPart: "audit.database.dsn",
		},
		{
			name:    "unknown audit driver",
			content: "audit:\n  driver: mongo\n",
			errPart: "Audit.Driver",
		},
		{
			name:    "archive without bucket",
			content: "s3:\n  enabled: true\n",
			errPart: "s3.bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.ParseConfig([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}
