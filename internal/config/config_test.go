package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/org/mdmagent/internal/storage"
)

const sampleYAML = `
listen_addr: 127.0.0.1:9000
timezone: Europe/Berlin
device:
  id: dev-1
  project: acme
servers:
  primary: https://mdm.example.com
  secondary: https://backup.example.com
  timeout: 10s
policy:
  min_fetch_interval: 2m
sync:
  retry_floor: 1s
`

func writeFile(t *testing.T, content string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "agent.yaml", []byte(content), 0o600))
	return fsys
}

func TestLoadFile(t *testing.T) {
	cfg, found, err := Load(writeFile(t, sampleYAML), "agent.yaml")
	require.NoError(t, err)
	require.True(t, found)

	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	require.Equal(t, "dev-1", cfg.Device.ID)
	require.Equal(t, 10*time.Second, cfg.Servers.Timeout)
	require.Equal(t, 2*time.Minute, cfg.Policy.MinFetchInterval)
	require.Equal(t, time.Second, cfg.Sync.RetryFloor)
	require.Equal(t, "Europe/Berlin", cfg.Location().String())

	// Untouched keys keep their defaults.
	require.Equal(t, 5*time.Minute, cfg.Sync.RetryCeil)
	require.Equal(t, storage.DriverSQLite, cfg.Storage.Driver)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_DEVICE_ID", "dev-env")
	t.Setenv("AGENT_DB_DRIVER", "postgres")
	t.Setenv("AGENT_DB_DSN", "postgres://agent@localhost/agent")
	t.Setenv("AGENT_API_TOKEN", "s3cret")

	cfg, _, err := Load(writeFile(t, sampleYAML), "agent.yaml")
	require.NoError(t, err)
	require.Equal(t, "dev-env", cfg.Device.ID)
	require.Equal(t, storage.DriverPostgres, cfg.Storage.Driver)
	require.Equal(t, "postgres://agent@localhost/agent", cfg.Storage.DSN)
	require.Equal(t, "s3cret", cfg.APIToken)
}

func TestMissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("AGENT_DEVICE_ID", "dev-1")
	t.Setenv("AGENT_SERVER_PROJECT", "acme")
	t.Setenv("AGENT_PRIMARY_URL", "https://mdm.example.com")

	cfg, found, err := Load(afero.NewMemMapFs(), "agent.yaml")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, Default().ListenAddr, cfg.ListenAddr)
	require.Equal(t, time.Local, cfg.Location())
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing device", "servers: {primary: https://mdm.example.com}\n", "Device.ID"},
		{"bad primary", "device: {id: a, project: b}\nservers: {primary: not-a-url}\n", "Servers.Primary"},
		{"bad driver", "device: {id: a, project: b}\nservers: {primary: https://x.io}\nstorage: {driver: mysql, dsn: x}\n", "Storage.Driver"},
		{"bad level", "device: {id: a, project: b}\nservers: {primary: https://x.io}\nlog: {level: loud}\n", "Log.Level"},
		{"bad zone", "device: {id: a, project: b}\nservers: {primary: https://x.io}\ntimezone: Mars/Olympus\n", "timezone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Load(writeFile(t, tc.yaml), "agent.yaml")
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMalformedYAML(t *testing.T) {
	_, found, err := Load(writeFile(t, "device: [unterminated"), "agent.yaml")
	require.True(t, found)
	require.Error(t, err)
}
