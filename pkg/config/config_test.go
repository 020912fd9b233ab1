package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairbench/server/pkg/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	require.Equal(t, "tcp", cfg.Server.Mode)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "local", cfg.Exec.Runner)
	require.Equal(t, 1, cfg.Exec.Workers)
	require.Equal(t, 256, cfg.Exec.QueueSize)
	require.Equal(t, 5*time.Second, cfg.Exec.Timeout())
	require.Zero(t, cfg.Lock.TTL(), "locks do not expire by default")

	names := make([]string, 0, len(cfg.Exec.Languages))
	for _, l := range cfg.Exec.Languages {
		names = append(names, l.Name)
	}
	require.Equal(t, []string{"javascript", "python", "shell"}, names)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTH_LOCAL", "true")
	t.Setenv("PORT", "9090")
	t.Setenv("EXEC_WORKERS", "4")
	t.Setenv("EXEC_TIMEOUT_MS", "1500")
	t.Setenv("LOCK_TTL_MS", "60000")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, 4, cfg.Exec.Workers)
	require.Equal(t, 1500*time.Millisecond, cfg.Exec.Timeout())
	require.Equal(t, time.Minute, cfg.Lock.TTL())
	require.True(t, cfg.Auth.Local)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
auth:
  local: true
exec:
  workers: 2
  languages:
    - name: ruby
      cmd: ruby
      args: ["-e"]
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	t.Setenv("PAIRBENCH_CONFIG", path)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Exec.Workers)
	require.Len(t, cfg.Exec.Languages, 1)
	require.Equal(t, "ruby", cfg.Exec.Languages[0].Name)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Local = true

	bad := cfg
	bad.Exec.Workers = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Exec.Runner = "chroot"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Auth.Local = false
	bad.Auth.Secret = ""
	require.Error(t, bad.Validate())

	require.NoError(t, cfg.Validate())
}
