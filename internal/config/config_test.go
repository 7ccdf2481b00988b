package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "easyshare.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadServerParsesGlobalAndSharings(t *testing.T) {
	path := writeFile(t, `
# comment
address = 127.0.0.1
port = 9999
name = "my-server"

[docs]
path = /tmp/docs
readonly = yes

[]
path = /tmp/fallback
`)

	cfg, err := LoadServer(path, nil)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Address)
	require.Equal(t, 9999, cfg.Port)
	require.Equal(t, "my-server", cfg.Name)
	require.Len(t, cfg.Sharings, 2)
	require.Equal(t, "docs", cfg.Sharings[0].Name)
	require.True(t, cfg.Sharings[0].ReadOnly)
	require.Equal(t, filepath.Base(path[:len(path)-len(filepath.Ext(path))]), cfg.Sharings[1].Name)
}

func TestLoadServerFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "port = 1111\n[a]\npath = /tmp/a\n")

	cfg, err := LoadServer(path, map[string]any{"port": 2222})
	require.NoError(t, err)
	require.Equal(t, 2222, cfg.Port)
}

func TestLoadServerEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "port = 1111\nname = from-file\n[a]\npath = /tmp/a\n")

	t.Setenv("EASYSHARE_PORT", "3333")

	cfg, err := LoadServer(path, nil)
	require.NoError(t, err)
	require.Equal(t, 3333, cfg.Port)
	require.Equal(t, "from-file", cfg.Name) // untouched key still comes from the file
}

func TestLoadServerFlagsOverrideEnvAndFile(t *testing.T) {
	path := writeFile(t, "port = 1111\n[a]\npath = /tmp/a\n")

	t.Setenv("EASYSHARE_PORT", "3333")

	cfg, err := LoadServer(path, map[string]any{"port": 4444})
	require.NoError(t, err)
	require.Equal(t, 4444, cfg.Port)
}

func TestLoadServerRejectsBadSharingName(t *testing.T) {
	path := writeFile(t, "[bad name!]\npath = /tmp/a\n")
	_, err := LoadServer(path, nil)
	require.Error(t, err)
}

func TestLoadServerDefaultsWithoutFile(t *testing.T) {
	_, err := LoadServer("", map[string]any{
		"port": 12020,
	})
	// no sharings configured at all -> validation fails (min=1)
	require.Error(t, err)
}
