package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectledge/coral/internal/config"
)

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "coral.toml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Wrote "+path)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coral.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0644))

	out, err := execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "already exists")

	_, err = execute(t, "config", "init", path, "--force")
	require.NoError(t, err)
	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestConfigShowJSON(t *testing.T) {
	out, err := execute(t, "--db", "library.db", "--format", "json", "config", "show")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   config.Config `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "library.db", resp.Data.Database.Path)
	assert.Equal(t, "schema", resp.Data.Schema.Dir)
}

func TestConfigShowEnvOverride(t *testing.T) {
	t.Setenv("CORAL_LOG_LEVEL", "warn")

	buf, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, buf, `level = "warn"`)
}
