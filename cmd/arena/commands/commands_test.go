package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExportRange(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		from, to, err := parseExportRange("2026-03-01", "2026-03-31")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC), to)
	})

	t.Run("SingleDay", func(t *testing.T) {
		from, to, err := parseExportRange("2026-03-01", "2026-03-01")
		require.NoError(t, err)
		assert.True(t, to.After(from))
	})

	t.Run("Reversed", func(t *testing.T) {
		_, _, err := parseExportRange("2026-03-05", "2026-03-01")
		assert.Error(t, err)
	})

	t.Run("BadFormat", func(t *testing.T) {
		_, _, err := parseExportRange("03/01/2026", "2026-03-01")
		assert.Error(t, err)
	})
}

func TestResolveConfigPath(t *testing.T) {
	t.Cleanup(func() { configPath = "" })

	t.Setenv("CONFIG_PATH", "")
	configPath = ""
	assert.Equal(t, defaultConfigPath, resolveConfigPath())

	t.Setenv("CONFIG_PATH", "/etc/arena.yaml")
	assert.Equal(t, "/etc/arena.yaml", resolveConfigPath())

	configPath = "local.yaml"
	assert.Equal(t, "local.yaml", resolveConfigPath())
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `
app:
  name: arena-test
database:
  path: ` + filepath.Join(dir, "arena.db") + `
backup:
  storage_path: ` + filepath.Join(dir, "backups") + `
exports:
  path: ` + filepath.Join(dir, "exports") + `
logging:
  level: error
facilities:
  - id: 1
    name: Futsal Court A
    type: futsal
    capacity: 10
    hourly_rate: "80"
    is_active: true
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestBackupCommand(t *testing.T) {
	t.Cleanup(func() { configPath = "" })
	path := writeConfig(t)

	cmd := newRootCommand("test")
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--config", path, "backup"})

	// the database file must exist before it can be snapshotted
	exportCmd := newRootCommand("test")
	exportCmd.SetOut(&bytes.Buffer{})
	exportCmd.SetArgs([]string{"--config", path, "export", "--from", "2026-03-01", "--to", "2026-03-02"})
	require.NoError(t, exportCmd.Execute())

	require.NoError(t, cmd.Execute())
	backupPath := bytes.TrimSpace(out.Bytes())
	assert.FileExists(t, string(backupPath))
}

func TestExportCommand(t *testing.T) {
	t.Cleanup(func() { configPath = "" })
	path := writeConfig(t)

	cmd := newRootCommand("test")
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--config", path, "export", "--from", "2026-03-01", "--to", "2026-03-31"})
	require.NoError(t, cmd.Execute())

	written := string(bytes.TrimSpace(out.Bytes()))
	assert.FileExists(t, written)
	assert.Equal(t, "reservations_2026-03-01_to_2026-03-31.xlsx", filepath.Base(written))
}

func TestExportCommandRequiresRange(t *testing.T) {
	cmd := newRootCommand("test")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"export", "--from", "2026-03-01"})
	assert.Error(t, cmd.Execute())
}
